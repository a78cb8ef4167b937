package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikeboe/widget-studio/pkg/answer"
	"github.com/mikeboe/widget-studio/pkg/prefs"
	"github.com/mikeboe/widget-studio/pkg/preview"
	"github.com/mikeboe/widget-studio/pkg/session"
	"github.com/mikeboe/widget-studio/pkg/widget"
)

type Handler struct {
	Service *Service
	Answers answer.Streamer
	Prefs   prefs.Storage

	mcpMu       sync.RWMutex
	mcpSessions map[string]*MCPSession
}

func NewHandler(s *Service, answers answer.Streamer, p prefs.Storage) *Handler {
	if p == nil {
		p = prefs.NewMemoryStorage()
	}
	return &Handler{
		Service:     s,
		Answers:     answers,
		Prefs:       p,
		mcpSessions: make(map[string]*MCPSession),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/mcp", h.MCPHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	{
		api.POST("/answer", h.streamAnswer)

		api.GET("/widgets/:id/config", h.getConfig)
		api.PATCH("/widgets/:id/config", h.patchConfig)
		api.GET("/widgets/:id/preview", h.previewHTML)
		api.GET("/widgets/:id/preview.json", h.previewJSON)
		api.GET("/widgets/:id/preview/events", h.previewEvents)

		api.POST("/sessions", h.createSession)
		api.GET("/sessions/:id", h.getSession)
		api.DELETE("/sessions/:id", h.deleteSession)
		api.GET("/sessions/:id/events", h.sessionEvents)
		api.POST("/sessions/:id/expand", h.expand)
		api.POST("/sessions/:id/collapse", h.collapse)
		api.POST("/sessions/:id/query", h.setQuery)
		api.POST("/sessions/:id/seed", h.selectSeed)
		api.POST("/sessions/:id/submit", h.submit)
		api.POST("/sessions/:id/new-search", h.newSearch)
		api.POST("/sessions/:id/feedback", h.feedback)
		api.POST("/sessions/:id/carousel/:row/pointer", h.carouselPointer)

		api.GET("/preview/prefs/:user", h.getPrefs)
		api.PUT("/preview/prefs/:user", h.putPrefs)
	}
}

// writeSSE sends v as one "data:" event.
func writeSSE(c *gin.Context, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(data)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
	return true
}

func sseHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Transfer-Encoding", "chunked")
}

// --- Configuration ---

func (h *Handler) getConfig(c *gin.Context) {
	store, err := h.Service.Configs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, store.Get())
}

func (h *Handler) patchConfig(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	partial, err := widget.Parse(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := widget.Validate(partial); err != nil {
		var verr *widget.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid configuration", "fields": verr.Fields})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	store, err := h.Service.Configs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, store.Set(partial))
}

// --- Preview ---

func (h *Handler) previewVariant(c *gin.Context) string {
	if v := c.Query("variant"); v != "" {
		return v
	}
	if user := c.Query("user"); user != "" {
		p, err := prefs.LoadOrDefault(c.Request.Context(), h.Prefs, user)
		if err != nil {
			slog.Warn("Failed to load preview preferences", "user", user, "error", err)
		}
		return string(p.Variant)
	}
	return string(prefs.Default.Variant)
}

func (h *Handler) render(c *gin.Context) (*preview.RenderedWidget, bool) {
	store, err := h.Service.Configs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	variant := h.previewVariant(c)
	rw := preview.Render(variant, store.Get())
	if rw == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown variant: " + variant})
		return nil, false
	}
	return rw, true
}

func (h *Handler) previewHTML(c *gin.Context) {
	rw, ok := h.render(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := preview.WriteHTML(&buf, rw, nil); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (h *Handler) previewJSON(c *gin.Context) {
	rw, ok := h.render(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rw)
}

// previewEvents re-renders the preview after every configuration change.
func (h *Handler) previewEvents(c *gin.Context) {
	rw, ok := h.render(c)
	if !ok {
		return
	}
	store, _ := h.Service.Configs.Get(c.Request.Context(), c.Param("id"))

	changes := make(chan widget.Configuration, 1)
	cancel := store.OnChange(func(cfg widget.Configuration) {
		// keep only the newest configuration
		select {
		case <-changes:
		default:
		}
		select {
		case changes <- cfg:
		default:
		}
	})
	defer cancel()

	sseHeaders(c)
	if !writeSSE(c, rw) {
		return
	}
	variant := string(rw.Variant)
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case cfg := <-changes:
			if !writeSSE(c, preview.Render(variant, cfg)) {
				return
			}
		}
	}
}

// --- Sessions ---

type sessionView struct {
	*Session
	Snapshot session.Snapshot `json:"snapshot"`
}

func view(s *Session) sessionView {
	return sessionView{Session: s, Snapshot: s.Machine.Snapshot()}
}

func (h *Handler) lookup(c *gin.Context) (*Session, bool) {
	sess, err := h.Service.GetSession(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return sess, true
}

func (h *Handler) createSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.Service.CreateSession(c.Request.Context(), req)
	if errors.Is(err, ErrUnknownVariant) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, view(sess))
}

func (h *Handler) getSession(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, view(sess))
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.Service.DeleteSession(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type sessionEvent struct {
	Type     string            `json:"type"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
	Carousel *CarouselPosition `json:"carousel,omitempty"`
}

func (h *Handler) sessionEvents(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	snaps, cancel := sess.Machine.Subscribe()
	defer cancel()
	carousel, cancelCarousel := sess.SubscribeCarousel()
	defer cancelCarousel()

	sseHeaders(c)
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case snap, open := <-snaps:
			if !open {
				writeSSE(c, sessionEvent{Type: "closed"})
				return
			}
			if !writeSSE(c, sessionEvent{Type: "state", Snapshot: &snap}) {
				return
			}
		case pos, open := <-carousel:
			if !open {
				return
			}
			if !writeSSE(c, sessionEvent{Type: "carousel", Carousel: &pos}) {
				return
			}
		}
	}
}

func (h *Handler) expand(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	sess.Machine.Expand()
	c.JSON(http.StatusOK, sess.Machine.Snapshot())
}

func (h *Handler) collapse(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	sess.Machine.Collapse()
	c.JSON(http.StatusOK, sess.Machine.Snapshot())
}

func (h *Handler) setQuery(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	var req struct {
		Query string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess.Machine.SetQuery(req.Query)
	c.JSON(http.StatusOK, sess.Machine.Snapshot())
}

func (h *Handler) selectSeed(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	var req struct {
		Question string `json:"question" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !sess.Machine.SelectSeed(req.Question) {
		h.conflict(c, sess, "seed question not accepted")
		return
	}
	c.JSON(http.StatusOK, sess.Machine.Snapshot())
}

func (h *Handler) submit(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	if !sess.Machine.Submit() {
		h.conflict(c, sess, "query not submitted")
		return
	}
	c.JSON(http.StatusAccepted, sess.Machine.Snapshot())
}

func (h *Handler) newSearch(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	if !sess.Machine.NewSearch() {
		h.conflict(c, sess, "widget is collapsed")
		return
	}
	c.JSON(http.StatusOK, sess.Machine.Snapshot())
}

func (h *Handler) feedback(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	var req struct {
		Feedback session.Feedback `json:"feedback"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.Service.SetFeedback(c.Request.Context(), sess, req.Feedback)
	switch {
	case errors.Is(err, session.ErrInvalidFeedback):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrFeedbackUnavailable):
		h.conflict(c, sess, err.Error())
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, sess.Machine.Snapshot())
	}
}

func (h *Handler) carouselPointer(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	row, err := strconv.Atoi(c.Param("row"))
	if err != nil || sess.Rows == nil || sess.Rows.Row(row) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "carousel row not found"})
		return
	}
	var req struct {
		Inside bool `json:"inside"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	carousel := sess.Rows.Row(row)
	if req.Inside {
		carousel.PointerEnter()
	} else {
		carousel.PointerLeave()
	}
	idx, item := carousel.Current()
	c.JSON(http.StatusOK, gin.H{"row": row, "paused": carousel.Paused(), "index": idx, "item": item})
}

func (h *Handler) conflict(c *gin.Context, sess *Session, msg string) {
	c.JSON(http.StatusConflict, gin.H{"error": msg, "state": sess.Machine.Snapshot().State})
}

// --- Preview preferences ---

func (h *Handler) getPrefs(c *gin.Context) {
	p, err := prefs.LoadOrDefault(c.Request.Context(), h.Prefs, c.Param("user"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) putPrefs(c *gin.Context) {
	var p prefs.Prefs
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if p.Normalize() != p {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown variant or theme"})
		return
	}
	if err := h.Prefs.Save(c.Request.Context(), c.Param("user"), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}
