package server

import (
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type answerRequest struct {
	Query        string `json:"query"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// streamAnswer serves the answer as chunked UTF-8 text. Failures before the
// first chunk are reported as {error, details} with a matching status; a
// failure after that drops the connection so the body ends short of its
// terminating chunk.
func (h *Handler) streamAnswer(c *gin.Context) {
	if h.Answers == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "answer backend not configured"})
		return
	}
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request", "details": err.Error()})
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request", "details": "query is required"})
		return
	}

	next, stop := iter.Pull2(h.Answers.Stream(c.Request.Context(), query, req.SystemPrompt))
	defer stop()

	chunk, err, ok := next()
	if err != nil {
		slog.Error("Answer backend failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "answer generation failed", "details": err.Error()})
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)
	for ok {
		if err != nil {
			slog.Error("Answer stream interrupted", "error", err)
			abortStream(c)
			return
		}
		if chunk != "" {
			if _, werr := c.Writer.Write([]byte(chunk)); werr != nil {
				return
			}
			c.Writer.Flush()
		}
		chunk, err, ok = next()
	}
}

// abortStream closes the client connection mid-response. gin refuses to
// hijack once the body is written, so the net/http writer underneath is
// hijacked instead.
func abortStream(c *gin.Context) {
	c.Writer.Flush()
	var w http.ResponseWriter = c.Writer
	if u, ok := w.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = u.Unwrap()
	}
	conn, _, err := http.NewResponseController(w).Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}
	conn.Close()
}
