package seed

import (
	"sync"
	"time"
)

// Carousel advances through a list of questions on a fixed interval. While
// the pointer is over it the carousel holds still; leaving restarts the
// interval.
type Carousel struct {
	mu        sync.Mutex
	items     []string
	index     int
	interval  time.Duration
	onAdvance func(index int, item string)

	timer   *time.Timer
	gen     uint64
	running bool
	paused  bool
}

// NewCarousel returns a stopped carousel. onAdvance may be nil.
func NewCarousel(items []string, interval time.Duration, onAdvance func(index int, item string)) *Carousel {
	return &Carousel{
		items:     append([]string(nil), items...),
		interval:  interval,
		onAdvance: onAdvance,
	}
}

// Start begins auto-advancing. Carousels with fewer than two items or no
// interval never advance.
func (c *Carousel) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.scheduleLocked()
}

// Stop halts the carousel for good.
func (c *Carousel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.cancelLocked()
}

// PointerEnter pauses advancing.
func (c *Carousel) PointerEnter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.paused = true
	c.cancelLocked()
}

// PointerLeave resumes advancing with a full interval.
func (c *Carousel) PointerLeave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	c.scheduleLocked()
}

// Paused reports whether the pointer is holding the carousel.
func (c *Carousel) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Current returns the index and text of the visible question.
func (c *Carousel) Current() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return 0, ""
	}
	return c.index, c.items[c.index]
}

// Items returns the questions in display order.
func (c *Carousel) Items() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.items...)
}

func (c *Carousel) scheduleLocked() {
	if !c.running || c.paused || c.interval <= 0 || len(c.items) < 2 {
		return
	}
	c.cancelLocked()
	gen := c.gen
	c.timer = time.AfterFunc(c.interval, func() { c.tick(gen) })
}

func (c *Carousel) cancelLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Carousel) tick(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.running || c.paused {
		c.mu.Unlock()
		return
	}
	c.index = (c.index + 1) % len(c.items)
	index, item := c.index, c.items[c.index]
	c.scheduleLocked()
	fn := c.onAdvance
	c.mu.Unlock()

	if fn != nil {
		fn(index, item)
	}
}

// Rows is a pair of carousels that scroll on their own timers and pause
// independently.
type Rows struct {
	Row1 *Carousel
	Row2 *Carousel
}

// NewRows builds a carousel per row. onAdvance receives the row number
// (1 or 2) with the new position.
func NewRows(row1, row2 []string, interval time.Duration, onAdvance func(row, index int, item string)) *Rows {
	notify := func(row int) func(int, string) {
		if onAdvance == nil {
			return nil
		}
		return func(index int, item string) { onAdvance(row, index, item) }
	}
	return &Rows{
		Row1: NewCarousel(row1, interval, notify(1)),
		Row2: NewCarousel(row2, interval, notify(2)),
	}
}

// Row returns carousel n (1 or 2), or nil.
func (r *Rows) Row(n int) *Carousel {
	switch n {
	case 1:
		return r.Row1
	case 2:
		return r.Row2
	}
	return nil
}

func (r *Rows) Start() {
	r.Row1.Start()
	r.Row2.Start()
}

func (r *Rows) Stop() {
	r.Row1.Stop()
	r.Row2.Stop()
}
