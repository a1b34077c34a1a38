package hub

import (
	"strings"
	"sync"
	"time"
)

// RateLimiter coalesces log lines that arrive within one interval into a
// single message per origin and level.
type RateLimiter struct {
	mu       sync.Mutex
	pending  map[string]*pendingLog
	interval time.Duration
	onFlush  func(key string, msg LogMessage)
}

type pendingLog struct {
	level  string
	origin string
	lines  []string
	ts     int64
	timer  *time.Timer
}

func NewRateLimiter(interval time.Duration, onFlush func(string, LogMessage)) *RateLimiter {
	return &RateLimiter{
		pending:  make(map[string]*pendingLog),
		interval: interval,
		onFlush:  onFlush,
	}
}

func batchKey(msg LogMessage) string {
	return msg.Origin + "|" + msg.Level
}

func (r *RateLimiter) Add(msg LogMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := batchKey(msg)
	p, exists := r.pending[key]
	if !exists {
		p = &pendingLog{level: msg.Level, origin: msg.Origin}
		r.pending[key] = p
	}

	p.lines = append(p.lines, msg.Text)
	if msg.Ts > p.ts {
		p.ts = msg.Ts
	}

	if p.timer == nil {
		p.timer = time.AfterFunc(r.interval, func() {
			r.flush(key)
		})
	}
}

func (r *RateLimiter) flush(key string) {
	r.mu.Lock()
	p, exists := r.pending[key]
	if !exists {
		r.mu.Unlock()
		return
	}
	delete(r.pending, key)
	r.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}
	if r.onFlush != nil && len(p.lines) > 0 {
		r.onFlush(key, LogMessage{
			Type:   "log",
			Level:  p.level,
			Origin: p.origin,
			Text:   strings.Join(p.lines, "\n"),
			Ts:     p.ts,
		})
	}
}

func (r *RateLimiter) FlushAll() {
	r.mu.Lock()
	keys := make([]string, 0, len(r.pending))
	for k := range r.pending {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	for _, k := range keys {
		r.flush(k)
	}
}
