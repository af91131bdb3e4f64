package ws

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"socialhub-backend/internal/domain"
	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/metrics"
)

// room is the single dispatch goroutine of one conversation. Every event for
// the conversation passes through its mailbox, and new_message events are
// released in seq order.
type room struct {
	id      int64
	mailbox chan *Event
	done    chan struct{}
	window  time.Duration

	mu      sync.RWMutex
	clients map[*Client]struct{}

	// owned by run
	next    int64
	pending map[int64]*Event
	timer   *time.Timer
}

func newRoom(id, seqHint int64, mailboxSize int, window time.Duration) *room {
	r := &room{
		id:      id,
		mailbox: make(chan *Event, mailboxSize),
		done:    make(chan struct{}),
		window:  window,
		clients: make(map[*Client]struct{}),
		pending: make(map[int64]*Event),
		next:    seqHint + 1,
	}
	return r
}

func (r *room) add(c *Client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
}

// remove detaches c and reports whether the room is now empty
func (r *room) remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	return len(r.clients) == 0
}

func (r *room) has(p domain.Principal) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.clients {
		if c.principal.Equal(p) {
			return true
		}
	}
	return false
}

func (r *room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// post hands ev to the room without blocking
func (r *room) post(ev *Event) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.mailbox <- ev:
		return true
	case <-r.done:
		return false
	default:
		return false
	}
}

func (r *room) stop() {
	close(r.done)
}

func (r *room) run() {
	for {
		select {
		case ev := <-r.mailbox:
			r.safely(func() { r.accept(ev) })
		case <-r.timerC():
			r.timer = nil
			r.safely(r.skipGap)
		case <-r.done:
			if r.timer != nil {
				r.timer.Stop()
			}
			return
		}
	}
}

// safely keeps the dispatch loop alive if a single event blows up
func (r *room) safely(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.ChatBroadcastPanicTotal.Inc()
			logger.Error("Room dispatcher panicked",
				zap.Int64("conversation_id", r.id),
				zap.Any("panic", rec))
		}
	}()
	fn()
}

func (r *room) timerC() <-chan time.Time {
	if r.timer == nil {
		return nil
	}
	return r.timer.C
}

func (r *room) accept(ev *Event) {
	if ev.Seq == 0 {
		r.deliver(ev)
		return
	}
	switch {
	case ev.Seq < r.next:
		// already released or skipped
		r.deliver(ev)
	case ev.Seq == r.next:
		r.deliver(ev)
		r.next++
		r.drain()
	default:
		metrics.ChatBroadcastReorderedTotal.Inc()
		r.pending[ev.Seq] = ev
		if r.timer == nil {
			r.timer = time.NewTimer(r.window)
		}
	}
}

// drain releases buffered events that are now contiguous
func (r *room) drain() {
	for {
		ev, ok := r.pending[r.next]
		if !ok {
			break
		}
		delete(r.pending, r.next)
		r.deliver(ev)
		r.next++
	}
	if len(r.pending) == 0 && r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// skipGap gives up on the missing seq and jumps to the lowest buffered one
func (r *room) skipGap() {
	if len(r.pending) == 0 {
		return
	}
	seqs := make([]int64, 0, len(r.pending))
	for s := range r.pending {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	metrics.ChatBroadcastSeqGapTotal.Inc()
	logger.Warn("Skipping missing message seq",
		zap.Int64("conversation_id", r.id),
		zap.Int64("expected", r.next),
		zap.Int64("resume_at", seqs[0]))

	r.next = seqs[0]
	r.drain()
	if len(r.pending) > 0 && r.timer == nil {
		r.timer = time.NewTimer(r.window)
	}
}

func (r *room) deliver(ev *Event) {
	r.mu.RLock()
	targets := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		if c != ev.except {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	metrics.ChatBroadcastTotal.WithLabelValues(ev.Name).Inc()
	for _, c := range targets {
		if c.enqueue(ev.Frame) == enqueueFull {
			metrics.ChatClientMessageDroppedTotal.WithLabelValues("buffer_full").Inc()
			logger.Warn("Dropping slow websocket subscriber",
				zap.Int64("conversation_id", r.id),
				zap.String("principal", c.principal.String()))
			c.close()
		}
	}
}
