package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/metrics"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
)

const (
	DefaultAckTimeout = 20 * time.Second
	DefaultAckDwell   = 5 * time.Second
)

type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateConfirmed DeliveryState = "confirmed"
	StateTimedOut  DeliveryState = "timed_out"
	StateCancelled DeliveryState = "cancelled"
)

// Delivery is the tracker's verdict. Ack is nil when no ack was ever observed.
type Delivery struct {
	Delivered bool          `json:"delivered"`
	Ack       *int          `json:"ack"`
	State     DeliveryState `json:"state"`
}

// Tracker keeps one waiter per in-flight message and fans acknowledgment
// events out to them. Observe is meant to be the single shared listener.
type Tracker struct {
	timeout time.Duration
	dwell   time.Duration

	mu      sync.Mutex
	waiters map[string]*Waiter
}

func NewTracker(timeout time.Duration, dwell time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	if dwell < 0 {
		dwell = 0
	}
	if dwell > timeout {
		dwell = timeout
	}
	return &Tracker{
		timeout: timeout,
		dwell:   dwell,
		waiters: make(map[string]*Waiter),
	}
}

// Waiter is the AckState of one tracked message.
type Waiter struct {
	tracker   *Tracker
	messageID string
	timeout   time.Duration

	mu         sync.Mutex
	sentAt     time.Time
	initialAck *int
	observed   *int
	resolved   bool

	qualified   chan struct{}
	qualifyOnce sync.Once
	removeOnce  sync.Once
}

// Track registers a waiter before the message is sent so that early acks are
// not lost. A zero timeout uses the tracker default.
func (t *Tracker) Track(messageID string, timeout time.Duration) *Waiter {
	if timeout <= 0 {
		timeout = t.timeout
	}
	w := &Waiter{
		tracker:   t,
		messageID: messageID,
		timeout:   timeout,
		sentAt:    time.Now(),
		qualified: make(chan struct{}),
	}
	t.mu.Lock()
	t.waiters[messageID] = w
	t.mu.Unlock()
	return w
}

// Pending returns the number of registered waiters.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}

// Observe routes one acknowledgment event to every matching waiter.
func (t *Tracker) Observe(messageID string, ack int) {
	if messageID == "" {
		return
	}

	t.mu.Lock()
	var matched []*Waiter
	if w, ok := t.waiters[messageID]; ok {
		matched = append(matched, w)
	} else {
		for id, w := range t.waiters {
			if idsMatch(id, messageID) {
				matched = append(matched, w)
			}
		}
	}
	t.mu.Unlock()

	for _, w := range matched {
		w.observe(ack)
	}
}

// idsMatch tolerates id format drift from the transport: equal ids, or one
// containing the other. Short or prefix-sharing ids can false-positive.
func idsMatch(tracked string, event string) bool {
	if tracked == "" || event == "" {
		return false
	}
	return tracked == event || strings.Contains(event, tracked) || strings.Contains(tracked, event)
}

func (t *Tracker) remove(w *Waiter) {
	t.mu.Lock()
	if cur, ok := t.waiters[w.messageID]; ok && cur == w {
		delete(t.waiters, w.messageID)
	}
	t.mu.Unlock()
}

// Sent marks the moment the transport accepted the message.
func (w *Waiter) Sent(ack int) {
	w.mu.Lock()
	w.sentAt = time.Now()
	if w.initialAck == nil {
		a := ack
		w.initialAck = &a
	}
	w.mu.Unlock()
	w.observe(ack)
}

func (w *Waiter) observe(ack int) {
	w.mu.Lock()
	if w.resolved {
		w.mu.Unlock()
		return
	}
	if w.observed == nil || ack > *w.observed {
		a := ack
		w.observed = &a
	}
	w.mu.Unlock()

	if ack < AckDevice {
		log.Dispatch("", "track").
			WithField("message_id", w.messageID).
			WithField("ack", ack).
			Debug("Ack observed below delivery level")
		return
	}
	w.qualifyOnce.Do(func() { close(w.qualified) })
}

// Release drops the waiter without waiting, e.g. when the send failed.
func (w *Waiter) Release() {
	w.resolve()
	w.removeOnce.Do(func() { w.tracker.remove(w) })
}

// Wait blocks until the message is confirmed, the timeout passes, or ctx ends.
// It never returns an error; absence of confirmation is a normal result.
func (w *Waiter) Wait(ctx context.Context) Delivery {
	defer w.removeOnce.Do(func() { w.tracker.remove(w) })

	w.mu.Lock()
	sentAt := w.sentAt
	w.mu.Unlock()

	// a waiter's dwell never outlasts its own timeout
	dwellFor := w.tracker.dwell
	if w.timeout < dwellFor {
		dwellFor = w.timeout
	}

	elapsed := time.Since(sentAt)
	timeout := time.NewTimer(positive(w.timeout - elapsed))
	defer timeout.Stop()
	dwell := time.NewTimer(positive(dwellFor - elapsed))
	defer dwell.Stop()

	dwellC := dwell.C
	qualifiedC := w.qualified
	dwellDone, qualified := false, false

	for {
		select {
		case <-ctx.Done():
			return w.finish(StateCancelled)
		case <-timeout.C:
			// dwell has passed by now, so a qualifying ack already seen confirms
			if qualified || w.isQualified() {
				return w.finish(StateConfirmed)
			}
			return w.finish(StateTimedOut)
		case <-dwellC:
			dwellC = nil
			dwellDone = true
		case <-qualifiedC:
			qualifiedC = nil
			qualified = true
		}
		if dwellDone && qualified {
			return w.finish(StateConfirmed)
		}
	}
}

func (w *Waiter) isQualified() bool {
	select {
	case <-w.qualified:
		return true
	default:
		return false
	}
}

func (w *Waiter) resolve() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.resolved {
		return false
	}
	w.resolved = true
	return true
}

func (w *Waiter) finish(state DeliveryState) Delivery {
	w.resolve()

	w.mu.Lock()
	var ack *int
	if w.observed != nil {
		a := *w.observed
		ack = &a
	}
	w.mu.Unlock()

	metrics.Deliveries.WithLabelValues(string(state)).Inc()
	entry := log.Dispatch("", "track").WithField("message_id", w.messageID).WithField("state", state)
	if ack != nil {
		entry = entry.WithField("ack", *ack)
	}
	entry.Info("Delivery tracking resolved")

	return Delivery{Delivered: state == StateConfirmed, Ack: ack, State: state}
}

func positive(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
