package dispatch

import (
	"context"
	"errors"
	"fmt"
	mathrand "math/rand/v2"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/metrics"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
)

type Batch struct {
	ID         string
	Recipients []Recipient
	Payload    Payload
	First      DelayWindow
	Subsequent DelayWindow
}

type BatchResult struct {
	BatchID    string        `json:"batchId"`
	Success    []SendOutcome `json:"success"`
	Failed     []SendOutcome `json:"failed"`
	Total      int           `json:"total"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`

	// Outcomes holds every outcome in input order.
	Outcomes []SendOutcome `json:"-"`
}

func (r *BatchResult) add(o SendOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Failed() {
		r.Failed = append(r.Failed, o)
	} else {
		r.Success = append(r.Success, o)
	}
}

type SendOptions struct {
	Track      bool
	AckTimeout time.Duration
}

type Preparation struct {
	ID          string           `json:"id"`
	CanonicalID string           `json:"canonicalId,omitempty"`
	Method      ResolutionMethod `json:"method,omitempty"`
	Prepared    bool             `json:"prepared"`
	Error       string           `json:"error,omitempty"`
	Attempts    []Attempt        `json:"attempts,omitempty"`
}

type Option func(*Dispatcher)

// WithSleeper replaces the pacing sleep, mostly for tests.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = fn }
}

func WithRand(rng *mathrand.Rand) Option {
	return func(d *Dispatcher) { d.rng = rng }
}

func WithBatchHook(fn func(BatchResult)) Option {
	return func(d *Dispatcher) { d.onBatch = fn }
}

func WithSendHook(fn func(batchID string, o SendOutcome)) Option {
	return func(d *Dispatcher) { d.onSent = fn }
}

// Dispatcher sends payloads to recipients one at a time with humanized pacing.
// Only one batch runs at a time.
type Dispatcher struct {
	transport Transport
	resolver  *Resolver
	tracker   *Tracker
	cfg       Config

	sleep   func(ctx context.Context, d time.Duration) error
	onBatch func(BatchResult)
	onSent  func(batchID string, o SendOutcome)

	rngMu sync.Mutex
	rng   *mathrand.Rand

	batchMu sync.Mutex
}

func New(transport Transport, tracker *Tracker, cfg Config, opts ...Option) *Dispatcher {
	if tracker == nil {
		tracker = NewTracker(cfg.AckTimeout, cfg.AckDwell)
	}
	if cfg.FirstWindow == (DelayWindow{}) {
		cfg.FirstWindow = DefaultFirstWindow
	}
	if cfg.SubsequentWindow == (DelayWindow{}) {
		cfg.SubsequentWindow = DefaultSubsequentWindow
	}
	d := &Dispatcher{
		transport: transport,
		resolver:  NewResolver(transport),
		tracker:   tracker,
		cfg:       cfg,
		sleep:     sleepContext,
		rng:       mathrand.New(mathrand.NewPCG(uint64(time.Now().UnixNano()), mathrand.Uint64())),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Tracker() *Tracker {
	return d.tracker
}

// Ready reports whether the transport can accept sends right now.
func (d *Dispatcher) Ready() bool {
	return d.transport.IsReady()
}

func (d *Dispatcher) Config() Config {
	return d.cfg
}

func NewBatchID() string {
	return ulid.Make().String()
}

// Dispatch processes every recipient in order and records exactly one outcome
// for each. Only readiness and payload validation fail the whole batch.
func (d *Dispatcher) Dispatch(ctx context.Context, b Batch) (BatchResult, error) {
	if len(b.Recipients) == 0 {
		return BatchResult{}, invalid("recipients", "at least one recipient is required")
	}
	if b.Payload.Empty() {
		return BatchResult{}, invalid("payload", "text or imagePath is required")
	}
	if !d.transport.IsReady() {
		return BatchResult{}, ErrNotReady
	}
	if b.First == (DelayWindow{}) {
		b.First = d.cfg.FirstWindow
	}
	if b.Subsequent == (DelayWindow{}) {
		b.Subsequent = d.cfg.SubsequentWindow
	}
	if b.ID == "" {
		b.ID = NewBatchID()
	}

	d.batchMu.Lock()
	defer d.batchMu.Unlock()

	entry := log.Dispatch(b.ID, "batch")
	res := BatchResult{
		BatchID:   b.ID,
		Total:     len(b.Recipients),
		StartedAt: time.Now(),
		Success:   []SendOutcome{},
		Failed:    []SendOutcome{},
		Outcomes:  make([]SendOutcome, 0, len(b.Recipients)),
	}
	entry.WithField("recipients", res.Total).
		WithField("kind", b.Payload.Kind()).
		WithField("first_window", fmt.Sprintf("%v-%v", b.First.Min, b.First.Max)).
		WithField("subsequent_window", fmt.Sprintf("%v-%v", b.Subsequent.Min, b.Subsequent.Max)).
		Info("Batch started")

	var memo map[string]ChatHandle
	if d.cfg.ResolveCache {
		memo = make(map[string]ChatHandle)
	}

	for i, rec := range b.Recipients {
		if err := ctx.Err(); err != nil {
			cancelled := fmt.Errorf("batch cancelled: %w", err)
			for _, rest := range b.Recipients[i:] {
				res.add(failedOutcome(rest, ChatHandle{}, cancelled))
			}
			entry.WithField("skipped", len(b.Recipients)-i).Warn("Batch cancelled before completion")
			break
		}

		outcome := d.sendOne(ctx, b.ID, rec, b.Payload, memo)
		res.add(outcome)

		recEntry := entry.WithField("position", fmt.Sprintf("%d/%d", i+1, res.Total)).WithField("recipient", log.Mask(rec.ID))
		if outcome.Failed() {
			recEntry.Warn("Recipient failed: " + outcome.Error)
		} else {
			recEntry.WithField("chat", log.Mask(outcome.CanonicalID)).Info("Recipient sent")
		}

		if i == len(b.Recipients)-1 {
			break
		}
		window := b.Subsequent
		if i == 0 {
			window = b.First
		}
		delay := d.draw(window)
		metrics.PacingDelay.Observe(delay.Seconds())
		recEntry.WithField("delay_ms", delay.Milliseconds()).Info("Waiting before next recipient")
		_ = d.sleep(ctx, delay)
	}

	res.FinishedAt = time.Now()
	metrics.BatchDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	switch {
	case len(res.Failed) == 0:
		metrics.Batches.WithLabelValues("complete").Inc()
	case len(res.Success) == 0:
		metrics.Batches.WithLabelValues("failed").Inc()
	default:
		metrics.Batches.WithLabelValues("partial").Inc()
	}
	entry.WithField("success", len(res.Success)).
		WithField("failed", len(res.Failed)).
		WithField("duration", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond).String()).
		Info("Batch finished")

	if d.onBatch != nil {
		d.onBatch(res)
	}
	return res, nil
}

// Send delivers one payload to one recipient and returns hard errors to the
// caller. With Track set it waits for a delivery verdict.
func (d *Dispatcher) Send(ctx context.Context, rec Recipient, p Payload, opts SendOptions) (SendOutcome, error) {
	if p.Empty() {
		return SendOutcome{}, invalid("payload", "text or image is required")
	}
	if !d.transport.IsReady() {
		return SendOutcome{}, ErrNotReady
	}

	handle, err := d.resolver.Resolve(ctx, rec)
	if err != nil {
		return failedOutcome(rec, handle, err), err
	}

	msgID := d.transport.NewMessageID()
	var w *Waiter
	if opts.Track {
		w = d.tracker.Track(msgID, opts.AckTimeout)
	}

	sent, err := d.send(ctx, handle.CanonicalID, msgID, p)
	if err != nil {
		if w != nil {
			w.Release()
		}
		return failedOutcome(rec, handle, err), err
	}

	outcome := successOutcome(rec, handle, sent)
	if d.onSent != nil {
		d.onSent("", outcome)
	}
	if w == nil {
		return outcome, nil
	}

	w.Sent(sent.Ack)
	delivery := w.Wait(ctx)
	delivered := delivery.Delivered
	outcome.Delivered = &delivered
	outcome.Ack = delivery.Ack
	return outcome, nil
}

// Resolve exposes the resolution chain with its diagnostics.
func (d *Dispatcher) Resolve(ctx context.Context, rec Recipient) (ChatHandle, error) {
	if !d.transport.IsReady() {
		return ChatHandle{}, ErrNotReady
	}
	return d.resolver.Resolve(ctx, rec)
}

// Prepare resolves each recipient without sending anything.
func (d *Dispatcher) Prepare(ctx context.Context, recipients []Recipient) ([]Preparation, error) {
	if len(recipients) == 0 {
		return nil, invalid("contacts", "at least one contact is required")
	}
	if !d.transport.IsReady() {
		return nil, ErrNotReady
	}

	out := make([]Preparation, 0, len(recipients))
	for _, rec := range recipients {
		p := Preparation{ID: rec.ID}
		handle, err := d.resolver.Resolve(ctx, rec)
		if err != nil {
			p.Error = err.Error()
			var nf *ChatNotFoundError
			if errors.As(err, &nf) {
				p.Attempts = nf.Attempts
			}
		} else {
			p.Prepared = true
			p.CanonicalID = handle.CanonicalID
			p.Method = handle.Method
			p.Attempts = handle.Attempts
		}
		out = append(out, p)
	}
	return out, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, batchID string, rec Recipient, p Payload, memo map[string]ChatHandle) SendOutcome {
	key := string(rec.Type) + "|" + rec.ID
	handle, cached := memo[key]
	if !cached {
		var err error
		handle, err = d.resolver.Resolve(ctx, rec)
		if err != nil {
			return failedOutcome(rec, handle, err)
		}
		if memo != nil {
			memo[key] = handle
		}
	}

	sent, err := d.send(ctx, handle.CanonicalID, d.transport.NewMessageID(), p)
	if err != nil {
		return failedOutcome(rec, handle, err)
	}
	outcome := successOutcome(rec, handle, sent)
	if d.onSent != nil {
		d.onSent(batchID, outcome)
	}
	return outcome
}

func (d *Dispatcher) send(ctx context.Context, canonicalID string, msgID string, p Payload) (SentMessage, error) {
	if d.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
	}

	start := time.Now()
	var (
		sent SentMessage
		err  error
	)
	if p.Image != nil {
		sent, err = d.transport.SendImage(ctx, canonicalID, msgID, *p.Image, p.Text)
	} else {
		sent, err = d.transport.SendText(ctx, canonicalID, msgID, p.Text)
	}
	metrics.SendLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.Sends.WithLabelValues(p.Kind(), "failure").Inc()
		return SentMessage{}, transient("send message", err)
	}
	metrics.Sends.WithLabelValues(p.Kind(), "success").Inc()
	if sent.ID == "" {
		sent.ID = msgID
	}
	return sent, nil
}

func (d *Dispatcher) draw(w DelayWindow) time.Duration {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return w.Draw(d.rng)
}

func recipientType(rec Recipient) RecipientType {
	if rec.Type == "" {
		return RecipientContact
	}
	return rec.Type
}

func successOutcome(rec Recipient, h ChatHandle, sent SentMessage) SendOutcome {
	ack := sent.Ack
	name := rec.Name
	if name == "" {
		name = h.Name
	}
	if name == "" {
		name = rec.ID
	}
	return SendOutcome{
		ID:          rec.ID,
		Name:        name,
		Type:        recipientType(rec),
		CanonicalID: h.CanonicalID,
		Method:      h.Method,
		MessageID:   sent.ID,
		Ack:         &ack,
	}
}

func failedOutcome(rec Recipient, h ChatHandle, err error) SendOutcome {
	o := SendOutcome{
		ID:          rec.ID,
		Name:        rec.DisplayName(),
		Type:        recipientType(rec),
		CanonicalID: h.CanonicalID,
		Method:      h.Method,
		Error:       err.Error(),
	}
	var nf *ChatNotFoundError
	if errors.As(err, &nf) {
		o.Attempts = nf.Attempts
	}
	return o
}
