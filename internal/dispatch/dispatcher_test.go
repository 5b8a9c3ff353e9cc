package dispatch

import (
	"context"
	"errors"
	mathrand "math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	after  func(n int)
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	n := len(s.delays)
	after := s.after
	s.mu.Unlock()
	if after != nil {
		after(n)
	}
	return ctx.Err()
}

func newTestDispatcher(ft *fakeTransport, rec *sleepRecorder, cfg Config, opts ...Option) *Dispatcher {
	opts = append([]Option{
		WithSleeper(rec.sleep),
		WithRand(mathrand.New(mathrand.NewPCG(7, 11))),
	}, opts...)
	return New(ft, nil, cfg, opts...)
}

func TestDispatchSingleRecipientNoTrailingDelay(t *testing.T) {
	ft := newFakeTransport()
	ft.addChat("551199999999@c.us")
	rec := &sleepRecorder{}
	d := newTestDispatcher(ft, rec, DefaultConfig())

	res, err := d.Dispatch(context.Background(), Batch{
		Recipients: []Recipient{{ID: "551199999999", Type: RecipientContact}},
		Payload:    Payload{Text: "oi"},
		First:      NormalizeWindow(intPtr(1000), intPtr(1000), DefaultFirstWindow),
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Total != 1 || len(res.Success) != 1 || len(res.Failed) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Success[0].CanonicalID != "551199999999@c.us" {
		t.Fatalf("unexpected canonical id %q", res.Success[0].CanonicalID)
	}
	if len(rec.delays) != 0 {
		t.Fatalf("no delay expected after the last recipient, got %v", rec.delays)
	}
	if ft.sent[0].Text != "oi" {
		t.Fatalf("unexpected text %q", ft.sent[0].Text)
	}
	if res.BatchID == "" {
		t.Fatalf("batch id must be assigned")
	}
}

func TestDispatchOneOutcomePerRecipientInOrder(t *testing.T) {
	ft := newFakeTransport()
	ft.addChat("111@c.us")
	ft.addChat("333@g.us")
	ft.addChat("444@c.us")
	ft.sendErr["444@c.us"] = errors.New("socket closed")
	rec := &sleepRecorder{}
	d := newTestDispatcher(ft, rec, DefaultConfig())

	recipients := []Recipient{
		{ID: "111", Name: "Ana"},
		{ID: "222", Name: "Unknown"},
		{ID: "333", Type: RecipientGroup},
		{ID: "444@c.us"},
	}
	res, err := d.Dispatch(context.Background(), Batch{Recipients: recipients, Payload: Payload{Text: "promo"}})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(res.Success)+len(res.Failed) != len(recipients) || res.Total != len(recipients) {
		t.Fatalf("outcome count mismatch: %+v", res)
	}
	for i, o := range res.Outcomes {
		if o.ID != recipients[i].ID {
			t.Fatalf("outcome %d is for %q, want %q", i, o.ID, recipients[i].ID)
		}
	}
	if len(res.Failed) != 2 {
		t.Fatalf("expected 2 failures, got %+v", res.Failed)
	}
	if len(res.Failed[0].Attempts) == 0 {
		t.Fatalf("resolution failure must carry attempts")
	}
	if !strings.Contains(res.Failed[1].Error, "socket closed") {
		t.Fatalf("send failure must keep the raw message, got %q", res.Failed[1].Error)
	}
	if res.Success[0].Name != "Ana" || res.Success[1].Type != RecipientGroup {
		t.Fatalf("unexpected success records %+v", res.Success)
	}
}

func TestDispatchDelaysFollowWindows(t *testing.T) {
	ft := newFakeTransport()
	for _, id := range []string{"1@c.us", "2@c.us", "3@c.us", "4@c.us"} {
		ft.addChat(id)
	}
	rec := &sleepRecorder{}
	d := newTestDispatcher(ft, rec, DefaultConfig())

	first := DelayWindow{Min: 2 * time.Second, Max: 3 * time.Second}
	subsequent := DelayWindow{Min: 4 * time.Second, Max: 6 * time.Second}
	_, err := d.Dispatch(context.Background(), Batch{
		Recipients: []Recipient{{ID: "1@c.us"}, {ID: "2@c.us"}, {ID: "3@c.us"}, {ID: "4@c.us"}},
		Payload:    Payload{Text: "hi"},
		First:      first,
		Subsequent: subsequent,
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(rec.delays) != 3 {
		t.Fatalf("expected 3 delays, got %d", len(rec.delays))
	}
	for i, delay := range rec.delays {
		w := subsequent
		if i == 0 {
			w = first
		}
		if delay < w.Min || delay > w.Max+MaxJitter {
			t.Fatalf("delay %d = %v outside [%v, %v]", i, delay, w.Min, w.Max+MaxJitter)
		}
	}
}

func TestDispatchRejectsMissingPayload(t *testing.T) {
	ft := newFakeTransport()
	d := newTestDispatcher(ft, &sleepRecorder{}, DefaultConfig())

	_, err := d.Dispatch(context.Background(), Batch{Recipients: []Recipient{{ID: "1"}}})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ft.directCalls) != 0 || len(ft.lookupCalls) != 0 {
		t.Fatalf("no recipient may be processed without payload")
	}
}

func TestDispatchRejectsEmptyRecipients(t *testing.T) {
	d := newTestDispatcher(newFakeTransport(), &sleepRecorder{}, DefaultConfig())
	_, err := d.Dispatch(context.Background(), Batch{Payload: Payload{Text: "x"}})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDispatchNotReady(t *testing.T) {
	ft := newFakeTransport()
	ft.ready = false
	d := newTestDispatcher(ft, &sleepRecorder{}, DefaultConfig())

	_, err := d.Dispatch(context.Background(), Batch{Recipients: []Recipient{{ID: "1"}}, Payload: Payload{Text: "x"}})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestDispatchPayloadShapes(t *testing.T) {
	img := &Media{Data: []byte{1, 2}, MimeType: "image/png"}
	cases := []struct {
		name        string
		payload     Payload
		wantImage   bool
		wantCaption string
		wantText    string
	}{
		{"image with caption", Payload{Text: "look", Image: img}, true, "look", ""},
		{"image only", Payload{Image: img}, true, "", ""},
		{"text only", Payload{Text: "hello"}, false, "", "hello"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ft := newFakeTransport()
			ft.addChat("9@c.us")
			d := newTestDispatcher(ft, &sleepRecorder{}, DefaultConfig())
			if _, err := d.Dispatch(context.Background(), Batch{Recipients: []Recipient{{ID: "9@c.us"}}, Payload: tc.payload}); err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			got := ft.sent[0]
			if got.Image != tc.wantImage || got.Caption != tc.wantCaption || got.Text != tc.wantText {
				t.Fatalf("unexpected send %+v", got)
			}
		})
	}
}

func TestDispatchCancellationRecordsRemaining(t *testing.T) {
	ft := newFakeTransport()
	for _, id := range []string{"1@c.us", "2@c.us", "3@c.us"} {
		ft.addChat(id)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &sleepRecorder{after: func(n int) {
		if n == 1 {
			cancel()
		}
	}}
	d := newTestDispatcher(ft, rec, DefaultConfig())

	res, err := d.Dispatch(ctx, Batch{
		Recipients: []Recipient{{ID: "1@c.us"}, {ID: "2@c.us"}, {ID: "3@c.us"}},
		Payload:    Payload{Text: "x"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(res.Success) != 1 || len(res.Failed) != 2 {
		t.Fatalf("expected 1 sent and 2 cancelled, got %+v", res)
	}
	for _, o := range res.Failed {
		if !strings.Contains(o.Error, "batch cancelled") {
			t.Fatalf("unexpected failure reason %q", o.Error)
		}
	}
	if ft.sentCount() != 1 {
		t.Fatalf("no sends may happen after cancellation")
	}
}

func TestDispatchResolveCache(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		ft := newFakeTransport()
		ft.addChat("555@c.us")
		cfg := DefaultConfig()
		cfg.ResolveCache = enabled
		d := newTestDispatcher(ft, &sleepRecorder{}, cfg)

		_, err := d.Dispatch(context.Background(), Batch{
			Recipients: []Recipient{{ID: "555"}, {ID: "555"}},
			Payload:    Payload{Text: "x"},
		})
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}
		want := 2
		if enabled {
			want = 1
		}
		if len(ft.lookupCalls) != want {
			t.Fatalf("cache=%v: expected %d lookups, got %d", enabled, want, len(ft.lookupCalls))
		}
		if ft.sentCount() != 2 {
			t.Fatalf("both recipients must receive the message")
		}
	}
}

func TestDispatchBatchHook(t *testing.T) {
	ft := newFakeTransport()
	ft.addChat("1@c.us")
	var got BatchResult
	d := newTestDispatcher(ft, &sleepRecorder{}, DefaultConfig(), WithBatchHook(func(r BatchResult) { got = r }))

	res, _ := d.Dispatch(context.Background(), Batch{Recipients: []Recipient{{ID: "1@c.us"}}, Payload: Payload{Text: "x"}})
	if got.BatchID != res.BatchID || len(got.Success) != 1 {
		t.Fatalf("hook did not receive the result: %+v", got)
	}
}

func TestSendTrackedConfirmsDelivery(t *testing.T) {
	ft := newFakeTransport()
	ft.addChat("5511@c.us")
	tracker := NewTracker(2*time.Second, 30*time.Millisecond)
	ft.onSend = func(_ string, messageID string) {
		go func() {
			time.Sleep(5 * time.Millisecond)
			tracker.Observe(messageID, AckDevice)
		}()
	}
	d := New(ft, tracker, DefaultConfig())

	o, err := d.Send(context.Background(), Recipient{ID: "5511@c.us"}, Payload{Text: "hello"}, SendOptions{Track: true})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if o.Delivered == nil || !*o.Delivered {
		t.Fatalf("expected delivered outcome, got %+v", o)
	}
	if o.Ack == nil || *o.Ack != AckDevice {
		t.Fatalf("expected ack 2, got %v", o.Ack)
	}
	if tracker.Pending() != 0 {
		t.Fatalf("waiter leaked")
	}
}

func TestSendTrackedTimesOut(t *testing.T) {
	ft := newFakeTransport()
	ft.addChat("5511@c.us")
	d := New(ft, NewTracker(time.Second, 10*time.Millisecond), DefaultConfig())

	o, err := d.Send(context.Background(), Recipient{ID: "5511@c.us"}, Payload{Text: "hello"}, SendOptions{Track: true, AckTimeout: 40 * time.Millisecond})
	if err != nil {
		t.Fatalf("ack timeout is not an error: %v", err)
	}
	if o.Delivered == nil || *o.Delivered {
		t.Fatalf("expected delivered=false, got %+v", o)
	}
	if o.Ack == nil || *o.Ack != AckServer {
		t.Fatalf("expected server ack to be reported, got %v", o.Ack)
	}
}

func TestSendSurfacesHardErrors(t *testing.T) {
	ft := newFakeTransport()
	ft.addChat("broken@c.us")
	ft.sendErr["broken@c.us"] = errors.New("upload failed")
	tracker := NewTracker(time.Second, 0)
	d := New(ft, tracker, DefaultConfig())

	_, err := d.Send(context.Background(), Recipient{ID: "nobody@c.us"}, Payload{Text: "x"}, SendOptions{})
	var nf *ChatNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected ChatNotFoundError, got %v", err)
	}

	_, err = d.Send(context.Background(), Recipient{ID: "broken@c.us"}, Payload{Text: "x"}, SendOptions{Track: true})
	var tte *TransportTransientError
	if !errors.As(err, &tte) {
		t.Fatalf("expected TransportTransientError, got %v", err)
	}
	if tracker.Pending() != 0 {
		t.Fatalf("failed send must release its waiter")
	}
}

func TestPrepare(t *testing.T) {
	ft := newFakeTransport()
	ft.addChat("111@c.us")
	d := New(ft, nil, DefaultConfig())

	got, err := d.Prepare(context.Background(), []Recipient{{ID: "111"}, {ID: "222"}})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !got[0].Prepared || got[0].CanonicalID != "111@c.us" {
		t.Fatalf("unexpected first preparation %+v", got[0])
	}
	if got[1].Prepared || got[1].Error == "" || len(got[1].Attempts) == 0 {
		t.Fatalf("unexpected second preparation %+v", got[1])
	}
	if ft.sentCount() != 0 {
		t.Fatalf("prepare must not send")
	}
}
