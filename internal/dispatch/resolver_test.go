package dispatch

import (
	"context"
	"errors"
	"testing"
)

func TestResolveSuffixedIDSkipsNumberLookup(t *testing.T) {
	ft := newFakeTransport()
	ft.addChat("5511999999999@c.us")

	h, err := NewResolver(ft).Resolve(context.Background(), Recipient{ID: "5511999999999@c.us", Type: RecipientContact})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if h.CanonicalID != "5511999999999@c.us" || h.Method != MethodDirect {
		t.Fatalf("unexpected handle %+v", h)
	}
	if len(ft.lookupCalls) != 0 {
		t.Fatalf("number lookup must not run for suffixed ids, got %v", ft.lookupCalls)
	}
}

func TestResolveGroupVerbatim(t *testing.T) {
	ft := newFakeTransport()
	ft.addChat("12345@g.us")

	h, err := NewResolver(ft).Resolve(context.Background(), Recipient{ID: "12345@g.us", Type: RecipientGroup})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if h.CanonicalID != "12345@g.us" {
		t.Fatalf("unexpected canonical id %q", h.CanonicalID)
	}
	if len(ft.lookupCalls) != 0 || ft.listCalls != 0 {
		t.Fatalf("group with suffix must only use direct lookup")
	}
}

func TestResolveGroupAppendsSuffix(t *testing.T) {
	ft := newFakeTransport()
	ft.addChat("120363000000@g.us")

	h, err := NewResolver(ft).Resolve(context.Background(), Recipient{ID: "120363000000", Type: RecipientGroup})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if h.CanonicalID != "120363000000@g.us" {
		t.Fatalf("unexpected canonical id %q", h.CanonicalID)
	}
}

func TestResolveSuffixedMissReturnsNotFound(t *testing.T) {
	ft := newFakeTransport()

	_, err := NewResolver(ft).Resolve(context.Background(), Recipient{ID: "999@g.us", Type: RecipientGroup})
	var nf *ChatNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected ChatNotFoundError, got %v", err)
	}
	if len(nf.Attempts) != 1 || nf.Attempts[0].Method != MethodDirect {
		t.Fatalf("expected one direct attempt, got %+v", nf.Attempts)
	}
}

func TestResolveContactViaNumberLookup(t *testing.T) {
	ft := newFakeTransport()
	ft.lookups["551199999999"] = IdentityRecord{Serialized: "5511999999999@c.us"}
	ft.addChat("5511999999999@c.us")

	h, err := NewResolver(ft).Resolve(context.Background(), Recipient{ID: "551199999999", Type: RecipientContact})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if h.CanonicalID != "5511999999999@c.us" || h.Method != MethodNumberLookup {
		t.Fatalf("unexpected handle %+v", h)
	}
	if ft.listCalls != 0 {
		t.Fatalf("chat list must not be scanned when direct lookup succeeds")
	}
}

func TestResolveContactLookupFailureUsesCleanNumber(t *testing.T) {
	ft := newFakeTransport()
	ft.lookErr = errors.New("lookup unavailable")
	ft.addChat("551199999999@c.us")

	h, err := NewResolver(ft).Resolve(context.Background(), Recipient{ID: "551199999999"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if h.CanonicalID != "551199999999@c.us" || h.Method != MethodDirect {
		t.Fatalf("unexpected handle %+v", h)
	}
	if len(h.Attempts) != 2 || h.Attempts[0].Success {
		t.Fatalf("expected failed lookup then direct success, got %+v", h.Attempts)
	}
}

func TestResolveContactFallsBackToChatListScan(t *testing.T) {
	ft := newFakeTransport()
	ft.lookups["5511988887777"] = "5511988887777"
	ft.list = []Chat{
		{ID: "120363000000@g.us", Name: "group"},
		{ID: "5511988887777@lid.example", Name: "contact"},
	}

	h, err := NewResolver(ft).Resolve(context.Background(), Recipient{ID: "5511988887777"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if h.Method != MethodChatListScan || h.CanonicalID != "5511988887777@lid.example" {
		t.Fatalf("unexpected handle %+v", h)
	}
}

func TestResolveLastResortDirectLookup(t *testing.T) {
	ft := newFakeTransport()
	ft.lookups["5511977776666"] = IdentityRecord{User: "19999999"}
	ft.listErr = errors.New("list timed out")

	calls := 0
	resolver := NewResolver(&flakyDirect{fakeTransport: ft, succeedOn: 2, calls: &calls})
	h, err := resolver.Resolve(context.Background(), Recipient{ID: "5511977776666"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if h.CanonicalID != "5511977776666@c.us" || h.Method != MethodDirect {
		t.Fatalf("unexpected handle %+v", h)
	}
	if calls != 2 {
		t.Fatalf("expected two direct lookups, got %d", calls)
	}
}

func TestResolveExhaustedCarriesAllAttempts(t *testing.T) {
	ft := newFakeTransport()
	ft.lookErr = errors.New("lookup failed")

	_, err := NewResolver(ft).Resolve(context.Background(), Recipient{ID: "5511000000000"})
	var nf *ChatNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected ChatNotFoundError, got %v", err)
	}
	want := []ResolutionMethod{MethodNumberLookup, MethodDirect, MethodChatListScan, MethodDirect}
	if len(nf.Attempts) != len(want) {
		t.Fatalf("expected %d attempts, got %+v", len(want), nf.Attempts)
	}
	for i, m := range want {
		if nf.Attempts[i].Method != m {
			t.Fatalf("attempt %d method = %s, want %s", i, nf.Attempts[i].Method, m)
		}
		if nf.Attempts[i].Reason == "" {
			t.Fatalf("attempt %d has no reason", i)
		}
	}
}

func TestResolveRejectsEmptyID(t *testing.T) {
	_, err := NewResolver(newFakeTransport()).Resolve(context.Background(), Recipient{ID: "  "})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

// flakyDirect succeeds on the n-th direct lookup regardless of the target.
type flakyDirect struct {
	*fakeTransport
	succeedOn int
	calls     *int
}

func (f *flakyDirect) ResolveChatDirect(_ context.Context, canonicalID string) (Chat, error) {
	*f.calls++
	if *f.calls == f.succeedOn {
		return Chat{ID: canonicalID}, nil
	}
	return Chat{}, errUnknownChat
}
