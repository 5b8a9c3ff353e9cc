package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/metrics"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
)

// Resolver turns a loosely specified recipient into a canonical chat handle.
// No result is cached here; every call walks the chain again.
type Resolver struct {
	transport Transport
}

func NewResolver(transport Transport) *Resolver {
	return &Resolver{transport: transport}
}

type resolveTrace struct {
	recipient string
	attempts  []Attempt
}

func (t *resolveTrace) add(a Attempt) {
	t.attempts = append(t.attempts, a)
	result := "failure"
	if a.Success {
		result = "success"
	}
	metrics.Resolutions.WithLabelValues(string(a.Method), result).Inc()
}

func (t *resolveTrace) notFound() error {
	return &ChatNotFoundError{RecipientID: t.recipient, Attempts: t.attempts}
}

// Resolve walks the fallback chain and returns the first chat that answers.
func (r *Resolver) Resolve(ctx context.Context, rec Recipient) (ChatHandle, error) {
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return ChatHandle{}, invalid("id", "recipient id is required")
	}
	if err := ctx.Err(); err != nil {
		return ChatHandle{}, err
	}
	trace := &resolveTrace{recipient: id}

	if strings.Contains(id, "@") {
		if h, ok := r.direct(ctx, trace, id, MethodDirect); ok {
			return h, nil
		}
		return ChatHandle{}, trace.notFound()
	}

	if rec.IsGroup() {
		if h, ok := r.direct(ctx, trace, id+GroupSuffix, MethodDirect); ok {
			return h, nil
		}
		return ChatHandle{}, trace.notFound()
	}

	clean := CleanNumber(id)
	if clean == "" {
		return ChatHandle{}, invalid("id", "recipient id has no number")
	}
	fallback := clean + ContactSuffix

	formatted, method := r.numberIdentity(ctx, trace, clean)
	if h, ok := r.direct(ctx, trace, formatted, method); ok {
		return h, nil
	}

	if h, ok := r.scan(ctx, trace, clean, formatted, fallback); ok {
		return h, nil
	}

	if h, ok := r.direct(ctx, trace, fallback, MethodDirect); ok {
		return h, nil
	}

	log.Dispatch("", "resolve").
		WithField("recipient", log.Mask(id)).
		WithField("attempts", len(trace.attempts)).
		Warn("Chat resolution exhausted all strategies")
	return ChatHandle{}, trace.notFound()
}

func (r *Resolver) direct(ctx context.Context, trace *resolveTrace, target string, method ResolutionMethod) (ChatHandle, bool) {
	chat, err := r.transport.ResolveChatDirect(ctx, target)
	if err != nil {
		trace.add(Attempt{Method: method, Target: target, Reason: err.Error()})
		log.Dispatch("", "resolve").
			WithField("target", log.Mask(target)).
			WithField("method", method).
			Debug("Direct chat lookup failed: " + err.Error())
		return ChatHandle{}, false
	}
	trace.add(Attempt{Method: method, Target: target, Success: true})
	return ChatHandle{
		CanonicalID: target,
		Method:      method,
		Name:        chat.Name,
		Attempts:    trace.attempts,
	}, true
}

// numberIdentity asks the transport for the account behind a number. Any
// failure falls back to the cleaned number with the contact suffix.
func (r *Resolver) numberIdentity(ctx context.Context, trace *resolveTrace, clean string) (string, ResolutionMethod) {
	fallback := clean + ContactSuffix

	result, err := r.transport.LookupNumberIdentity(ctx, clean)
	if err != nil {
		trace.add(Attempt{Method: MethodNumberLookup, Target: clean, Reason: err.Error()})
		return fallback, MethodDirect
	}

	extracted := IdentityFromLookup(result)
	if extracted == "" {
		trace.add(Attempt{Method: MethodNumberLookup, Target: clean, Reason: "lookup returned no usable identifier"})
		return fallback, MethodDirect
	}

	trace.add(Attempt{Method: MethodNumberLookup, Target: clean, Success: true})
	return extracted + ContactSuffix, MethodNumberLookup
}

func (r *Resolver) scan(ctx context.Context, trace *resolveTrace, clean string, formatted string, fallback string) (ChatHandle, bool) {
	chats, err := r.transport.ListAllChats(ctx)
	if err != nil {
		trace.add(Attempt{Method: MethodChatListScan, Target: clean, Reason: err.Error()})
		return ChatHandle{}, false
	}

	for _, chat := range chats {
		if chat.ID == formatted || chat.ID == fallback || strings.Contains(chat.ID, clean) {
			trace.add(Attempt{Method: MethodChatListScan, Target: clean, Success: true})
			return ChatHandle{
				CanonicalID: chat.ID,
				Method:      MethodChatListScan,
				Name:        chat.Name,
				Attempts:    trace.attempts,
			}, true
		}
	}

	trace.add(Attempt{Method: MethodChatListScan, Target: clean, Reason: errNoChatMatch.Error()})
	return ChatHandle{}, false
}

var errNoChatMatch = errors.New("no existing chat matches the number")
