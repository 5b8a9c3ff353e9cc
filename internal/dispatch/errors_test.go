package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not ready", ErrNotReady, http.StatusServiceUnavailable},
		{"wrapped not ready", fmt.Errorf("send: %w", ErrNotReady), http.StatusServiceUnavailable},
		{"validation", invalid("text", "required"), http.StatusBadRequest},
		{"not found", &ChatNotFoundError{RecipientID: "123"}, http.StatusNotFound},
		{"transient", transient("send", errors.New("socket closed")), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatus(tc.err); got != tc.want {
				t.Fatalf("HTTPStatus = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestChatNotFoundErrorListsAttempts(t *testing.T) {
	err := &ChatNotFoundError{
		RecipientID: "5511",
		Attempts: []Attempt{
			{Method: MethodDirect, Target: "5511@c.us", Reason: "not on whatsapp"},
			{Method: MethodChatListScan, Target: "5511", Reason: "no match"},
		},
	}
	msg := err.Error()
	for _, want := range []string{"5511", "direct(5511@c.us) not on whatsapp", "chat-list-scan(5511) no match"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

func TestTransientDoesNotDoubleWrap(t *testing.T) {
	base := errors.New("timeout")
	once := transient("send", base)
	twice := transient("batch", once)
	if once != twice {
		t.Fatalf("expected already-wrapped error to pass through")
	}
	if !errors.Is(twice, base) {
		t.Fatalf("expected wrapped error to unwrap to base")
	}
}
