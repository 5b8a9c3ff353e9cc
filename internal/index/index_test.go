package index

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	typWhatsApp "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/types"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/whatsapp"
)

type staticStatus pkgWhatsApp.State

func (s staticStatus) Status() pkgWhatsApp.State { return pkgWhatsApp.State(s) }

func TestHealth(t *testing.T) {
	started := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		ready  bool
		status string
	}{
		{"ready", true, "ready"},
		{"waiting", false, "not-ready"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctl := New(staticStatus{Ready: tc.ready, StartedAt: started}, "5511999990000")
			ctl.now = func() time.Time { return started.Add(90 * time.Second) }
			app := fiber.New()
			app.Get("/health", ctl.Health)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			var body typWhatsApp.ResponseHealth
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tc.status || body.Ready != tc.ready || body.Uptime != "1m30s" || body.Number != "5511999990000" {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}
