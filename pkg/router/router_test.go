package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func decode(t *testing.T, resp *http.Response) Response {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return r
}

func TestEnvelope(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: HttpErrorHandler})
	app.Get("/ok", func(c *fiber.Ctx) error { return ResponseSuccessWithData(c, "", fiber.Map{"n": 1}) })
	app.Get("/down", func(c *fiber.Ctx) error { return ResponseServiceUnavailable(c, "WhatsApp client not ready") })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("kaput") })
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "short and stout") })

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/ok", nil))
	if r := decode(t, resp); !r.Success || r.Code != 200 || r.Message != "OK" {
		t.Fatalf("ok envelope = %+v", r)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/down", nil))
	if r := decode(t, resp); resp.StatusCode != 503 || r.Success || r.Error != "WhatsApp client not ready" {
		t.Fatalf("503 envelope = %d %+v", resp.StatusCode, r)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	if r := decode(t, resp); resp.StatusCode != 500 || r.Message != "kaput" {
		t.Fatalf("error handler = %d %+v", resp.StatusCode, r)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/teapot", nil))
	if resp.StatusCode != fiber.StatusTeapot {
		t.Fatalf("fiber error status = %d", resp.StatusCode)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(RecoveryMiddleware())
	app.Get("/panic", func(c *fiber.Ctx) error { panic("oh no") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/panic", nil))
	if err != nil {
		t.Fatal(err)
	}
	if r := decode(t, resp); resp.StatusCode != 500 || r.Message != "oh no" || r.Success {
		t.Fatalf("recovered = %d %+v", resp.StatusCode, r)
	}
}

func TestHttpRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(HttpRequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(c.Locals("request_id").(string)) })

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	body, _ := io.ReadAll(resp.Body)
	if id := resp.Header.Get(RequestIDHeader); id == "" || id != string(body) {
		t.Fatalf("generated id header=%q body=%q", id, body)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, _ = app.Test(req)
	if id := resp.Header.Get(RequestIDHeader); id != "abc-123" {
		t.Fatalf("inbound id not reused: %q", id)
	}
}

func TestHttpRealIP(t *testing.T) {
	app := fiber.New()
	app.Use(HttpRealIP())
	app.Get("/", func(c *fiber.Ctx) error {
		ip, _ := c.Locals("remote_ip").(string)
		return c.SendString(ip)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	resp, _ := app.Test(req)
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "203.0.113.7" {
		t.Fatalf("remote ip = %q", body)
	}
}

func TestHttpCacheOnlyListedPaths(t *testing.T) {
	app := fiber.New()
	app.Use(HttpCacheInMemory(60, "/list-groups"))
	hits := map[string]int{}
	handler := func(c *fiber.Ctx) error {
		hits[c.Path()]++
		return c.SendString("ok")
	}
	app.Get("/list-groups", handler)
	app.Get("/status", handler)

	for i := 0; i < 3; i++ {
		_, _ = app.Test(httptest.NewRequest(http.MethodGet, "/list-groups", nil))
		_, _ = app.Test(httptest.NewRequest(http.MethodGet, "/status", nil))
	}
	_, _ = app.Test(httptest.NewRequest(http.MethodGet, "/list-groups?refresh=true", nil))

	if hits["/list-groups"] != 2 {
		t.Fatalf("list-groups hits = %d, want 2", hits["/list-groups"])
	}
	if hits["/status"] != 3 {
		t.Fatalf("status hits = %d, want 3", hits["/status"])
	}
}

func TestByteSizeDecode(t *testing.T) {
	tests := map[string]int{
		"":      8 << 20,
		"512K":  512 << 10,
		"16m":   16 << 20,
		"1G":    1 << 30,
		"2048":  2048,
		"-3M":   8 << 20,
		"bogus": 8 << 20,
	}
	for in, want := range tests {
		var b ByteSize
		if err := b.Decode(in); err != nil || int(b) != want {
			t.Errorf("Decode(%q) = %d, %v, want %d", in, b, err, want)
		}
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := map[string]string{
		"":          "",
		"/":         "",
		"api":       "/api",
		" /api/v1/": "/api/v1",
	}
	for in, want := range tests {
		if got := normalizeBaseURL(in); got != want {
			t.Errorf("normalizeBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}
