package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/whatsapp"
)

type fakeVersions struct {
	status pkgWhatsApp.VersionStatus
	err    error
	forced []bool
}

func (f *fakeVersions) Status() pkgWhatsApp.VersionStatus { return f.status }

func (f *fakeVersions) Refresh(_ context.Context, force bool) (pkgWhatsApp.VersionStatus, bool, error) {
	f.forced = append(f.forced, force)
	return f.status, force, f.err
}

func newApp(ctl *Controller) *fiber.App {
	app := fiber.New()
	app.Get("/logs", ctl.Logs)
	app.Get("/admin/whatsapp/version", ctl.GetWhatsAppWebVersion)
	app.Post("/admin/whatsapp/version/refresh", ctl.RefreshWhatsAppWebVersion)
	return app
}

func TestLogsFiltersAndLimits(t *testing.T) {
	ring := log.NewRing(10)
	for _, lvl := range []logrus.Level{logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel} {
		if err := ring.Fire(&logrus.Entry{Time: time.Now(), Level: lvl, Message: lvl.String()}); err != nil {
			t.Fatal(err)
		}
	}
	ctl := New(context.Background(), &fakeVersions{})
	ctl.recent = ring.Snapshot
	app := newApp(ctl)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/logs?level=warn&limit=5", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Data struct {
			Count int         `json:"count"`
			Logs  []log.Entry `json:"logs"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Data.Count != 2 || body.Data.Logs[0].Message != "warning" || body.Data.Logs[1].Message != "error" {
		t.Fatalf("logs = %+v", body.Data.Logs)
	}
}

func TestLogsRejectsUnknownLevel(t *testing.T) {
	app := newApp(New(context.Background(), &fakeVersions{}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/logs?level=loud", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestVersionRefresh(t *testing.T) {
	versions := &fakeVersions{status: pkgWhatsApp.VersionStatus{CurrentVersion: "2.3000.1"}}
	app := newApp(New(context.Background(), versions))

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/admin/whatsapp/version/refresh?force=true", nil))
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Data struct {
			Refreshed bool                      `json:"refreshed"`
			Version   pkgWhatsApp.VersionStatus `json:"version"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !body.Data.Refreshed || body.Data.Version.CurrentVersion != "2.3000.1" {
		t.Fatalf("data = %+v", body.Data)
	}
	if len(versions.forced) != 1 || !versions.forced[0] {
		t.Fatalf("forced = %v", versions.forced)
	}

	versions.err = errors.New("upstream down")
	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/admin/whatsapp/version/refresh", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
