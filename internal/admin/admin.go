package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/whatsapp"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000

	versionRefreshTimeout = 30 * time.Second
)

type VersionSource interface {
	Status() pkgWhatsApp.VersionStatus
	Refresh(ctx context.Context, force bool) (pkgWhatsApp.VersionStatus, bool, error)
}

type Controller struct {
	ctx      context.Context
	versions VersionSource
	recent   func(limit int, level logrus.Level) []log.Entry
}

func New(ctx context.Context, versions VersionSource) *Controller {
	return &Controller{ctx: ctx, versions: versions, recent: log.Recent}
}

// Logs
// @Summary     Show Recent Log Entries
// @Description Newest entries from the in-memory log buffer, oldest first
// @Tags        Admin
// @Produce     json
// @Param       limit query int    false "Maximum entries" default(100)
// @Param       level query string false "Minimum level (debug, info, warn, error)" default(debug)
// @Success     200
// @Failure     400
// @Router      /logs [get]
func (ctl *Controller) Logs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultLogLimit)
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	level := logrus.DebugLevel
	if raw := strings.TrimSpace(c.Query("level")); raw != "" {
		parsed, err := logrus.ParseLevel(raw)
		if err != nil {
			return router.ResponseBadRequest(c, fmt.Sprintf("unknown log level %q", raw))
		}
		level = parsed
	}

	entries := ctl.recent(limit, level)
	return router.ResponseSuccessWithData(c, fmt.Sprintf("Success get %d log entries", len(entries)), fiber.Map{
		"count": len(entries),
		"logs":  entries,
	})
}

// GetWhatsAppWebVersion
// @Summary     Show The Advertised WhatsApp Web Version
// @Tags        Admin
// @Produce     json
// @Success     200
// @Router      /admin/whatsapp/version [get]
func (ctl *Controller) GetWhatsAppWebVersion(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "Success get WhatsApp Web version", ctl.versions.Status())
}

// RefreshWhatsAppWebVersion
// @Summary     Refresh The WhatsApp Web Version
// @Description Fetches the latest version. Throttled unless force=true
// @Tags        Admin
// @Produce     json
// @Param       force query bool false "Ignore the refresh throttle"
// @Success     200
// @Failure     502
// @Router      /admin/whatsapp/version/refresh [post]
func (ctl *Controller) RefreshWhatsAppWebVersion(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(ctl.ctx, versionRefreshTimeout)
	defer cancel()

	status, refreshed, err := ctl.versions.Refresh(ctx, c.QueryBool("force", false))
	if err != nil {
		return router.ResponseError(c, fiber.StatusBadGateway, "Failed to refresh WhatsApp Web version: "+err.Error())
	}

	message := "WhatsApp Web version refreshed"
	if !refreshed {
		message = "Refresh skipped, last refresh is recent"
	}
	return router.ResponseSuccessWithData(c, message, fiber.Map{
		"refreshed": refreshed,
		"version":   status,
	})
}
