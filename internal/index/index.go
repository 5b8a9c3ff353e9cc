package index

import (
	"time"

	"github.com/gofiber/fiber/v2"

	typWhatsApp "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/types"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/whatsapp"
)

type StatusSource interface {
	Status() pkgWhatsApp.State
}

type Controller struct {
	source        StatusSource
	defaultNumber string
	now           func() time.Time
}

func New(source StatusSource, defaultNumber string) *Controller {
	return &Controller{source: source, defaultNumber: defaultNumber, now: time.Now}
}

// Index
// @Summary     Show The Status of The Server
// @Description Get The Server Status
// @Tags        Root
// @Produce     json
// @Success     200
// @Router      / [get]
func Index(c *fiber.Ctx) error {
	return router.ResponseSuccess(c, "Go WhatsApp Dispatch Gateway is running")
}

// Health
// @Summary     Report Readiness
// @Description status is "ready" once the client is authenticated, otherwise "not-ready"
// @Tags        Root
// @Produce     json
// @Success     200 {object} typWhatsApp.ResponseHealth
// @Router      /health [get]
func (ctl *Controller) Health(c *fiber.Ctx) error {
	st := ctl.source.Status()
	res := typWhatsApp.ResponseHealth{
		Status: "not-ready",
		Ready:  st.Ready,
		Number: ctl.defaultNumber,
	}
	if st.Ready {
		res.Status = "ready"
	}
	if !st.StartedAt.IsZero() {
		res.Uptime = ctl.now().Sub(st.StartedAt).Round(time.Second).String()
	}
	return router.ResponseJSON(c, fiber.StatusOK, res)
}
