package device

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/session"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/whatsapp"
)

const controlTimeout = 45 * time.Second

// Client is the part of the connection manager the device endpoints drive.
type Client interface {
	SessionID() string
	Sessions() session.Store
	Status() pkgWhatsApp.State
	QRCode() (string, error)
	Restart(ctx context.Context) error
	ClearSession(ctx context.Context) error
	ForceReset(ctx context.Context) error
}

type Controller struct {
	ctx    context.Context
	client Client
}

func New(ctx context.Context, client Client) *Controller {
	return &Controller{ctx: ctx, client: client}
}

// Status
// @Summary     Show The WhatsApp Connection State
// @Description Ready flag, pairing state, own JID and reconnect attempts
// @Tags        Device
// @Produce     json
// @Success     200
// @Router      /status [get]
func (ctl *Controller) Status(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "Success get connection status", ctl.client.Status())
}

// QR
// @Summary     Show The Current Pairing QR Code
// @Description Returns the pending QR as json (raw code and data url), html or png
// @Tags        Device
// @Produce     json,html,png
// @Param       format query string false "json, html or png" default(json)
// @Success     200
// @Failure     404
// @Router      /qr [get]
func (ctl *Controller) QR(c *fiber.Ctx) error {
	code, err := ctl.client.QRCode()
	if err != nil {
		if errors.Is(err, pkgWhatsApp.ErrNoQRCode) {
			if ctl.client.Status().Ready {
				return router.ResponseNotFound(c, "Client already authenticated, no QR code pending")
			}
			return router.ResponseNotFound(c, "No QR code available yet, try again shortly")
		}
		return router.ResponseInternalError(c, err.Error())
	}

	switch strings.ToLower(strings.TrimSpace(c.Query("format", "json"))) {
	case "png":
		png, err := pkgWhatsApp.QRPNG(code)
		if err != nil {
			return router.ResponseInternalError(c, err.Error())
		}
		c.Set(fiber.HeaderContentType, "image/png")
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.Status(fiber.StatusOK).Send(png)
	case "html":
		dataURL, err := pkgWhatsApp.QRDataURL(code)
		if err != nil {
			return router.ResponseInternalError(c, err.Error())
		}
		return router.ResponseSuccessWithHTML(c, `
		<html>
			<head>
				<title>WhatsApp Dispatch Gateway Pairing</title>
				<meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
				<meta http-equiv="refresh" content="20" />
			</head>
			<body>
				<img src="`+dataURL+`" />
				<p>
					<b>Scan with WhatsApp &gt; Linked Devices</b>
					<br/>
					The code rotates; this page reloads every 20 seconds
				</p>
			</body>
		</html>
		`)
	default:
		dataURL, err := pkgWhatsApp.QRDataURL(code)
		if err != nil {
			return router.ResponseInternalError(c, err.Error())
		}
		return router.ResponseSuccessWithData(c, "Success get QR code", fiber.Map{
			"qrCode": code,
			"image":  dataURL,
		})
	}
}

// Restart
// @Summary     Reconnect The WhatsApp Client
// @Description Drops the socket and connects again, or restarts pairing when unpaired
// @Tags        Device
// @Produce     json
// @Success     200
// @Failure     500
// @Router      /restart [post]
func (ctl *Controller) Restart(c *fiber.Ctx) error {
	return ctl.control(c, "restart", ctl.client.Restart, "Client restarted")
}

// ClearSession
// @Summary     Clear The Stored Session
// @Description Deletes the device and session record, then starts a fresh pairing
// @Tags        Device
// @Produce     json
// @Success     200
// @Failure     500
// @Router      /clear-session [post]
func (ctl *Controller) ClearSession(c *fiber.Ctx) error {
	return ctl.control(c, "clear-session", ctl.client.ClearSession, "Session cleared, scan the new QR code")
}

// ForceReset
// @Summary     Force A Full Reset
// @Description Logs out when possible, clears everything local and restarts pairing
// @Tags        Device
// @Produce     json
// @Success     200
// @Failure     500
// @Router      /force-reset [post]
func (ctl *Controller) ForceReset(c *fiber.Ctx) error {
	return ctl.control(c, "force-reset", ctl.client.ForceReset, "Reset complete, scan the new QR code")
}

func (ctl *Controller) control(c *fiber.Ctx, op string, fn func(context.Context) error, message string) error {
	ctx, cancel := context.WithTimeout(ctl.ctx, controlTimeout)
	defer cancel()

	entry := log.Session(ctl.client.SessionID()).WithField("op", op)
	entry.Info("Session control requested")
	if err := fn(ctx); err != nil {
		entry.WithError(err).Error("Session control failed")
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccess(c, message)
}

// Sessions
// @Summary     List Stored Sessions
// @Description Session ids held by the configured session store
// @Tags        Device
// @Produce     json
// @Success     200
// @Router      /sessions [get]
func (ctl *Controller) Sessions(c *fiber.Ctx) error {
	ids, err := ctl.client.Sessions().List(ctl.ctx)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}
	if ids == nil {
		ids = []string{}
	}
	return router.ResponseSuccessWithData(c, "Success get session list", fiber.Map{
		"current":  ctl.client.SessionID(),
		"sessions": ids,
	})
}
