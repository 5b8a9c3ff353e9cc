package webhooks

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/webhook"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/router"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

// Engine is the part of the outbound webhook engine exposed over HTTP.
type Engine interface {
	Enabled() bool
	Targets() []webhook.Target
	DeliveryLogs(limit int) []webhook.DeliveryLog
	Notify(eventType webhook.EventType, data map[string]interface{})
}

type Controller struct {
	engine Engine
	now    func() time.Time
}

func New(engine Engine) *Controller {
	return &Controller{engine: engine, now: time.Now}
}

type target struct {
	URL    string              `json:"url"`
	Events []webhook.EventType `json:"events"`
}

// ListWebhooks
// @Summary     List Webhook Targets
// @Description Configured webhook receivers and their event filters. An empty filter receives every event
// @Tags        Webhooks
// @Produce     json
// @Success     200
// @Router      /webhooks [get]
func (ctl *Controller) ListWebhooks(c *fiber.Ctx) error {
	targets := ctl.engine.Targets()
	out := make([]target, 0, len(targets))
	for _, t := range targets {
		events := t.Events
		if events == nil {
			events = []webhook.EventType{}
		}
		out = append(out, target{URL: t.URL, Events: events})
	}

	return router.ResponseSuccessWithData(c, "Success", map[string]interface{}{
		"enabled": ctl.engine.Enabled(),
		"count":   len(out),
		"targets": out,
	})
}

// GetWebhookLogs
// @Summary     Webhook Delivery Log
// @Description Most recent webhook deliveries, newest first
// @Tags        Webhooks
// @Produce     json
// @Param       limit query int false "Max entries (default 50, max 200)"
// @Success     200
// @Router      /webhooks/logs [get]
func (ctl *Controller) GetWebhookLogs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultLogLimit)
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	logs := ctl.engine.DeliveryLogs(limit)
	return router.ResponseSuccessWithData(c, "Success", map[string]interface{}{
		"count": len(logs),
		"logs":  logs,
	})
}

// TestWebhook
// @Summary     Send Test Webhook
// @Description Queues a test.ping event to every configured target. Delivery results appear in the webhook log
// @Tags        Webhooks
// @Produce     json
// @Success     202
// @Failure     400
// @Router      /webhooks/test [post]
func (ctl *Controller) TestWebhook(c *fiber.Ctx) error {
	if !ctl.engine.Enabled() {
		return router.ResponseBadRequest(c, "No webhook targets configured")
	}

	sentAt := ctl.now()
	ctl.engine.Notify(webhook.EventTestPing, map[string]interface{}{
		"message": "webhook test",
		"sent_at": sentAt,
	})
	log.Event("webhook").WithField("targets", len(ctl.engine.Targets())).Info("Test webhook queued")

	return router.ResponseJSON(c, fiber.StatusAccepted, router.Response{
		Success: true,
		Code:    fiber.StatusAccepted,
		Message: "Test event queued",
		Data: map[string]interface{}{
			"event":   webhook.EventTestPing,
			"sent_at": sentAt,
		},
	})
}
