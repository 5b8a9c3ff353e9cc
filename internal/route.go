package internal

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	swagger "github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/router"

	ctlAdmin "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/admin"
	ctlDevice "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/device"
	ctlGroups "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/groups"
	ctlIndex "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/index"
	ctlMessaging "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/messaging"
	ctlUser "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/user"
	ctlWebhooks "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/webhooks"
)

func Routes(app *fiber.App, svc *Services) {
	// Configure OpenAPI / Swagger
	specURL := router.BaseURL + "/docs/swagger.json"
	swaggerHandler := swagger.New(swagger.Config{
		URL: specURL,
	})

	index := ctlIndex.New(svc.Manager, svc.DefaultNumber)
	device := ctlDevice.New(svc.Ctx, svc.Manager)
	messaging := ctlMessaging.New(svc.Ctx, svc.Dispatcher, svc.DefaultNumber, svc.Webhooks)
	groups := ctlGroups.New(svc.Ctx, svc.Manager, svc.GroupsFile)
	users := ctlUser.New(svc.Ctx, svc.Manager)
	admin := ctlAdmin.New(svc.Ctx, svc.Versions)
	webhooks := ctlWebhooks.New(svc.Webhooks)

	// Route for Index
	// ---------------------------------------------
	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index)
	} else {
		app.Get(router.BaseURL, ctlIndex.Index)
		app.Get(router.BaseURL+"/", ctlIndex.Index)
	}
	app.Get(router.BaseURL+"/health", index.Health)

	// Route for OpenAPI / Swagger
	// ---------------------------------------------
	app.Get(router.BaseURL+"/docs/swagger.json", func(c *fiber.Ctx) error {
		return c.SendFile("docs/swagger.json")
	})
	app.Get(router.BaseURL+"/docs/*", swaggerHandler)

	// Route for Prometheus
	// ---------------------------------------------
	app.Get(router.BaseURL+"/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Connection and session control
	// ---------------------------------------------
	app.Get(router.BaseURL+"/status", device.Status)
	app.Get(router.BaseURL+"/qr", device.QR)
	app.Post(router.BaseURL+"/restart", device.Restart)
	app.Post(router.BaseURL+"/clear-session", device.ClearSession)
	app.Post(router.BaseURL+"/force-reset", device.ForceReset)
	app.Get(router.BaseURL+"/sessions", device.Sessions)
	app.Get(router.BaseURL+"/logs", admin.Logs)

	// Messaging
	// ---------------------------------------------
	app.Post(router.BaseURL+"/send-image", messaging.SendImage)
	app.Post(router.BaseURL+"/send-image-to-group", messaging.SendImageToGroup)
	app.Post(router.BaseURL+"/send-text-to-group", messaging.SendTextToGroup)
	app.Post(router.BaseURL+"/send-text-to-contact", messaging.SendTextToContact)
	app.Post(router.BaseURL+"/send-image-to-contact", messaging.SendImageToContact)
	app.Post(router.BaseURL+"/send-batch", messaging.SendBatch)
	app.Post(router.BaseURL+"/prepare-contacts", messaging.PrepareContacts)
	app.Post(router.BaseURL+"/test-send", messaging.TestSend)

	// Directory
	// ---------------------------------------------
	app.Get(router.BaseURL+"/list-groups", groups.List)
	app.Get(router.BaseURL+"/list-contacts", users.ListContacts)
	app.Post(router.BaseURL+"/save-groups", groups.Save)
	app.Get(router.BaseURL+"/save-groups", groups.Save)

	// Webhooks
	// ---------------------------------------------
	app.Get(router.BaseURL+"/webhooks", webhooks.ListWebhooks)
	app.Get(router.BaseURL+"/webhooks/logs", webhooks.GetWebhookLogs)
	app.Post(router.BaseURL+"/webhooks/test", webhooks.TestWebhook)

	// Admin
	// ---------------------------------------------
	app.Get(router.BaseURL+"/admin/whatsapp/version", admin.GetWhatsAppWebVersion)
	app.Post(router.BaseURL+"/admin/whatsapp/version/refresh", admin.RefreshWhatsAppWebVersion)
}
