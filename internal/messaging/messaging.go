package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/dispatch"
	typWhatsApp "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/types"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/webhook"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/router"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/validation"
)

const notReadyMessage = "WhatsApp client is not ready, wait for authentication"

type Notifier interface {
	Notify(eventType webhook.EventType, data map[string]interface{})
}

// Controller serves the send endpoints. Work runs on ctx rather than the
// request so shutdown cancels in-flight batches.
type Controller struct {
	ctx           context.Context
	dispatcher    *dispatch.Dispatcher
	defaultNumber string
	notifier      Notifier
}

func New(ctx context.Context, dispatcher *dispatch.Dispatcher, defaultNumber string, notifier Notifier) *Controller {
	return &Controller{
		ctx:           ctx,
		dispatcher:    dispatcher,
		defaultNumber: defaultNumber,
		notifier:      notifier,
	}
}

// SendImage
// @Summary     Send Image To Default Number
// @Description Sends an image to WHATSAPP_DEFAULT_NUMBER
// @Tags        Messaging
// @Accept      json
// @Produce     json
// @Param       payload body types.RequestSendImage true "Request"
// @Success     200
// @Failure     400
// @Failure     404
// @Failure     500
// @Failure     503
// @Router      /send-image [post]
func (ctl *Controller) SendImage(c *fiber.Ctx) error {
	if !ctl.dispatcher.Ready() {
		return router.ResponseServiceUnavailable(c, notReadyMessage)
	}

	var req typWhatsApp.RequestSendImage
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if err := validation.ValidateImagePath(req.ImagePath); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if ctl.defaultNumber == "" {
		return router.ResponseInternalError(c, "WHATSAPP_DEFAULT_NUMBER is not configured")
	}

	media, err := dispatch.LoadImage(req.ImagePath)
	if err != nil {
		return respondSendError(c, err)
	}

	rec := dispatch.Recipient{ID: ctl.defaultNumber, Type: dispatch.RecipientContact}
	return ctl.sendAndRespond(c, "SendImage", rec, dispatch.Payload{Text: req.Caption, Image: media}, "Image sent")
}

// SendImageToGroup
// @Summary     Send Image To Group
// @Tags        Messaging
// @Accept      json
// @Produce     json
// @Param       payload body types.RequestSendImageToGroup true "Request"
// @Success     200
// @Failure     400
// @Failure     404
// @Failure     503
// @Router      /send-image-to-group [post]
func (ctl *Controller) SendImageToGroup(c *fiber.Ctx) error {
	if !ctl.dispatcher.Ready() {
		return router.ResponseServiceUnavailable(c, notReadyMessage)
	}

	var req typWhatsApp.RequestSendImageToGroup
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if err := validation.ValidateGroupID(req.GroupID); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := validation.ValidateImagePath(req.ImagePath); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	media, err := dispatch.LoadImage(req.ImagePath)
	if err != nil {
		return respondSendError(c, err)
	}

	rec := dispatch.Recipient{ID: req.GroupID, Type: dispatch.RecipientGroup}
	return ctl.sendAndRespond(c, "SendImageToGroup", rec, dispatch.Payload{Text: req.Caption, Image: media}, "Image sent to group")
}

// SendTextToGroup
// @Summary     Send Text To Group
// @Tags        Messaging
// @Accept      json
// @Produce     json
// @Param       payload body types.RequestSendTextToGroup true "Request"
// @Success     200
// @Failure     400
// @Failure     404
// @Failure     503
// @Router      /send-text-to-group [post]
func (ctl *Controller) SendTextToGroup(c *fiber.Ctx) error {
	if !ctl.dispatcher.Ready() {
		return router.ResponseServiceUnavailable(c, notReadyMessage)
	}

	var req typWhatsApp.RequestSendTextToGroup
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if err := validation.ValidateGroupID(req.GroupID); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if req.Text == "" {
		return router.ResponseBadRequest(c, "text is required")
	}

	rec := dispatch.Recipient{ID: req.GroupID, Type: dispatch.RecipientGroup}
	return ctl.sendAndRespond(c, "SendTextToGroup", rec, dispatch.Payload{Text: req.Text}, "Text sent to group")
}

// SendImageToContact
// @Summary     Send Image To Contact
// @Tags        Messaging
// @Accept      json
// @Produce     json
// @Param       payload body types.RequestSendImageToContact true "Request"
// @Success     200
// @Failure     400
// @Failure     404
// @Failure     503
// @Router      /send-image-to-contact [post]
func (ctl *Controller) SendImageToContact(c *fiber.Ctx) error {
	if !ctl.dispatcher.Ready() {
		return router.ResponseServiceUnavailable(c, notReadyMessage)
	}

	var req typWhatsApp.RequestSendImageToContact
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if err := validation.ValidateContactID(req.ContactID); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := validation.ValidateImagePath(req.ImagePath); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	media, err := dispatch.LoadImage(req.ImagePath)
	if err != nil {
		return respondSendError(c, err)
	}

	rec := dispatch.Recipient{ID: req.ContactID, Type: dispatch.RecipientContact}
	return ctl.sendAndRespond(c, "SendImageToContact", rec, dispatch.Payload{Text: req.Caption, Image: media}, "Image sent to contact")
}

// SendTextToContact sends and then waits for a delivery verdict.
// @Summary     Send Text To Contact
// @Description Answers once the message is delivered or timeoutMs elapses; delivered reports which
// @Tags        Messaging
// @Accept      json
// @Produce     json
// @Param       payload body types.RequestSendTextToContact true "Request"
// @Success     200
// @Failure     400
// @Failure     404
// @Failure     503
// @Router      /send-text-to-contact [post]
func (ctl *Controller) SendTextToContact(c *fiber.Ctx) error {
	if !ctl.dispatcher.Ready() {
		return router.ResponseServiceUnavailable(c, notReadyMessage)
	}

	var req typWhatsApp.RequestSendTextToContact
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if err := validation.ValidateContactID(req.ContactID); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if req.Text == "" {
		return router.ResponseBadRequest(c, "text is required")
	}

	opts := dispatch.SendOptions{Track: true}
	if req.TimeoutMs != nil && *req.TimeoutMs > 0 {
		opts.AckTimeout = time.Duration(*req.TimeoutMs) * time.Millisecond
	}

	rec := dispatch.Recipient{ID: req.ContactID, Type: dispatch.RecipientContact}
	entry := log.Dispatch("", "SendTextToContact").WithField("recipient", log.Mask(req.ContactID)).WithField("preview", log.Preview(req.Text, 40))
	entry.Info("Sending tracked text")

	outcome, err := ctl.dispatcher.Send(ctl.ctx, rec, dispatch.Payload{Text: req.Text}, opts)
	if err != nil {
		entry.WithError(err).Warn("Tracked send failed")
		return respondSendError(c, err)
	}

	delivered := outcome.Delivered != nil && *outcome.Delivered
	entry.WithField("message_id", outcome.MessageID).WithField("delivered", delivered).Info("Tracked send finished")
	if delivered {
		ctl.notify(webhook.EventMessageDelivered, map[string]interface{}{
			"message_id": outcome.MessageID,
			"chat":       outcome.CanonicalID,
			"ack":        outcome.Ack,
		})
	}

	message := "Text sent, delivery not confirmed"
	if delivered {
		message = "Text sent and delivered"
	}
	return router.ResponseJSON(c, fiber.StatusOK, typWhatsApp.ResponseSendTextToContact{
		Success:   true,
		Message:   message,
		ContactID: outcome.CanonicalID,
		MessageID: outcome.MessageID,
		Delivered: outcome.Delivered,
		Ack:       outcome.Ack,
	})
}

func (ctl *Controller) sendAndRespond(c *fiber.Ctx, op string, rec dispatch.Recipient, p dispatch.Payload, message string) error {
	entry := log.Dispatch("", op).WithField("recipient", log.Mask(rec.ID)).WithField("kind", p.Kind())
	entry.Info("Sending message")

	outcome, err := ctl.dispatcher.Send(ctl.ctx, rec, p, dispatch.SendOptions{})
	if err != nil {
		entry.WithError(err).Warn("Send failed")
		return respondSendError(c, err)
	}

	entry.WithField("message_id", outcome.MessageID).WithField("chat", log.Mask(outcome.CanonicalID)).Info("Message sent")
	return router.ResponseSuccessWithData(c, message, fiber.Map{
		"chatId":    outcome.CanonicalID,
		"chatName":  outcome.Name,
		"messageId": outcome.MessageID,
		"method":    outcome.Method,
	})
}

func (ctl *Controller) notify(eventType webhook.EventType, data map[string]interface{}) {
	if ctl.notifier != nil {
		ctl.notifier.Notify(eventType, data)
	}
}

// respondSendError maps dispatch errors onto status codes, keeping the
// resolution attempts when the chat was not found.
func respondSendError(c *fiber.Ctx, err error) error {
	status := dispatch.HTTPStatus(err)

	var nf *dispatch.ChatNotFoundError
	if errors.As(err, &nf) {
		return router.ResponseJSON(c, status, typWhatsApp.ResponseSendFailure{
			Success:  false,
			Error:    err.Error(),
			Attempts: nf.Attempts,
		})
	}
	if status == fiber.StatusServiceUnavailable {
		return router.ResponseServiceUnavailable(c, notReadyMessage)
	}
	return router.ResponseError(c, status, err.Error())
}

func summary(sent int, failed int) string {
	return fmt.Sprintf("Dispatch finished: %d sent, %d failed", sent, failed)
}
