package messaging

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/dispatch"
	typWhatsApp "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/types"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/router"
)

// SendBatch runs a paced batch to completion and answers with every outcome.
// @Summary     Send Batch
// @Description Paced sequential send to many recipients. The response carries X-Batch-ID
// @Tags        Messaging
// @Accept      json
// @Produce     json
// @Param       payload body types.RequestSendBatch true "Request"
// @Success     200
// @Failure     400
// @Failure     404
// @Failure     503
// @Router      /send-batch [post]
func (ctl *Controller) SendBatch(c *fiber.Ctx) error {
	if !ctl.dispatcher.Ready() {
		return router.ResponseServiceUnavailable(c, notReadyMessage)
	}

	var req typWhatsApp.RequestSendBatch
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if len(req.Recipients) == 0 {
		return router.ResponseBadRequest(c, "recipients list is missing or empty")
	}
	if req.ImagePath == "" && req.Text == "" {
		return router.ResponseBadRequest(c, "imagePath or text (or both) is required")
	}

	payload := dispatch.Payload{Text: req.Text}
	if req.ImagePath != "" {
		media, err := dispatch.LoadImage(req.ImagePath)
		if err != nil {
			return respondSendError(c, err)
		}
		payload.Image = media
	}

	cfg := ctl.dispatcher.Config()
	batch := dispatch.Batch{
		ID:         dispatch.NewBatchID(),
		Recipients: req.Recipients,
		Payload:    payload,
		First:      dispatch.NormalizeWindow(req.DelayFirstMin, req.DelayFirstMax, cfg.FirstWindow),
		Subsequent: dispatch.NormalizeWindow(req.DelaySubsequentMin, req.DelaySubsequentMax, cfg.SubsequentWindow),
	}
	c.Set("X-Batch-ID", batch.ID)

	res, err := ctl.dispatcher.Dispatch(ctl.ctx, batch)
	if err != nil {
		log.Dispatch(batch.ID, "batch").WithError(err).Warn("Batch rejected")
		return respondSendError(c, err)
	}

	return router.ResponseJSON(c, fiber.StatusOK, typWhatsApp.ResponseSendBatch{
		Success: true,
		Message: summary(len(res.Success), len(res.Failed)),
		Results: res,
	})
}

// PrepareContacts resolves contacts ahead of a batch without sending.
// @Summary     Prepare Contacts
// @Tags        Messaging
// @Accept      json
// @Produce     json
// @Param       payload body types.RequestPrepareContacts true "Request"
// @Success     200
// @Failure     400
// @Failure     503
// @Router      /prepare-contacts [post]
func (ctl *Controller) PrepareContacts(c *fiber.Ctx) error {
	if !ctl.dispatcher.Ready() {
		return router.ResponseServiceUnavailable(c, notReadyMessage)
	}

	var req typWhatsApp.RequestPrepareContacts
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	ids := req.IDs()
	if len(ids) == 0 {
		return router.ResponseBadRequest(c, "contacts list is missing or empty")
	}

	recipients := make([]dispatch.Recipient, 0, len(ids))
	for _, id := range ids {
		recipients = append(recipients, dispatch.Recipient{ID: id, Type: dispatch.RecipientContact})
	}

	preps, err := ctl.dispatcher.Prepare(ctl.ctx, recipients)
	if err != nil {
		return respondSendError(c, err)
	}

	results := typWhatsApp.PrepareResults{
		Prepared: []dispatch.Preparation{},
		Failed:   []dispatch.Preparation{},
		Total:    len(preps),
	}
	for _, p := range preps {
		if p.Prepared {
			results.Prepared = append(results.Prepared, p)
		} else {
			results.Failed = append(results.Failed, p)
		}
	}

	log.Dispatch("", "PrepareContacts").WithField("prepared", len(results.Prepared)).WithField("failed", len(results.Failed)).Info("Contacts prepared")
	return router.ResponseSuccessWithData(c,
		fmt.Sprintf("Preparation finished: %d prepared, %d failed", len(results.Prepared), len(results.Failed)),
		results)
}

// TestSend resolves one recipient with full diagnostics and, unless dryRun
// is set, sends a short text to it.
// @Summary     Test Send
// @Description Resolution diagnostics for one recipient
// @Tags        Messaging
// @Accept      json
// @Produce     json
// @Param       payload body types.RequestTestSend true "Request"
// @Success     200
// @Failure     400
// @Failure     404
// @Failure     503
// @Router      /test-send [post]
func (ctl *Controller) TestSend(c *fiber.Ctx) error {
	if !ctl.dispatcher.Ready() {
		return router.ResponseServiceUnavailable(c, notReadyMessage)
	}

	var req typWhatsApp.RequestTestSend
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if req.RecipientID() == "" {
		return router.ResponseBadRequest(c, "recipient is required")
	}

	rec := dispatch.Recipient{ID: req.RecipientID(), Type: req.Type}
	handle, err := ctl.dispatcher.Resolve(ctl.ctx, rec)
	if err != nil {
		return respondSendError(c, err)
	}

	result := typWhatsApp.ResponseTestSend{
		ChatID:   handle.CanonicalID,
		Method:   string(handle.Method),
		Attempts: handle.Attempts,
	}
	if req.DryRun {
		return router.ResponseSuccessWithData(c, "Recipient resolved", result)
	}

	resolved := dispatch.Recipient{ID: handle.CanonicalID, Name: handle.Name, Type: rec.Type}
	outcome, err := ctl.dispatcher.Send(ctl.ctx, resolved, dispatch.Payload{Text: req.Body()}, dispatch.SendOptions{})
	if err != nil {
		var nf *dispatch.ChatNotFoundError
		if errors.As(err, &nf) {
			nf.Attempts = append(handle.Attempts, nf.Attempts...)
		}
		return respondSendError(c, err)
	}

	result.Sent = true
	result.MessageID = outcome.MessageID
	return router.ResponseSuccessWithData(c, fmt.Sprintf("Message %q sent", log.Preview(req.Body(), 40)), result)
}
