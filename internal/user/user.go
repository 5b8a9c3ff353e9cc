package user

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/dispatch"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/router"
)

type Directory interface {
	Contacts(ctx context.Context, refresh bool) ([]dispatch.Chat, error)
}

type Controller struct {
	ctx       context.Context
	directory Directory
}

func New(ctx context.Context, directory Directory) *Controller {
	return &Controller{ctx: ctx, directory: directory}
}

// contact is a directory row; number is the bare phone used by send endpoints.
type contact struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

// ListContacts
// @Summary     List Known Contacts
// @Description Individual contacts from the device store, named ones first. Cached for ten minutes unless refresh=true
// @Tags        Directory
// @Produce     json
// @Param       refresh query bool false "Bypass the cache"
// @Success     200
// @Failure     503
// @Router      /list-contacts [get]
func (ctl *Controller) ListContacts(c *fiber.Ctx) error {
	chats, err := ctl.directory.Contacts(ctl.ctx, c.QueryBool("refresh", false))
	if err != nil {
		status := dispatch.HTTPStatus(err)
		if status == fiber.StatusServiceUnavailable {
			return router.ResponseServiceUnavailable(c, "WhatsApp client is not ready, wait for authentication")
		}
		return router.ResponseError(c, status, err.Error())
	}

	contacts := make([]contact, 0, len(chats))
	for _, ch := range chats {
		contacts = append(contacts, contact{
			ID:     ch.ID,
			Name:   ch.Name,
			Number: strings.TrimSuffix(ch.ID, dispatch.ContactSuffix),
		})
	}
	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := contacts[i].Name, contacts[j].Name
		if (a == "") != (b == "") {
			return a != ""
		}
		return strings.ToLower(a) < strings.ToLower(b)
	})

	log.Print(c).WithField("contact_count", len(contacts)).Info("Contacts listed")
	return router.ResponseSuccessWithData(c, fmt.Sprintf("Success get %d contacts", len(contacts)), fiber.Map{
		"count":    len(contacts),
		"contacts": contacts,
	})
}
