package router

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
)

// HttpErrorHandler renders errors returned by handlers, including fiber's
// own 404 and 405, as a failure envelope.
func HttpErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return ResponseError(c, code, errorMessage(err))
}

// RecoveryMiddleware turns a panic in any later handler into a 500
// envelope. Register it ahead of the routes.
func RecoveryMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			log.Print(c).WithField("panic", rec).Error("Recovered from panic")
			err = ResponseError(c, fiber.StatusInternalServerError, fmt.Sprint(rec))
		}()
		return c.Next()
	}
}

func errorMessage(err error) string {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}
