package log

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rivo/uniseg"
	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/env"
)

var logger = newLogger()

var recent = NewRing(env.GetEnvIntOrDefault("LOG_BUFFER_SIZE", 500))

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
		DisableColors:   false,
		ForceColors:     env.GetEnvBoolOrDefault("LOG_FORCE_COLORS", true),
	}
	level, err := logrus.ParseLevel(env.GetEnvStringOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	return l
}

func init() {
	logger.AddHook(recent)
}

// Logger exposes the process logger for libraries that need a *logrus.Logger.
func Logger() *logrus.Logger {
	return logger
}

func Print(c *fiber.Ctx) *logrus.Entry {
	if c == nil {
		return logger.WithFields(logrus.Fields{})
	}

	remoteIP := c.IP()
	if v := c.Locals("remote_ip"); v != nil {
		if ip, ok := v.(string); ok && ip != "" {
			remoteIP = ip
		}
	}
	fields := logrus.Fields{
		"remote_ip": remoteIP,
		"method":    c.Method(),
		"uri":       c.OriginalURL(),
	}
	if v, ok := c.Locals("request_id").(string); ok && v != "" {
		fields["request_id"] = v
	}
	return logger.WithFields(fields)
}

// Dispatch returns an entry scoped to one batch or single-send operation.
func Dispatch(batchID string, op string) *logrus.Entry {
	fields := logrus.Fields{"component": "dispatch", "op": op}
	if batchID != "" {
		fields["batch_id"] = batchID
	}
	return logger.WithFields(fields)
}

func Session(sessionID string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{"component": "session", "session_id": sessionID})
}

func Event(kind string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{"component": "whatsapp", "event": kind})
}

// Preview shortens text to at most max user-perceived characters.
func Preview(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 || uniseg.GraphemeClusterCount(text) <= max {
		return text
	}
	var b strings.Builder
	g := uniseg.NewGraphemes(text)
	for n := 0; n < max && g.Next(); n++ {
		b.WriteString(g.Str())
	}
	b.WriteString("...")
	return b.String()
}

// Mask hides the tail of a phone number or JID user part.
func Mask(id string) string {
	user := id
	if at := strings.Index(id, "@"); at >= 0 {
		user = id[:at]
	}
	if len(user) < 4 {
		return id
	}
	return user[:len(user)-4] + "xxxx" + id[len(user):]
}
