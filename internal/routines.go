package internal

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/whatsapp"
)

const (
	versionRefreshTimeout = 30 * time.Second
	chatRefreshTimeout    = 90 * time.Second
	// reconnect schedule sums to a little over two minutes
	reconnectTimeout = 5 * time.Minute
)

// Routines schedules the background jobs. Specs use the seconds field.
func Routines(c *cron.Cron, svc *Services) {
	log.Print(nil).Info("Running Routine Tasks")

	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_HEALTH_CHECK_CRON", true) {
		spec := env.GetEnvStringOrDefault("WHATSAPP_HEALTH_CHECK_CRON_SPEC", "0 * * * * *")
		addJob(c, "health check", spec, func() { healthCheck(svc) })
	} else {
		log.Print(nil).Info("Health check cron disabled; relying on whatsmeow auto reconnect")
	}

	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_CHAT_REFRESH_CRON", true) {
		spec := env.GetEnvStringOrDefault("WHATSAPP_CHAT_REFRESH_CRON_SPEC", "0 */10 * * * *")
		addJob(c, "chat refresh", spec, func() { refreshChats(svc) })
	}

	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_WAVERSION_REFRESH_CRON", false) {
		// daily at 03:00:00 unless overridden
		spec := env.GetEnvStringOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_SPEC", "0 0 3 * * *")
		force := env.GetEnvBoolOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_FORCE", false)
		addJob(c, "version refresh", spec, func() { refreshVersion(svc, force) })
	}

	c.Start()
}

func addJob(c *cron.Cron, name string, spec string, fn func()) {
	if _, err := c.AddFunc(spec, fn); err != nil {
		log.Print(nil).WithField("job", name).WithField("spec", spec).WithError(err).Error("Failed to add cron job")
		return
	}
	log.Print(nil).WithField("job", name).WithField("spec", spec).Info("Cron job enabled")
}

// healthCheck brings a paired client back when its socket dropped and
// whatsmeow's own reconnect gave up.
func healthCheck(svc *Services) {
	st := svc.Manager.Status()
	if st.Ready || st.Reconnecting || !st.Paired {
		return
	}

	ctx, cancel := context.WithTimeout(svc.Ctx, reconnectTimeout)
	defer cancel()

	entry := log.Session(svc.Manager.SessionID())
	entry.Warn("Client unhealthy, starting reconnect")
	err := svc.Manager.EnsureConnected(ctx)
	switch {
	case err == nil:
		entry.Info("Client connection ensured")
	case errors.Is(err, pkgWhatsApp.ErrReconnecting), errors.Is(err, pkgWhatsApp.ErrNotPaired):
	default:
		entry.WithError(err).Error("Reconnect failed")
	}
}

func refreshChats(svc *Services) {
	if !svc.Manager.IsReady() {
		return
	}
	ctx, cancel := context.WithTimeout(svc.Ctx, chatRefreshTimeout)
	defer cancel()

	n, err := svc.Manager.RefreshChats(ctx)
	if err != nil {
		log.Session(svc.Manager.SessionID()).WithError(err).Warn("Chat list refresh failed")
		return
	}
	log.Session(svc.Manager.SessionID()).WithField("chats", n).Debug("Chat list refreshed")
}

func refreshVersion(svc *Services, force bool) {
	ctx, cancel := context.WithTimeout(svc.Ctx, versionRefreshTimeout)
	defer cancel()

	status, refreshed, err := svc.Versions.Refresh(ctx, force)
	entry := log.Print(nil).WithField("version", status.CurrentVersion).WithField("force", force)
	if err != nil {
		entry.WithError(err).Error("WA Web version refresh failed")
		return
	}
	entry.WithField("refreshed", refreshed).Info("WA Web version refresh completed")
}
