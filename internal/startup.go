package internal

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow/store/sqlstore"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/dispatch"
	ctlGroups "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/groups"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/session"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/webhook"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/whatsapp"
)

const storeCloseTimeout = 5 * time.Second

// Services holds the long-lived components shared by routes and routines.
type Services struct {
	Ctx           context.Context
	Manager       *pkgWhatsApp.Manager
	Dispatcher    *dispatch.Dispatcher
	Webhooks      *webhook.Engine
	Versions      *pkgWhatsApp.VersionRefresher
	DefaultNumber string
	GroupsFile    string

	container   *sqlstore.Container
	sessions    session.Store
	unsubscribe func()
}

// Startup opens the stores, builds the dispatch pipeline and starts the
// WhatsApp client. ctx lives until shutdown and bounds every background send.
func Startup(ctx context.Context) (*Services, error) {
	log.Print(nil).Info("Running Startup Tasks")

	container, err := pkgWhatsApp.OpenDatastore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open whatsapp datastore: %w", err)
	}

	sessionCfg := session.ConfigFromEnv()
	sessions, err := session.Open(ctx, sessionCfg)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}
	log.Print(nil).WithField("type", sessionCfg.Type).Info("Session store opened")

	dispatchCfg, err := dispatch.LoadConfig()
	if err != nil {
		_ = container.Close()
		_ = sessions.Close(ctx)
		return nil, fmt.Errorf("load dispatch config: %w", err)
	}

	waCfg := pkgWhatsApp.ConfigFromEnv()
	webhookCfg := webhook.ConfigFromEnv()
	engine := webhook.NewEngine(webhookCfg)
	if engine.Enabled() {
		log.Print(nil).WithField("targets", len(webhookCfg.Targets)).Info("Outbound webhooks enabled")
	}

	manager := pkgWhatsApp.NewManager(ctx, container, sessions, engine, waCfg)
	tracker := dispatch.NewTracker(dispatchCfg.AckTimeout, dispatchCfg.AckDwell)
	dispatcher := dispatch.New(manager, tracker, dispatchCfg,
		dispatch.WithBatchHook(func(res dispatch.BatchResult) {
			engine.Notify(webhook.EventBatchCompleted, map[string]interface{}{
				"batch_id":    res.BatchID,
				"total":       res.Total,
				"success":     len(res.Success),
				"failed":      len(res.Failed),
				"started_at":  res.StartedAt,
				"finished_at": res.FinishedAt,
			})
		}),
		dispatch.WithSendHook(func(batchID string, o dispatch.SendOutcome) {
			data := map[string]interface{}{
				"message_id": o.MessageID,
				"chat":       o.CanonicalID,
				"type":       o.Type,
				"method":     o.Method,
			}
			if batchID != "" {
				data["batch_id"] = batchID
			}
			engine.Notify(webhook.EventMessageSent, data)
		}),
	)

	svc := &Services{
		Ctx:           ctx,
		Manager:       manager,
		Dispatcher:    dispatcher,
		Webhooks:      engine,
		Versions:      pkgWhatsApp.NewVersionRefresher(),
		DefaultNumber: env.GetEnvStringOrDefault("WHATSAPP_DEFAULT_NUMBER", ""),
		GroupsFile:    env.GetEnvStringOrDefault("WHATSAPP_GROUPS_FILE", ctlGroups.DefaultSavePath),
		container:     container,
		sessions:      sessions,
		unsubscribe:   manager.SubscribeAcks(tracker.Observe),
	}

	if err := manager.Start(ctx); err != nil {
		// the QR flow and the reconnect routine can still recover
		log.Session(waCfg.SessionID).WithError(err).Error("Failed to start WhatsApp client")
	}
	return svc, nil
}

// Shutdown releases everything Startup opened, in reverse order.
func (s *Services) Shutdown() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.Manager.Shutdown()
	s.Webhooks.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), storeCloseTimeout)
	defer cancel()
	if err := s.sessions.Close(ctx); err != nil {
		log.Print(nil).WithError(err).Warn("Failed to close session store")
	}
	if err := s.container.Close(); err != nil {
		log.Print(nil).WithError(err).Warn("Failed to close WhatsApp datastore")
	}
}
