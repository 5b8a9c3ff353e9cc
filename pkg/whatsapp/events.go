package whatsapp

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/dispatch"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/session"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/webhook"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
)

const sessionWriteTimeout = 5 * time.Second

func (m *Manager) handleEvent(evt interface{}) {
	entry := log.Session(m.cfg.SessionID)

	switch e := evt.(type) {
	case *events.PairSuccess:
		entry.Info("Paired with " + log.Mask(CanonicalID(e.ID)))
		m.mu.Lock()
		m.state.JID = CanonicalID(e.ID)
		m.state.LastEvent = "paired"
		m.state.LastError = ""
		m.mu.Unlock()
		m.saveRecord(func(r *session.Record) {
			r.JID = e.ID.String()
			r.Platform = e.Platform
			r.PairedAt = time.Now()
		})
	case *events.Connected:
		client, err := m.currentClient()
		if err != nil {
			return
		}
		pushName := client.Store.PushName
		m.mu.Lock()
		m.state.LastEvent = "connected"
		m.state.LastError = ""
		m.state.ReconnectAttempts = 0
		m.state.PushName = pushName
		if client.Store.ID != nil {
			m.state.JID = CanonicalID(*client.Store.ID)
		}
		jid := m.state.JID
		m.mu.Unlock()
		m.clearQR("")
		m.setReady(true)
		m.chats.Invalidate()

		entry.Info("Client connected: " + log.Mask(jid))
		m.saveRecord(func(r *session.Record) {
			if client.Store.ID != nil {
				r.JID = client.Store.ID.String()
			}
			r.PushName = pushName
			r.LastConnectedAt = time.Now()
		})
		m.notify(webhook.EventConnectionConnected, map[string]interface{}{"jid": jid})
	case *events.Disconnected:
		m.markDown("disconnected", "")
		entry.Warn("Client disconnected")
		m.notify(webhook.EventConnectionDisconnected, map[string]interface{}{"reason": "disconnected"})
	case *events.StreamReplaced:
		m.markDown("stream_replaced", "connection replaced by another client")
		entry.Warn("Client stream replaced by another connection")
		m.notify(webhook.EventConnectionDisconnected, map[string]interface{}{"reason": "stream_replaced"})
	case *events.LoggedOut:
		m.markDown("logged_out", "logged out: "+e.Reason.String())
		entry.Warn("Client logged out, reason=" + e.Reason.String())
		ctx, cancel := context.WithTimeout(m.baseCtx, sessionWriteTimeout)
		if err := m.forgetSession(ctx); err != nil {
			entry.WithError(err).Error("Failed to delete session record after logout")
		}
		cancel()
		m.notify(webhook.EventConnectionLoggedOut, map[string]interface{}{"on_connect": e.OnConnect})
		// whatsmeow already wiped the device; come back with a new QR
		go m.repair()
	case *events.Receipt:
		ack, ok := ackFromReceipt(e.Type)
		if !ok {
			return
		}
		for _, id := range e.MessageIDs {
			m.publishAck(id, ack)
			m.notify(webhook.EventMessageAck, map[string]interface{}{
				"message_id": id,
				"ack":        ack,
				"chat":       CanonicalID(e.Chat),
				"timestamp":  e.Timestamp.Unix(),
			})
		}
	case *events.KeepAliveTimeout:
		entry.Warn(fmt.Sprintf("Client keepalive timeout, errors=%d, lastSuccess=%s", e.ErrorCount, e.LastSuccess.Format(time.RFC3339)))
	case *events.KeepAliveRestored:
		entry.Info("Client keepalive restored")
	case *events.TemporaryBan:
		m.markDown("temporary_ban", "temporary ban: "+e.String())
		entry.Error(fmt.Sprintf("Client temporarily banned, reason=%s, expires=%s", e.Code, e.Expire))
	case *events.ConnectFailure:
		m.markDown("connect_failure", fmt.Sprintf("connect failure: %s %s", e.Reason, e.Message))
		entry.Error(fmt.Sprintf("Client connection failure, reason=%s, message=%s", e.Reason, e.Message))
	}
}

// ackFromReceipt maps receipts for our outgoing messages onto the tracker's
// ack scale. ReadSelf reports incoming messages read on another of our
// devices and is not an ack.
func ackFromReceipt(t types.ReceiptType) (int, bool) {
	switch t {
	case types.ReceiptTypeDelivered:
		return dispatch.AckDevice, true
	case types.ReceiptTypeRead:
		return dispatch.AckRead, true
	case types.ReceiptTypePlayed:
		return dispatch.AckPlayed, true
	}
	return 0, false
}

func (m *Manager) markDown(event string, lastError string) {
	m.mu.Lock()
	m.state.LastEvent = event
	if lastError != "" {
		m.state.LastError = lastError
	}
	m.mu.Unlock()
	m.setReady(false)
}

func (m *Manager) repair() {
	m.setReady(false)
	m.initClient(nil)
	if err := m.connect(); err != nil {
		log.Session(m.cfg.SessionID).WithError(err).Error("Failed to restart pairing after logout")
	}
}

func (m *Manager) saveRecord(update func(r *session.Record)) {
	ctx, cancel := context.WithTimeout(m.baseCtx, sessionWriteTimeout)
	defer cancel()

	rec, _, err := session.LoadRecord(ctx, m.sessions, m.cfg.SessionID)
	if err != nil {
		rec = session.Record{}
	}
	update(&rec)
	if err := session.SaveRecord(ctx, m.sessions, m.cfg.SessionID, rec); err != nil {
		log.Session(m.cfg.SessionID).WithError(err).Error("Failed to persist session record")
	}
}

// SubscribeAcks registers fn for every receipt until the returned func is called.
func (m *Manager) SubscribeAcks(fn func(messageID string, ack int)) func() {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

func (m *Manager) publishAck(messageID string, ack int) {
	m.subsMu.RLock()
	fns := make([]func(string, int), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subsMu.RUnlock()

	for _, fn := range fns {
		fn(messageID, ack)
	}
}
