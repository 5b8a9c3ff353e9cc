package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/metrics"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/session"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/webhook"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
)

var (
	ErrNoClient     = errors.New("WhatsApp Client is not Initialized")
	ErrNotPaired    = errors.New("WhatsApp Client Store ID is Empty, Please Scan QR Code Again")
	ErrNoQRCode     = errors.New("no QR code available")
	ErrReconnecting = errors.New("reconnect already in progress")
)

const (
	logoutRequestTimeout = 30 * time.Second
	storeCleanupTimeout  = 5 * time.Second
)

// Notifier receives connection and delivery events for outbound webhooks.
type Notifier interface {
	Notify(eventType webhook.EventType, data map[string]interface{})
}

type Config struct {
	SessionID       string
	ProxyURL        string
	ClientOS        string
	LookupRate      float64
	LookupBurst     int
	ChatCacheTTL    time.Duration
	ChatListMax     int
	ReconnectDelays []time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	PrintQR         bool
	Media           MediaOptions
}

func ConfigFromEnv() Config {
	return Config{
		SessionID:       env.GetEnvStringOrDefault("WHATSAPP_SESSION_ID", "default"),
		ProxyURL:        env.GetEnvStringOrDefault("WHATSAPP_CLIENT_PROXY_URL", ""),
		ClientOS:        env.GetEnvStringOrDefault("WHATSAPP_CLIENT_OS", runtime.GOOS),
		LookupRate:      float64(env.GetEnvIntOrDefault("WHATSAPP_LOOKUP_RATE", 2)),
		LookupBurst:     env.GetEnvIntOrDefault("WHATSAPP_LOOKUP_BURST", 4),
		ChatCacheTTL:    env.GetEnvDurationOrDefault("WHATSAPP_CHAT_CACHE_TTL", 10*time.Minute),
		ChatListMax:     env.GetEnvIntOrDefault("WHATSAPP_CHAT_LIST_MAX", 500),
		ReconnectDelays: defaultReconnectDelays,
		BreakerFailures: uint32(env.GetEnvIntOrDefault("WHATSAPP_BREAKER_FAILURES", 5)),
		BreakerTimeout:  env.GetEnvDurationOrDefault("WHATSAPP_BREAKER_TIMEOUT", 30*time.Second),
		PrintQR:         env.GetEnvBoolOrDefault("WHATSAPP_PRINT_QR", true),
		Media:           MediaOptionsFromEnv(),
	}
}

var defaultReconnectDelays = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// State is the observable connection state of the single client.
type State struct {
	Ready             bool       `json:"ready"`
	Connected         bool       `json:"connected"`
	LoggedIn          bool       `json:"loggedIn"`
	Paired            bool       `json:"paired"`
	QRAvailable       bool       `json:"qrAvailable"`
	QRUpdatedAt       *time.Time `json:"qrUpdatedAt,omitempty"`
	JID               string     `json:"jid,omitempty"`
	PushName          string     `json:"pushName,omitempty"`
	Reconnecting      bool       `json:"reconnecting"`
	ReconnectAttempts int        `json:"reconnectAttempts"`
	LastEvent         string     `json:"lastEvent,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
	StartedAt         time.Time  `json:"startedAt"`
}

// Manager owns the whatsmeow client for one session and adapts it to the
// dispatch transport.
type Manager struct {
	cfg       Config
	container *sqlstore.Container
	sessions  session.Store
	notifier  Notifier

	baseCtx context.Context

	mu       sync.RWMutex
	client   *whatsmeow.Client
	state    State
	qrCode   string
	qrCancel context.CancelFunc

	subsMu  sync.RWMutex
	subs    map[uint64]func(string, int)
	nextSub uint64

	lookups *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	chats   *chatCache

	reconnectMu sync.Mutex
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewManager(ctx context.Context, container *sqlstore.Container, sessions session.Store, notifier Notifier, cfg Config) *Manager {
	if cfg.SessionID == "" {
		cfg.SessionID = "default"
	}
	if cfg.LookupRate <= 0 {
		cfg.LookupRate = 2
	}
	if cfg.LookupBurst <= 0 {
		cfg.LookupBurst = 1
	}
	if len(cfg.ReconnectDelays) == 0 {
		cfg.ReconnectDelays = defaultReconnectDelays
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	m := &Manager{
		cfg:       cfg,
		container: container,
		sessions:  sessions,
		notifier:  notifier,
		baseCtx:   ctx,
		subs:      make(map[uint64]func(string, int)),
		lookups:   rate.NewLimiter(rate.Limit(cfg.LookupRate), cfg.LookupBurst),
		sleep:     sleepContext,
	}
	m.state.StartedAt = time.Now()
	m.chats = newChatCache(cfg.ChatCacheTTL, m.loadChats)
	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "whatsapp-send",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// cancelled sends say nothing about the socket
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Session(cfg.SessionID).Warn(fmt.Sprintf("circuit %s changed from %s to %s", name, from, to))
		},
	})
	return m
}

func (m *Manager) SessionID() string {
	return m.cfg.SessionID
}

func (m *Manager) Sessions() session.Store {
	return m.sessions
}

func (m *Manager) Status() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.state
	st.QRAvailable = m.qrCode != ""
	if m.client != nil {
		st.Connected = m.client.IsConnected()
		st.LoggedIn = m.client.IsLoggedIn()
		st.Paired = m.client.Store.ID != nil
		st.Ready = st.Ready && st.Connected && st.LoggedIn
	} else {
		st.Ready = false
	}
	return st
}

// QRCode returns the latest pairing code, if pairing is in progress.
func (m *Manager) QRCode() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.qrCode == "" {
		return "", ErrNoQRCode
	}
	return m.qrCode, nil
}

// Start restores the stored device (or creates a new one) and connects,
// entering QR pairing when the device was never paired.
func (m *Manager) Start(ctx context.Context) error {
	device, err := m.loadDevice(ctx)
	if err != nil {
		return err
	}
	m.initClient(device)
	return m.connect()
}

func (m *Manager) loadDevice(ctx context.Context) (*store.Device, error) {
	rec, ok, err := session.LoadRecord(ctx, m.sessions, m.cfg.SessionID)
	if err != nil {
		log.Session(m.cfg.SessionID).WithError(err).Warn("Failed to read session record, falling back to first device")
	}
	if ok && rec.JID != "" {
		jid, perr := types.ParseJID(rec.JID)
		if perr == nil {
			device, derr := m.container.GetDevice(ctx, jid)
			if derr != nil {
				return nil, derr
			}
			if device != nil {
				log.Session(m.cfg.SessionID).Info("Restoring device " + log.Mask(CanonicalID(jid)))
				return device, nil
			}
		}
		log.Session(m.cfg.SessionID).Warn("Stored device not found in datastore, pairing again")
	}
	return m.container.GetFirstDevice(ctx)
}

func (m *Manager) initClient(device *store.Device) {
	if device == nil {
		device = m.container.NewDevice()
	}

	store.DeviceProps.Os = proto.String(m.cfg.ClientOS)
	store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
	store.DeviceProps.RequireFullSync = proto.Bool(false)
	applyVersionOverride()

	client := whatsmeow.NewClient(device, log.WhatsMeow("Client"))

	if len(m.cfg.ProxyURL) > 0 {
		if err := client.SetProxyAddress(m.cfg.ProxyURL); err != nil {
			log.Session(m.cfg.SessionID).WithError(err).Warn("Invalid WhatsApp proxy address, connecting directly")
		}
	}

	client.EnableAutoReconnect = true
	client.AutoTrustIdentity = true
	client.AddEventHandler(m.handleEvent)

	m.mu.Lock()
	m.client = client
	m.state.Ready = false
	if device.ID != nil {
		m.state.JID = CanonicalID(*device.ID)
	} else {
		m.state.JID = ""
	}
	m.state.PushName = device.PushName
	m.mu.Unlock()
	m.chats.Invalidate()
}

func (m *Manager) currentClient() (*whatsmeow.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, ErrNoClient
	}
	return m.client, nil
}

func (m *Manager) connect() error {
	client, err := m.currentClient()
	if err != nil {
		return err
	}
	if client.Store.ID == nil {
		return m.startPairing(client)
	}
	log.Session(m.cfg.SessionID).Info("Connecting WhatsApp client")
	return client.Connect()
}

func (m *Manager) startPairing(client *whatsmeow.Client) error {
	ctx, cancel := context.WithCancel(m.baseCtx)

	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		cancel()
		return err
	}
	if err := client.Connect(); err != nil {
		cancel()
		return err
	}

	m.mu.Lock()
	if m.qrCancel != nil {
		m.qrCancel()
	}
	m.qrCancel = cancel
	m.mu.Unlock()

	log.Session(m.cfg.SessionID).Info("Waiting for QR pairing")
	go m.consumeQR(ctx, qrChan)
	return nil
}

func (m *Manager) consumeQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}
			m.handleQRItem(evt)
		}
	}
}

func (m *Manager) handleQRItem(evt whatsmeow.QRChannelItem) {
	entry := log.Session(m.cfg.SessionID)

	switch {
	case evt.Event == "code":
		now := time.Now()
		m.mu.Lock()
		m.qrCode = evt.Code
		m.state.QRUpdatedAt = &now
		m.state.LastEvent = "qr"
		m.mu.Unlock()

		entry.WithField("expires_in", evt.Timeout.String()).Info("New QR code received, scan it with WhatsApp")
		if m.cfg.PrintQR {
			if art, err := QRTerminal(evt.Code); err == nil {
				fmt.Println(art)
			}
		}
		m.notify(webhook.EventQRUpdated, map[string]interface{}{
			"expires_in": int(evt.Timeout.Seconds()),
		})
	case evt.Event == whatsmeow.QRChannelSuccess.Event:
		m.clearQR("")
		entry.Info("QR pairing succeeded")
	case evt.Event == whatsmeow.QRChannelTimeout.Event:
		m.clearQR("whatsapp qr channel timed out")
		entry.Warn("QR pairing timed out, call /restart to get a new code")
	case evt.Event == whatsmeow.QRChannelClientOutdated.Event:
		m.clearQR(ErrWAVersionOutdatedForQR.Error())
		entry.Error(ErrWAVersionOutdatedForQR.Error())
	case evt.Event == whatsmeow.QRChannelScannedWithoutMultidevice.Event:
		m.clearQR("whatsapp qr scanned without multi-device enabled")
	case evt.Event == "error":
		msg := "whatsapp qr channel reported an unspecified error"
		if evt.Error != nil {
			msg = evt.Error.Error()
		}
		m.clearQR(msg)
		entry.Error(msg)
	default:
		m.clearQR("whatsapp qr channel entered an unexpected state: " + evt.Event)
	}
}

func (m *Manager) clearQR(lastError string) {
	m.mu.Lock()
	m.qrCode = ""
	m.state.QRUpdatedAt = nil
	if lastError != "" {
		m.state.LastError = lastError
	}
	m.mu.Unlock()
}

// Restart drops the socket and connects again, or restarts pairing when unpaired.
func (m *Manager) Restart(ctx context.Context) error {
	client, err := m.currentClient()
	if err != nil {
		return m.Start(ctx)
	}
	m.stopPairing()
	client.Disconnect()
	m.setReady(false)
	return m.connect()
}

// ClearSession deletes the stored device and session record and starts a
// fresh pairing.
func (m *Manager) ClearSession(ctx context.Context) error {
	client, err := m.currentClient()
	if err == nil {
		m.stopPairing()
		client.Disconnect()
		if client.Store.ID != nil {
			storeCtx, cancel := context.WithTimeout(ctx, storeCleanupTimeout)
			err = client.Store.Delete(storeCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
	if err := m.forgetSession(ctx); err != nil {
		return err
	}
	m.setReady(false)
	m.initClient(nil)
	return m.connect()
}

// ForceReset logs the device out on the server when possible, then clears
// everything local and restarts pairing.
func (m *Manager) ForceReset(ctx context.Context) error {
	client, err := m.currentClient()
	if err == nil && client.Store.ID != nil && client.IsConnected() {
		logoutCtx, cancel := context.WithTimeout(ctx, logoutRequestTimeout)
		err = client.Logout(logoutCtx)
		cancel()
		if err != nil {
			log.Session(m.cfg.SessionID).WithError(err).Warn("Logout failed during force reset, clearing local state")
		} else {
			m.stopPairing()
			client.Disconnect()
			if err := m.forgetSession(ctx); err != nil {
				return err
			}
			m.setReady(false)
			m.initClient(nil)
			return m.connect()
		}
	}
	return m.ClearSession(ctx)
}

func (m *Manager) forgetSession(ctx context.Context) error {
	if err := m.sessions.Delete(ctx, m.cfg.SessionID); err != nil {
		return fmt.Errorf("delete session record: %w", err)
	}
	return nil
}

func (m *Manager) stopPairing() {
	m.mu.Lock()
	if m.qrCancel != nil {
		m.qrCancel()
		m.qrCancel = nil
	}
	m.qrCode = ""
	m.state.QRUpdatedAt = nil
	m.mu.Unlock()
}

// EnsureConnected reconnects a paired client that lost its socket, waiting
// between attempts per the reconnect schedule. Unpaired clients are left to
// the QR flow.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	client, err := m.currentClient()
	if err != nil {
		return err
	}
	if client.Store.ID == nil {
		return ErrNotPaired
	}
	if client.IsConnected() {
		return nil
	}

	if !m.reconnectMu.TryLock() {
		return ErrReconnecting
	}
	defer m.reconnectMu.Unlock()

	m.mu.Lock()
	m.state.Reconnecting = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.state.Reconnecting = false
		m.mu.Unlock()
	}()

	var lastErr error
	for attempt, delay := range m.cfg.ReconnectDelays {
		m.mu.Lock()
		m.state.ReconnectAttempts = attempt + 1
		m.mu.Unlock()

		if err := m.sleep(ctx, delay); err != nil {
			return err
		}
		if client.IsConnected() {
			metrics.Reconnects.WithLabelValues("recovered").Inc()
			return nil
		}

		log.Session(m.cfg.SessionID).Info(fmt.Sprintf("Reconnect attempt %d/%d", attempt+1, len(m.cfg.ReconnectDelays)))
		client.Disconnect()
		if lastErr = client.Connect(); lastErr == nil {
			metrics.Reconnects.WithLabelValues("success").Inc()
			return nil
		}
		metrics.Reconnects.WithLabelValues("failure").Inc()
		log.Session(m.cfg.SessionID).WithError(lastErr).Warn("Reconnect attempt failed")
	}

	m.mu.Lock()
	m.state.LastError = "reconnect attempts exhausted: " + errString(lastErr)
	m.mu.Unlock()
	return fmt.Errorf("reconnect attempts exhausted: %w", lastErr)
}

// Shutdown disconnects the client. The session store is closed by its owner.
func (m *Manager) Shutdown() {
	m.stopPairing()
	client, err := m.currentClient()
	if err == nil {
		client.Disconnect()
	}
	m.setReady(false)
}

func (m *Manager) setReady(ready bool) {
	m.mu.Lock()
	m.state.Ready = ready
	m.mu.Unlock()
	if ready {
		metrics.ClientReady.Set(1)
	} else {
		metrics.ClientReady.Set(0)
	}
}

func (m *Manager) notify(eventType webhook.EventType, data map[string]interface{}) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(eventType, data)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return strings.TrimSpace(err.Error())
}
