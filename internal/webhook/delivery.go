package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/metrics"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
)

type Engine struct {
	cfg        Config
	httpClient *http.Client
	queue      chan *deliveryTask
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	mu     sync.RWMutex
	closed bool

	logMu sync.Mutex
	logs  []DeliveryLog
}

const deliveryLogSize = 200

type deliveryTask struct {
	target Target
	event  WebhookEvent
}

// NewEngine starts the delivery workers. With no targets the engine is inert
// and Notify is a no-op.
func NewEngine(cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		queue:      make(chan *deliveryTask, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	if engine.Enabled() {
		for i := 0; i < cfg.Workers; i++ {
			engine.wg.Add(1)
			go engine.worker()
		}
	}

	return engine
}

func (e *Engine) Enabled() bool {
	return e != nil && len(e.cfg.Targets) > 0
}

func (e *Engine) Shutdown() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cancel()
	close(e.queue)
	e.mu.Unlock()
	e.wg.Wait()
}

// Notify queues an event for every target that accepts it. It never blocks;
// events are dropped when the queue is full.
func (e *Engine) Notify(eventType EventType, data map[string]interface{}) {
	if !e.Enabled() {
		return
	}

	event := WebhookEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		SessionID: e.cfg.SessionID,
		Timestamp: time.Now(),
		Data:      data,
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	for _, target := range e.cfg.Targets {
		if !target.accepts(eventType) {
			continue
		}
		select {
		case e.queue <- &deliveryTask{target: target, event: event}:
		default:
			e.record(&deliveryTask{target: target, event: event}, DeliveryDropped, 0, nil)
			log.Event("webhook").WithField("event", eventType).Warn("webhook queue full, event dropped")
		}
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case task, ok := <-e.queue:
			if !ok {
				return
			}
			e.deliver(task)
		}
	}
}

func (e *Engine) deliver(task *deliveryTask) {
	entry := log.Event("webhook").WithField("event", task.event.EventType).WithField("delivery_id", task.event.ID)

	if err := e.validateURL(task.target.URL); err != nil {
		e.record(task, DeliveryFailed, 0, err)
		entry.WithError(err).Warn("webhook target rejected")
		return
	}

	payload, err := json.Marshal(task.event)
	if err != nil {
		entry.WithError(err).Error("webhook payload marshal failed")
		return
	}

	signature := generateSignature(payload, e.cfg.Secret)

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= e.cfg.RetryLimit; attempt++ {
		attempts = attempt
		lastErr = e.post(task, payload, signature)
		if lastErr == nil {
			e.record(task, DeliverySuccess, attempt, nil)
			entry.WithField("attempt", attempt).Debug("webhook delivered")
			return
		}
		if attempt < e.cfg.RetryLimit && !e.backoff(attempt) {
			break
		}
	}

	e.record(task, DeliveryFailed, attempts, lastErr)
	entry.WithError(lastErr).Warn("webhook delivery failed")
}

func (e *Engine) record(task *deliveryTask, status DeliveryStatus, attempts int, err error) {
	metrics.WebhookDeliveries.WithLabelValues(string(task.event.EventType), string(status)).Inc()

	l := DeliveryLog{
		EventID:   task.event.ID,
		EventType: task.event.EventType,
		URL:       task.target.URL,
		Status:    status,
		Attempts:  attempts,
		At:        time.Now(),
	}
	if err != nil {
		l.Error = err.Error()
	}

	e.logMu.Lock()
	e.logs = append(e.logs, l)
	if over := len(e.logs) - deliveryLogSize; over > 0 {
		e.logs = append(e.logs[:0], e.logs[over:]...)
	}
	e.logMu.Unlock()
}

// DeliveryLogs returns up to limit recent deliveries, newest first.
func (e *Engine) DeliveryLogs(limit int) []DeliveryLog {
	if e == nil {
		return []DeliveryLog{}
	}
	e.logMu.Lock()
	defer e.logMu.Unlock()

	out := make([]DeliveryLog, 0, len(e.logs))
	for i := len(e.logs) - 1; i >= 0; i-- {
		out = append(out, e.logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Targets returns the configured receivers.
func (e *Engine) Targets() []Target {
	if e == nil {
		return []Target{}
	}
	out := make([]Target, len(e.cfg.Targets))
	copy(out, e.cfg.Targets)
	return out
}

func (e *Engine) post(task *deliveryTask, payload []byte, signature string) error {
	req, err := http.NewRequestWithContext(e.ctx, http.MethodPost, task.target.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Hub-Signature-256", signature)
	req.Header.Set("X-Webhook-Event", string(task.event.EventType))
	req.Header.Set("X-Webhook-Delivery", task.event.ID)
	req.Header.Set("User-Agent", "WhatsApp-Dispatch-Gateway/1.0")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
}

// backoff sleeps attempt*RetryBackoff and reports false on shutdown.
func (e *Engine) backoff(attempt int) bool {
	timer := time.NewTimer(time.Duration(attempt) * e.cfg.RetryBackoff)
	defer timer.Stop()
	select {
	case <-e.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (e *Engine) validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("webhook url has no host")
	}
	if e.cfg.AllowInsecure {
		return nil
	}

	if u.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed")
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "0.0.0.0" || strings.HasPrefix(host, "192.168.") || strings.HasPrefix(host, "10.") || strings.HasPrefix(host, "172.") {
		return fmt.Errorf("private/local network URLs are not allowed")
	}

	return nil
}
