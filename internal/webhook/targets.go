package webhook

import (
	"strings"
	"time"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/env"
)

type Config struct {
	Targets      []Target
	Secret       string
	SessionID    string
	Workers      int
	RetryLimit   int
	QueueSize    int
	Timeout      time.Duration
	RetryBackoff time.Duration
	// AllowInsecure permits plain http and private hosts, for local receivers.
	AllowInsecure bool
}

func ConfigFromEnv() Config {
	return Config{
		Targets:       ParseTargets(env.GetEnvStringOrDefault("WEBHOOK_URLS", ""), env.GetEnvStringOrDefault("WEBHOOK_EVENTS", "")),
		Secret:        env.GetEnvStringOrDefault("WEBHOOK_SECRET", ""),
		SessionID:     env.GetEnvStringOrDefault("WHATSAPP_SESSION_ID", "default"),
		Workers:       env.GetEnvIntOrDefault("WEBHOOK_WORKERS", 4),
		RetryLimit:    env.GetEnvIntOrDefault("WEBHOOK_RETRY_LIMIT", 3),
		QueueSize:     env.GetEnvIntOrDefault("WEBHOOK_QUEUE_SIZE", 1000),
		Timeout:       env.GetEnvDurationOrDefault("WEBHOOK_TIMEOUT", 10*time.Second),
		RetryBackoff:  env.GetEnvDurationOrDefault("WEBHOOK_RETRY_BACKOFF", 2*time.Second),
		AllowInsecure: env.GetEnvBoolOrDefault("WEBHOOK_ALLOW_INSECURE", false),
	}
}

// ParseTargets reads a comma separated URL list. Every target shares the
// optional comma separated event filter.
func ParseTargets(urls string, events string) []Target {
	var filter []EventType
	for _, evt := range splitList(events) {
		filter = append(filter, EventType(evt))
	}

	var targets []Target
	for _, u := range splitList(urls) {
		targets = append(targets, Target{URL: u, Events: filter})
	}
	return targets
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (t Target) accepts(eventType EventType) bool {
	if len(t.Events) == 0 || eventType == EventTestPing {
		return true
	}
	for _, evt := range t.Events {
		if evt == eventType {
			return true
		}
	}
	return false
}
