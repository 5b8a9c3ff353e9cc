package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"golang.org/x/sync/singleflight"
	"google.golang.org/protobuf/proto"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
)

var ErrWAVersionOutdatedForQR = errors.New("whatsapp client version is outdated for QR pairing")

type VersionStatus struct {
	CurrentVersion string     `json:"currentVersion"`
	LastRefreshed  *time.Time `json:"lastRefreshed,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
}

// VersionRefresher keeps the advertised WhatsApp Web version current.
// Refreshes are deduplicated and throttled to one per MinInterval.
type VersionRefresher struct {
	MinInterval time.Duration
	fetch       func(ctx context.Context) (*store.WAVersionContainer, error)

	group singleflight.Group

	mu            sync.RWMutex
	lastRefreshed *time.Time
	lastError     string
}

func NewVersionRefresher() *VersionRefresher {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	return &VersionRefresher{
		MinInterval: env.GetEnvDurationOrDefault("WHATSAPP_WAVERSION_REFRESH_MIN_INTERVAL", 10*time.Minute),
		fetch: func(ctx context.Context) (*store.WAVersionContainer, error) {
			return whatsmeow.GetLatestVersion(ctx, httpClient)
		},
	}
}

func (v *VersionRefresher) Status() VersionStatus {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var last *time.Time
	if v.lastRefreshed != nil {
		t := *v.lastRefreshed
		last = &t
	}
	return VersionStatus{
		CurrentVersion: store.GetWAVersion().String(),
		LastRefreshed:  last,
		LastError:      v.lastError,
	}
}

// Refresh fetches the latest version and applies it via store.SetWAVersion.
// refreshed is false when the call was throttled.
func (v *VersionRefresher) Refresh(ctx context.Context, force bool) (status VersionStatus, refreshed bool, err error) {
	if !force && v.MinInterval > 0 {
		v.mu.RLock()
		last := v.lastRefreshed
		v.mu.RUnlock()
		if last != nil && time.Since(*last) < v.MinInterval {
			return v.Status(), false, nil
		}
	}

	_, err, _ = v.group.Do("refresh", func() (interface{}, error) {
		latest, err := v.fetch(ctx)
		if err == nil && latest == nil {
			err = errors.New("latest WhatsApp Web version is nil")
		}

		now := time.Now()
		v.mu.Lock()
		v.lastRefreshed = &now
		if err != nil {
			v.lastError = err.Error()
		} else {
			v.lastError = ""
		}
		v.mu.Unlock()

		if err != nil {
			return nil, err
		}
		store.SetWAVersion(*latest)
		log.Print(nil).Info("WhatsApp Web version set to " + latest.String())
		return nil, nil
	})
	return v.Status(), true, err
}

// applyVersionOverride pins the advertised client version from
// WHATSAPP_VERSION_MAJOR/MINOR/PATCH when set.
func applyVersionOverride() {
	if major, err := env.GetEnvInt("WHATSAPP_VERSION_MAJOR"); err == nil {
		store.DeviceProps.Version.Primary = proto.Uint32(uint32(major))
	}
	if minor, err := env.GetEnvInt("WHATSAPP_VERSION_MINOR"); err == nil {
		store.DeviceProps.Version.Secondary = proto.Uint32(uint32(minor))
	}
	if patch, err := env.GetEnvInt("WHATSAPP_VERSION_PATCH"); err == nil {
		store.DeviceProps.Version.Tertiary = proto.Uint32(uint32(patch))
	}
}
