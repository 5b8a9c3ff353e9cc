package router

import (
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
)

const defaultBodyLimit = ByteSize(8 << 20)

// Settings are the HTTP_* variables of the server.
type Settings struct {
	BaseURL         string   `envconfig:"BASE_URL"`
	CORSOrigin      string   `envconfig:"CORS_ORIGIN" default:"*"`
	BodyLimit       ByteSize `envconfig:"BODY_LIMIT_SIZE" default:"8M"`
	GZipLevel       int      `envconfig:"GZIP_LEVEL" default:"1"`
	CacheTTLSeconds int      `envconfig:"CACHE_TTL_SECONDS" default:"5"`
}

var (
	BaseURL         string
	CORSOrigin      string
	GZipLevel       int
	CacheTTLSeconds int
	bodyLimitBytes  int
)

func init() {
	var s Settings
	if err := envconfig.Process("HTTP", &s); err != nil {
		log.Print(nil).WithError(err).Warn("Invalid HTTP settings, using defaults")
		s = Settings{CORSOrigin: "*", BodyLimit: defaultBodyLimit, GZipLevel: 1, CacheTTLSeconds: 5}
	}

	BaseURL = normalizeBaseURL(s.BaseURL)
	CORSOrigin = s.CORSOrigin
	GZipLevel = s.GZipLevel
	CacheTTLSeconds = s.CacheTTLSeconds
	bodyLimitBytes = int(s.BodyLimit)
}

func BodyLimitBytes() int {
	return bodyLimitBytes
}

// normalizeBaseURL yields "" or a prefix with one leading slash and no
// trailing slash.
func normalizeBaseURL(raw string) string {
	raw = strings.Trim(strings.TrimSpace(raw), "/")
	if raw == "" {
		return ""
	}
	return "/" + raw
}

// ByteSize decodes sizes such as "512K", "8M" or "1G". Invalid or
// non-positive values decode to 8M.
type ByteSize int

func (b *ByteSize) Decode(value string) error {
	value = strings.ToUpper(strings.TrimSpace(value))
	unit := 1
	if n := len(value); n > 0 {
		switch value[n-1] {
		case 'K':
			unit = 1 << 10
		case 'M':
			unit = 1 << 20
		case 'G':
			unit = 1 << 30
		}
		if unit > 1 {
			value = strings.TrimSpace(value[:n-1])
		}
	}

	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		*b = defaultBodyLimit
		return nil
	}
	*b = ByteSize(n * unit)
	return nil
}
