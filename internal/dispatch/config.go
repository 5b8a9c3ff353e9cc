package dispatch

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	FirstWindow      DelayWindow
	SubsequentWindow DelayWindow
	AckTimeout       time.Duration
	AckDwell         time.Duration
	SendTimeout      time.Duration
	// ResolveCache memoizes chat handles within a single batch only.
	ResolveCache bool
}

type envConfig struct {
	DelayFirstMin      int           `envconfig:"DELAY_FIRST_MIN" default:"25000"`
	DelayFirstMax      int           `envconfig:"DELAY_FIRST_MAX" default:"35000"`
	DelaySubsequentMin int           `envconfig:"DELAY_SUBSEQUENT_MIN" default:"30000"`
	DelaySubsequentMax int           `envconfig:"DELAY_SUBSEQUENT_MAX" default:"45000"`
	AckTimeout         time.Duration `envconfig:"ACK_TIMEOUT" default:"20s"`
	AckDwell           time.Duration `envconfig:"ACK_DWELL" default:"5s"`
	SendTimeout        time.Duration `envconfig:"SEND_TIMEOUT" default:"60s"`
	ResolveCache       bool          `envconfig:"RESOLVE_CACHE" default:"false"`
}

func DefaultConfig() Config {
	return Config{
		FirstWindow:      DefaultFirstWindow,
		SubsequentWindow: DefaultSubsequentWindow,
		AckTimeout:       DefaultAckTimeout,
		AckDwell:         DefaultAckDwell,
		SendTimeout:      time.Minute,
	}
}

// LoadConfig reads DISPATCH_* variables.
func LoadConfig() (Config, error) {
	var raw envConfig
	if err := envconfig.Process("DISPATCH", &raw); err != nil {
		return Config{}, err
	}
	return Config{
		FirstWindow:      NormalizeWindow(&raw.DelayFirstMin, &raw.DelayFirstMax, DefaultFirstWindow),
		SubsequentWindow: NormalizeWindow(&raw.DelaySubsequentMin, &raw.DelaySubsequentMax, DefaultSubsequentWindow),
		AckTimeout:       raw.AckTimeout,
		AckDwell:         raw.AckDwell,
		SendTimeout:      raw.SendTimeout,
		ResolveCache:     raw.ResolveCache,
	}, nil
}
