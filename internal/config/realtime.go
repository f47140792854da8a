package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RealtimePolicy is the hot-reloadable part of the realtime configuration.
type RealtimePolicy struct {
	AllowedOrigins   []string `mapstructure:"allowedOrigins"`
	SendBuffer       int      `mapstructure:"sendBuffer"`
	HeartbeatSeconds int      `mapstructure:"heartbeatSeconds"`
	WriteWaitSeconds int      `mapstructure:"writeWaitSeconds"`
	MaxMessageBytes  int64    `mapstructure:"maxMessageBytes"`
}

func (p RealtimePolicy) Heartbeat() time.Duration {
	return time.Duration(p.HeartbeatSeconds) * time.Second
}

func (p RealtimePolicy) WriteWait() time.Duration {
	return time.Duration(p.WriteWaitSeconds) * time.Second
}

// OriginAllowed reports whether origin matches the allow list. A "*" entry
// allows any origin and an empty origin (non-browser client) is accepted.
func (p RealtimePolicy) OriginAllowed(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return true
	}
	for _, allowed := range p.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func DefaultRealtimePolicy(cfg Config) RealtimePolicy {
	return RealtimePolicy{
		AllowedOrigins:   append([]string(nil), cfg.Realtime.AllowedOrigins...),
		SendBuffer:       32,
		HeartbeatSeconds: 25,
		WriteWaitSeconds: 10,
		MaxMessageBytes:  64 * 1024,
	}
}

type RealtimeConfigHolder struct {
	current atomic.Value // holds RealtimePolicy
}

// NewStaticRealtimeConfigHolder returns a holder that never reloads.
func NewStaticRealtimeConfigHolder(policy RealtimePolicy) *RealtimeConfigHolder {
	holder := &RealtimeConfigHolder{}
	holder.current.Store(policy)
	return holder
}

// NewRealtimeConfigHolder reads realtime.yml (when present) and watches it for
// changes. Environment values are used as defaults.
func NewRealtimeConfigHolder(cfg Config, log *zap.Logger) (*RealtimeConfigHolder, error) {
	v := viper.New()

	if cfg.Realtime.PolicyPath != "" {
		v.SetConfigFile(cfg.Realtime.PolicyPath)
	} else {
		v.SetConfigName("realtime")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/researchhub")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RESEARCHHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRealtimePolicy(cfg)
	v.SetDefault("realtime.allowedOrigins", defaults.AllowedOrigins)
	v.SetDefault("realtime.sendBuffer", defaults.SendBuffer)
	v.SetDefault("realtime.heartbeatSeconds", defaults.HeartbeatSeconds)
	v.SetDefault("realtime.writeWaitSeconds", defaults.WriteWaitSeconds)
	v.SetDefault("realtime.maxMessageBytes", defaults.MaxMessageBytes)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	var policy RealtimePolicy
	if err := v.UnmarshalKey("realtime", &policy); err != nil {
		return nil, err
	}
	if err := validateRealtimePolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticRealtimeConfigHolder(policy)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RealtimePolicy
		if err := v.UnmarshalKey("realtime", &updated); err != nil {
			log.Warn("realtime policy reload failed", zap.Error(err))
			return
		}
		if err := validateRealtimePolicy(updated); err != nil {
			log.Warn("invalid realtime policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("realtime policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *RealtimeConfigHolder) Get() RealtimePolicy {
	return h.current.Load().(RealtimePolicy)
}

func validateRealtimePolicy(p RealtimePolicy) error {
	if p.SendBuffer <= 0 {
		return errors.New("realtime.sendBuffer must be positive")
	}
	if p.HeartbeatSeconds <= 0 {
		return errors.New("realtime.heartbeatSeconds must be positive")
	}
	if p.WriteWaitSeconds <= 0 {
		return errors.New("realtime.writeWaitSeconds must be positive")
	}
	if p.MaxMessageBytes <= 0 {
		return errors.New("realtime.maxMessageBytes must be positive")
	}
	return nil
}
