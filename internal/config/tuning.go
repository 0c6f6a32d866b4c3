package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Tuning is the hot-reloadable part of the configuration.
type Tuning struct {
	HotShopIDs     []int64 `mapstructure:"hotShopIds"`
	ShopTTLSeconds int     `mapstructure:"shopTtlSeconds"`
	NullTTLSeconds int     `mapstructure:"nullTtlSeconds"`
}

func DefaultTuning(cfg Config) Tuning {
	return Tuning{
		HotShopIDs:     []int64{},
		ShopTTLSeconds: int(cfg.Cache.ShopTTL / time.Second),
		NullTTLSeconds: int(cfg.Cache.NullTTL / time.Second),
	}
}

func (t Tuning) ShopTTL() time.Duration {
	return time.Duration(t.ShopTTLSeconds) * time.Second
}

func (t Tuning) NullTTL() time.Duration {
	return time.Duration(t.NullTTLSeconds) * time.Second
}

// IsHotShop reports whether the shop is served with logical expiry.
func (t Tuning) IsHotShop(id int64) bool {
	for _, hot := range t.HotShopIDs {
		if hot == id {
			return true
		}
	}
	return false
}

type TuningHolder struct {
	current atomic.Value // holds Tuning
}

// NewStaticTuningHolder returns a holder that never reloads.
func NewStaticTuningHolder(t Tuning) *TuningHolder {
	holder := &TuningHolder{}
	holder.current.Store(t)
	return holder
}

func NewTuningHolder(cfg Config) (*TuningHolder, error) {
	v := viper.New()

	name := strings.TrimSpace(cfg.Tuning.Name)
	if name == "" {
		name = "flashsale"
	}
	v.SetConfigName(name)
	v.SetConfigType("yml")
	for _, path := range cfg.Tuning.Paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("FLASHSALE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultTuning(cfg)
	v.SetDefault("tuning.hotShopIds", defaults.HotShopIDs)
	v.SetDefault("tuning.shopTtlSeconds", defaults.ShopTTLSeconds)
	v.SetDefault("tuning.nullTtlSeconds", defaults.NullTTLSeconds)

	found := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		found = false
	}

	tuning, err := unmarshalTuning(v)
	if err != nil {
		return nil, err
	}
	if err := validateTuning(tuning); err != nil {
		return nil, err
	}

	holder := &TuningHolder{}
	holder.current.Store(tuning)

	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalTuning(v)
		if err != nil {
			log.Printf("[tuning] reload failed: %v", err)
			return
		}
		if err := validateTuning(updated); err != nil {
			log.Printf("[tuning] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[tuning] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *TuningHolder) Get() Tuning {
	return h.current.Load().(Tuning)
}

// unmarshalTuning merges file values over defaults key by key.
func unmarshalTuning(v *viper.Viper) (Tuning, error) {
	var wrapper struct {
		Tuning Tuning `mapstructure:"tuning"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return Tuning{}, err
	}
	return wrapper.Tuning, nil
}

func validateTuning(t Tuning) error {
	if t.ShopTTLSeconds <= 0 {
		return errors.New("tuning.shopTtlSeconds must be positive")
	}
	if t.NullTTLSeconds <= 0 {
		return errors.New("tuning.nullTtlSeconds must be positive")
	}
	return nil
}
