package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CostModel describes how usage converts to dollars for one tool source.
// Seat-based tools bill a flat monthly rate per active user; usage-based
// tools bill per counted unit per feature.
type CostModel string

const (
	CostModelSeat  CostModel = "seat"
	CostModelUsage CostModel = "usage"
)

// ToolRates is the cost configuration for a single tool source.
type ToolRates struct {
	Tool           string             `mapstructure:"tool"`
	Model          CostModel          `mapstructure:"model"`
	SeatMonthlyUSD float64            `mapstructure:"seatMonthlyUSD"`
	PerUnitUSD     map[string]float64 `mapstructure:"perUnitUSD"`
}

// RatesConfig holds the full cost model.
type RatesConfig struct {
	Tools []ToolRates `mapstructure:"tools"`
}

// ForTool returns the rates for a tool source, or nil when unconfigured.
func (c RatesConfig) ForTool(tool string) *ToolRates {
	for i := range c.Tools {
		if strings.EqualFold(c.Tools[i].Tool, tool) {
			return &c.Tools[i]
		}
	}
	return nil
}

func DefaultRatesConfig() RatesConfig {
	return RatesConfig{
		Tools: []ToolRates{
			{Tool: "OpenAI", Model: CostModelSeat, SeatMonthlyUSD: 60},
			{Tool: "BlueFlame", Model: CostModelSeat, SeatMonthlyUSD: 40},
		},
	}
}

// RatesHolder serves the current cost model and hot-reloads it when the
// config file changes.
type RatesHolder struct {
	current atomic.Value // holds RatesConfig
}

func NewRatesHolder() (*RatesHolder, error) {
	v := viper.New()

	v.SetConfigName("rates")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/usagemetrics")
	v.AddConfigPath(".")

	v.SetEnvPrefix("USAGEMETRICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultRatesConfig()
		v.SetDefault("rates.tools", defaults.Tools)
	}

	var cfg RatesConfig
	if err := v.UnmarshalKey("rates", &cfg); err != nil {
		return nil, err
	}
	if err := validateRatesConfig(cfg); err != nil {
		return nil, err
	}

	holder := &RatesHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RatesConfig
		if err := v.UnmarshalKey("rates", &updated); err != nil {
			log.Printf("[rates-config] reload failed: %v", err)
			return
		}
		if err := validateRatesConfig(updated); err != nil {
			log.Printf("[rates-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[rates-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticRatesHolder wraps a fixed config with no file watching.
func NewStaticRatesHolder(cfg RatesConfig) *RatesHolder {
	holder := &RatesHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *RatesHolder) Get() RatesConfig {
	return h.current.Load().(RatesConfig)
}

func validateRatesConfig(cfg RatesConfig) error {
	if len(cfg.Tools) == 0 {
		return errors.New("rates.tools cannot be empty")
	}
	for _, t := range cfg.Tools {
		if strings.TrimSpace(t.Tool) == "" {
			return errors.New("rates.tools entries require a tool name")
		}
		switch t.Model {
		case CostModelSeat:
			if t.SeatMonthlyUSD < 0 {
				return errors.New("seatMonthlyUSD cannot be negative")
			}
		case CostModelUsage:
			for feature, rate := range t.PerUnitUSD {
				if rate < 0 {
					return errors.New("perUnitUSD cannot be negative for " + feature)
				}
			}
		default:
			return errors.New("unknown cost model for " + t.Tool)
		}
	}
	return nil
}
