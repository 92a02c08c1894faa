package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/simlink/internal/dispatch"
	"github.com/danmuck/simlink/internal/engine/memory"
	"github.com/danmuck/simlink/internal/geom"
	"github.com/danmuck/simlink/internal/protocol/channel"
	"github.com/pelletier/go-toml/v2"
)

const (
	ModeSync      = "sync"
	ModePipelined = "pipelined"
)

type BridgeConfig struct {
	Channel  ChannelConfig  `toml:"channel"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Engine   EngineConfig   `toml:"engine"`
	Scenario ScenarioConfig `toml:"scenario"`
}

type ChannelConfig struct {
	Capacity        int  `toml:"capacity"`
	Growable        bool `toml:"growable"`
	GrowthIncrement int  `toml:"growth_increment"`
	SharedMemory    bool `toml:"shared_memory"`
}

type DispatchConfig struct {
	Order string `toml:"order"`
}

type EngineConfig struct {
	Gravity [3]float32 `toml:"gravity"`
}

type ScenarioConfig struct {
	Mode    string  `toml:"mode"`
	Ticks   int     `toml:"ticks"`
	DT      float32 `toml:"dt"`
	Bodies  int     `toml:"bodies"`
	Spacing float32 `toml:"spacing"`
	// Copy loads every pipelined batch into receiver-owned buffers.
	Copy bool `toml:"copy"`
}

func DefaultBridgeConfig() BridgeConfig {
	opts := channel.DefaultOptions()
	g := memory.DefaultConfig().Gravity
	return BridgeConfig{
		Channel: ChannelConfig{
			Capacity:        opts.Capacity,
			Growable:        opts.Growable,
			GrowthIncrement: opts.GrowthIncrement,
		},
		Dispatch: DispatchConfig{Order: dispatch.OrderPhased.String()},
		Engine:   EngineConfig{Gravity: [3]float32{g.X, g.Y, g.Z}},
		Scenario: ScenarioConfig{
			Mode:    ModeSync,
			Ticks:   60,
			DT:      1.0 / 60,
			Bodies:  8,
			Spacing: 1.5,
		},
	}
}

// LoadBridgeConfig overlays the file at path onto DefaultBridgeConfig.
func LoadBridgeConfig(path string) (BridgeConfig, error) {
	cfg := DefaultBridgeConfig()
	if err := loadToml(path, &cfg); err != nil {
		return BridgeConfig{}, err
	}
	cfg.Scenario.Mode = strings.ToLower(strings.TrimSpace(cfg.Scenario.Mode))
	if err := ValidateBridgeConfig(cfg); err != nil {
		return BridgeConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateBridgeConfig(cfg BridgeConfig) error {
	if err := ValidateChannelConfig(cfg.Channel); err != nil {
		return fmt.Errorf("channel config invalid: %w", err)
	}
	if _, err := dispatch.ParseOrder(cfg.Dispatch.Order); err != nil {
		return fmt.Errorf("dispatch config invalid: %w", err)
	}
	if !cfg.Engine.gravity().Finite() {
		return fmt.Errorf("engine config invalid: gravity must be finite")
	}
	if err := ValidateScenarioConfig(cfg.Scenario); err != nil {
		return fmt.Errorf("scenario config invalid: %w", err)
	}
	return nil
}

func ValidateChannelConfig(cfg ChannelConfig) error {
	if cfg.Capacity < channel.HeaderSize {
		return fmt.Errorf("capacity must be at least %d", channel.HeaderSize)
	}
	if cfg.GrowthIncrement < 0 {
		return fmt.Errorf("growth_increment must not be negative")
	}
	return nil
}

func ValidateScenarioConfig(cfg ScenarioConfig) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case ModeSync, ModePipelined:
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	if cfg.Ticks <= 0 {
		return fmt.Errorf("ticks must be positive")
	}
	if !(cfg.DT > 0) || !geom.Finite32(cfg.DT) {
		return fmt.Errorf("dt must be a positive finite number")
	}
	if cfg.Bodies < 0 {
		return fmt.Errorf("bodies must not be negative")
	}
	return nil
}

// Options converts the section into channel options.
func (c ChannelConfig) Options() channel.Options {
	return channel.Options{
		Capacity:        c.Capacity,
		Growable:        c.Growable,
		GrowthIncrement: c.GrowthIncrement,
		SharedMemory:    c.SharedMemory,
	}
}

// OrderValue parses the configured dispatch order.
func (d DispatchConfig) OrderValue() (dispatch.Order, error) {
	return dispatch.ParseOrder(d.Order)
}

func (e EngineConfig) gravity() geom.Vec3 {
	return geom.Vec3{X: e.Gravity[0], Y: e.Gravity[1], Z: e.Gravity[2]}
}

// Memory converts the section into an in-memory engine config.
func (e EngineConfig) Memory() memory.Config {
	return memory.Config{Gravity: e.gravity()}
}
