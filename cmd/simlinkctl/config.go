package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/simlink/internal/config"
)

type fileConfig struct {
	Channel struct {
		Capacity        int  `toml:"capacity"`
		Growable        bool `toml:"growable"`
		GrowthIncrement int  `toml:"growth_increment"`
		SharedMemory    bool `toml:"shared_memory"`
	} `toml:"channel"`
	Dispatch struct {
		Order string `toml:"order"`
	} `toml:"dispatch"`
	Engine struct {
		Gravity []float32 `toml:"gravity"`
	} `toml:"engine"`
	Scenario struct {
		Mode    string  `toml:"mode"`
		Ticks   int     `toml:"ticks"`
		DT      float32 `toml:"dt"`
		Bodies  int     `toml:"bodies"`
		Spacing float32 `toml:"spacing"`
		Copy    bool    `toml:"copy"`
	} `toml:"scenario"`
}

func loadBridgeConfig(path string) (config.BridgeConfig, error) {
	cfg := config.DefaultBridgeConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.BridgeConfig{}, fmt.Errorf("load simlink config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config.BridgeConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}

	if meta.IsDefined("channel", "capacity") {
		cfg.Channel.Capacity = raw.Channel.Capacity
	}
	if meta.IsDefined("channel", "growable") {
		cfg.Channel.Growable = raw.Channel.Growable
	}
	if meta.IsDefined("channel", "growth_increment") {
		cfg.Channel.GrowthIncrement = raw.Channel.GrowthIncrement
	}
	if meta.IsDefined("channel", "shared_memory") {
		cfg.Channel.SharedMemory = raw.Channel.SharedMemory
	}

	if meta.IsDefined("dispatch", "order") {
		cfg.Dispatch.Order = strings.ToLower(strings.TrimSpace(raw.Dispatch.Order))
	}

	if meta.IsDefined("engine", "gravity") {
		if len(raw.Engine.Gravity) != 3 {
			return config.BridgeConfig{}, fmt.Errorf("engine.gravity needs 3 components, got %d", len(raw.Engine.Gravity))
		}
		copy(cfg.Engine.Gravity[:], raw.Engine.Gravity)
	}

	if meta.IsDefined("scenario", "mode") {
		cfg.Scenario.Mode = strings.ToLower(strings.TrimSpace(raw.Scenario.Mode))
	}
	if meta.IsDefined("scenario", "ticks") {
		cfg.Scenario.Ticks = raw.Scenario.Ticks
	}
	if meta.IsDefined("scenario", "dt") {
		cfg.Scenario.DT = raw.Scenario.DT
	}
	if meta.IsDefined("scenario", "bodies") {
		cfg.Scenario.Bodies = raw.Scenario.Bodies
	}
	if meta.IsDefined("scenario", "spacing") {
		cfg.Scenario.Spacing = raw.Scenario.Spacing
	}
	if meta.IsDefined("scenario", "copy") {
		cfg.Scenario.Copy = raw.Scenario.Copy
	}

	if err := config.ValidateBridgeConfig(cfg); err != nil {
		return config.BridgeConfig{}, err
	}
	return cfg, nil
}
