package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/simlink/internal/dispatch"
	"github.com/danmuck/simlink/internal/testutil/testlog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestTemplateLoadsAndValidates(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "bridge.toml")
	if err := WriteTemplate(path, "bridge", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, "bridge", false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	cfg, err := LoadBridgeConfig(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	def := DefaultBridgeConfig()
	if cfg.Channel != def.Channel || cfg.Engine != def.Engine || cfg.Dispatch != def.Dispatch {
		t.Fatalf("template drifted from defaults: %+v vs %+v", cfg, def)
	}
	if cfg.Scenario.Mode != ModeSync || cfg.Scenario.Ticks != 60 || cfg.Scenario.Bodies != 8 {
		t.Fatalf("unexpected scenario: %+v", cfg.Scenario)
	}
}

func TestLoadOverlaysOnDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
[channel]
growable = false

[dispatch]
order = "write"

[scenario]
mode = "Pipelined"
ticks = 3
`)
	cfg, err := LoadBridgeConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Channel.Growable || cfg.Channel.Capacity != 1024 {
		t.Fatalf("unexpected channel config: %+v", cfg.Channel)
	}
	order, err := cfg.Dispatch.OrderValue()
	if err != nil || order != dispatch.OrderWrite {
		t.Fatalf("unexpected order: %s (%v)", order, err)
	}
	if cfg.Scenario.Mode != ModePipelined || cfg.Scenario.Ticks != 3 || cfg.Scenario.Bodies != 8 {
		t.Fatalf("unexpected scenario: %+v", cfg.Scenario)
	}
	if cfg.Engine.Memory().Gravity.Y >= 0 {
		t.Fatalf("expected default downward gravity")
	}
	opts := cfg.Channel.Options()
	if opts.Growable || opts.Capacity != 1024 {
		t.Fatalf("unexpected channel options: %+v", opts)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"capacity": "[channel]\ncapacity = 1\n",
		"order":    "[dispatch]\norder = \"sideways\"\n",
		"mode":     "[scenario]\nmode = \"batch\"\n",
		"ticks":    "[scenario]\nticks = 0\n",
		"dt":       "[scenario]\ndt = -1.0\n",
	}
	for name, content := range cases {
		if _, err := LoadBridgeConfig(writeConfig(t, content)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadReportsParseErrors(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadBridgeConfig(writeConfig(t, "[channel\n")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := LoadBridgeConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected load error")
	}
	if _, err := Template("ghost"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
