package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "bridge", "simlink":
		return bridgeTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const bridgeTemplate = `[channel]
capacity = 1024
growable = true
growth_increment = 256
shared_memory = false

[dispatch]
# phased | write
order = "phased"

[engine]
gravity = [0.0, -9.81, 0.0]

[scenario]
# sync | pipelined
mode = "sync"
ticks = 60
dt = 0.016666668
bodies = 8
spacing = 1.5
copy = false
`
