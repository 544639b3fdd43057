package config

// loader.go - configuration loading from the YAML file and environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. Config file  (LoadFile)
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML file at path onto cfg.  Keys absent from
// the file keep their current value; unknown keys are an error.  A
// missing file returns an error matching os.ErrNotExist.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv overlays TERMPHYRIO_* environment variables onto cfg.
// Only variables that are set override the existing value.  This
// should be called BEFORE CLI flag parsing so that flags take
// precedence.
//
// Durations use Go syntax ("15s"); booleans accept anything
// strconv.ParseBool does.
func LoadFromEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}
