package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/vrischmann/envconfig"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// FromEnv overlays LEXD_* environment variables onto cfg. Every field is
// optional; unset variables leave the file/default value in place.
func FromEnv(cfg Config) (Config, error) {
	var env Config
	if err := envconfig.InitWithOptions(&env, envconfig.Options{AllOptional: true}); err != nil {
		return cfg, fmt.Errorf("env config: %w", err)
	}
	return merge(cfg, env), nil
}

// Resolve composes the full precedence chain: file < env < defaults fill.
// An empty path skips the file layer.
func Resolve(path string) (Config, error) {
	var cfg Config
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfg, err := FromEnv(cfg)
	if err != nil {
		return cfg, err
	}
	return cfg.Defaults(), nil
}

// merge overlays non-zero fields of over onto base.
func merge(base, over Config) Config {
	if over.ModelsDir != "" {
		base.ModelsDir = over.ModelsDir
	}
	if over.MailboxDir != "" {
		base.MailboxDir = over.MailboxDir
	}
	if over.RunDir != "" {
		base.RunDir = over.RunDir
	}
	if over.OperatorAddr != "" {
		base.OperatorAddr = over.OperatorAddr
	}
	if over.APIProbeURL != "" {
		base.APIProbeURL = over.APIProbeURL
	}
	if over.HostCommand != "" {
		base.HostCommand = over.HostCommand
	}
	if over.APICommand != "" {
		base.APICommand = over.APICommand
	}
	if over.EmbedderModel != "" {
		base.EmbedderModel = over.EmbedderModel
	}
	if over.UtilityModel != "" {
		base.UtilityModel = over.UtilityModel
	}
	if over.ReasoningModel != "" {
		base.ReasoningModel = over.ReasoningModel
	}
	if over.HeartbeatTTL > 0 {
		base.HeartbeatTTL = over.HeartbeatTTL
	}
	if over.HeartbeatEvery > 0 {
		base.HeartbeatEvery = over.HeartbeatEvery
	}
	if over.PollEvery > 0 {
		base.PollEvery = over.PollEvery
	}
	if over.MemoryCeilingFrac > 0 {
		base.MemoryCeilingFrac = over.MemoryCeilingFrac
	}
	if over.LowMemFreeMB > 0 {
		base.LowMemFreeMB = over.LowMemFreeMB
	}
	if over.LowMemShrinkFrac > 0 {
		base.LowMemShrinkFrac = over.LowMemShrinkFrac
	}
	if over.MinTokensFloor > 0 {
		base.MinTokensFloor = over.MinTokensFloor
	}
	if over.MaxTokensDefault > 0 {
		base.MaxTokensDefault = over.MaxTokensDefault
	}
	if over.LoadTimeout > 0 {
		base.LoadTimeout = over.LoadTimeout
	}
	if over.RequestTimeout > 0 {
		base.RequestTimeout = over.RequestTimeout
	}
	if over.MonitorEvery > 0 {
		base.MonitorEvery = over.MonitorEvery
	}
	if over.FailureThreshold > 0 {
		base.FailureThreshold = over.FailureThreshold
	}
	if over.RecoveryCooldown > 0 {
		base.RecoveryCooldown = over.RecoveryCooldown
	}
	if over.MaxRecoveryAttempts > 0 {
		base.MaxRecoveryAttempts = over.MaxRecoveryAttempts
	}
	if over.RingSize > 0 {
		base.RingSize = over.RingSize
	}
	if over.HostCheckHard {
		base.HostCheckHard = true
	}
	if over.HostBootTimeout > 0 {
		base.HostBootTimeout = over.HostBootTimeout
	}
	if over.APIBootTimeout > 0 {
		base.APIBootTimeout = over.APIBootTimeout
	}
	if over.PhaseAttempts > 0 {
		base.PhaseAttempts = over.PhaseAttempts
	}
	if over.LogLevel != "" {
		base.LogLevel = over.LogLevel
	}
	return base
}
