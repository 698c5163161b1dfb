// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's YAML configuration.
type Config struct {
	// TransportURL is the message transport to serve (e.g.,
	// "nats://127.0.0.1:4222").
	TransportURL string `yaml:"transport_url"`

	// SharedDir and LocalDir locate the credential store.
	SharedDir string `yaml:"shared_dir"`
	LocalDir  string `yaml:"local_dir"`

	// Operator and AuthAccount identify the chain this service
	// answers for.
	Operator    string `yaml:"operator"`
	AuthAccount string `yaml:"auth_account"`

	// ResponseRole is the auth-account role whose signing key signs
	// responses. Defaults to "callout".
	ResponseRole string `yaml:"response_role"`

	// TokenTTL bounds issued grants; DecisionTimeout bounds one
	// decision end to end.
	TokenTTL        Duration `yaml:"token_ttl"`
	DecisionTimeout Duration `yaml:"decision_timeout"`

	// ViewRefresh is how often the trust view is reloaded from the
	// shared anchors. Zero disables periodic refresh.
	ViewRefresh Duration `yaml:"view_refresh"`

	// AuditLog is the decision log path. Empty disables auditing —
	// only advisable in development.
	AuditLog string `yaml:"audit_log"`
}

// Duration wraps time.Duration for YAML strings like "90s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoadConfig reads and validates the daemon configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &config, nil
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if c.TransportURL == "" {
		return fmt.Errorf("transport_url is required")
	}
	if c.SharedDir == "" || c.LocalDir == "" {
		return fmt.Errorf("shared_dir and local_dir are required")
	}
	if c.Operator == "" {
		return fmt.Errorf("operator is required")
	}
	if c.AuthAccount == "" {
		return fmt.Errorf("auth_account is required")
	}
	return nil
}
