// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package config loads the engine's own configuration from an HCL file.
// Workflow documents are YAML; this file configures the daemon around them.
package config

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/sethvargo/go-envconfig"
	"github.com/zclconf/go-cty/cty"
)

// Config is the engine configuration. HCL attributes may reference process
// environment variables through the env.* namespace, e.g.
//
//	notify_url = env.CI_NOTIFY_URL
type Config struct {
	WorkflowDir string `hcl:"workflow_dir,optional" env:"LOOMCI_WORKFLOW_DIR,overwrite"`
	Workers     int    `hcl:"workers,optional" env:"LOOMCI_WORKERS,overwrite"`
	Strict      bool   `hcl:"strict,optional" env:"LOOMCI_STRICT,overwrite"`
	Workspace   string `hcl:"workspace,optional" env:"LOOMCI_WORKSPACE,overwrite"`

	// AllowSkippedNeeds lets a dependent's default success() condition
	// tolerate skipped dependencies instead of skipping transitively.
	AllowSkippedNeeds bool `hcl:"allow_skipped_needs,optional" env:"LOOMCI_ALLOW_SKIPPED_NEEDS,overwrite"`

	Listen       string `hcl:"listen,optional" env:"LOOMCI_LISTEN,overwrite"`
	LogLevel     string `hcl:"log_level,optional" env:"LOOMCI_LOG_LEVEL,overwrite"`
	LogFormat    string `hcl:"log_format,optional" env:"LOOMCI_LOG_FORMAT,overwrite"`
	RunLogDir    string `hcl:"run_log_dir,optional" env:"LOOMCI_RUN_LOG_DIR,overwrite"`
	NotifyURL    string `hcl:"notify_url,optional" env:"LOOMCI_NOTIFY_URL,overwrite"`
	PollInterval string `hcl:"poll_interval,optional" env:"LOOMCI_POLL_INTERVAL,overwrite"`

	Secrets map[string]string `hcl:"secrets,optional"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		WorkflowDir:  ".loomci/workflows",
		Workers:      4,
		Listen:       ":8477",
		LogLevel:     "info",
		LogFormat:    "text",
		PollInterval: "30s",
	}
}

// Load parses an HCL configuration file and applies environment
// overrides on top of it.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, src, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	return cfg, cfg.validate()
}

// decode parses HCL source into cfg, exposing the process environment as
// the env.* variable namespace.
func decode(filename string, src []byte, cfg *Config) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("parse config: %w", diags)
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": envNamespace(os.Environ()),
		},
	}
	if diags := gohcl.DecodeBody(file.Body, evalCtx, cfg); diags.HasErrors() {
		return fmt.Errorf("decode config: %w", diags)
	}
	return nil
}

func envNamespace(environ []string) cty.Value {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				vars[kv[:i]] = cty.StringVal(kv[i+1:])
				break
			}
		}
	}
	if len(vars) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(vars)
}

func (c *Config) validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be %q or %q, got %q", "text", "json", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}
