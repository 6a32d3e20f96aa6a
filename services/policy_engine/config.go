// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy_engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/AleutianAI/codeterm/services/policy_engine/enforcement"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultToolMaxFileSize applies to a tool that does not set max_file_size.
	DefaultToolMaxFileSize int64 = 10_000_000

	// DefaultTimeoutMS applies to a tool that does not set timeout_ms.
	DefaultTimeoutMS int64 = 30_000
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

var policyValidate *validator.Validate

func init() {
	policyValidate = validator.New()
	_ = policyValidate.RegisterValidation("abspath", validateAbsPath)
}

// validateAbsPath requires an absolute path so prefix rules do not depend
// on the working directory.
func validateAbsPath(fl validator.FieldLevel) bool {
	return filepath.IsAbs(fl.Field().String())
}

// =============================================================================
// Configuration types
// =============================================================================

// Config is a complete permission policy.
//
// Description:
//
//	Tools maps a tool name to its rules. Tools without an entry use
//	DefaultMode and the global limits. RestrictedPaths and SafePaths are
//	absolute prefixes; they are normalised when the config is compiled.
//	MaxFileSize of 0 disables the global size limit.
type Config struct {
	EmergencyBypass  bool                  `yaml:"emergency_bypass" json:"emergency_bypass"`
	DefaultMode      Mode                  `yaml:"default_mode" json:"default_mode"`
	Tools            map[string]ToolPolicy `yaml:"tools" json:"tools" validate:"dive,keys,required,endkeys"`
	RestrictedPaths  []string              `yaml:"restricted_paths" json:"restricted_paths" validate:"dive,required,abspath"`
	SafePaths        []string              `yaml:"safe_paths" json:"safe_paths" validate:"dive,required,abspath"`
	MaxFileSize      int64                 `yaml:"max_file_size" json:"max_file_size" validate:"gte=0"`
	DefaultTimeoutMS int64                 `yaml:"default_timeout_ms" json:"default_timeout_ms" validate:"gte=0"`
	LogDecisions     bool                  `yaml:"log_decisions" json:"log_decisions"`
	ResolveSymlinks  bool                  `yaml:"resolve_symlinks" json:"resolve_symlinks"`
}

// ToolPolicy holds the rules for one tool.
//
// MaxFileSize and TimeoutMS are pointers so that omission can be told
// apart from zero: a nil MaxFileSize means DefaultToolMaxFileSize, zero
// means the global limit.
type ToolPolicy struct {
	Mode         Mode         `yaml:"mode,omitempty" json:"mode,omitempty"`
	AllowedPaths []string     `yaml:"allowed_paths,omitempty" json:"allowed_paths,omitempty" validate:"dive,required,abspath"`
	DeniedPaths  []string     `yaml:"denied_paths,omitempty" json:"denied_paths,omitempty" validate:"dive,required,abspath"`
	MaxFileSize  *int64       `yaml:"max_file_size,omitempty" json:"max_file_size,omitempty" validate:"omitempty,gte=0"`
	TimeoutMS    *int64       `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty" validate:"omitempty,gte=0"`
	Rules        []CustomRule `yaml:"rules,omitempty" json:"rules,omitempty" validate:"dive"`
}

// CustomRule is a CEL expression evaluated against the operation. When it
// yields true, Decision is returned with Reason.
type CustomRule struct {
	Name     string       `yaml:"name" json:"name" validate:"required"`
	Expr     string       `yaml:"expr" json:"expr" validate:"required"`
	Decision DecisionKind `yaml:"decision" json:"decision"`
	Reason   string       `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// =============================================================================
// Loading
// =============================================================================

// DefaultConfig returns the embedded default policy. It panics if the
// embedded document is invalid, which is a build defect.
func DefaultConfig() Config {
	cfg, err := ParseConfig(enforcement.PermissionPolicy)
	if err != nil {
		panic(fmt.Sprintf("embedded permission policy is invalid: %v", err))
	}
	return cfg
}

// ParseConfig decodes and validates a policy document.
//
// Description:
//
//	Fields absent from the document take zero values, except DefaultMode
//	(prompt) and DefaultTimeoutMS (30000). Modes, risk levels and
//	decisions are checked while decoding; sizes, timeouts and paths by
//	struct validation. CEL expressions are compiled so that a bad rule
//	fails here rather than at check time.
//
// Outputs:
//
//	Config - The decoded policy.
//	error - *ConfigError (Is ErrInvalidConfig) on any failure.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &ConfigError{Detail: "decode", Err: err}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a policy file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("load policy %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigOrDefault returns the embedded default when path is empty.
func LoadConfigOrDefault(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// Validate runs struct validation and compiles custom rules.
func (c Config) Validate() error {
	if err := policyValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ConfigError{Detail: fmt.Sprintf("field %s failed %q", verrs[0].Namespace(), verrs[0].Tag()), Err: err}
		}
		return &ConfigError{Detail: "validation", Err: err}
	}
	switch c.DefaultMode {
	case ModeAuto, ModePrompt, ModeDeny:
	default:
		return &ConfigError{Detail: fmt.Sprintf("invalid default_mode %q", c.DefaultMode)}
	}
	for _, name := range c.ToolNames() {
		if _, err := compileRules(c.Tools[name].Rules); err != nil {
			return &ConfigError{Detail: fmt.Sprintf("tool %s", name), Err: err}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DefaultMode == "" {
		c.DefaultMode = ModePrompt
	}
	if c.DefaultTimeoutMS == 0 {
		c.DefaultTimeoutMS = DefaultTimeoutMS
	}
}

// ToolNames returns the configured tool names in lexical order.
func (c Config) ToolNames() []string {
	names := make([]string, 0, len(c.Tools))
	for name := range c.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Marshal encodes the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	out.RestrictedPaths = append([]string(nil), c.RestrictedPaths...)
	out.SafePaths = append([]string(nil), c.SafePaths...)
	if c.Tools != nil {
		out.Tools = make(map[string]ToolPolicy, len(c.Tools))
		for name, tp := range c.Tools {
			out.Tools[name] = tp.clone()
		}
	}
	return out
}

func (t ToolPolicy) clone() ToolPolicy {
	out := t
	out.AllowedPaths = append([]string(nil), t.AllowedPaths...)
	out.DeniedPaths = append([]string(nil), t.DeniedPaths...)
	out.Rules = append([]CustomRule(nil), t.Rules...)
	if t.MaxFileSize != nil {
		v := *t.MaxFileSize
		out.MaxFileSize = &v
	}
	if t.TimeoutMS != nil {
		v := *t.TimeoutMS
		out.TimeoutMS = &v
	}
	return out
}

// =============================================================================
// Effective limits
// =============================================================================

// MaxFileSizeFor returns the size limit for tool; 0 means unlimited.
func (c Config) MaxFileSizeFor(tool string) int64 {
	tp, ok := c.Tools[tool]
	if !ok {
		return c.MaxFileSize
	}
	switch {
	case tp.MaxFileSize == nil:
		return DefaultToolMaxFileSize
	case *tp.MaxFileSize == 0:
		return c.MaxFileSize
	default:
		return *tp.MaxFileSize
	}
}

// TimeoutMSFor returns the execution timeout for tool in milliseconds.
func (c Config) TimeoutMSFor(tool string) int64 {
	if tp, ok := c.Tools[tool]; ok && tp.TimeoutMS != nil && *tp.TimeoutMS > 0 {
		return *tp.TimeoutMS
	}
	return c.DefaultTimeoutMS
}

// ModeFor returns the effective mode for tool and the rule that supplied it.
func (c Config) ModeFor(tool string) (Mode, Rule) {
	if tp, ok := c.Tools[tool]; ok && tp.Mode != "" {
		return tp.Mode, RuleToolMode
	}
	return c.DefaultMode, RuleDefaultMode
}
