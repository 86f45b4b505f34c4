// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for vibe.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (VIBECODE_*)
//   - ~/.vibecode/config.toml
//   - ~/.vibecode/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/vibecode/internal/endpoint"
	"github.com/jeranaias/vibecode/internal/fallback"
	"github.com/jeranaias/vibecode/internal/model"
	"github.com/jeranaias/vibecode/internal/usage"
	"github.com/jeranaias/vibecode/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete vibe configuration.
type Config struct {
	Version       string `toml:"version" json:"version"`
	DefaultModel  string `toml:"default_model" json:"default_model"`
	ThinkingLevel string `toml:"thinking_level" json:"thinking_level"`
	// AIMode is "plan-build" (plan first, then generate) or "code-fast".
	AIMode  string `toml:"ai_mode" json:"ai_mode"`
	Persona string `toml:"persona" json:"persona"`
	// Offline blocks every network call except loopback endpoints.
	Offline bool `toml:"offline" json:"offline"`

	API      APIConfig      `toml:"api" json:"api"`
	Usage    UsageConfig    `toml:"usage" json:"usage"`
	Research ResearchConfig `toml:"research" json:"research"`
	Preview  PreviewConfig  `toml:"preview" json:"preview"`
	UI       UIConfig       `toml:"ui" json:"ui"`
	Log      LogConfig      `toml:"log" json:"log"`
	Storage  StorageConfig  `toml:"storage" json:"storage"`
}

// APIConfig contains the chat-completions endpoint settings.
type APIConfig struct {
	// URL may be a bare host or a base URL; it is normalized before use.
	// Empty means the compiled-in default endpoint.
	URL string `toml:"url" json:"url"`
	// Key is the bearer token. Empty means the compiled-in default key.
	// On disk it is stored as ENC:<base64> when EncryptKey is set.
	Key         string `toml:"key" json:"key"`
	EncryptKey  bool   `toml:"encrypt_key" json:"encrypt_key"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
	// Fallback is the policy for failed calls: auto, chat, code or none.
	Fallback string `toml:"fallback" json:"fallback"`
}

// UsageConfig controls the daily credit budget.
type UsageConfig struct {
	Plan string `toml:"plan" json:"plan"`
	// DailyLimit overrides the plan's limit when positive.
	DailyLimit int `toml:"daily_limit" json:"daily_limit"`
	// DBPath is the usage ledger database (empty = ~/.vibecode/usage.db).
	DBPath string `toml:"db_path" json:"db_path"`
}

// ResearchConfig controls web research for research models.
type ResearchConfig struct {
	Enabled    bool    `toml:"enabled" json:"enabled"`
	Endpoint   string  `toml:"endpoint" json:"endpoint"`
	RatePerSec float64 `toml:"rate_per_sec" json:"rate_per_sec"`
}

// PreviewConfig contains the local preview server settings.
type PreviewConfig struct {
	Addr string `toml:"addr" json:"addr"`
}

// UIConfig contains terminal rendering preferences.
type UIConfig struct {
	Markdown  bool   `toml:"markdown" json:"markdown"`
	Highlight bool   `toml:"highlight" json:"highlight"`
	Theme     string `toml:"theme" json:"theme"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level" json:"level"`
	// File receives log output when set; otherwise logs go to stderr.
	File string `toml:"file" json:"file"`
}

// StorageConfig controls conversation persistence.
type StorageConfig struct {
	// Dir holds conversation files (empty = ~/.vibecode/conversations).
	Dir              string `toml:"dir" json:"dir"`
	MaxConversations int    `toml:"max_conversations" json:"max_conversations"`
	// ContextMessages is how many prior messages are sent with a chat turn.
	ContextMessages int `toml:"context_messages" json:"context_messages"`
}

// AI modes.
const (
	AIModePlanBuild = "plan-build"
	AIModeCodeFast  = "code-fast"
)

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Version:       "1",
		DefaultModel:  model.DefaultModel,
		ThinkingLevel: model.DefaultThinking,
		AIMode:        AIModePlanBuild,
		API: APIConfig{
			EncryptKey:  true,
			TimeoutSecs: 90,
			Fallback:    string(fallback.PolicyAuto),
		},
		Usage: UsageConfig{
			Plan: usage.DefaultPlan,
		},
		Research: ResearchConfig{
			Enabled:    true,
			Endpoint:   "https://api.duckduckgo.com/",
			RatePerSec: 1,
		},
		Preview: PreviewConfig{
			Addr: "127.0.0.1:8765",
		},
		UI: UIConfig{
			Markdown:  true,
			Highlight: true,
			Theme:     "dark",
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			MaxConversations: 100,
			ContextMessages:  10,
		},
	}
}

// =============================================================================
// PATH FUNCTIONS
// =============================================================================

// ConfigDir returns the vibe configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".vibecode"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// UsageDBPath returns the configured ledger path or the default one.
func (c *Config) UsageDBPath() (string, error) {
	if c.Usage.DBPath != "" {
		return c.Usage.DBPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "usage.db"), nil
}

// ConversationsDir returns the configured conversation directory or the default one.
func (c *Config) ConversationsDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "conversations"), nil
}

// ensureSecurePermissions tightens config file permissions to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	var loadErr error

	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			cfg := Default()
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			cfg := Default()
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	cfg, err := finish(Default())
	if err != nil {
		return nil, err
	}
	// Defaults, with any load error for informational purposes.
	return cfg, loadErr
}

// finish applies env overrides, migration, defaults and validation.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	if err := cfg.Migrate(); err != nil {
		return nil, fmt.Errorf("config migration failed: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return openSecrets(cfg, path)
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return openSecrets(cfg, path)
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
// The API key is encrypted first when api.encrypt_key is set.
func SaveTOML(cfg *Config, path string) error {
	sealed, err := sealSecrets(cfg, path)
	if err != nil {
		return fmt.Errorf("failed to encrypt api.key: %w", err)
	}
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(sealed); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, []byte(buf.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	sealed, err := sealSecrets(cfg, path)
	if err != nil {
		return fmt.Errorf("failed to encrypt api.key: %w", err)
	}
	data, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a single invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validThemes = map[string]bool{"dark": true, "light": true, "auto": true, "notty": true}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, ok := model.Lookup(c.DefaultModel); !ok {
		add("default_model", "unknown model '%s', must be one of: %s", c.DefaultModel, strings.Join(model.Keys(), ", "))
	}
	if !model.IsThinkingLevel(c.ThinkingLevel) {
		add("thinking_level", "invalid level '%s', must be one of: low, mid, high, extra-high", c.ThinkingLevel)
	}
	if c.AIMode != AIModePlanBuild && c.AIMode != AIModeCodeFast {
		add("ai_mode", "invalid mode '%s', must be one of: %s, %s", c.AIMode, AIModePlanBuild, AIModeCodeFast)
	}

	// API
	if strings.TrimSpace(c.API.URL) != "" && endpoint.Normalize(c.API.URL) == "" {
		add("api.url", "'%s' is not a valid endpoint", c.API.URL)
	}
	if c.API.TimeoutSecs < 0 || c.API.TimeoutSecs > 3600 {
		add("api.timeout_secs", "must be between 0 and 3600, got %d", c.API.TimeoutSecs)
	}
	if _, err := fallback.ParsePolicy(c.API.Fallback); err != nil {
		add("api.fallback", "%v", err)
	}

	// Usage
	if _, err := usage.LookupPlan(c.Usage.Plan); err != nil {
		add("usage.plan", "unknown plan '%s', must be one of: %s", c.Usage.Plan, strings.Join(usage.PlanIDs(), ", "))
	}
	if c.Usage.DailyLimit < 0 {
		add("usage.daily_limit", "must not be negative, got %d", c.Usage.DailyLimit)
	}

	// Research
	if c.Research.RatePerSec <= 0 {
		add("research.rate_per_sec", "must be positive, got %g", c.Research.RatePerSec)
	}
	if c.Research.Enabled && !strings.HasPrefix(c.Research.Endpoint, "http://") && !strings.HasPrefix(c.Research.Endpoint, "https://") {
		add("research.endpoint", "must be an http(s) URL, got '%s'", c.Research.Endpoint)
	}

	// Preview
	if strings.TrimSpace(c.Preview.Addr) == "" {
		add("preview.addr", "must not be empty")
	}

	// UI
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		add("ui.theme", "invalid theme '%s', must be one of: dark, light, auto, notty", c.UI.Theme)
	}

	// Log
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		add("log.level", "%v", err)
	}

	// Storage
	if c.Storage.MaxConversations < 1 {
		add("storage.max_conversations", "must be at least 1, got %d", c.Storage.MaxConversations)
	}
	if c.Storage.ContextMessages < 1 || c.Storage.ContextMessages > 100 {
		add("storage.context_messages", "must be between 1 and 100, got %d", c.Storage.ContextMessages)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that have no meaningful zero setting.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.DefaultModel == "" {
		c.DefaultModel = d.DefaultModel
	}
	if c.ThinkingLevel == "" {
		c.ThinkingLevel = d.ThinkingLevel
	}
	if c.AIMode == "" {
		c.AIMode = d.AIMode
	}
	if c.API.Fallback == "" {
		c.API.Fallback = d.API.Fallback
	}
	if c.Usage.Plan == "" {
		c.Usage.Plan = d.Usage.Plan
	}
	if c.Research.Endpoint == "" {
		c.Research.Endpoint = d.Research.Endpoint
	}
	if c.Research.RatePerSec == 0 {
		c.Research.RatePerSec = d.Research.RatePerSec
	}
	if c.Preview.Addr == "" {
		c.Preview.Addr = d.Preview.Addr
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Storage.MaxConversations == 0 {
		c.Storage.MaxConversations = d.Storage.MaxConversations
	}
	if c.Storage.ContextMessages == 0 {
		c.Storage.ContextMessages = d.Storage.ContextMessages
	}
}

// Migrate rewrites legacy spellings into their current form.
func (c *Config) Migrate() error {
	// Display names ("Vibe Pro") become keys.
	if d, ok := model.Lookup(c.DefaultModel); ok {
		c.DefaultModel = d.Key
	}

	switch strings.ToLower(strings.TrimSpace(c.ThinkingLevel)) {
	case "medium", "normal":
		c.ThinkingLevel = model.ThinkingMid
	case "extra_high", "extrahigh", "xhigh", "max":
		c.ThinkingLevel = model.ThinkingExtraHigh
	default:
		c.ThinkingLevel = strings.ToLower(strings.TrimSpace(c.ThinkingLevel))
	}

	switch strings.ToLower(strings.TrimSpace(c.AIMode)) {
	case "plan", "plan_build", "planbuild":
		c.AIMode = AIModePlanBuild
	case "fast", "code", "code_fast":
		c.AIMode = AIModeCodeFast
	default:
		c.AIMode = strings.ToLower(strings.TrimSpace(c.AIMode))
	}

	c.Usage.Plan = strings.ToLower(strings.TrimSpace(c.Usage.Plan))
	c.API.Fallback = strings.ToLower(strings.TrimSpace(c.API.Fallback))
	return nil
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// APISettings returns the configured endpoint URL and API key. Empty values
// mean "not configured"; the executor applies its compiled-in defaults. A key
// still carrying the ENC: prefix could not be decrypted and is never sent.
func (c *Config) APISettings() (string, string) {
	key := strings.TrimSpace(c.API.Key)
	if IsEncrypted(key) {
		key = ""
	}
	return strings.TrimSpace(c.API.URL), key
}

// Timeout returns the request timeout (zero = executor default).
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// FallbackPolicy returns the configured fallback policy.
func (c *Config) FallbackPolicy() fallback.Policy {
	p, err := fallback.ParsePolicy(c.API.Fallback)
	if err != nil {
		return fallback.PolicyAuto
	}
	return p
}

// DailyLimit returns the effective daily credit limit.
func (c *Config) DailyLimit() int {
	return usage.DailyLimit(c.Usage.Plan, c.Usage.DailyLimit)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - VIBECODE_API_URL: overrides api.url
//   - VIBECODE_API_KEY: overrides api.key
//   - VIBECODE_MODEL: overrides default_model
//   - VIBECODE_THINKING: overrides thinking_level
//   - VIBECODE_OFFLINE: set to "1" or "true" to enable offline mode
//   - VIBECODE_LOG_LEVEL: overrides log.level
//   - VIBECODE_PLAN: overrides usage.plan
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("VIBECODE_API_URL"); v != "" {
		c.API.URL = v
	}
	if v := os.Getenv("VIBECODE_API_KEY"); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv("VIBECODE_MODEL"); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv("VIBECODE_THINKING"); v != "" {
		c.ThinkingLevel = v
	}
	if v := os.Getenv("VIBECODE_OFFLINE"); v != "" {
		c.Offline = parseBool(v)
	}
	if v := os.Getenv("VIBECODE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("VIBECODE_PLAN"); v != "" {
		c.Usage.Plan = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "api.timeout_secs").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookupField(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "usage.plan").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookupField(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookupField(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a setting", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strings.TrimSpace(strVal), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strings.TrimSpace(strVal), 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"default_model",
		"thinking_level",
		"ai_mode",
		"persona",
		"offline",
		"api.url",
		"api.key",
		"api.encrypt_key",
		"api.timeout_secs",
		"api.fallback",
		"usage.plan",
		"usage.daily_limit",
		"usage.db_path",
		"research.enabled",
		"research.endpoint",
		"research.rate_per_sec",
		"preview.addr",
		"ui.markdown",
		"ui.highlight",
		"ui.theme",
		"log.level",
		"log.file",
		"storage.dir",
		"storage.max_conversations",
		"storage.context_messages",
	}
}

// IsSecretKey reports whether a key holds a credential.
func IsSecretKey(key string) bool {
	return strings.EqualFold(key, "api.key")
}

// Clone creates a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a JSON rendering with the API key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.API.Key != "" {
		safe.API.Key = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
