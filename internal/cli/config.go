// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation for vibe.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//   show (default)      Display current configuration
//   get <key>           Print one setting
//   set <key> <value>   Set a setting and save
//   reset               Reset to default configuration
//   path                Show configuration file path
//   keys                List every settable key
//
// Examples:
//   vibe config set default_model pro
//   vibe config set usage.plan plus
//   vibe config set api.timeout_secs 120
//   vibe config get research.enabled --json
package cli

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/vibecode/internal/config"
)

var (
	configKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(28)

	configMaskedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("242"))

	configPathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)
)

// ConfigEntry is one key in "config show --json" and "config get --json".
type ConfigEntry struct {
	Key    string      `json:"key"`
	Value  interface{} `json:"value"`
	Secret bool        `json:"secret,omitempty"`
}

// ConfigData is the JSON payload of "config show".
type ConfigData struct {
	Path     string        `json:"path"`
	Exists   bool          `json:"exists"`
	Settings []ConfigEntry `json:"settings"`
}

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return handleConfigShow(args)
	case "get":
		return handleConfigGet(args)
	case "set":
		return handleConfigSet(args)
	case "reset":
		return handleConfigReset(args)
	case "path":
		return handleConfigPath(args)
	case "keys":
		return handleConfigKeys(args)
	default:
		return NewValidationErrorWithExample("config subcommand", args.Subcommand,
			"unknown subcommand", "vibe config show|get|set|reset|path|keys")
	}
}

func handleConfigShow(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	path, exists := configFile()

	entries := configEntries(cfg)
	if args.JSON {
		return NewJSONResponse("config show", ConfigData{Path: path, Exists: exists, Settings: entries}).Print()
	}

	fmt.Fprintln(stdout, TitleStyle.Render("vibe Configuration"))
	fmt.Fprintln(stdout, RenderSeparator(41))
	section := ""
	for _, e := range entries {
		if s := sectionOf(e.Key); s != section {
			section = s
			fmt.Fprintln(stdout)
			fmt.Fprintln(stdout, SectionStyle.Render("["+section+"]"))
		}
		fmt.Fprintf(stdout, "  %s%s\n", configKeyStyle.Render(e.Key+":"), renderConfigValue(e))
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, RenderSeparator(41))
	note := ""
	if !exists {
		note = " (not created yet)"
	}
	fmt.Fprintf(stdout, "Config file: %s%s\n", configPathStyle.Render(path), note)
	return nil
}

func handleConfigGet(args Args) error {
	if args.ConfigKey == "" {
		return ErrMissingArgument("key", "vibe config get usage.plan")
	}
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	key := normalizeConfigKey(args.ConfigKey)
	v, err := cfg.Get(key)
	if err != nil {
		return NewValidationErrorWithExample("config key", args.ConfigKey, err.Error(), "vibe config keys")
	}
	entry := ConfigEntry{Key: key, Value: v, Secret: config.IsSecretKey(key)}
	if entry.Secret {
		entry.Value = maskAPIKey(fmt.Sprint(v))
	}
	if args.JSON {
		return NewJSONResponse("config get", entry).Print()
	}
	fmt.Fprintln(stdout, entry.Value)
	return nil
}

func handleConfigSet(args Args) error {
	if args.ConfigKey == "" {
		return ErrMissingArgument("key", "vibe config set default_model pro")
	}
	if args.ConfigVal == "" {
		return ErrMissingArgument("value", "vibe config set "+args.ConfigKey+" <value>")
	}

	cfg, err := config.Load()
	if err != nil {
		if cfg == nil {
			return WrapError(err, "failed to load config")
		}
		// Writing over an unreadable file would lose it.
		return WrapError(err, "refusing to overwrite unreadable config")
	}

	key := normalizeConfigKey(args.ConfigKey)
	if err := cfg.Set(key, args.ConfigVal); err != nil {
		return NewValidationErrorWithExample("config key", args.ConfigKey, err.Error(), "vibe config keys")
	}
	if err := cfg.Validate(); err != nil {
		return NewValidationError(key, args.ConfigVal, err.Error())
	}
	if err := config.Save(cfg); err != nil {
		return WrapError(err, "failed to save config")
	}

	shown := args.ConfigVal
	if config.IsSecretKey(key) {
		shown = maskAPIKey(shown)
	}
	if args.JSON {
		return NewJSONResponse("config set", ConfigEntry{Key: key, Value: shown, Secret: config.IsSecretKey(key)}).Print()
	}
	fmt.Fprintf(stdout, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, shown)
	return nil
}

func handleConfigReset(args Args) error {
	if err := config.Save(config.Default()); err != nil {
		return WrapError(err, "failed to save config")
	}
	path, _ := configFile()
	if args.JSON {
		return NewJSONResponse("config reset", map[string]interface{}{"path": path}).Print()
	}
	fmt.Fprintf(stdout, "%s Configuration reset to defaults\n", SuccessStyle.Render("[OK]"))
	fmt.Fprintf(stdout, "Config file: %s\n", configPathStyle.Render(path))
	return nil
}

func handleConfigPath(args Args) error {
	path, exists := configFile()
	if args.JSON {
		return NewJSONResponse("config path", map[string]interface{}{
			"path":   path,
			"exists": exists,
		}).Print()
	}
	fmt.Fprintln(stdout, path)
	if !exists {
		fmt.Fprintf(stderr, "%s (file does not exist, created on first set)\n", configMaskedStyle.Render("Note"))
	}
	return nil
}

func handleConfigKeys(args Args) error {
	keys := config.GetAllKeys()
	if args.JSON {
		return NewJSONResponse("config keys", keys).Print()
	}
	for _, k := range keys {
		fmt.Fprintln(stdout, k)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// configFile returns the TOML config path and whether it exists.
func configFile() (string, bool) {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return "", false
	}
	_, err = os.Stat(path)
	return path, err == nil
}

func configEntries(cfg *config.Config) []ConfigEntry {
	keys := config.GetAllKeys()
	entries := make([]ConfigEntry, 0, len(keys))
	for _, k := range keys {
		v, err := cfg.Get(k)
		if err != nil {
			continue
		}
		e := ConfigEntry{Key: k, Value: v, Secret: config.IsSecretKey(k)}
		if e.Secret {
			e.Value = maskAPIKey(fmt.Sprint(v))
		}
		entries = append(entries, e)
	}
	return entries
}

func sectionOf(key string) string {
	if i := strings.IndexByte(key, '.'); i > 0 {
		return key[:i]
	}
	return "general"
}

func renderConfigValue(e ConfigEntry) string {
	s := fmt.Sprint(e.Value)
	if e.Secret {
		return configMaskedStyle.Render(s)
	}
	if s == "" {
		return DimStyle.Render("(empty)")
	}
	return ValueStyle.Render(s)
}

// normalizeConfigKey accepts "api_timeout_secs" style keys for the known
// sections.
func normalizeConfigKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if strings.Contains(key, ".") {
		return key
	}
	for _, k := range config.GetAllKeys() {
		if strings.ReplaceAll(k, ".", "_") == key {
			return k
		}
	}
	return key
}

// maskAPIKey masks a key as a SHA-256 fingerprint so no prefix is shown.
func maskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) < 8 {
		return "[invalid key]"
	}
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("sha256:%x...", hash[:4])
}
