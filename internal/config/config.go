package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// AppConfig application configuration, read from config.toml
type AppConfig struct {
	Registry RegistryConfig `toml:"registry"`
	Matcher  MatcherConfig  `toml:"matcher"`
	Merger   MergerConfig   `toml:"merger"`
	Data     DataConfig     `toml:"data"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// RegistryConfig Price Paid SPARQL endpoint
type RegistryConfig struct {
	Endpoint           string `toml:"endpoint"`
	UserAgent          string `toml:"user_agent"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// MatcherConfig input/output workbooks and pacing
type MatcherConfig struct {
	InputPath      string `toml:"input_path"`
	InputSheet     string `toml:"input_sheet"` // empty: first sheet
	OutputPath     string `toml:"output_path"`
	OutputSheet    string `toml:"output_sheet"`
	IDColumn       string `toml:"id_column"`
	DoorColumn     string `toml:"door_column"`
	PostcodeColumn string `toml:"postcode_column"`
	Retries        int    `toml:"retries"`
	DelayMillis    int    `toml:"delay_ms"`
}

// MergerConfig merge source and master workbook
type MergerConfig struct {
	SourcePath  string `toml:"source_path"`
	SourceSheet string `toml:"source_sheet"`
	TargetPath  string `toml:"target_path"`
	TargetSheet string `toml:"target_sheet"`
}

// DataConfig run history location
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// ServerConfig HTTP API
type ServerConfig struct {
	Port    int  `toml:"port"`
	DevMode bool `toml:"dev_mode"`
}

// LogConfig level: trace/debug/info/warn/error, format: auto/console/json
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig defaults used for anything config.toml leaves out
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Registry: RegistryConfig{
			Endpoint:           "https://landregistry.data.gov.uk/landregistry/sparql",
			UserAgent:          "landreg/1.0",
			TimeoutSeconds:     30,
			InsecureSkipVerify: true,
		},
		Matcher: MatcherConfig{
			InputPath:      "Input Data.xlsx",
			OutputPath:     "Output_Land_Registry_Check.xlsx",
			OutputSheet:    "Sheet1",
			IDColumn:       "property_id",
			DoorColumn:     "door_number",
			PostcodeColumn: "postcode",
			Retries:        2,
			DelayMillis:    500,
		},
		Merger: MergerConfig{
			SourcePath:  "Output_Land_Registry_Check.xlsx",
			SourceSheet: "Sheet1",
			TargetPath:  "Final_Data.xlsx",
			TargetSheet: "Sheet1",
		},
		Data: DataConfig{
			DataDir: "data",
		},
		Server: ServerConfig{
			Port:    20262,
			DevMode: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Timeout registry request timeout
func (c RegistryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Delay pause between properties
func (c MatcherConfig) Delay() time.Duration {
	return time.Duration(c.DelayMillis) * time.Millisecond
}

// GetExeDir directory of the running executable
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// DefaultConfigPath config.toml next to the executable
func DefaultConfigPath() string {
	exeDir, err := GetExeDir()
	if err != nil {
		exeDir = "."
	}
	return filepath.Join(exeDir, "config.toml")
}

// Load reads path (config.toml next to the executable when empty) over the
// defaults, then applies .env and LANDREG_* environment overrides.
// A missing file is not an error.
func Load(path string) (*AppConfig, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	// .env is optional
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv environment overrides
func applyEnv(cfg *AppConfig) error {
	str := map[string]*string{
		"LANDREG_ENDPOINT":    &cfg.Registry.Endpoint,
		"LANDREG_INPUT_PATH":  &cfg.Matcher.InputPath,
		"LANDREG_INPUT_SHEET": &cfg.Matcher.InputSheet,
		"LANDREG_OUTPUT_PATH": &cfg.Matcher.OutputPath,
		"LANDREG_SOURCE_PATH": &cfg.Merger.SourcePath,
		"LANDREG_TARGET_PATH": &cfg.Merger.TargetPath,
		"LANDREG_DATA_DIR":    &cfg.Data.DataDir,
		"LANDREG_LOG_FORMAT":  &cfg.Log.Format,
		"LOG_LEVEL":           &cfg.Log.Level,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"LANDREG_RETRIES":  &cfg.Matcher.Retries,
		"LANDREG_DELAY_MS": &cfg.Matcher.DelayMillis,
		"LANDREG_PORT":     &cfg.Server.Port,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = n
	}
	return nil
}

// Save writes cfg to path as TOML.
func Save(cfg *AppConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// EnsureDataDir creates the data directory; relative paths are resolved
// against the executable directory.
func EnsureDataDir(cfg *AppConfig) (string, error) {
	dataDir := cfg.Data.DataDir
	if !filepath.IsAbs(dataDir) {
		exeDir, err := GetExeDir()
		if err != nil {
			exeDir = "."
		}
		dataDir = filepath.Join(exeDir, dataDir)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}

// DatabasePath run history database inside the data directory
func DatabasePath(dataDir string) string {
	return filepath.Join(dataDir, "landreg.db")
}
