// Package config loads vibe-prs settings from a YAML file, VIBE_PRS_*
// environment variables and built-in defaults.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix (VIBE_PRS_SERVER_PORT, ...).
const EnvPrefix = "VIBE_PRS"

// Supported reference genome builds.
const (
	GRCh37 = "GRCh37"
	GRCh38 = "GRCh38"
)

// Config is the complete application configuration.
type Config struct {
	Workspace  WorkspaceConfig      `mapstructure:"workspace"`
	References map[string]Reference `mapstructure:"references"`
	Annotation AnnotationConfig     `mapstructure:"annotation"`
	Tools      ToolsConfig          `mapstructure:"tools"`
	Server     ServerConfig         `mapstructure:"server"`
	Store      StoreConfig          `mapstructure:"store"`
}

// WorkspaceConfig holds the directory layout of a run.
type WorkspaceConfig struct {
	ScratchDir string `mapstructure:"scratch_dir"`
	OutputDir  string `mapstructure:"output_dir"`
	LogDir     string `mapstructure:"log_dir"`
}

// Reference is the static (score panel, frequency) pair of one build.
type Reference struct {
	ScoreFile string `mapstructure:"score_file"`
	FreqFile  string `mapstructure:"freq_file"`
}

// AnnotationConfig locates the drug-annotation table.
type AnnotationConfig struct {
	Table     string `mapstructure:"table"`
	KeyColumn string `mapstructure:"key_column"`
}

// ToolsConfig locates the external binaries.
type ToolsConfig struct {
	Bcftools string `mapstructure:"bcftools"`
	Plink2   string `mapstructure:"plink2"`
	Threads  int    `mapstructure:"threads"`
	MemoryMB int    `mapstructure:"memory_mb"`
}

// ServerConfig configures the HTTP shim.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	InputRoot       string        `mapstructure:"input_root"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"` // predict requests per second; 0 disables
	RateBurst       int           `mapstructure:"rate_burst"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig locates the run ledger database.
type StoreConfig struct {
	Path string `mapstructure:"path"` // empty disables the ledger
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workspace.scratch_dir", "input")
	v.SetDefault("workspace.output_dir", "output")
	v.SetDefault("workspace.log_dir", "log")

	v.SetDefault("references.grch37.score_file", "input/prs/PGS000195_hmPOS_GRCh37.txt")
	v.SetDefault("references.grch37.freq_file", "input/prs/PGS000195_hmPOS_GRCh37.freq")
	v.SetDefault("references.grch38.score_file", "input/prs/PGS000195_hmPOS_GRCh38.txt")
	v.SetDefault("references.grch38.freq_file", "input/prs/PGS000195_hmPOS_GRCh38.freq")

	v.SetDefault("annotation.table", "")
	v.SetDefault("annotation.key_column", "")

	v.SetDefault("tools.bcftools", "bcftools")
	v.SetDefault("tools.plink2", "plink2")
	v.SetDefault("tools.threads", 0)
	v.SetDefault("tools.memory_mb", 0)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.input_root", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 1)

	v.SetDefault("store.path", "")
}

// BindEnv enables VIBE_PRS_* environment overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New returns the default configuration, with environment overrides.
func New() (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return Load(v)
}

// Validate checks for settings that would make every run fail.
func (c *Config) Validate() error {
	if c.Workspace.ScratchDir == "" || c.Workspace.OutputDir == "" || c.Workspace.LogDir == "" {
		return fmt.Errorf("invalid config: workspace directories must be set")
	}
	if c.Tools.Bcftools == "" || c.Tools.Plink2 == "" {
		return fmt.Errorf("invalid config: tool paths must be set")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	for name, ref := range c.References {
		if ref.ScoreFile == "" || ref.FreqFile == "" {
			return fmt.Errorf("invalid config: references.%s needs score_file and freq_file", name)
		}
	}
	return nil
}

// CastToBuild maps a case-insensitive selector to GRCh37 or GRCh38.
func CastToBuild(text string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "grch37":
		return GRCh37, true
	case "grch38":
		return GRCh38, true
	default:
		return "", false
	}
}

// Reference returns the reference pair for a recognized build selector.
func (c *Config) Reference(build string) (Reference, bool) {
	b, ok := CastToBuild(build)
	if !ok {
		return Reference{}, false
	}
	ref, ok := c.References[strings.ToLower(b)]
	return ref, ok
}

// Builds returns the configured build names, sorted.
func (c *Config) Builds() []string {
	names := make([]string, 0, len(c.References))
	for name := range c.References {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
