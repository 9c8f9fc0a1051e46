package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// ResolvedValue carries a setting together with where it came from, so
// the config command can explain the active configuration.
type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// Effective returns v when set, otherwise the built-in fallback.
func (v ResolvedValue) Effective(fallback string) ResolvedValue {
	if strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{Value: fallback, Source: SourceDefault, From: "built-in default"}
}

// ResolveOptions carries the command-line overrides into resolution.
type ResolveOptions struct {
	ConfigPath    string
	CLIDBPath     string
	CLILinkage    string
	CLICutHeight  string
	CLIComponents string
}

// ResolvedConfig is the merged view of file, environment, and flags.
// Precedence: default < config file < environment < CLI.
type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath ResolvedValue `json:"db_path"`

	Linkage    ResolvedValue `json:"linkage"`
	CutHeight  ResolvedValue `json:"cut_height"`
	Components ResolvedValue `json:"components"`

	IDColumn    ResolvedValue `json:"id_column"`
	TagsColumn  ResolvedValue `json:"tags_column"`
	TitleColumn ResolvedValue `json:"title_column"`
}

type fileConfig struct {
	DBPath  string `yaml:"db_path"`
	Analyze struct {
		Linkage    string `yaml:"linkage"`
		CutHeight  string `yaml:"cut_height"`
		Components string `yaml:"components"`
	} `yaml:"analyze"`
	Import struct {
		IDColumn    string `yaml:"id_col"`
		TagsColumn  string `yaml:"tags_col"`
		TitleColumn string `yaml:"title_col"`
	} `yaml:"import"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tagmap", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.Linkage, cfg.Analyze.Linkage, SourceConfig, path)
		apply(&out.CutHeight, cfg.Analyze.CutHeight, SourceConfig, path)
		apply(&out.Components, cfg.Analyze.Components, SourceConfig, path)
		apply(&out.IDColumn, cfg.Import.IDColumn, SourceConfig, path)
		apply(&out.TagsColumn, cfg.Import.TagsColumn, SourceConfig, path)
		apply(&out.TitleColumn, cfg.Import.TitleColumn, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "TAGMAP_DB")
	applyEnv(&out.DBPath, "TAGMAP_DB_PATH")

	applyEnv(&out.Linkage, "TAGMAP_LINKAGE")
	applyEnv(&out.CutHeight, "TAGMAP_CUT")
	applyEnv(&out.Components, "TAGMAP_COMPONENTS")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.Linkage, opts.CLILinkage, SourceCLI, "--linkage")
	apply(&out.CutHeight, opts.CLICutHeight, SourceCLI, "--cut")
	apply(&out.Components, opts.CLIComponents, SourceCLI, "--components")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	return out, nil
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
