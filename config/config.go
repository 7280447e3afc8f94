package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds scraper configuration. It is built once at startup and
// treated as read-only afterwards.
type Config struct {
	BaseURL          string        `yaml:"base_url"`
	ListPath         string        `yaml:"list_path"`
	DetailPathPrefix string        `yaml:"detail_path_prefix"`
	UserAgent        string        `yaml:"user_agent"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	InterItemDelay   time.Duration `yaml:"inter_item_delay"`
	OutputFile       string        `yaml:"output_file"`
	OutputFormat     string        `yaml:"output_format"` // json, csv, or dual
	MetricsAddr      string        `yaml:"metrics_addr"`
	Verbose          bool          `yaml:"verbose"`
}

// DefaultConfig returns the settings for the public equipment catalog.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://dblegends.net",
		ListPath:         "/equipment",
		DetailPathPrefix: "/equip/",
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		FetchTimeout:     15 * time.Second,
		InterItemDelay:   time.Second,
		OutputFile:       "dbl_equipment_full.json",
		OutputFormat:     "json",
	}
}

// Load reads a YAML file on top of the defaults. Keys missing from the file
// keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	return cfg, nil
}

// ListURL is the absolute address of the listing page.
func (c *Config) ListURL() string {
	return JoinURL(c.BaseURL, c.ListPath)
}

// JoinURL appends ref to base with exactly one separating slash.
func JoinURL(base, ref string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(ref, "/")
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if !strings.HasPrefix(c.ListPath, "/") {
		return fmt.Errorf("list path must start with /")
	}
	if !strings.HasPrefix(c.DetailPathPrefix, "/") {
		return fmt.Errorf("detail path prefix must start with /")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if c.InterItemDelay < 0 {
		return fmt.Errorf("inter-item delay cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
