package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	// GeometryConfig describes the reading viewport in points.
	GeometryConfig struct {
		Width  float64 `yaml:"width" validate:"gt=0"`
		Height float64 `yaml:"height" validate:"gt=0"`
	}

	// PaginationConfig carries the rendering parameters that determine page
	// boundaries. Any change here invalidates cached layouts and page counts.
	PaginationConfig struct {
		FontScale         float64        `yaml:"font_scale" validate:"gt=0"`
		MarginSize        int            `yaml:"margin_size" validate:"gte=0"`
		HorizontalPadding float64        `yaml:"horizontal_padding" validate:"gte=0"`
		VerticalPadding   float64        `yaml:"vertical_padding" validate:"gte=0"`
		Viewport          GeometryConfig `yaml:"viewport"`
	}

	// GesturesConfig tunes the page navigation resolver.
	GesturesConfig struct {
		// VelocityThreshold is in viewport widths per second. A settle with
		// velocity strictly above it advances a page.
		VelocityThreshold float64 `yaml:"velocity_threshold" validate:"gt=0"`
	}

	// RenderingConfig tunes the CSS-column bridge.
	RenderingConfig struct {
		// SettleDelayMs is how long to wait after a load before trusting
		// measured geometry. Column layout can finish after the load signal.
		SettleDelayMs  int    `yaml:"settle_delay_ms" validate:"gte=0"`
		ColumnGap      int    `yaml:"column_gap" validate:"gte=0"`
		StylesheetPath string `yaml:"stylesheet_path,omitempty" sanitize:"assure_file_access"`
		// UsePublisherCSS merges sanitized publisher stylesheets after the
		// house stylesheet.
		UsePublisherCSS bool `yaml:"use_publisher_css"`
	}

	// CacheConfig controls layout and page-count cache persistence. An empty
	// directory keeps caches in memory only.
	CacheConfig struct {
		Directory string `yaml:"directory,omitempty" sanitize:"path_clean"`
	}

	Config struct {
		Version    int              `yaml:"version" validate:"eq=1"`
		Pagination PaginationConfig `yaml:"pagination"`
		Gestures   GesturesConfig   `yaml:"gestures"`
		Rendering  RenderingConfig  `yaml:"rendering"`
		Cache      CacheConfig      `yaml:"cache"`
		Logging    LoggingConfig    `yaml:"logging"`
		Reporting  ReporterConfig   `yaml:"reporting"`
	}
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
