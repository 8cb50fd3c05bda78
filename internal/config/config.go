package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Chunk set persistence
	StoreBackend string // "sqlite" or "memory"
	DataDir      string

	// Source toggles. Disabling a source removes its detections from
	// consideration; the reconciler algorithm is unchanged.
	ExtractText   bool
	PerformOCR    bool
	AnalyzeLayout bool
	ExtractTables bool

	// External tools
	OCRBinary    string
	LayoutBinary string
	TableBinary  string
	Language     string

	// Confidence thresholds
	OCRConfidenceMin     float64
	TableConfidenceMin   float64
	NeedsReviewThreshold float64
	TypeDiscount         float64

	// Reconciliation geometry
	OverlapTolerance float64
	IoUMin           float64
	ContainFrac      float64
	MergeGapFrac     float64

	// OCR necessity: native characters per 10,000 px² below which a
	// page is considered scanned.
	OCRDensityThreshold float64

	// Concurrency and limits
	SourceTimeout  time.Duration
	PageWorkers    int
	WorkerCount    int
	MaxQueueSize   int
	MaxUploadBytes int64
	JobTTL         time.Duration
}

// Load builds the configuration from environment variables, applying
// an optional YAML overlay named by CONFIG_FILE on top.
func Load() (Config, error) {
	cfg := Config{
		Port: envOr("PORT", "8091"),

		APIKey: os.Getenv("DOCRECON_API_KEY"),

		StoreBackend: envOr("STORE_BACKEND", "sqlite"),
		DataDir:      envOr("DATA_DIR", "data"),

		ExtractText:   envBool("EXTRACT_TEXT", true),
		PerformOCR:    envBool("PERFORM_OCR", true),
		AnalyzeLayout: envBool("ANALYZE_LAYOUT", true),
		ExtractTables: envBool("EXTRACT_TABLES", true),

		OCRBinary:    envOr("OCR_BINARY", "tesseract"),
		LayoutBinary: os.Getenv("LAYOUT_BINARY"),
		TableBinary:  os.Getenv("TABLE_BINARY"),
		Language:     envOr("LANGUAGE", "eng"),

		OCRConfidenceMin:     envFloat("OCR_CONFIDENCE_MIN", 0.0),
		TableConfidenceMin:   envFloat("TABLE_CONFIDENCE_MIN", 0.5),
		NeedsReviewThreshold: envFloat("NEEDS_REVIEW_THRESHOLD", 0.5),
		TypeDiscount:         envFloat("TYPE_DISCOUNT", 0.15),

		OverlapTolerance: envFloat("OVERLAP_TOLERANCE", 0.10),
		IoUMin:           envFloat("IOU_MIN", 0.30),
		ContainFrac:      envFloat("CONTAIN_FRAC", 0.80),
		MergeGapFrac:     envFloat("MERGE_GAP_FRAC", 0.04),

		OCRDensityThreshold: envFloat("OCR_DENSITY_THRESHOLD", 5.0),

		SourceTimeout:  envDuration("SOURCE_TIMEOUT", 30*time.Second),
		PageWorkers:    envInt("PAGE_WORKERS", 4),
		WorkerCount:    envInt("WORKER_COUNT", 4),
		MaxQueueSize:   envInt("MAX_QUEUE_SIZE", 100),
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
		JobTTL:         envDuration("JOB_TTL", 1*time.Hour),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}

	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = 4
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 30 * time.Second
	}

	return cfg, nil
}

// fileConfig mirrors the YAML overlay. Pointers distinguish "absent"
// from zero values.
type fileConfig struct {
	ExtractText   *bool `yaml:"extract_text"`
	PerformOCR    *bool `yaml:"perform_ocr"`
	AnalyzeLayout *bool `yaml:"analyze_layout"`
	ExtractTables *bool `yaml:"extract_tables"`

	Language     *string `yaml:"language"`
	OCRBinary    *string `yaml:"ocr_binary"`
	LayoutBinary *string `yaml:"layout_binary"`
	TableBinary  *string `yaml:"table_binary"`

	OCRConfidenceMin     *float64 `yaml:"ocr_confidence_min"`
	TableConfidenceMin   *float64 `yaml:"table_confidence_min"`
	OverlapTolerance     *float64 `yaml:"overlap_tolerance"`
	NeedsReviewThreshold *float64 `yaml:"needs_review_threshold"`
	TypeDiscount         *float64 `yaml:"type_discount"`
	OCRDensityThreshold  *float64 `yaml:"ocr_density_threshold"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setBool(&c.ExtractText, fc.ExtractText)
	setBool(&c.PerformOCR, fc.PerformOCR)
	setBool(&c.AnalyzeLayout, fc.AnalyzeLayout)
	setBool(&c.ExtractTables, fc.ExtractTables)
	setString(&c.Language, fc.Language)
	setString(&c.OCRBinary, fc.OCRBinary)
	setString(&c.LayoutBinary, fc.LayoutBinary)
	setString(&c.TableBinary, fc.TableBinary)
	setFloat(&c.OCRConfidenceMin, fc.OCRConfidenceMin)
	setFloat(&c.TableConfidenceMin, fc.TableConfidenceMin)
	setFloat(&c.OverlapTolerance, fc.OverlapTolerance)
	setFloat(&c.NeedsReviewThreshold, fc.NeedsReviewThreshold)
	setFloat(&c.TypeDiscount, fc.TypeDiscount)
	setFloat(&c.OCRDensityThreshold, fc.OCRDensityThreshold)
	return nil
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("DOCRECON_API_KEY is required")
	}
	if c.StoreBackend != "sqlite" && c.StoreBackend != "memory" {
		return fmt.Errorf("STORE_BACKEND must be sqlite or memory, got %q", c.StoreBackend)
	}
	for name, v := range map[string]float64{
		"OCR_CONFIDENCE_MIN":     c.OCRConfidenceMin,
		"TABLE_CONFIDENCE_MIN":   c.TableConfidenceMin,
		"OVERLAP_TOLERANCE":      c.OverlapTolerance,
		"NEEDS_REVIEW_THRESHOLD": c.NeedsReviewThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %f", name, v)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
