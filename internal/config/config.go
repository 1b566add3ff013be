package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port       int              `json:"port"`
	Database   DatabaseConfig   `json:"database"`
	LogConfig  logger.LogConfig `json:"log_config"`
	Media      MediaConfig      `json:"media"`
	Import     ImportConfig     `json:"import"`
	Recognizer RecognizerConfig `json:"recognizer"`
	Glyph      GlyphConfig      `json:"glyph"`
	RefData    RefDataConfig    `json:"ref_data"`
	FileStore  FileStoreConfig  `json:"file_store"`
	Cleanup    CleanupConfig    `json:"cleanup"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type MediaConfig struct {
	BaseDir string `json:"base_dir"`
}

type ImportConfig struct {
	OutputDir        string `json:"output_dir"`
	MaxUploadSize    int64  `json:"max_upload_size"`
	MaxAttempts      int    `json:"max_attempts"`
	RetryDelaySec    int    `json:"retry_delay_sec"`
	SoftTimeLimitSec int    `json:"soft_time_limit_sec"`
	HardTimeLimitSec int    `json:"hard_time_limit_sec"`
	KeepOldReports   bool   `json:"keep_old_reports"`
	JobMaxAgeHours   int    `json:"job_max_age_hours"`
}

type RecognizerConfig struct {
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	TimeoutSec     int      `json:"timeout_sec"`
	MinConfidence  float64  `json:"min_confidence"`
	DefaultVariant string   `json:"default_variant"`
}

type GlyphConfig struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type RefDataConfig struct {
	StrokeCountFile string `json:"stroke_count_file"`
	StrokeOrderFile string `json:"stroke_order_file"`
	PinyinFile      string `json:"pinyin_file"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type CleanupConfig struct {
	ImportJobSpec string `json:"import_job_spec"`
	ExportSpec    string `json:"export_spec"`
	ExportMaxAgeH int    `json:"export_max_age_hours"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Media.BaseDir == "" {
		return nil, fmt.Errorf("media.base_dir is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Import.OutputDir == "" {
		cfg.Import.OutputDir = "import_results"
	}
	if cfg.Import.MaxUploadSize == 0 {
		cfg.Import.MaxUploadSize = 100 << 20
	}
	if cfg.Import.MaxAttempts == 0 {
		cfg.Import.MaxAttempts = 3
	}
	if cfg.Import.RetryDelaySec == 0 {
		cfg.Import.RetryDelaySec = 5
	}
	if cfg.Import.SoftTimeLimitSec == 0 {
		cfg.Import.SoftTimeLimitSec = 25 * 60
	}
	if cfg.Import.HardTimeLimitSec == 0 {
		cfg.Import.HardTimeLimitSec = 30 * 60
	}
	if cfg.Import.JobMaxAgeHours == 0 {
		cfg.Import.JobMaxAgeHours = 72
	}
	if cfg.Recognizer.TimeoutSec == 0 {
		cfg.Recognizer.TimeoutSec = 30
	}
	if cfg.Recognizer.DefaultVariant == "" {
		cfg.Recognizer.DefaultVariant = "simplified"
	}
	if cfg.Cleanup.ImportJobSpec == "" {
		cfg.Cleanup.ImportJobSpec = "0 3 * * *"
	}
	if cfg.Cleanup.ExportSpec == "" {
		cfg.Cleanup.ExportSpec = "30 3 * * *"
	}
	if cfg.Cleanup.ExportMaxAgeH == 0 {
		cfg.Cleanup.ExportMaxAgeH = 24
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
		cfg.FileStore.Data = map[string]interface{}{"dir": cfg.Media.BaseDir}
	}
	return &cfg, nil
}
