// Package config loads and validates the frozen configuration snapshot
// the core consumes. The on-disk shape is JSON (the wire format named
// by the configuration file contract); YAML profiles are still
// accepted as a secondary format for parity with the original Python
// loader, and CLI flags are layered on top and always win.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// FFmpegParams is the frozen TranscodeSpec input taken from configuration,
// before it is resolved into internal/transcode.Spec.
type FFmpegParams struct {
	VideoEncoder string   `json:"video_encoder" yaml:"video_encoder"`
	AudioCodec   string   `json:"audio_codec" yaml:"audio_codec"`
	Preset       string   `json:"preset" yaml:"preset"`
	Tune         string   `json:"tune" yaml:"tune"`
	CRF          int      `json:"crf" yaml:"crf"`
	FPS          int      `json:"fps" yaml:"fps"`
	IncludeAudio bool     `json:"include_audio" yaml:"include_audio"`
	Ladder       []Rung   `json:"ladder" yaml:"ladder"`
}

// Rung is one entry of the HLS rendition ladder.
type Rung struct {
	Height  int `json:"height" yaml:"height"`
	Bitrate int `json:"bitrate" yaml:"bitrate"`
}

// Config is the frozen snapshot handed to the core. Every field here
// corresponds to the configuration file's external interface shape.
type Config struct {
	InputFolder  string `json:"input_folder" yaml:"input_folder"`
	OutputFolder string `json:"output_folder" yaml:"output_folder"`

	MaxParallelJobs int `json:"max_parallel_jobs" yaml:"max_parallel_jobs"`

	AutoRenameFiles     bool `json:"auto_rename_files" yaml:"auto_rename_files"`
	AutoOrganizeFolders bool `json:"auto_organize_folders" yaml:"auto_organize_folders"`

	FileRenamePattern       string `json:"file_rename_pattern" yaml:"file_rename_pattern"`
	FileValidationPattern   string `json:"file_validation_pattern" yaml:"file_validation_pattern"`
	FolderOrganizationPattern string `json:"folder_organization_pattern" yaml:"folder_organization_pattern"`
	FileExtension           string `json:"file_extension" yaml:"file_extension"`

	FFmpegParams FFmpegParams `json:"ffmpeg_params" yaml:"ffmpeg_params"`

	// Ambient fields, not part of the original config file shape but
	// needed to run: binary paths, logging, and the stall/grace
	// thresholds pinned by the design notes.
	FFmpegPath     string `json:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath    string `json:"ffprobe_path" yaml:"ffprobe_path"`
	// AuditDBPath is where the sqlite audit archive is written. Empty
	// means "derive it from OutputFolder" (see appctx.New).
	AuditDBPath    string `json:"audit_db_path" yaml:"audit_db_path"`
	LogLevel       string `json:"log_level" yaml:"log_level"`
	StopOnFatal    bool   `json:"stop_on_fatal" yaml:"stop_on_fatal"`
	StallTimeoutS  int    `json:"stall_timeout_seconds" yaml:"stall_timeout_seconds"`
	WallTimeoutS   int    `json:"wall_timeout_seconds" yaml:"wall_timeout_seconds"`
	GraceSeconds   int    `json:"grace_seconds" yaml:"grace_seconds"`
	ProbeTimeoutS  int    `json:"probe_timeout_seconds" yaml:"probe_timeout_seconds"`
}

// Default returns a config with the documented defaults: the
// 0.75×cores parallelism floor is resolved later by the scheduler
// (MaxParallelJobs of 0 means "let the scheduler choose"), rename and
// organize default on, stall threshold 60s, wall deadline 4h, grace 5s,
// probe timeout 10s.
func Default() *Config {
	return &Config{
		MaxParallelJobs:           0,
		AutoRenameFiles:           true,
		AutoOrganizeFolders:       true,
		FileRenamePattern:         `^(\d+-\d+)\.\w+$`,
		FileValidationPattern:     `^\d+-\d+\.\w+$`,
		FolderOrganizationPattern: `^(\d+)-\d+$`,
		FileExtension:             ".mp4",
		FFmpegParams: FFmpegParams{
			VideoEncoder: "libx264",
			AudioCodec:   "aac",
			Preset:       "medium",
			IncludeAudio: true,
			Ladder: []Rung{
				{Height: 1080, Bitrate: 5_000_000},
				{Height: 720, Bitrate: 2_800_000},
				{Height: 480, Bitrate: 1_400_000},
			},
		},
		FFmpegPath:    "ffmpeg",
		FFprobePath:   "ffprobe",
		LogLevel:      "info",
		StallTimeoutS: 60,
		WallTimeoutS:  14_400,
		GraceSeconds:  5,
		ProbeTimeoutS: 10,
	}
}

// Load reads a configuration file. JSON is the canonical shape; a
// .yaml/.yml extension is accepted as well for operators who prefer
// that format for named profiles.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if isYAMLPath(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	return cfg, nil
}

// LoadProfile resolves a named profile under the profiles directory and
// loads it the same way as Load.
func LoadProfile(profilesDir, name string) (*Config, error) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		candidate := filepath.Join(profilesDir, name+ext)
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
	}
	return nil, fmt.Errorf("profile %q not found under %s", name, profilesDir)
}

func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func applyDefaults(cfg *Config) {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.StallTimeoutS <= 0 {
		cfg.StallTimeoutS = 60
	}
	if cfg.WallTimeoutS <= 0 {
		cfg.WallTimeoutS = 14_400
	}
	if cfg.GraceSeconds <= 0 {
		cfg.GraceSeconds = 5
	}
	if cfg.ProbeTimeoutS <= 0 {
		cfg.ProbeTimeoutS = 10
	}
	if cfg.FileExtension == "" {
		cfg.FileExtension = ".mp4"
	}
}

// Save writes the config as JSON, creating the parent directory if
// needed. Used to materialize a default config on first run.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ValidationError describes one problem found while validating a Config.
// The core never panics on configuration problems; Validate returns a
// slice of these instead (exceptions-to-typed-error-kinds, applied here
// to configuration the same way it is applied to job outcomes).
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the snapshot against the external interface schema:
// required paths must be set and the input folder must exist, patterns
// must compile, and the rename and organization patterns must carry at
// least one capture group.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.InputFolder == "" {
		errs = append(errs, ValidationError{"input_folder", "is required"})
	} else if info, err := os.Stat(c.InputFolder); err != nil || !info.IsDir() {
		errs = append(errs, ValidationError{"input_folder", "does not exist or is not a directory"})
	}

	if c.OutputFolder == "" {
		errs = append(errs, ValidationError{"output_folder", "is required"})
	}

	if c.MaxParallelJobs < 0 {
		errs = append(errs, ValidationError{"max_parallel_jobs", "must be >= 0"})
	}

	errs = append(errs, validatePattern("file_rename_pattern", c.FileRenamePattern, true)...)
	errs = append(errs, validatePattern("file_validation_pattern", c.FileValidationPattern, false)...)
	errs = append(errs, validatePattern("folder_organization_pattern", c.FolderOrganizationPattern, true)...)

	return errs
}

// CLIOverrides holds the subset of CLI flags that override configuration
// file values. Flags are applied after the config file is loaded, so
// flags always win (ground truth: application_context.py loads the
// config first, then calls _apply_args_to_config over it). A nil/zero
// field means "flag not passed, leave the config value alone" — callers
// must only set the pointer fields they actually parsed from argv.
type CLIOverrides struct {
	Input, Output             *string
	Encoder, Preset, Tune     *string
	FPS                       *int
	NoAudio                   *bool
	Parallel                  *int
	Rename, Organize          *bool
	Verbose                   *bool
}

// Apply layers CLI overrides onto the config in place.
func (c *Config) Apply(o CLIOverrides) {
	if o.Input != nil {
		c.InputFolder = *o.Input
	}
	if o.Output != nil {
		c.OutputFolder = *o.Output
	}
	if o.Encoder != nil {
		c.FFmpegParams.VideoEncoder = *o.Encoder
	}
	if o.Preset != nil {
		c.FFmpegParams.Preset = *o.Preset
	}
	if o.Tune != nil {
		c.FFmpegParams.Tune = *o.Tune
	}
	if o.FPS != nil {
		c.FFmpegParams.FPS = *o.FPS
	}
	if o.NoAudio != nil {
		c.FFmpegParams.IncludeAudio = !*o.NoAudio
	}
	if o.Parallel != nil {
		c.MaxParallelJobs = *o.Parallel
	}
	if o.Rename != nil {
		c.AutoRenameFiles = *o.Rename
	}
	if o.Organize != nil {
		c.AutoOrganizeFolders = *o.Organize
	}
	if o.Verbose != nil && *o.Verbose {
		c.LogLevel = "debug"
	}
}

func validatePattern(field, pattern string, requireCaptureGroup bool) []ValidationError {
	if pattern == "" {
		return []ValidationError{{field, "is required"}}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return []ValidationError{{field, fmt.Sprintf("does not compile: %v", err)}}
	}
	if requireCaptureGroup && re.NumSubexp() < 1 {
		return []ValidationError{{field, "must contain at least one capture group"}}
	}
	return nil
}
