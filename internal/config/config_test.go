package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	body := Config{
		InputFolder:  dir,
		OutputFolder: filepath.Join(dir, "out"),
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InputFolder != dir {
		t.Fatalf("InputFolder = %q, want %q", cfg.InputFolder, dir)
	}
	if cfg.FFmpegPath != "ffmpeg" {
		t.Fatalf("expected default ffmpeg_path, got %q", cfg.FFmpegPath)
	}
	if cfg.StallTimeoutS != 60 {
		t.Fatalf("expected default stall timeout 60, got %d", cfg.StallTimeoutS)
	}
}

func TestValidateRequiresInputOutput(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	var sawInput, sawOutput bool
	for _, e := range errs {
		if e.Field == "input_folder" {
			sawInput = true
		}
		if e.Field == "output_folder" {
			sawOutput = true
		}
	}
	if !sawInput || !sawOutput {
		t.Fatalf("expected input_folder and output_folder errors, got %v", errs)
	}
}

func TestValidateRejectsPatternWithoutCaptureGroup(t *testing.T) {
	cfg := Default()
	cfg.InputFolder = t.TempDir()
	cfg.OutputFolder = t.TempDir()
	cfg.FileRenamePattern = `^\d+-\d+\.\w+$` // no capture group

	errs := cfg.Validate()
	found := false
	for _, e := range errs {
		if e.Field == "file_rename_pattern" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected file_rename_pattern validation error, got %v", errs)
	}
}

func TestApplyOverridesWinOverFile(t *testing.T) {
	cfg := Default()
	cfg.FFmpegParams.Preset = "medium"

	preset := "veryfast"
	cfg.Apply(CLIOverrides{Preset: &preset})

	if cfg.FFmpegParams.Preset != "veryfast" {
		t.Fatalf("expected CLI override to win, got %q", cfg.FFmpegParams.Preset)
	}
}
