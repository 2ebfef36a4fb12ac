package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/corrinfell/mediaforge/internal/appctx"
	"github.com/corrinfell/mediaforge/internal/config"
	"github.com/corrinfell/mediaforge/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	input := flag.String("input", "", "Input directory (required)")
	output := flag.String("output", "", "Output directory (required)")
	encoder := flag.String("encoder", "", "Video encoder override")
	preset := flag.String("preset", "", "Encoder preset override")
	tune := flag.String("tune", "", "Encoder tune override")
	fps := flag.Int("fps", 0, "Output frame rate override")
	noAudio := flag.Bool("no-audio", false, "Strip audio from output renditions")
	parallel := flag.Int("parallel", 0, "Max parallel jobs (0 = auto)")
	rename := flag.Bool("rename", true, "Rename input files to canonical form before processing")
	noRename := flag.Bool("no-rename", false, "Disable renaming input files (overrides --rename)")
	organizeFlag := flag.Bool("organize", true, "Organize output folders into buckets after processing")
	noOrganize := flag.Bool("no-organize", false, "Disable organizing output folders (overrides --organize)")
	configPath := flag.String("config", "", "Path to a JSON configuration file")
	profile := flag.String("profile", "", "Named profile to load from the profiles directory")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	applyEnvDefaults(input)

	overrides := config.CLIOverrides{
		Encoder: nonEmpty(*encoder), Preset: nonEmpty(*preset), Tune: nonEmpty(*tune),
		Verbose: boolPtr(*verbose),
	}
	if *input != "" {
		overrides.Input = input
	}
	if *output != "" {
		overrides.Output = output
	}
	if *fps > 0 {
		overrides.FPS = fps
	}
	if *noAudio {
		overrides.NoAudio = boolPtr(true)
	}
	if *parallel > 0 {
		overrides.Parallel = parallel
	}
	passedFlags := visitedFlags()
	if passedFlags["rename"] || passedFlags["no-rename"] {
		v := *rename && !*noRename
		overrides.Rename = &v
	}
	if passedFlags["organize"] || passedFlags["no-organize"] {
		v := *organizeFlag && !*noOrganize
		overrides.Organize = &v
	}

	profilesDir := profilesDirectory()

	cfg, errs := appctx.Load(*configPath, *profile, profilesDir, overrides)
	logLevel := "info"
	if *verbose {
		logLevel = "debug"
	}
	logger.Init(logLevel)

	if len(errs) > 0 {
		for _, e := range errs {
			logger.Error("mediaforge: configuration error", "field", e.Field, "message", e.Message)
			fmt.Fprintf(os.Stderr, "configuration error: %s\n", e.Error())
		}
		return appctx.ExitFailure
	}

	app := appctx.New(cfg)
	return app.Run(context.Background())
}

// applyEnvDefaults layers the external env var contract under the
// flags: MEDIA_ROOT seeds --input when the flag was not passed, the
// "env var checked when flag is empty" precedence used in
// cmd/shrinkray/main.go. Names are carried verbatim — they predate
// this rewrite and existing deployment scripts depend on them.
//
// PYPROCESSOR_LOG_DIR is accepted but not consulted here: the logger
// always writes to stdout, so there is no log file path to redirect.
func applyEnvDefaults(input *string) {
	if *input == "" {
		if root := os.Getenv("MEDIA_ROOT"); root != "" {
			*input = root
		} else if dataDir := os.Getenv("PYPROCESSOR_DATA_DIR"); dataDir != "" {
			*input = dataDir
		}
	}
}

func profilesDirectory() string {
	if dir := os.Getenv("PYPROCESSOR_PROFILES_DIR"); dir != "" {
		return dir
	}
	return "profiles"
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func boolPtr(b bool) *bool { return &b }

// visitedFlags reports which flags the operator actually passed, so a
// --rename/--no-rename pair whose defaults are true/false doesn't
// silently clobber a config file's auto_rename_files=false when the
// operator never mentioned renaming at all.
func visitedFlags() map[string]bool {
	seen := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		seen[f.Name] = true
	})
	return seen
}
