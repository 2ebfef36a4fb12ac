package transcode

import (
	"strings"
	"testing"
)

func TestDedupLadderRemovesDuplicates(t *testing.T) {
	ladder := []Rung{
		{Height: 1080, Bitrate: 5_000_000},
		{Height: 720, Bitrate: 2_800_000},
		{Height: 1080, Bitrate: 5_000_000},
	}

	deduped := dedupLadder(ladder)

	if len(deduped) != 2 {
		t.Fatalf("expected 2 rungs after dedup, got %d", len(deduped))
	}
}

func TestBuildArgvIncludesOneStreamPerRung(t *testing.T) {
	job := Job{InputPath: "/in/movie.mp4", OutputRoot: "/out/movie"}
	spec := Spec{
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
		IncludeAudio: true,
		Ladder: []Rung{
			{Height: 1080, Bitrate: 5_000_000},
			{Height: 720, Bitrate: 2_800_000},
		},
	}

	argv := buildArgv(job, spec)
	joined := strings.Join(argv, " ")

	if !strings.Contains(joined, "-i /in/movie.mp4") {
		t.Errorf("expected input flag in argv: %s", joined)
	}
	if strings.Count(joined, "-c:v:") != 2 {
		t.Errorf("expected one -c:v: flag per rung, got argv: %s", joined)
	}
	if !strings.Contains(joined, "-var_stream_map v:0,a:0 v:1,a:1") {
		t.Errorf("expected var_stream_map with both renditions: %s", joined)
	}
	if !strings.Contains(joined, "-master_pl_name "+masterPlaylistName) {
		t.Errorf("expected master playlist name flag: %s", joined)
	}
}

func TestBuildArgvNoAudioOmitsAudioMap(t *testing.T) {
	job := Job{InputPath: "/in/movie.mp4", OutputRoot: "/out/movie"}
	spec := Spec{
		VideoCodec:   "libx264",
		IncludeAudio: false,
		Ladder:       []Rung{{Height: 480, Bitrate: 1_000_000}},
	}

	argv := buildArgv(job, spec)
	joined := strings.Join(argv, " ")

	if strings.Contains(joined, "-c:a:0") {
		t.Errorf("expected no audio codec flag when IncludeAudio is false: %s", joined)
	}
	if !strings.Contains(joined, "-an") {
		t.Errorf("expected -an flag when IncludeAudio is false: %s", joined)
	}
}
