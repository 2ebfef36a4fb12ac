package transcode

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// masterPlaylistName is the well-known name the Driver checks for when
// verifying output after a successful exit, per §4.1.
const masterPlaylistName = "master.m3u8"

// buildArgv constructs the full ffmpeg argument list for an HLS ladder
// encode. Never shells out — every argument is a discrete exec.Cmd
// element, matching the sandbox's "never via shell" contract.
//
// Structure: ffmpeg -y -progress pipe:1 -nostats -i <input>
// [-map 0:v -map 0:a?]... per-rung filter/encode args -var_stream_map
// -master_pl_name master.m3u8 -hls_segment_filename ... <outputRoot>/%v/stream.m3u8
func buildArgv(job Job, spec Spec) []string {
	ladder := dedupLadder(spec.Ladder)

	args := []string{
		"-y",
		"-progress", "pipe:1",
		"-nostats",
		"-i", job.InputPath,
	}

	var streamMaps []string
	for i, rung := range ladder {
		args = append(args, "-map", "0:v:0")
		if spec.IncludeAudio {
			args = append(args, "-map", "0:a:0?")
		}
		args = append(args,
			fmt.Sprintf("-c:v:%d", i), spec.VideoCodec,
			fmt.Sprintf("-filter:v:%d", i), fmt.Sprintf("scale=-2:%d", rung.Height),
			fmt.Sprintf("-b:v:%d", i), strconv.Itoa(rung.Bitrate),
		)
		if spec.Preset != "" {
			args = append(args, fmt.Sprintf("-preset:v:%d", i), spec.Preset)
		}
		if spec.Tune != "" {
			args = append(args, fmt.Sprintf("-tune:v:%d", i), spec.Tune)
		}
		if spec.CRF > 0 {
			args = append(args, fmt.Sprintf("-crf:v:%d", i), strconv.Itoa(spec.CRF))
		}
		if spec.FPS > 0 {
			args = append(args, fmt.Sprintf("-r:v:%d", i), strconv.Itoa(spec.FPS))
		}
		if spec.IncludeAudio {
			args = append(args, fmt.Sprintf("-c:a:%d", i), spec.AudioCodec)
			streamMaps = append(streamMaps, fmt.Sprintf("v:%d,a:%d", i, i))
		} else {
			args = append(args, "-an")
			streamMaps = append(streamMaps, fmt.Sprintf("v:%d", i))
		}
	}

	varStreamMap := ""
	for i, m := range streamMaps {
		if i > 0 {
			varStreamMap += " "
		}
		varStreamMap += m
	}

	args = append(args,
		"-f", "hls",
		"-hls_time", "6",
		"-hls_playlist_type", "vod",
		"-var_stream_map", varStreamMap,
		"-master_pl_name", masterPlaylistName,
		"-hls_segment_filename", filepath.Join(job.OutputRoot, "%v", "seg_%03d.ts"),
		filepath.Join(job.OutputRoot, "%v", "stream.m3u8"),
	)

	return args
}
