package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/reelworks/segfilter/internal/logger"
)

// ProbeResult contains metadata about a video file
type ProbeResult struct {
	Path        string        `json:"path"`
	Size        int64         `json:"size"`
	Duration    time.Duration `json:"duration"`
	Format      string        `json:"format"`
	VideoCodec  string        `json:"video_codec"`
	AudioCodec  string        `json:"audio_codec"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	Bitrate     int64         `json:"bitrate"` // bits per second
	FrameRate   float64       `json:"frame_rate"`
	FrameCount  int64         `json:"frame_count"` // nb_frames when the container reports it
	PixelFormat string        `json:"pix_fmt"`
}

// HasAudio reports whether the file carries at least one audio stream.
func (r *ProbeResult) HasAudio() bool {
	return r.AudioCodec != ""
}

// Analytics is the summary reported to a client after upload.
type Analytics struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FPS             float64 `json:"fps"`
	AspectRatio     float64 `json:"aspect_ratio"`
	TotalFrames     int64   `json:"total_frames"`
	HasAudio        bool    `json:"has_audio"`
	FileSizeMB      float64 `json:"file_size_mb"`
	BitrateMbps     float64 `json:"bitrate_mbps"`
}

// ffprobeOutput represents the JSON output from ffprobe
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	Index        int    `json:"index"`
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	PixelFormat  string `json:"pix_fmt"`
}

// Prober wraps ffprobe functionality
type Prober struct {
	ffprobePath string
}

// NewProber creates a new Prober with the given ffprobe path
func NewProber(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

// Probe returns metadata about a video file
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("ffprobe failed: %s", string(exitErr.Stderr))
		}
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrToolMissing, p.ffprobePath)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeOutput(path, output)
}

func parseProbeOutput(path string, output []byte) (*ProbeResult, error) {
	var probeOutput ffprobeOutput
	if err := json.Unmarshal(output, &probeOutput); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	result := &ProbeResult{
		Path:   path,
		Format: probeOutput.Format.FormatName,
	}

	// Parse format-level metadata
	if probeOutput.Format.Size != "" {
		result.Size, _ = strconv.ParseInt(probeOutput.Format.Size, 10, 64)
	}
	if probeOutput.Format.BitRate != "" {
		result.Bitrate, _ = strconv.ParseInt(probeOutput.Format.BitRate, 10, 64)
	}
	if probeOutput.Format.Duration != "" {
		durationSec, _ := strconv.ParseFloat(probeOutput.Format.Duration, 64)
		result.Duration = time.Duration(durationSec * float64(time.Second))
	}

	// Parse stream-level metadata
	for i := range probeOutput.Streams {
		stream := &probeOutput.Streams[i]
		switch stream.CodecType {
		case "video":
			if result.VideoCodec == "" { // Take first video stream
				result.VideoCodec = stream.CodecName
				result.Width = stream.Width
				result.Height = stream.Height
				result.FrameRate = parseFrameRate(stream.RFrameRate)
				if result.FrameRate == 0 {
					result.FrameRate = parseFrameRate(stream.AvgFrameRate)
				}
				result.FrameCount, _ = strconv.ParseInt(stream.NbFrames, 10, 64)
				result.PixelFormat = stream.PixelFormat
			}
		case "audio":
			if result.AudioCodec == "" { // Take first audio stream
				result.AudioCodec = stream.CodecName
			}
		}
	}

	return result, nil
}

// Analyze returns upload analytics for a file. It never fails: when the
// file cannot be probed every field is zero except the file size.
func (p *Prober) Analyze(ctx context.Context, path string) Analytics {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	probe, err := p.Probe(ctx, path)
	if err != nil {
		logger.Warn("Analytics probe failed", "path", path, "error", err)
		return Analytics{FileSizeMB: sizeMB(size)}
	}
	if probe.Size == 0 {
		probe.Size = size
	}
	return analyticsFromProbe(probe)
}

func analyticsFromProbe(probe *ProbeResult) Analytics {
	a := Analytics{
		DurationSeconds: round(probe.Duration.Seconds(), 2),
		Width:           probe.Width,
		Height:          probe.Height,
		FPS:             round(probe.FrameRate, 2),
		TotalFrames:     probe.FrameCount,
		HasAudio:        probe.HasAudio(),
		FileSizeMB:      sizeMB(probe.Size),
	}
	if probe.Height > 0 {
		a.AspectRatio = round(float64(probe.Width)/float64(probe.Height), 2)
	}
	if a.TotalFrames == 0 {
		a.TotalFrames = int64(math.Round(probe.Duration.Seconds() * probe.FrameRate))
	}
	if secs := probe.Duration.Seconds(); secs > 0 {
		a.BitrateMbps = round(float64(probe.Size)*8/secs/1e6, 2)
	}
	logger.Debug("Analyzed upload",
		"path", probe.Path,
		"size", humanize.Bytes(uint64(probe.Size)),
		"geometry", fmt.Sprintf("%dx%d", probe.Width, probe.Height),
		"fps", a.FPS,
		"audio", a.HasAudio)
	return a
}

func sizeMB(size int64) float64 {
	return round(float64(size)/(1024*1024), 2)
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// parseFrameRate parses a frame rate string like "30000/1001" or "30/1"
func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den == 0 {
		return 0
	}
	return num / den
}
