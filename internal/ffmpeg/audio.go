package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/reelworks/segfilter/internal/logger"
)

// AudioSidecar moves a source's audio track out of the way before the video
// is filtered, and muxes it back onto the filtered result. Audio is copied
// on extraction and encoded to AAC on remux; it is never decoded here.
type AudioSidecar struct {
	ffmpegPath string
	prober     *Prober
}

// NewAudioSidecar creates an AudioSidecar.
func NewAudioSidecar(ffmpegPath string, prober *Prober) *AudioSidecar {
	return &AudioSidecar{ffmpegPath: ffmpegPath, prober: prober}
}

// Extract writes the first audio stream of src into dir and returns its path.
// ok is false when the source is silent or the toolchain is unavailable;
// neither is an error.
func (a *AudioSidecar) Extract(ctx context.Context, src, dir string) (path string, ok bool) {
	probe, err := a.prober.Probe(ctx, src)
	if err != nil {
		logger.Warn("Audio probe failed, continuing video-only", "source", src, "error", err)
		return "", false
	}
	if !probe.HasAudio() {
		logger.Debug("Source has no audio stream", "source", src)
		return "", false
	}

	// Matroska audio holds any codec the source used, so the stream is copied.
	path = filepath.Join(dir, "audio.mka")
	args := []string{
		"-v", "error",
		"-nostdin",
		"-y",
		"-i", src,
		"-map", "0:a:0",
		"-vn",
		"-acodec", "copy",
		path,
	}
	if out, err := a.run(ctx, args); err != nil {
		logger.Warn("Audio extraction failed, continuing video-only",
			"source", src, "error", err, "stderr", out)
		os.Remove(path)
		return "", false
	}

	logger.Debug("Extracted audio", "source", src, "codec", probe.AudioCodec, "path", path)
	return path, true
}

// Remux combines the video stream of video with the audio of audio into out,
// replacing any existing file. The result is written to a temporary file in
// the same directory and renamed into place, so out is never left partial.
func (a *AudioSidecar) Remux(ctx context.Context, video, audio, out string) error {
	tmp := tempSibling(out)
	args := []string{
		"-v", "error",
		"-nostdin",
		"-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		tmp,
	}
	if stderr, err := a.run(ctx, args); err != nil {
		os.Remove(tmp)
		return &RemuxError{
			Err:    fmt.Errorf("%w: %w", ErrRemuxFailed, err),
			Stderr: stderr,
		}
	}

	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return &RemuxError{Err: fmt.Errorf("%w: %w", ErrRemuxFailed, err)}
	}
	return nil
}

func (a *AudioSidecar) run(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, a.ffmpegPath, args...)
	logger.Debug("FFmpeg command", "args", strings.Join(args, " "))

	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrToolMissing, a.ffmpegPath)
		}
		return stderr.String(), err
	}
	return "", nil
}

// tempSibling returns a hidden path next to path that keeps its extension,
// so ffmpeg picks the same muxer.
func tempSibling(path string) string {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, "."+name+".remux.tmp"+ext)
}
