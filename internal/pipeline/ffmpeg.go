package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Rendition describes one rung of the adaptive bitrate ladder.
type Rendition struct {
	Name         string
	Width        int
	Height       int
	VideoBitrate string
	MaxRate      string
	BufSize      string
	AudioBitrate string
}

// DefaultLadder returns the standard three-rung ladder.
func DefaultLadder() []Rendition {
	return []Rendition{
		{Name: "1080p", Width: 1920, Height: 1080, VideoBitrate: "5000k", MaxRate: "5350k", BufSize: "7500k", AudioBitrate: "192k"},
		{Name: "720p", Width: 1280, Height: 720, VideoBitrate: "2800k", MaxRate: "2996k", BufSize: "4200k", AudioBitrate: "128k"},
		{Name: "480p", Width: 854, Height: 480, VideoBitrate: "1400k", MaxRate: "1498k", BufSize: "2100k", AudioBitrate: "128k"},
	}
}

// FFmpegOptions holds knobs for the FFmpeg encoder.
type FFmpegOptions struct {
	FFmpegPath     string
	FFprobePath    string
	Ladder         []Rendition
	SegmentSeconds int
	ThumbnailAt    time.Duration
	PreviewStart   time.Duration
	PreviewLength  time.Duration
}

// FFmpeg runs the external encoder for each pipeline step.
type FFmpeg struct {
	opts FFmpegOptions
}

// NewFFmpeg creates an FFmpeg encoder, applying defaults for unset options
func NewFFmpeg(opts FFmpegOptions) *FFmpeg {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if len(opts.Ladder) == 0 {
		opts.Ladder = DefaultLadder()
	}
	if opts.SegmentSeconds <= 0 {
		opts.SegmentSeconds = 10
	}
	if opts.ThumbnailAt <= 0 {
		opts.ThumbnailAt = time.Minute
	}
	if opts.PreviewStart <= 0 {
		opts.PreviewStart = time.Minute
	}
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = 5 * time.Second
	}
	return &FFmpeg{opts: opts}
}

// PackageHLS splits the source into the bitrate ladder and emits one
// variant playlist per rendition plus a master playlist referencing all
// of them. Segments are independently decodable so playback can begin
// before the whole asset is downloaded.
func (f *FFmpeg) PackageHLS(ctx context.Context, inputPath, outputDir string) (string, error) {
	ladder := f.opts.Ladder

	// Split the decoded video once, scale each branch
	var filter strings.Builder
	filter.WriteString(fmt.Sprintf("[0:v]split=%d", len(ladder)))
	for i := range ladder {
		filter.WriteString(fmt.Sprintf("[v%d]", i+1))
	}
	for i, r := range ladder {
		filter.WriteString(fmt.Sprintf(";[v%d]scale=w=%d:h=%d[v%dout]", i+1, r.Width, r.Height, i+1))
	}

	args := []string{
		"-y", "-i", inputPath,
		"-filter_complex", filter.String(),
		"-preset", "ultrafast", "-threads", "0",
	}

	var streamMap []string
	for i, r := range ladder {
		args = append(args,
			"-map", fmt.Sprintf("[v%dout]", i+1),
			fmt.Sprintf("-c:v:%d", i), "libx264",
			fmt.Sprintf("-b:v:%d", i), r.VideoBitrate,
			fmt.Sprintf("-maxrate:v:%d", i), r.MaxRate,
			fmt.Sprintf("-bufsize:v:%d", i), r.BufSize,
			"-map", "a:0",
			fmt.Sprintf("-c:a:%d", i), "aac",
			fmt.Sprintf("-b:a:%d", i), r.AudioBitrate,
		)
		streamMap = append(streamMap, fmt.Sprintf("v:%d,a:%d", i, i))
	}

	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(f.opts.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", filepath.Join(outputDir, "segment_%v_%03d.ts"),
		"-master_pl_name", "master.m3u8",
		"-var_stream_map", strings.Join(streamMap, " "),
		filepath.Join(outputDir, "stream_%v.m3u8"),
	)

	if err := f.run(ctx, f.opts.FFmpegPath, args); err != nil {
		return "", fmt.Errorf("HLS packaging failed: %w", err)
	}

	return "master.m3u8", nil
}

// ExtractThumbnail grabs one representative frame at a fixed offset
func (f *FFmpeg) ExtractThumbnail(ctx context.Context, inputPath, outputDir string) (string, error) {
	const filename = "thumbnail.jpg"

	args := []string{
		"-y",
		"-ss", formatOffset(f.opts.ThumbnailAt),
		"-i", inputPath,
		"-vframes", "1",
		"-q:v", "2",
		filepath.Join(outputDir, filename),
	}

	if err := f.run(ctx, f.opts.FFmpegPath, args); err != nil {
		return "", fmt.Errorf("thumbnail extraction failed: %w", err)
	}

	return filename, nil
}

// GeneratePreview produces a short looping GIF for hover previews.
// Palette generation keeps the GIF small without banding.
func (f *FFmpeg) GeneratePreview(ctx context.Context, inputPath, outputDir string) (string, error) {
	const filename = "preview.gif"

	args := []string{
		"-y",
		"-ss", formatOffset(f.opts.PreviewStart),
		"-t", fmt.Sprintf("%.0f", f.opts.PreviewLength.Seconds()),
		"-i", inputPath,
		"-vf", "fps=10,scale=320:-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
		"-loop", "0",
		filepath.Join(outputDir, filename),
	}

	if err := f.run(ctx, f.opts.FFmpegPath, args); err != nil {
		return "", fmt.Errorf("preview generation failed: %w", err)
	}

	return filename, nil
}

// GenerateTimeline extracts one small frame every segment interval across
// the whole duration, numbered for seek-bar previews.
func (f *FFmpeg) GenerateTimeline(ctx context.Context, inputPath, outputDir string) (string, error) {
	const pattern = "thumb_%04d.jpg"

	args := []string{
		"-y",
		"-i", inputPath,
		"-vf", fmt.Sprintf("fps=1/%d,scale=160:90", f.opts.SegmentSeconds),
		"-q:v", "2",
		filepath.Join(outputDir, pattern),
	}

	if err := f.run(ctx, f.opts.FFmpegPath, args); err != nil {
		return "", fmt.Errorf("timeline generation failed: %w", err)
	}

	return pattern, nil
}

// ProbeDuration returns the total duration in whole seconds, rounded
func (f *FFmpeg) ProbeDuration(ctx context.Context, inputPath string) (int, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, f.opts.FFprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	raw := strings.TrimSpace(stdout.String())
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", raw, err)
	}

	return int(math.Round(seconds)), nil
}

func (f *FFmpeg) run(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w, stderr: %s", filepath.Base(bin), err, stderr.String())
	}

	return nil
}

func formatOffset(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
