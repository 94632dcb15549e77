package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/heimdex/reeldraft/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// Config holds the ffmpeg runner's configuration.
type Config struct {
	FFmpegPath   string        // path to ffmpeg; empty = look up on PATH
	WorkDir      string        // scratch dir for concat list files
	Timeout      time.Duration // per-invocation timeout
	ProbeTimeout time.Duration
	Logger       *slog.Logger
	DebugPaths   bool // if true, log full file paths; otherwise sanitise
}

// DefaultConfig returns production defaults rooted at dataDir.
func DefaultConfig(dataDir string, logger *slog.Logger) Config {
	return Config{
		WorkDir:      filepath.Join(dataDir, "tmp"),
		Timeout:      10 * time.Minute,
		ProbeTimeout: 10 * time.Second,
		Logger:       logger,
	}
}

// FFmpegConcatenator concatenates clips with the ffmpeg concat demuxer and
// re-encodes to H.264/AAC.
type FFmpegConcatenator struct {
	cfg    Config
	ffmpeg string
}

func NewFFmpegConcatenator(cfg Config) (*FFmpegConcatenator, error) {
	bin, err := resolveFFmpeg(cfg.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate ffmpeg: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create work dir: %w", err)
	}

	cfg.Logger.Info("ffmpeg concatenator initialised", "ffmpeg", bin, "work_dir", logging.SanitizePath(cfg.WorkDir))
	return &FFmpegConcatenator{cfg: cfg, ffmpeg: bin}, nil
}

func (c *FFmpegConcatenator) Concatenate(ctx context.Context, refs []string, opts Options) (Result, error) {
	if len(refs) == 0 {
		return Result{}, errors.New("no inputs to concatenate")
	}
	if opts.OutputPath == "" {
		return Result{}, errors.New("output path is required")
	}
	if opts.Quality == "" {
		opts.Quality = QualityHigh
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	list, err := os.CreateTemp(c.cfg.WorkDir, "concat-*.txt")
	if err != nil {
		return Result{}, fmt.Errorf("cannot create concat list: %w", err)
	}
	defer os.Remove(list.Name())

	if _, err := io.WriteString(list, concatList(refs)); err != nil {
		list.Close()
		return Result{}, fmt.Errorf("cannot write concat list: %w", err)
	}
	if err := list.Close(); err != nil {
		return Result{}, fmt.Errorf("cannot write concat list: %w", err)
	}

	result := c.exec(ctx, opts.OutputPath, concatArgs(list.Name(), opts)...)
	if !result.IsSuccess() {
		return result, fmt.Errorf("ffmpeg exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	return result, nil
}

// Probe runs `ffmpeg -version` and reports the first line.
func (c *FFmpegConcatenator) Probe(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, c.ffmpeg, "-hide_banner", "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg probe failed: %w", err)
	}

	caps := &Capabilities{FFmpeg: true, ProbedAt: time.Now()}
	sc := bufio.NewScanner(bytes.NewReader(out))
	if sc.Scan() {
		caps.Version = strings.TrimSpace(sc.Text())
	}
	return caps, nil
}

func concatArgs(listPath string, opts Options) []string {
	return []string{
		"-hide_banner", "-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c:v", "libx264", "-preset", "veryfast",
		"-crf", strconv.Itoa(opts.Quality.CRF()),
		"-c:a", "aac",
		"-movflags", "+faststart",
		opts.OutputPath,
	}
}

// concatList renders the concat demuxer input. Single quotes inside paths
// are closed, escaped and reopened.
func concatList(refs []string) string {
	var b strings.Builder
	for _, ref := range refs {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(ref, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// exec is the core subprocess execution helper.
func (c *FFmpegConcatenator) exec(ctx context.Context, outPath string, args ...string) Result {
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		c.cfg.Logger.Error("cannot create output dir", "error", err)
		return Result{ExitCode: -1, StderrTail: err.Error(), Duration: time.Since(start)}
	}

	cmd := exec.CommandContext(ctx, c.ffmpeg, args...)

	// Capture stderr with bounded buffer
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = io.Discard

	c.cfg.Logger.Info("executing ffmpeg", "output", c.safePath(outPath))

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			stderrBuf.WriteString(err.Error())
		}
	}

	stderrTail := stderrBuf.String()

	if exitCode != 0 {
		c.cfg.Logger.Warn("ffmpeg failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		c.cfg.Logger.Info("ffmpeg succeeded",
			"duration_ms", elapsed.Milliseconds(),
			"output", c.safePath(outPath),
		)
	}

	return Result{
		ExitCode:   exitCode,
		OutputPath: outPath,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func (c *FFmpegConcatenator) safePath(path string) string {
	if c.cfg.DebugPaths {
		return path
	}
	return logging.SanitizePath(path)
}

func resolveFFmpeg(preferred string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured ffmpeg %q not found", preferred)
	}
	p, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", errors.New("no ffmpeg binary found on PATH")
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
