package infrastructure

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/yourusername/axolutly-go/internal/domain"
	"go.uber.org/zap"
)

const (
	progressPrefix = "axp|"
	filePrefix     = "axf|"

	progressTemplate = "download:" + progressPrefix +
		"%(progress.status)s|%(progress.downloaded_bytes)s|%(progress.total_bytes)s|" +
		"%(progress.total_bytes_estimate)s|%(progress._percent_str)s|%(progress.filename)s"

	// stderrLimit caps how much engine error output is kept
	stderrLimit = 64 * 1024
)

// restrictionMarkers identify errors that signing in can resolve
var restrictionMarkers = []string{
	"sign in to confirm your age",
	"confirm your age",
	"age-restricted",
	"age restricted",
	"inappropriate for some users",
	"sign in to confirm you",
	"not available in your country",
	"available in your country",
	"geo restrict",
	"geo-restrict",
	"login required",
	"log in to",
	"requires authentication",
	"members only",
	"members-only",
	"private video",
	"use --cookies",
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// YTDLPEngine runs yt-dlp as a subprocess
type YTDLPEngine struct {
	binary  string
	logger  *zap.Logger
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewYTDLPEngine creates an engine using the given yt-dlp binary
func NewYTDLPEngine(binary string, logger *zap.Logger) *YTDLPEngine {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLPEngine{
		binary:  binary,
		logger:  logger,
		command: exec.CommandContext,
	}
}

// Probe resolves metadata with a JSON dump, without downloading
func (e *YTDLPEngine) Probe(ctx context.Context, url string, opts domain.ProbeOptions) (*domain.Metadata, error) {
	args := []string{"-J", "--no-playlist", "--no-warnings"}
	if opts.CookieFile != "" {
		args = append(args, "--cookies", opts.CookieFile)
	}
	args = append(args, url)

	e.logger.Debug("Probing", zap.String("cmd", RedactedCommand(e.binary, args...)))

	var stdout bytes.Buffer
	stderr := newTailBuffer(stderrLimit)
	cmd := e.command(ctx, e.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyError("probe", stderr.String(), err)
	}

	var meta domain.Metadata
	if err := json.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return nil, &domain.EngineError{Op: "probe", Message: fmt.Sprintf("invalid metadata from %s: %v", e.binary, err), Err: err}
	}
	return &meta, nil
}

// Download fetches media into opts.OutputTemplate plus the engine's extension.
// Progress lines are parsed and handed to fn on the calling goroutine; an
// error from fn kills the subprocess.
func (e *YTDLPEngine) Download(ctx context.Context, url string, opts domain.DownloadOptions, fn domain.ProgressFunc) (string, error) {
	args := BuildDownloadArgs(url, opts)
	e.logger.Info("Starting download", zap.String("cmd", RedactedCommand(e.binary, args...)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stderr := newTailBuffer(stderrLimit)
	cmd := e.command(ctx, e.binary, args...)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open engine output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", &domain.EngineError{Op: "download", Message: fmt.Sprintf("failed to start %s: %v", e.binary, err), Err: err}
	}

	var finalPath string
	var callbackErr error
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, filePrefix):
			finalPath = strings.TrimPrefix(line, filePrefix)
		case strings.HasPrefix(line, progressPrefix):
			if callbackErr != nil || fn == nil {
				continue
			}
			update, ok := ParseProgressLine(line)
			if !ok {
				continue
			}
			if err := fn(update); err != nil {
				callbackErr = err
				cancel()
			}
		}
	}
	// drain whatever is left so Wait does not block on a full pipe
	io.Copy(io.Discard, stdout)

	waitErr := cmd.Wait()
	if callbackErr != nil {
		return "", callbackErr
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyError("download", stderr.String(), waitErr)
	}
	return finalPath, nil
}

// ExportBrowserCookies reads a browser profile's cookies through yt-dlp
func (e *YTDLPEngine) ExportBrowserCookies(ctx context.Context, browser, url string) ([]domain.Cookie, error) {
	jar, err := os.CreateTemp("", "axolutly-export-*.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie file: %w", err)
	}
	jarPath := jar.Name()
	jar.Close()
	defer os.Remove(jarPath)

	args := []string{
		"--cookies-from-browser", browser,
		"--cookies", jarPath,
		"--skip-download", "--no-playlist", "--no-warnings", "-q",
		url,
	}
	e.logger.Debug("Exporting browser cookies", zap.String("cmd", RedactedCommand(e.binary, args...)))

	stderr := newTailBuffer(stderrLimit)
	cmd := e.command(ctx, e.binary, args...)
	cmd.Stderr = stderr
	runErr := cmd.Run()

	// yt-dlp writes the jar even when the page itself fails to extract
	data, err := os.ReadFile(jarPath)
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		if runErr != nil {
			return nil, classifyError("cookies", stderr.String(), runErr)
		}
		return nil, fmt.Errorf("no cookies exported from %s", browser)
	}
	return domain.ParseCookieJar(data)
}

// BuildDownloadArgs builds the yt-dlp arguments of a download
func BuildDownloadArgs(url string, opts domain.DownloadOptions) []string {
	args := []string{
		"--newline", "--no-playlist", "--no-warnings",
		"-q", "--progress",
		"--progress-template", progressTemplate,
		"--print", "after_move:" + filePrefix + "%(filepath)s",
		"--no-simulate",
		"-o", opts.OutputTemplate + ".%(ext)s",
	}

	q := opts.Quality
	switch {
	case q.AudioOnly:
		format := opts.AudioFormat
		if format == "" {
			format = "m4a"
		}
		args = append(args, "-f", "bestaudio/best", "-x", "--audio-format", format)
	case q.MaxHeight > 0:
		h := strconv.Itoa(q.MaxHeight)
		args = append(args,
			"-f", "bestvideo[height<="+h+"]+bestaudio/best[height<="+h+"]",
			"--merge-output-format", "mp4")
	default:
		args = append(args, "-f", "bestvideo+bestaudio/best", "--merge-output-format", "mp4")
	}

	if opts.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(opts.Retries))
	}
	if opts.CookieFile != "" {
		args = append(args, "--cookies", opts.CookieFile)
	}
	return append(args, url)
}

// ParseProgressLine parses one line printed with the progress template.
// Unknown values are printed by the engine as "NA" and parse to zero.
func ParseProgressLine(line string) (domain.ProgressUpdate, bool) {
	line = strings.TrimPrefix(strings.TrimSpace(line), progressPrefix)
	fields := strings.SplitN(line, "|", 6)
	if len(fields) != 6 {
		return domain.ProgressUpdate{}, false
	}
	return domain.ProgressUpdate{
		Status:             fields[0],
		DownloadedBytes:    parseBytes(fields[1]),
		TotalBytes:         parseBytes(fields[2]),
		TotalBytesEstimate: parseBytes(fields[3]),
		PercentStr:         strings.TrimSpace(ansiPattern.ReplaceAllString(fields[4], "")),
		Filename:           fields[5],
	}, true
}

func parseBytes(s string) int64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return int64(f)
}

// classifyError turns engine stderr into a restriction or engine error. The
// last ERROR line is kept verbatim as the message.
func classifyError(op, stderr string, err error) error {
	message := ""
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(ansiPattern.ReplaceAllString(line, ""))
		if strings.HasPrefix(line, "ERROR:") {
			message = line
		}
	}
	if message == "" {
		message = strings.TrimSpace(lastLine(stderr))
	}
	if message == "" {
		message = fmt.Sprintf("%s failed: %v", op, err)
	}

	if IsRestrictionMessage(message) {
		return &domain.RestrictionError{Message: message}
	}
	return &domain.EngineError{Op: op, Message: message, Err: err}
}

// IsRestrictionMessage checks if an engine message reports age, region or
// sign-in gated content
func IsRestrictionMessage(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range restrictionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	buf   []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}
