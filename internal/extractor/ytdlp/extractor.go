package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kiranshivaraju/vidresolve/internal/config"
	"github.com/kiranshivaraju/vidresolve/pkg/models"
)

// maxStderr bounds how much of yt-dlp's stderr ends up in an error message.
const maxStderr = 500

// Extractor implements models.Extractor by running the yt-dlp binary and
// reading the single JSON info document it prints.
type Extractor struct {
	cfg     config.YtDlpConfig
	timeout time.Duration
}

func New(cfg config.YtDlpConfig, timeout time.Duration) *Extractor {
	return &Extractor{cfg: cfg, timeout: timeout}
}

func (e *Extractor) Name() string {
	return "ytdlp"
}

// Args returns the command line passed to yt-dlp for url.
func (e *Extractor) Args(url string) []string {
	args := []string{"--dump-single-json", "--no-warnings", "--no-cache-dir", "--no-playlist"}
	if e.cfg.CookieFile != "" {
		args = append(args, "--cookies", e.cfg.CookieFile)
	}
	if e.cfg.Format != "" {
		args = append(args, "-f", e.cfg.Format)
	}
	if e.cfg.PlayerClient != "" {
		args = append(args, "--extractor-args", "youtube:player_client="+e.cfg.PlayerClient)
	}
	return append(args, "--", url)
}

func (e *Extractor) Extract(ctx context.Context, url string) (*models.RawInfo, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.cfg.Binary, e.Args(url)...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, classifyError(ctx, err, stderr.String())
	}

	var info models.RawInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("%w: decoding yt-dlp output: %v", models.ErrExtractionFailed, err)
	}
	return &info, nil
}

// classifyError maps a failed yt-dlp run to an extractor sentinel error.
func classifyError(ctx context.Context, err error, stderr string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", models.ErrExtractorTimeout, ctxErr)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %v", models.ErrExtractorUnavailable, err)
	}

	msg := strings.TrimSpace(stderr)
	if len(msg) > maxStderr {
		msg = msg[:maxStderr]
	}
	if msg == "" {
		return fmt.Errorf("%w: %v", models.ErrExtractionFailed, err)
	}
	return fmt.Errorf("%w: %v: %s", models.ErrExtractionFailed, err, msg)
}

var _ models.Extractor = (*Extractor)(nil)
