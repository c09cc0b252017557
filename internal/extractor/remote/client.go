package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/vidresolve/internal/config"
	"github.com/kiranshivaraju/vidresolve/pkg/models"
)

// Client implements models.Extractor against a yt-dlp sidecar that exposes
// GET /extract?url=... and answers with the yt-dlp info document.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a sidecar client. timeout bounds each extraction call.
func NewClient(cfg config.RemoteConfig, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string {
	return "remote"
}

func (c *Client) Extract(ctx context.Context, videoURL string) (*models.RawInfo, error) {
	u := fmt.Sprintf("%s/extract?%s", c.baseURL, url.Values{"url": {videoURL}}.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", models.ErrExtractionFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info models.RawInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decoding sidecar response: %v", models.ErrExtractionFailed, err)
	}
	return &info, nil
}

// Ready checks that the sidecar is up.
func (c *Client) Ready(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrExtractorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: sidecar not ready (status %d)", models.ErrExtractorUnavailable, resp.StatusCode)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", models.ErrExtractorTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", models.ErrExtractorTimeout, err)
	}

	return fmt.Errorf("%w: %v", models.ErrExtractorUnavailable, err)
}

var _ models.Extractor = (*Client)(nil)
