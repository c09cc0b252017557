package extractor

import (
	"fmt"

	"github.com/kiranshivaraju/vidresolve/internal/config"
	"github.com/kiranshivaraju/vidresolve/internal/extractor/remote"
	"github.com/kiranshivaraju/vidresolve/internal/extractor/ytdlp"
	"github.com/kiranshivaraju/vidresolve/pkg/models"
)

// NewExtractor constructs the extractor selected by config.
// Called once at worker startup.
func NewExtractor(cfg config.ExtractorConfig) (models.Extractor, error) {
	switch cfg.Provider {
	case "ytdlp":
		return ytdlp.New(cfg.YtDlp, cfg.Timeout), nil
	case "remote":
		return remote.NewClient(cfg.Remote, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown extractor provider %q: must be one of ytdlp, remote", cfg.Provider)
	}
}
