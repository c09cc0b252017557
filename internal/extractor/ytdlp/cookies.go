package ytdlp

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// StageCookies copies the read-only cookie file at src to dst so yt-dlp can
// rewrite it. An existing dst is left untouched. It reports whether a copy
// was made.
func StageCookies(src, dst string) (bool, error) {
	if src == "" || dst == "" || src == dst {
		return false, nil
	}

	if _, err := os.Stat(dst); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat cookie file: %w", err)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return false, fmt.Errorf("read cookie source: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, fmt.Errorf("create cookie dir: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return false, fmt.Errorf("write cookie file: %w", err)
	}
	return true, nil
}
