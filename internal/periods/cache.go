package periods

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
)

// cacheFile is the on-disk layout of the period cache.
type cacheFile struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Periods     []corpus.Period `json:"periods"`
}

// LoadCache reads the period cache. A missing file means no periods.
func LoadCache(path string) ([]corpus.Period, error) {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read period cache: %w", err)
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse period cache: %w", err)
	}
	return f.Periods, nil
}

// SaveCache writes the period cache atomically.
func SaveCache(path string, periods []corpus.Period) error {
	p := expandHome(path)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(cacheFile{GeneratedAt: time.Now().UTC(), Periods: periods}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal periods: %w", err)
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write period cache: %w", err)
	}
	return os.Rename(tmp, p)
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
