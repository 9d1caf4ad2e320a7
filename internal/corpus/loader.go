package corpus

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Load reads every markdown file under dir, in lexical path order, and
// returns the chunks in that order. Chunk identifiers are unique across the
// corpus: when two files share a stem, the later one is keyed by its
// relative path instead.
func Load(dir string) ([]Chunk, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus: %w", err)
	}
	sort.Strings(paths)

	var chunks []Chunk
	usedStems := make(map[string]bool)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if usedStems[stem] {
			stem = filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
		}
		usedStems[stem] = true

		chunks = append(chunks, ParseFile(string(data), stem, filepath.ToSlash(rel))...)
	}
	return chunks, nil
}

// ParseFile picks the parser from the file name.
func ParseFile(text, stem, source string) []Chunk {
	name := strings.ToLower(filepath.Base(source))
	switch {
	case name == "identity.md":
		return ParseIdentity(text, source)
	case strings.Contains(name, "slack"), strings.Contains(name, "chat"):
		return ParseChat(text, stem, source)
	default:
		return ParseDocument(text, stem, source)
	}
}
