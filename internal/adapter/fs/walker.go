package fs

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Walker enumerates candidate image paths under a root directory.
type Walker struct {
	includes  []string
	excludes  []string
	minWidth  int
	minHeight int
}

// NewWalker builds a walker over doublestar patterns. Matching ignores case,
// so "**/*.jpg" also finds photo.JPG.
func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Walker{
		includes: lowerAll(includes),
		excludes: lowerAll(excludes),
	}
}

func lowerAll(patterns []string) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = strings.ToLower(p)
	}
	return out
}

// WithMinSize drops images smaller than w x h. Dimensions are read from the
// image header only.
func (w *Walker) WithMinSize(width, height int) *Walker {
	w.minWidth = width
	w.minHeight = height
	return w
}

// Walk returns matching absolute paths, sorted and deduplicated.
func (w *Walker) Walk(root string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var files []string

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if info.IsDir() {
			if relPath != "." && w.shouldExclude(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !w.shouldInclude(relPath) || w.shouldExclude(relPath) {
			return nil
		}
		if !w.largeEnough(path) {
			return nil
		}
		if _, dup := seen[path]; !dup {
			seen[path] = struct{}{}
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func (w *Walker) largeEnough(path string) bool {
	if w.minWidth <= 0 && w.minHeight <= 0 {
		return true
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return false
	}
	return cfg.Width >= w.minWidth && cfg.Height >= w.minHeight
}

func (w *Walker) shouldInclude(path string) bool {
	path = strings.ToLower(path)
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Walker) shouldExclude(path string) bool {
	path = strings.ToLower(path)
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// ReadList reads a newline-separated candidate list. Blank lines and lines
// starting with # are ignored; the result is sorted and deduplicated.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]struct{})
	var paths []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// WriteList writes one path per line.
func WriteList(path string, paths []string) error {
	data := strings.Join(paths, "\n")
	if len(paths) > 0 {
		data += "\n"
	}
	return os.WriteFile(path, []byte(data), 0644)
}
