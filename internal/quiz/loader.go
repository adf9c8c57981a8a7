package quiz

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a quiz file does not exist.
var ErrNotFound = fmt.Errorf("quiz file not found: %w", fs.ErrNotExist)

// LoadFile reads and parses the quiz file at path.
func LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Definition{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Definition{}, fmt.Errorf("reading quiz file: %w", err)
	}
	return Parse(string(data)), nil
}

// Loader reads quiz files relative to a root folder.
type Loader struct {
	rootDir string
}

// NewLoader creates a Loader for rootDir.
func NewLoader(rootDir string) *Loader {
	return &Loader{rootDir: rootDir}
}

// LoadTopic parses the quiz stored at fileName, a path relative to the root
// using either separator.
func (l *Loader) LoadTopic(fileName string) (Definition, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(fileName, `\`, "/"))
	if !filepath.IsLocal(rel) {
		return Definition{}, fmt.Errorf("%w: %s", ErrNotFound, fileName)
	}
	return LoadFile(filepath.Join(l.rootDir, rel))
}
