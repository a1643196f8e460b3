// Package source loads guest scripts from disk and prepares them for the
// engine.
package source

import (
	"fmt"
	"os"

	"github.com/cryguy/jscall/internal/core"
)

// FileLoader reads guest sources from the local filesystem. It does no
// caching: every Load goes to disk.
type FileLoader struct {
	// MaxSizeKB rejects files larger than this. 0 means unlimited.
	MaxSizeKB int
}

var _ core.SourceLoader = FileLoader{}

// Load returns the full content of the file at path.
func (l FileLoader) Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &core.Error{Kind: core.KindSourceRead, Path: path, Err: err}
	}
	if l.MaxSizeKB > 0 && len(data) > l.MaxSizeKB*1024 {
		return "", &core.Error{
			Kind:    core.KindSourceRead,
			Path:    path,
			Message: fmt.Sprintf("script is %d bytes, limit is %d KB", len(data), l.MaxSizeKB),
		}
	}
	return string(data), nil
}
