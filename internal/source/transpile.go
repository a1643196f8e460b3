package source

import (
	"fmt"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"

	"github.com/cryguy/jscall/internal/core"
)

var targets = map[string]esbuild.Target{
	"es2015": esbuild.ES2015,
	"es2016": esbuild.ES2016,
	"es2017": esbuild.ES2017,
	"es2018": esbuild.ES2018,
	"es2019": esbuild.ES2019,
	"es2020": esbuild.ES2020,
	"es2021": esbuild.ES2021,
	"es2022": esbuild.ES2022,
	"es2023": esbuild.ES2023,
	"es2024": esbuild.ES2024,
	"esnext": esbuild.ESNext,
}

// NeedsTranspile reports whether Prepare would run esbuild for path.
func NeedsTranspile(path, target string) bool {
	return isTypeScript(path) || target != ""
}

func isTypeScript(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return true
	}
	return false
}

// Prepare strips TypeScript syntax and down-levels the source to target
// when either is needed. Plain JavaScript with no target is returned
// untouched. Top-level declarations stay top-level so functions remain
// reachable from the global object.
func Prepare(path, src, target string) (string, error) {
	if !NeedsTranspile(path, target) {
		return src, nil
	}

	opts := esbuild.TransformOptions{
		Sourcefile: filepath.Base(path),
		Loader:     esbuild.LoaderJS,
		Target:     esbuild.ESNext,
		Charset:    esbuild.CharsetUTF8,
	}
	if isTypeScript(path) {
		opts.Loader = esbuild.LoaderTS
	}
	if target != "" {
		t, ok := targets[target]
		if !ok {
			return "", &core.Error{Kind: core.KindCompile, Path: path, Message: fmt.Sprintf("unknown target %q", target)}
		}
		opts.Target = t
	}

	result := esbuild.Transform(src, opts)
	if len(result.Errors) > 0 {
		return "", &core.Error{Kind: core.KindCompile, Path: path, Message: formatMessages(result.Errors)}
	}
	return string(result.Code), nil
}

func formatMessages(msgs []esbuild.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		lines = append(lines, m.Text)
	}
	return strings.Join(lines, "\n")
}
