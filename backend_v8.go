//go:build v8

package jscall

import (
	"github.com/cryguy/jscall/internal/core"
	"github.com/cryguy/jscall/internal/v8engine"
)

func newPlatform() core.Platform {
	return v8engine.NewPlatform()
}
