//go:build !v8

package jscall

import (
	"github.com/cryguy/jscall/internal/core"
	"github.com/cryguy/jscall/internal/quickjs"
)

func newPlatform() core.Platform {
	return quickjs.NewPlatform()
}
