package core

import (
	"time"

	"go.uber.org/zap"
)

// EngineConfig holds runtime configuration for an engine.
type EngineConfig struct {
	// MemoryLimitMB caps the isolate heap. 0 keeps the engine default.
	MemoryLimitMB int `validate:"gte=0"`

	// ExecutionTimeout interrupts a call that runs longer. 0 disables the
	// watchdog.
	ExecutionTimeout time.Duration `validate:"gte=0"`

	// MaxScriptSizeKB rejects larger sources. 0 means unlimited.
	MaxScriptSizeKB int `validate:"gte=0"`

	// Target down-levels sources with esbuild before compiling.
	Target string `validate:"omitempty,oneof=es2015 es2016 es2017 es2018 es2019 es2020 es2021 es2022 es2023 es2024 esnext"`

	Loader SourceLoader `validate:"-"` // nil reads files from disk
	Logger *zap.Logger  `validate:"-"` // nil disables logging
}
