package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// coreWithFloor drops entries below floor on top of what the wrapped core allows.
type coreWithFloor struct {
	zapcore.Core

	// floor is the minimum level this core lets through.
	floor zapcore.Level
}

// Enabled reports whether both the floor and the wrapped core accept l.
func (c *coreWithFloor) Enabled(l zapcore.Level) bool {
	return c.floor.Enabled(l) && c.Core.Enabled(l)
}

// Check adds the core to the checked entry when the level is enabled.
//
//nolint:gocritic // AddCore requires ent to be passed by value.
func (c *coreWithFloor) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

// With keeps the floor on the derived core.
//
//nolint:ireturn,nolintlint // Returning zapcore.Core is intended for zap integration.
func (c *coreWithFloor) With(fields []zapcore.Field) zapcore.Core {
	return &coreWithFloor{
		Core:  c.Core.With(fields),
		floor: c.floor,
	}
}

// minLevelOption raises the minimum level of a logger without touching the global level.
//
//nolint:ireturn,nolintlint // Returning zap.Option is intended for zap integration.
func minLevelOption(lvl zapcore.Level) zap.Option {
	return zap.WrapCore(
		func(core zapcore.Core) zapcore.Core {
			return &coreWithFloor{Core: core, floor: lvl}
		})
}
