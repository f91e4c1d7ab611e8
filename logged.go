package i2cbridge

import (
	"context"
	"log/slog"
)

// LoggedBus is a Transferer decorator logging every transaction with a
// slog.Logger. Failures are always logged at error level.
type LoggedBus struct {
	inner  Transferer
	logger *slog.Logger
	level  slog.Level
}

func NewLoggedBus(inner Transferer, logger *slog.Logger, level slog.Level) *LoggedBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggedBus{inner: inner, logger: logger, level: level}
}

func (l *LoggedBus) Transfer(ctx context.Context, addr byte, w, r []byte) error {
	l.logger.Log(ctx, l.level, "i2c transfer",
		"addr", addr,
		"write", w,
		"read_len", len(r),
	)
	err := l.inner.Transfer(ctx, addr, w, r)
	if err != nil {
		l.logger.Log(ctx, slog.LevelError, "i2c transfer error",
			"addr", addr,
			"error", err,
		)
		return err
	}
	if len(r) > 0 {
		l.logger.Log(ctx, l.level, "i2c transfer done", "addr", addr, "read", r)
	}
	return nil
}
