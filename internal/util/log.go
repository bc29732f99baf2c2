package util

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogFromContext returns a request-scoped logger if one is attached to ctx,
// otherwise the global logger.
func LogFromContext(ctx context.Context) *zerolog.Logger {
	l := log.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = &log.Logger
	}

	return l
}

// ComponentLogger returns the global logger tagged with a component name.
func ComponentLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
