package quote

import (
	"strings"

	"github.com/rs/zerolog"
)

// restyLogger forwards resty's internal messages to zerolog.
type restyLogger struct {
	l zerolog.Logger
}

func (r restyLogger) Errorf(format string, v ...any) {
	r.l.Error().Msgf(strings.TrimSpace(format), v...)
}

func (r restyLogger) Warnf(format string, v ...any) {
	r.l.Warn().Msgf(strings.TrimSpace(format), v...)
}

func (r restyLogger) Debugf(format string, v ...any) {
	r.l.Debug().Msgf(strings.TrimSpace(format), v...)
}
