package media

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loggerFactory routes pion's internal logging into zerolog.
type loggerFactory struct {
	base zerolog.Logger
}

func newLoggerFactory(worker int, level string) logging.LoggerFactory {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.WarnLevel
	}
	return &loggerFactory{
		base: log.With().Str("module", "media.pion").Int("worker", worker).Logger().Level(lvl),
	}
}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{l: f.base.With().Str("scope", scope).Logger()}
}

type leveledLogger struct {
	l zerolog.Logger
}

func (z *leveledLogger) Trace(msg string) { z.l.Trace().Msg(msg) }
func (z *leveledLogger) Tracef(format string, a ...any) { z.l.Trace().Msgf(format, a...) }
func (z *leveledLogger) Debug(msg string) { z.l.Debug().Msg(msg) }
func (z *leveledLogger) Debugf(format string, a ...any) { z.l.Debug().Msgf(format, a...) }
func (z *leveledLogger) Info(msg string) { z.l.Info().Msg(msg) }
func (z *leveledLogger) Infof(format string, a ...any) { z.l.Info().Msgf(format, a...) }
func (z *leveledLogger) Warn(msg string) { z.l.Warn().Msg(msg) }
func (z *leveledLogger) Warnf(format string, a ...any) { z.l.Warn().Msgf(format, a...) }
func (z *leveledLogger) Error(msg string) { z.l.Error().Msg(msg) }
func (z *leveledLogger) Errorf(format string, a ...any) { z.l.Error().Msgf(format, a...) }
