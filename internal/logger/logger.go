package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is silent until Init is called, which keeps tests quiet.
var Log = zerolog.Nop()

// Init initializes the global logger
func Init(env string) {
	zerolog.TimeFieldFormat = time.RFC3339

	if env == "development" {
		Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
			With().
			Timestamp().
			Caller().
			Logger()
		return
	}

	Log = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}

func Info() *zerolog.Event {
	return Log.Info()
}

func Error() *zerolog.Event {
	return Log.Error()
}

func Warn() *zerolog.Event {
	return Log.Warn()
}

func Debug() *zerolog.Event {
	return Log.Debug()
}

func Fatal() *zerolog.Event {
	return Log.Fatal()
}

// LogError logs err under the given operation name. Nil errors are ignored.
func LogError(err error, op string) {
	if err != nil {
		Log.Error().Err(err).Str("op", op).Msg("operation failed")
	}
}
