// Package logger wraps zerolog with the small set of helpers the rest of
// traderwatch calls into: Infof/Warnf/Errorf/Debugf plus Wallet, which
// abbreviates an address for log lines.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	Init("info", os.Stderr)
}

// Init (re)configures the package-level logger. level is one of
// debug/info/warn/error; anything else falls back to info.
func Init(level string, w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log = zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

func Debugf(format string, args ...interface{}) { log.Debug().Msgf(format, args...) }
func Infof(format string, args ...interface{})  { log.Info().Msgf(format, args...) }
func Warnf(format string, args ...interface{})  { log.Warn().Msgf(format, args...) }
func Errorf(format string, args ...interface{}) { log.Error().Msgf(format, args...) }

// Wallet abbreviates an address for log lines: 0xabcd…6789.
func Wallet(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
