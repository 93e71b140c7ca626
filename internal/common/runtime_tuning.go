package common

import (
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitRuntime sets a soft memory limit of memLimitMB unless GOMEMLIMIT is
// already set. The relay is I/O bound, GOGC and GOMAXPROCS keep their defaults.
func InitRuntime(memLimitMB int) {
	if os.Getenv("GOMEMLIMIT") == "" && memLimitMB > 0 {
		debug.SetMemoryLimit(int64(memLimitMB) << 20)
		log.Info().Int("GOMEMLIMIT_mb", memLimitMB).Msg("[runtime] Set memory limit")
	}
	logRuntimeSettings()
}

// InitLogger sets the global level and, outside production, a console writer.
func InitLogger(level string, env string) {
	if env != "prod" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	switch strings.TrimSpace(strings.ToUpper(level)) {
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func logRuntimeSettings() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	log.Info().
		Int("num_cpu", runtime.NumCPU()).
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Uint64("heap_alloc_mb", memStats.HeapAlloc/1024/1024).
		Str("go_version", runtime.Version()).
		Msg("[runtime] Current runtime settings")
}
