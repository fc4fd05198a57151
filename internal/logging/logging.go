package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"interactive-gym/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	sinkMu sync.RWMutex
	sink   io.Writer = os.Stdout
	file   *cappedFile
)

// Init installs the global zerolog logger. With cfg.File set, output is
// teed into a capped file next to stdout.
func Init(cfg config.LogConfig) error {
	level := zerolog.InfoLevel
	if v := strings.TrimSpace(cfg.Level); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	var out io.Writer = os.Stdout
	var capped *cappedFile
	if cfg.File != "" {
		f, err := openCapped(cfg.File, cfg.MaxMB)
		if err != nil {
			return err
		}
		capped = f
		out = io.MultiWriter(os.Stdout, f)
	}

	sinkMu.Lock()
	if file != nil {
		_ = file.Close()
	}
	file = capped
	sink = out
	sinkMu.Unlock()

	console := out
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: out}
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(console).With().Timestamp().Logger()
	if cfg.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(cfg.SampleEvery)})
	}
	log.Logger = logger
	return nil
}

// Writer is the raw sink behind the global logger, for libraries that bring
// their own encoder.
func Writer() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		sinkMu.RLock()
		w := sink
		sinkMu.RUnlock()
		return w.Write(p)
	})
}

// Close flushes and releases the log file, if any.
func Close() error {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = os.Stdout
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
