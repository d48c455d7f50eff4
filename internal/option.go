package internal

import (
	"io"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	fs        afero.Fs
	clock     clockwork.Clock
	logOutput io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithFs sets the filesystem the library, thumbnails and covers live on.
func WithFs(fs afero.Fs) Option {
	return func(a *application) {
		a.fs = fs
	}
}

// WithClock sets the clock used for timestamps and debouncing.
func WithClock(c clockwork.Clock) Option {
	return func(a *application) {
		a.clock = c
	}
}

// WithLogOutput redirects the JSON log. The MCP command needs stdout for
// the protocol, so it logs to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}
