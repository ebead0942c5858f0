package logging

import (
	"io"
	"maps"

	"github.com/goliatone/go-clientcore/core"
)

type Options struct {
	Level      Level
	Writer     io.Writer
	Local      core.Logger
	Sink       BatchSink
	BufferSize int
	Fields     map[string]any
}

// New returns a console logger, or a remote logger mirroring to the console
// when a sink is configured.
func New(opts Options) core.Logger {
	local := opts.Local
	if local == nil {
		console := NewConsole(opts.Writer, opts.Level)
		if len(opts.Fields) > 0 {
			local = console.WithFields(maps.Clone(opts.Fields))
		} else {
			local = console
		}
	}
	if opts.Sink == nil {
		return local
	}
	return NewRemote(RemoteOptions{
		Local:      local,
		Sink:       opts.Sink,
		BufferSize: opts.BufferSize,
		Level:      opts.Level,
		Fields:     opts.Fields,
	})
}
