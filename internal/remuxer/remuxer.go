// Package remuxer contains the remuxer.
package remuxer

import (
	"io"

	"github.com/bluenviron/remuxer/internal/container"
	"github.com/bluenviron/remuxer/internal/logger"
)

// Remuxer merges the tracks of several containers into a single container.
// Samples are written in timestamp order across tracks.
type Remuxer struct {
	// Inputs are input arguments, each made of a path
	// optionally followed by track options.
	Inputs []string
	Output string
	Opener container.Opener

	// Progress receives progress readouts. It can be nil.
	Progress io.Writer
	Parent   logger.Writer
}

// Log implements logger.Writer.
func (r *Remuxer) Log(level logger.Level, format string, args ...interface{}) {
	if r.Parent != nil {
		r.Parent.Log(level, "[remuxer] "+format, args...)
	}
}

// Run runs the remuxing.
// All inputs and the output are closed when it returns.
// When it fails, the output file is left on disk.
func (r *Remuxer) Run() error {
	if len(r.Inputs) == 0 {
		return newError(KindUsage, "input file is not specified")
	}
	if r.Output == "" {
		return newError(KindUsage, "output file is not specified")
	}

	s := &session{}
	defer s.close() //nolint:errcheck

	for _, raw := range r.Inputs {
		err := r.openInput(s, raw)
		if err != nil {
			return err
		}
	}

	handle, err := r.Opener.OpenOutput(r.Output)
	if err != nil {
		return newError(KindContainer, "failed to open output file %s: %w", r.Output, err)
	}
	s.output = &outputMovie{
		path:   r.Output,
		handle: handle,
	}

	err = r.setMovieParams(s)
	if err != nil {
		return err
	}

	err = r.provisionTracks(s)
	if err != nil {
		return err
	}

	err = r.interleave(s)
	if err != nil {
		return err
	}

	err = r.finalize(s)
	if err != nil {
		return err
	}

	err = s.close()
	if err != nil {
		return newError(KindContainer, "failed to close output file %s: %w", r.Output, err)
	}

	r.Log(logger.Info, "Remuxing completed!")

	return nil
}
