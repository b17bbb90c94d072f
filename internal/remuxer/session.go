package remuxer

import (
	"github.com/bluenviron/remuxer/internal/container"
	"github.com/bluenviron/remuxer/internal/trackopt"
)

type track struct {
	id                  uint32
	params              container.TrackParams
	media               container.MediaParams
	currentSampleNumber uint32
	lastSampleDelta     uint32
	reachedEnd          bool
}

type inputMovie struct {
	path               string
	handle             container.Input
	params             container.MovieParams
	tracks             []track
	currentTrackNumber int
	metadata           []container.MetadataItem

	// released after tracks are provisioned.
	options []trackopt.Option
}

type outputMovie struct {
	path               string
	handle             container.Output
	params             container.MovieParams
	tracks             []track
	currentTrackNumber int
}

// session contains all the movies involved in a remuxing.
type session struct {
	inputs []*inputMovie
	output *outputMovie
	closed bool
}

func (s *session) totalTracks() int {
	n := 0
	for _, in := range s.inputs {
		n += len(in.tracks)
	}
	return n
}

// nextMovie returns the index of the first movie with tracks after i, wrapping around.
// There must be at least one movie with tracks.
func (s *session) nextMovie(i int) int {
	for {
		i = (i + 1) % len(s.inputs)
		if len(s.inputs[i].tracks) != 0 {
			return i
		}
	}
}

// close releases inputs, track options and the output, in this order.
// It can be called multiple times and on partially initialized sessions.
func (s *session) close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	for _, in := range s.inputs {
		if in.handle != nil {
			in.handle.Close() //nolint:errcheck
			in.handle = nil
		}
	}

	for _, in := range s.inputs {
		in.options = nil
	}

	var err error

	if s.output != nil && s.output.handle != nil {
		err = s.output.handle.Close()
		s.output.handle = nil
	}

	return err
}
