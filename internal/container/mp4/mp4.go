// Package mp4 contains a MP4 container service.
package mp4

import (
	"github.com/bluenviron/remuxer/internal/container"
	"github.com/bluenviron/remuxer/internal/logger"
)

// Opener opens MP4 files.
type Opener struct {
	RelocationBufferSize int
	Parent               logger.Writer
}

// Log implements logger.Writer.
func (o *Opener) Log(level logger.Level, format string, args ...interface{}) {
	if o.Parent != nil {
		o.Parent.Log(level, "[mp4] "+format, args...)
	}
}

// OpenInput implements container.Opener.
func (o *Opener) OpenInput(path string) (container.Input, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}

	for _, track := range r.tracks {
		o.Log(logger.Debug, "%s: track %d, handler '%s', timescale %d, codec %s",
			path,
			track.params.TrackID,
			track.media.HandlerType,
			track.media.Timescale,
			describeSampleDescription(track.description))
	}

	return r, nil
}

// OpenOutput implements container.Opener.
func (o *Opener) OpenOutput(path string) (container.Output, error) {
	w, err := Create(path, o.RelocationBufferSize)
	if err != nil {
		return nil, err
	}

	return w, nil
}
