package remuxer

import (
	"math"

	"github.com/bluenviron/remuxer/internal/container"
	"github.com/bluenviron/remuxer/internal/logger"
	"github.com/bluenviron/remuxer/internal/trackopt"
)

// openInput opens an input, reads its tracks and parses its track options.
func (r *Remuxer) openInput(s *session, raw string) error {
	in := trackopt.Split(raw)

	if in.Path == "" {
		return newError(KindUsage, "input file name is empty")
	}
	if in.Path == "-" {
		return newError(KindUsage, "standard input not supported")
	}

	handle, err := r.Opener.OpenInput(in.Path)
	if err != nil {
		return newError(KindContainer, "failed to open input file %s: %w", in.Path, err)
	}

	m := &inputMovie{
		path:   in.Path,
		handle: handle,
		params: handle.MovieParams(),
	}
	s.inputs = append(s.inputs, m)

	ids := handle.TrackIDs()
	if uint64(len(ids))+uint64(s.totalTracks()) >= math.MaxUint32 {
		return newError(KindResource, "too many tracks")
	}

	m.tracks = make([]track, len(ids))
	m.options = make([]trackopt.Option, len(ids))

	for i, id := range ids {
		t := &m.tracks[i]
		t.id = id
		t.currentSampleNumber = 1

		t.params, err = handle.TrackParams(id)
		if err != nil {
			return newError(KindContainer, "failed to get track parameters of %s: %w", in.Path, err)
		}

		t.media, err = handle.MediaParams(id)
		if err != nil {
			return newError(KindContainer, "failed to get media parameters of %s: %w", in.Path, err)
		}

		if t.media.Timescale == 0 {
			return newError(KindContainer, "track %d of %s has a zero timescale", id, in.Path)
		}

		err = handle.ConstructTimeline(id)
		if err != nil {
			return newError(KindContainer, "failed to construct timeline of %s: %w", in.Path, err)
		}

		t.lastSampleDelta, err = handle.LastSampleDelta(id)
		if err != nil {
			return newError(KindContainer, "failed to get last sample delta of %s: %w", in.Path, err)
		}

		m.options[i] = trackopt.Defaults(t.params, t.media)
	}

	err = trackopt.ParseAll(in, m.options)
	if err != nil {
		return newError(KindUsage, "%s: %w", in.Path, err)
	}

	m.metadata = handle.Metadata()

	r.Log(logger.Debug, "opened %s, %d tracks", in.Path, len(m.tracks))

	return nil
}

// provisionTracks creates an output track for every input track.
// Creation order defines the output track numbering and the interleaving order.
func (r *Remuxer) provisionTracks(s *session) error {
	s.output.tracks = make([]track, 0, s.totalTracks())

	for _, in := range s.inputs {
		for i := range in.tracks {
			it := &in.tracks[i]
			opt := in.options[i]

			id, err := s.output.handle.CreateTrack(it.media.HandlerType)
			if err != nil {
				return newError(KindContainer, "failed to create a track: %w", err)
			}

			params := it.params
			params.TrackID = id
			params.AlternateGroup = opt.AlternateGroup

			media := it.media
			media.Language = opt.Language

			err = s.output.handle.SetTrackParams(id, params)
			if err != nil {
				return newError(KindContainer, "failed to set track parameters: %w", err)
			}

			err = s.output.handle.SetMediaParams(id, media)
			if err != nil {
				return newError(KindContainer, "failed to set media parameters: %w", err)
			}

			err = s.output.handle.CopyCodecConfig(id, in.handle, it.id)
			if err != nil {
				return newError(KindContainer, "failed to copy codec configuration from %s: %w", in.path, err)
			}

			s.output.tracks = append(s.output.tracks, track{
				id:                  id,
				params:              params,
				media:               media,
				currentSampleNumber: 1,
				lastSampleDelta:     it.lastSampleDelta,
			})

			r.Log(logger.Debug, "track %d of %s -> track %d (%s, language %s, alternate group %d)",
				it.id, in.path, id, media.HandlerType, container.UnpackLanguage(media.Language), params.AlternateGroup)
		}

		in.options = nil
	}

	return nil
}
