package remuxer

import (
	"errors"
	"fmt"

	"code.cloudfoundry.org/bytefmt"

	"github.com/bluenviron/remuxer/internal/container"
)

const progressInterval = 256

// interleave moves samples from input tracks to output tracks.
//
// Tracks are visited in round-robin order. A sample is admitted when its timestamp
// is not greater than the largest admitted timestamp, or when all active tracks
// have been skipped consecutively, so that the loop always makes progress.
func (r *Remuxer) interleave(s *session) error {
	activeTrackCount := s.totalTracks()
	if activeTrackCount == 0 {
		return nil
	}

	largestAcceptedTimestamp := float64(0)
	consecutiveSkips := 0
	importedSamples := 0
	importedBytes := uint64(0)

	movieNumber := s.nextMovie(len(s.inputs) - 1)
	s.output.currentTrackNumber = 0

	for {
		in := s.inputs[movieNumber]
		it := &in.tracks[in.currentTrackNumber]
		ot := &s.output.tracks[s.output.currentTrackNumber]

		if !it.reachedEnd {
			dts, err := in.handle.SampleDTS(it.id, it.currentSampleNumber)

			switch {
			case errors.Is(err, container.ErrSampleNotFound):
				it.reachedEnd = true
				ot.reachedEnd = true
				activeTrackCount--

				if activeTrackCount == 0 {
					r.printProgress("Importing: %s\n", bytefmt.ByteSize(importedBytes))
					return nil
				}

			case err != nil:
				return newError(KindContainer, "failed to get the timestamp of sample %d of track %d of %s: %w",
					it.currentSampleNumber, it.id, in.path, err)

			default:
				t := float64(dts) / float64(it.media.Timescale)

				if t <= largestAcceptedTimestamp || consecutiveSkips >= activeTrackCount {
					var sample *container.Sample
					sample, err = in.handle.Sample(it.id, it.currentSampleNumber)
					if err != nil {
						return newError(KindContainer, "failed to get sample %d of track %d of %s: %w",
							it.currentSampleNumber, it.id, in.path, err)
					}

					size := uint64(len(sample.Payload))

					err = s.output.handle.AppendSample(ot.id, sample)
					if err != nil {
						return newError(KindContainer, "failed to append a sample to track %d: %w", ot.id, err)
					}

					it.currentSampleNumber++
					ot.currentSampleNumber++
					consecutiveSkips = 0

					if t > largestAcceptedTimestamp {
						largestAcceptedTimestamp = t
					}

					importedSamples++
					importedBytes += size

					if importedSamples%progressInterval == 0 {
						r.printProgress("Importing: %s\r", bytefmt.ByteSize(importedBytes))
					}
				} else {
					consecutiveSkips++
				}
			}
		}

		in.currentTrackNumber++
		if in.currentTrackNumber == len(in.tracks) {
			in.currentTrackNumber = 0
			movieNumber = s.nextMovie(movieNumber)
		}

		s.output.currentTrackNumber = (s.output.currentTrackNumber + 1) % len(s.output.tracks)
	}
}

func (r *Remuxer) printProgress(format string, args ...interface{}) {
	if r.Progress != nil {
		fmt.Fprintf(r.Progress, format, args...)
	}
}
