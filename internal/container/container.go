// Package container contains the contract between the remuxer and the
// services that read and write media containers.
package container

import (
	"errors"
)

// ErrSampleNotFound is returned when a sample number is past the end of a track.
var ErrSampleNotFound = errors.New("sample not found")

// ProgressFunc is called while a container is being finalized
// with the amount of relocated bytes and the total amount of bytes to relocate.
type ProgressFunc func(done uint64, total uint64)

// Opener opens containers.
type Opener interface {
	OpenInput(path string) (Input, error)
	OpenOutput(path string) (Output, error)
}

// Input is a container opened for reading.
type Input interface {
	// MovieParams returns movie-level parameters.
	MovieParams() MovieParams

	// TrackIDs returns track IDs, in the order they appear in the container.
	TrackIDs() []uint32

	TrackParams(trackID uint32) (TrackParams, error)
	MediaParams(trackID uint32) (MediaParams, error)

	// ConstructTimeline builds the sample timeline of a track.
	// It must be called before any sample-level method.
	ConstructTimeline(trackID uint32) error

	// LastSampleDelta returns the duration of the last sample of a track.
	LastSampleDelta(trackID uint32) (uint32, error)

	// SampleDTS returns the decode timestamp of a sample, in media timescale.
	// Sample numbers are 1-based. ErrSampleNotFound is returned past the end.
	SampleDTS(trackID uint32, sampleNumber uint32) (uint64, error)

	// Sample returns a sample, including its payload.
	Sample(trackID uint32, sampleNumber uint32) (*Sample, error)

	// SampleDescription returns the codec-specific configuration of a track.
	SampleDescription(trackID uint32) (*SampleDescription, error)

	// EditList returns the edit list of a track and the movie timescale
	// its segment durations are expressed in.
	EditList(trackID uint32) ([]EditEntry, uint32, error)

	// Metadata returns container-level metadata items.
	Metadata() []MetadataItem

	Close() error
}

// Output is a container opened for writing.
type Output interface {
	SetMovieParams(params MovieParams) error
	ImportMetadata(items []MetadataItem) error

	// CreateTrack creates a track and returns its ID.
	CreateTrack(handlerType HandlerType) (uint32, error)

	SetTrackParams(trackID uint32, params TrackParams) error
	SetMediaParams(trackID uint32, params MediaParams) error

	// CopyCodecConfig copies the codec-specific configuration of a track of src.
	CopyCodecConfig(trackID uint32, src Input, srcTrackID uint32) error

	// AppendSample appends a sample to a track.
	// The sample is owned by the output after the call, even if it fails.
	AppendSample(trackID uint32, sample *Sample) error

	// FlushTrailing completes the last sample of a track,
	// whose duration can't be derived from timestamps.
	FlushTrailing(trackID uint32, lastSampleDelta uint32) error

	// CopyEditList copies the edit list of a track of src.
	CopyEditList(trackID uint32, src Input, srcTrackID uint32) error

	// Finalize writes the container structure.
	Finalize(progress ProgressFunc) error

	Close() error
}
