package remuxer

import (
	"fmt"

	"github.com/bluenviron/remuxer/internal/container"
)

type fakeTrack struct {
	params    container.TrackParams
	media     container.MediaParams
	dts       []uint64
	lastDelta uint32
	editList  []container.EditEntry
}

type fakeInput struct {
	params     container.MovieParams
	tracks     []*fakeTrack
	metadata   []container.MetadataItem
	dtsErr     error
	timelines  int
	closeCount int
}

func (i *fakeInput) track(id uint32) (*fakeTrack, error) {
	for _, t := range i.tracks {
		if t.params.TrackID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("track %d not found", id)
}

func (i *fakeInput) MovieParams() container.MovieParams {
	return i.params
}

func (i *fakeInput) TrackIDs() []uint32 {
	ids := make([]uint32, len(i.tracks))
	for j, t := range i.tracks {
		ids[j] = t.params.TrackID
	}
	return ids
}

func (i *fakeInput) TrackParams(id uint32) (container.TrackParams, error) {
	t, err := i.track(id)
	if err != nil {
		return container.TrackParams{}, err
	}
	return t.params, nil
}

func (i *fakeInput) MediaParams(id uint32) (container.MediaParams, error) {
	t, err := i.track(id)
	if err != nil {
		return container.MediaParams{}, err
	}
	return t.media, nil
}

func (i *fakeInput) ConstructTimeline(uint32) error {
	i.timelines++
	return nil
}

func (i *fakeInput) LastSampleDelta(id uint32) (uint32, error) {
	t, err := i.track(id)
	if err != nil {
		return 0, err
	}
	return t.lastDelta, nil
}

func (i *fakeInput) SampleDTS(id uint32, n uint32) (uint64, error) {
	if i.dtsErr != nil {
		return 0, i.dtsErr
	}

	t, err := i.track(id)
	if err != nil {
		return 0, err
	}

	if n == 0 || int(n) > len(t.dts) {
		return 0, container.ErrSampleNotFound
	}

	return t.dts[n-1], nil
}

func (i *fakeInput) Sample(id uint32, n uint32) (*container.Sample, error) {
	dts, err := i.SampleDTS(id, n)
	if err != nil {
		return nil, err
	}

	return &container.Sample{
		DTS:     dts,
		Payload: []byte{byte(id), byte(n)},
	}, nil
}

func (i *fakeInput) SampleDescription(id uint32) (*container.SampleDescription, error) {
	return &container.SampleDescription{Payload: []byte{byte(id)}}, nil
}

func (i *fakeInput) EditList(id uint32) ([]container.EditEntry, uint32, error) {
	t, err := i.track(id)
	if err != nil {
		return nil, 0, err
	}
	return t.editList, i.params.Timescale, nil
}

func (i *fakeInput) Metadata() []container.MetadataItem {
	return i.metadata
}

func (i *fakeInput) Close() error {
	i.closeCount++
	return nil
}

type appendedSample struct {
	trackID uint32
	dts     uint64
}

type fakeOutputTrack struct {
	handlerType container.HandlerType
	params      container.TrackParams
	media       container.MediaParams
	description []byte
	flushDelta  uint32
	editList    []container.EditEntry
}

type fakeOutput struct {
	params      container.MovieParams
	metadata    []container.MetadataItem
	tracks      []*fakeOutputTrack
	samples     []appendedSample
	appendErr   error
	finalizeErr error
	finalized   bool
	closeCount  int
}

func (o *fakeOutput) SetMovieParams(params container.MovieParams) error {
	o.params = params
	return nil
}

func (o *fakeOutput) ImportMetadata(items []container.MetadataItem) error {
	o.metadata = append(o.metadata, items...)
	return nil
}

func (o *fakeOutput) CreateTrack(handlerType container.HandlerType) (uint32, error) {
	o.tracks = append(o.tracks, &fakeOutputTrack{handlerType: handlerType})
	return uint32(len(o.tracks)), nil
}

func (o *fakeOutput) SetTrackParams(id uint32, params container.TrackParams) error {
	o.tracks[id-1].params = params
	return nil
}

func (o *fakeOutput) SetMediaParams(id uint32, params container.MediaParams) error {
	o.tracks[id-1].media = params
	return nil
}

func (o *fakeOutput) CopyCodecConfig(id uint32, src container.Input, srcID uint32) error {
	desc, err := src.SampleDescription(srcID)
	if err != nil {
		return err
	}
	o.tracks[id-1].description = desc.Payload
	return nil
}

func (o *fakeOutput) AppendSample(id uint32, sample *container.Sample) error {
	if o.appendErr != nil {
		return o.appendErr
	}
	o.samples = append(o.samples, appendedSample{trackID: id, dts: sample.DTS})
	return nil
}

func (o *fakeOutput) FlushTrailing(id uint32, delta uint32) error {
	o.tracks[id-1].flushDelta = delta
	return nil
}

func (o *fakeOutput) CopyEditList(id uint32, src container.Input, srcID uint32) error {
	entries, _, err := src.EditList(srcID)
	if err != nil {
		return err
	}
	o.tracks[id-1].editList = entries
	return nil
}

func (o *fakeOutput) Finalize(progress container.ProgressFunc) error {
	if o.finalizeErr != nil {
		return o.finalizeErr
	}
	progress(50, 100)
	progress(100, 100)
	o.finalized = true
	return nil
}

func (o *fakeOutput) Close() error {
	o.closeCount++
	return nil
}

type fakeOpener struct {
	inputs       map[string]*fakeInput
	output       *fakeOutput
	outputOpened bool
}

func (o *fakeOpener) OpenInput(path string) (container.Input, error) {
	in, ok := o.inputs[path]
	if !ok {
		return nil, fmt.Errorf("file not found")
	}
	return in, nil
}

func (o *fakeOpener) OpenOutput(string) (container.Output, error) {
	o.outputOpened = true
	return o.output, nil
}

func newFakeTrack(id uint32, timescale uint32, dts ...uint64) *fakeTrack {
	return &fakeTrack{
		params: container.TrackParams{
			TrackID: id,
			Flags:   3,
		},
		media: container.MediaParams{
			HandlerType: container.HandlerTypeVideo,
			Timescale:   timescale,
			Language:    container.LanguageUndetermined,
		},
		dts:       dts,
		lastDelta: 1,
	}
}
