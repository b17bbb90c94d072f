package mp4

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	gomp4 "github.com/abema/go-mp4"

	"github.com/bluenviron/remuxer/internal/container"
)

const (
	defaultMovieTimescale = 1000
	mdatHeaderSize        = 16
	writeBufferSize       = 1024 * 1024
)

var (
	brandIsom    = container.Brand{'i', 's', 'o', 'm'}
	handlerMdir  = [4]byte{'m', 'd', 'i', 'r'}
	mdatTemplate = [mdatHeaderSize]byte{0, 0, 0, 1, 'm', 'd', 'a', 't'}
)

// Writer is a MP4 writer.
// Media data is written as soon as samples are appended;
// the movie header is built by Finalize and moved in front of media data.
type Writer struct {
	f                    *os.File
	bw                   *bufio.Writer
	relocationBufferSize int
	movieParams          container.MovieParams
	metadata             []container.MetadataItem
	tracks               []*writerTrack
	dataEnd              uint64
	finalized            bool
}

// Create creates a MP4 file for writing.
func Create(path string, relocationBufferSize int) (*Writer, error) {
	if relocationBufferSize <= 0 {
		return nil, fmt.Errorf("invalid relocation buffer size")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		f:                    f,
		bw:                   bufio.NewWriterSize(f, writeBufferSize),
		relocationBufferSize: relocationBufferSize,
		movieParams: container.MovieParams{
			MajorBrand: brandIsom,
			Timescale:  defaultMovieTimescale,
		},
	}

	_, err = w.bw.Write(mdatTemplate[:])
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, err
	}
	w.dataEnd = mdatHeaderSize

	return w, nil
}

func (w *Writer) track(trackID uint32) (*writerTrack, error) {
	if trackID == 0 || int(trackID) > len(w.tracks) {
		return nil, fmt.Errorf("track %d not found", trackID)
	}
	return w.tracks[trackID-1], nil
}

// SetMovieParams implements container.Output.
func (w *Writer) SetMovieParams(params container.MovieParams) error {
	if params.MajorBrand.IsZero() {
		params.MajorBrand = brandIsom
	}
	if params.Timescale == 0 {
		params.Timescale = defaultMovieTimescale
	}

	params.CompatibleBrands = append([]container.Brand(nil), params.CompatibleBrands...)
	w.movieParams = params

	return nil
}

// ImportMetadata implements container.Output.
// When an item type is already present, the existing item is kept.
func (w *Writer) ImportMetadata(items []container.MetadataItem) error {
outer:
	for _, item := range items {
		if len(item.Data) < 8 {
			return fmt.Errorf("invalid metadata item '%s'", string(item.Type[:]))
		}

		for _, existing := range w.metadata {
			if existing.Type == item.Type {
				continue outer
			}
		}

		w.metadata = append(w.metadata, container.MetadataItem{
			Type: item.Type,
			Data: append([]byte(nil), item.Data...),
		})
	}

	return nil
}

// CreateTrack implements container.Output.
func (w *Writer) CreateTrack(handlerType container.HandlerType) (uint32, error) {
	if w.finalized {
		return 0, fmt.Errorf("writer has been finalized")
	}

	if len(w.tracks) >= math.MaxUint32-1 {
		return 0, fmt.Errorf("too many tracks")
	}

	id := uint32(len(w.tracks) + 1)

	w.tracks = append(w.tracks, &writerTrack{
		params: container.TrackParams{
			TrackID: id,
			Flags:   3,
			Matrix:  [9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000},
		},
		media: container.MediaParams{
			HandlerType: handlerType,
			Language:    container.LanguageUndetermined,
		},
	})

	return id, nil
}

// SetTrackParams implements container.Output.
// The track ID can't be changed.
func (w *Writer) SetTrackParams(trackID uint32, params container.TrackParams) error {
	track, err := w.track(trackID)
	if err != nil {
		return err
	}

	params.TrackID = trackID
	track.params = params

	return nil
}

// SetMediaParams implements container.Output.
func (w *Writer) SetMediaParams(trackID uint32, params container.MediaParams) error {
	track, err := w.track(trackID)
	if err != nil {
		return err
	}

	if params.Timescale == 0 {
		return fmt.Errorf("invalid timescale of track %d", trackID)
	}

	params.MediaHeader = append([]byte(nil), params.MediaHeader...)
	track.media = params

	return nil
}

// SetSampleDescription sets the codec-specific configuration of a track.
func (w *Writer) SetSampleDescription(trackID uint32, desc *container.SampleDescription) error {
	track, err := w.track(trackID)
	if err != nil {
		return err
	}

	// version, flags and entry count
	if len(desc.Payload) < 8 {
		return fmt.Errorf("invalid sample description")
	}

	track.description = append([]byte(nil), desc.Payload...)

	return nil
}

// CopyCodecConfig implements container.Output.
func (w *Writer) CopyCodecConfig(trackID uint32, src container.Input, srcTrackID uint32) error {
	desc, err := src.SampleDescription(srcTrackID)
	if err != nil {
		return err
	}

	return w.SetSampleDescription(trackID, desc)
}

// SetEditList sets the edit list of a track.
// Segment durations are converted from movieTimescale to the timescale of the output movie.
func (w *Writer) SetEditList(trackID uint32, entries []container.EditEntry, movieTimescale uint32) error {
	track, err := w.track(trackID)
	if err != nil {
		return err
	}

	track.editList = make([]container.EditEntry, len(entries))

	for i, e := range entries {
		e.SegmentDuration = rescale(e.SegmentDuration, w.movieParams.Timescale, movieTimescale)
		track.editList[i] = e
	}

	return nil
}

// CopyEditList implements container.Output.
func (w *Writer) CopyEditList(trackID uint32, src container.Input, srcTrackID uint32) error {
	entries, movieTimescale, err := src.EditList(srcTrackID)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		return nil
	}

	return w.SetEditList(trackID, entries, movieTimescale)
}

// AppendSample implements container.Output.
func (w *Writer) AppendSample(trackID uint32, sample *container.Sample) error {
	track, err := w.track(trackID)
	if err != nil {
		return err
	}

	if w.finalized {
		return fmt.Errorf("writer has been finalized")
	}

	if track.flushed {
		return fmt.Errorf("track %d has been flushed", trackID)
	}

	if uint64(len(sample.Payload)) > math.MaxUint32 {
		return fmt.Errorf("sample is too big")
	}

	if len(track.samples) != 0 {
		prev := track.samples[len(track.samples)-1]

		if sample.DTS < prev.dts {
			return fmt.Errorf("DTS of track %d is not monotonic", trackID)
		}

		delta := sample.DTS - prev.dts
		if delta > math.MaxUint32 {
			return fmt.Errorf("sample delta of track %d is too big", trackID)
		}

		prev.duration = uint32(delta)
	}

	_, err = w.bw.Write(sample.Payload)
	if err != nil {
		return err
	}

	descriptionIndex := sample.DescriptionIndex
	if descriptionIndex == 0 {
		descriptionIndex = 1
	}

	track.samples = append(track.samples, &writerSample{
		offset:           w.dataEnd,
		size:             uint32(len(sample.Payload)),
		dts:              sample.DTS,
		ctsOffset:        sample.CTSOffset,
		isNonSync:        sample.IsNonSyncSample,
		descriptionIndex: descriptionIndex,
	})
	w.dataEnd += uint64(len(sample.Payload))

	return nil
}

// FlushTrailing implements container.Output.
func (w *Writer) FlushTrailing(trackID uint32, lastSampleDelta uint32) error {
	track, err := w.track(trackID)
	if err != nil {
		return err
	}

	if track.flushed {
		return nil
	}

	if len(track.samples) != 0 {
		track.samples[len(track.samples)-1].duration = lastSampleDelta
	}
	track.flushed = true

	return nil
}

// Finalize implements container.Output.
func (w *Writer) Finalize(progress container.ProgressFunc) error {
	if w.finalized {
		return fmt.Errorf("writer has been finalized")
	}
	w.finalized = true

	err := w.bw.Flush()
	if err != nil {
		return err
	}

	var size [8]byte
	binary.BigEndian.PutUint64(size[:], w.dataEnd)

	_, err = w.f.WriteAt(size[:], 8)
	if err != nil {
		return err
	}

	header, err := w.marshalHeader()
	if err != nil {
		return err
	}

	err = relocate(w.f, w.dataEnd, uint64(len(header)), make([]byte, w.relocationBufferSize), progress)
	if err != nil {
		return err
	}

	_, err = w.f.WriteAt(header, 0)
	if err != nil {
		return err
	}

	return w.f.Sync()
}

func (w *Writer) marshalHeader() ([]byte, error) {
	useCo64 := w.dataEnd > math.MaxUint32

	for {
		header, err := w.marshalFtypAndMoov(useCo64)
		if err != nil {
			return nil, err
		}

		if header != nil {
			return header, nil
		}

		useCo64 = true
	}
}

// marshalFtypAndMoov returns nil when chunk offsets do not fit into stco boxes.
func (w *Writer) marshalFtypAndMoov(useCo64 bool) ([]byte, error) {
	/*
		|ftyp|
		|moov|
		|    |mvhd|
		|    |trak|
		|    |trak|
		|    |....|
		|    |udta|
		|    |    |meta|
		|    |    |    |hdlr|
		|    |    |    |ilst|
	*/

	bw := newBoxWriter()

	ftyp := &gomp4.Ftyp{ // <ftyp/>
		MajorBrand:   w.movieParams.MajorBrand,
		MinorVersion: w.movieParams.MinorVersion,
	}
	for _, b := range w.movieParams.CompatibleBrands {
		ftyp.CompatibleBrands = append(ftyp.CompatibleBrands, gomp4.CompatibleBrandElem{
			CompatibleBrand: b,
		})
	}

	_, err := bw.writeBox(ftyp)
	if err != nil {
		return nil, err
	}

	_, err = bw.writeBoxStart(&gomp4.Moov{}) // <moov>
	if err != nil {
		return nil, err
	}

	duration := uint64(0)
	for _, track := range w.tracks {
		d := track.presentationDuration(w.movieParams.Timescale)
		if d > duration {
			duration = d
		}
	}

	mvhd := &gomp4.Mvhd{ // <mvhd/>
		Timescale:   w.movieParams.Timescale,
		Rate:        65536,
		Volume:      256,
		Matrix:      [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
		NextTrackID: uint32(len(w.tracks) + 1),
	}
	if duration > math.MaxUint32 {
		mvhd.Version = 1
		mvhd.DurationV1 = duration
	} else {
		mvhd.DurationV0 = uint32(duration)
	}

	_, err = bw.writeBox(mvhd)
	if err != nil {
		return nil, err
	}

	results := make([]*trakMarshalResult, len(w.tracks))

	for i, track := range w.tracks {
		results[i], err = track.marshal(bw, w.movieParams.Timescale, useCo64)
		if err != nil {
			return nil, err
		}
	}

	if len(w.metadata) != 0 {
		err = w.marshalMetadata(bw)
		if err != nil {
			return nil, err
		}
	}

	err = bw.writeBoxEnd() // </moov>
	if err != nil {
		return nil, err
	}

	moovEndOffset, err := bw.buf.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	headerSize := uint64(moovEndOffset)

	if !useCo64 && w.dataEnd+headerSize > math.MaxUint32 {
		return nil, nil
	}

	for _, res := range results {
		err = bw.rewriteBox(res.chunkOffsetsPos, chunkOffsetBox(res.chunkOffsets, headerSize, useCo64))
		if err != nil {
			return nil, err
		}
	}

	return bw.bytes(), nil
}

func (w *Writer) marshalMetadata(bw *boxWriter) error {
	_, err := bw.writeBoxStart(&gomp4.Udta{}) // <udta>
	if err != nil {
		return err
	}

	_, err = bw.writeBoxStart(&gomp4.Meta{}) // <meta>
	if err != nil {
		return err
	}

	_, err = bw.writeBox(&gomp4.Hdlr{ // <hdlr/>
		HandlerType: handlerMdir,
	})
	if err != nil {
		return err
	}

	_, err = bw.writeBoxStart(&gomp4.Ilst{}) // <ilst>
	if err != nil {
		return err
	}

	for _, item := range w.metadata {
		err = bw.writeBytes(item.Data)
		if err != nil {
			return err
		}
	}

	err = bw.writeBoxEnd() // </ilst>
	if err != nil {
		return err
	}

	err = bw.writeBoxEnd() // </meta>
	if err != nil {
		return err
	}

	return bw.writeBoxEnd() // </udta>
}

// Close implements container.Output.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
