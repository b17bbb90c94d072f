package mp4

import (
	"fmt"
	"math"

	gomp4 "github.com/abema/go-mp4"

	"github.com/bluenviron/remuxer/internal/container"
)

type writerSample struct {
	offset           uint64 // position inside the file before relocation
	size             uint32
	dts              uint64
	duration         uint32
	ctsOffset        int64
	isNonSync        bool
	descriptionIndex uint32
}

type writerChunk struct {
	offset           uint64
	sampleCount      uint32
	descriptionIndex uint32
}

type writerTrack struct {
	params      container.TrackParams
	media       container.MediaParams
	description []byte
	editList    []container.EditEntry
	samples     []*writerSample
	flushed     bool
}

type trakMarshalResult struct {
	chunkOffsets    []uint64
	chunkOffsetsPos int
}

func (t *writerTrack) mediaDuration() uint64 {
	d := uint64(0)
	for _, sa := range t.samples {
		d += uint64(sa.duration)
	}
	return d
}

func (t *writerTrack) presentationDuration(movieTimescale uint32) uint64 {
	if len(t.editList) != 0 {
		d := uint64(0)
		for _, e := range t.editList {
			d += e.SegmentDuration
		}
		return d
	}

	return rescale(t.mediaDuration(), movieTimescale, t.media.Timescale)
}

func (t *writerTrack) chunks() []writerChunk {
	var chunks []writerChunk
	var end uint64

	for _, sa := range t.samples {
		if len(chunks) != 0 {
			cur := &chunks[len(chunks)-1]
			if sa.offset == end && sa.descriptionIndex == cur.descriptionIndex {
				cur.sampleCount++
				end += uint64(sa.size)
				continue
			}
		}

		chunks = append(chunks, writerChunk{
			offset:           sa.offset,
			sampleCount:      1,
			descriptionIndex: sa.descriptionIndex,
		})
		end = sa.offset + uint64(sa.size)
	}

	return chunks
}

func (t *writerTrack) marshal(w *boxWriter, movieTimescale uint32, useCo64 bool) (*trakMarshalResult, error) {
	/*
		|trak|
		|    |tkhd|
		|    |edts|
		|    |    |elst|
		|    |mdia|
		|    |    |mdhd|
		|    |    |hdlr|
		|    |    |minf|
		|    |    |    |vmhd| (or other media header)
		|    |    |    |dinf|
		|    |    |    |    |dref|
		|    |    |    |    |    |url|
		|    |    |    |stbl|
		|    |    |    |    |stsd|
		|    |    |    |    |stts|
		|    |    |    |    |stss|
		|    |    |    |    |ctts|
		|    |    |    |    |stsc|
		|    |    |    |    |stsz|
		|    |    |    |    |stco| (or co64)
	*/

	if len(t.description) == 0 {
		return nil, fmt.Errorf("sample description of track %d has not been set", t.params.TrackID)
	}

	_, err := w.writeBoxStart(&gomp4.Trak{}) // <trak>
	if err != nil {
		return nil, err
	}

	presentationDuration := t.presentationDuration(movieTimescale)

	tkhd := &gomp4.Tkhd{
		FullBox: gomp4.FullBox{
			Flags: uint32ToFlags(t.params.Flags),
		},
		TrackID:        t.params.TrackID,
		Layer:          t.params.Layer,
		AlternateGroup: t.params.AlternateGroup,
		Volume:         t.params.Volume,
		Matrix:         t.params.Matrix,
		Width:          t.params.Width,
		Height:         t.params.Height,
	}
	if presentationDuration > math.MaxUint32 {
		tkhd.Version = 1
		tkhd.DurationV1 = presentationDuration
	} else {
		tkhd.DurationV0 = uint32(presentationDuration)
	}

	_, err = w.writeBox(tkhd) // <tkhd/>
	if err != nil {
		return nil, err
	}

	if len(t.editList) != 0 {
		_, err = w.writeBoxStart(&gomp4.Edts{}) // <edts>
		if err != nil {
			return nil, err
		}

		_, err = w.writeBox(editListToBox(t.editList)) // <elst/>
		if err != nil {
			return nil, err
		}

		err = w.writeBoxEnd() // </edts>
		if err != nil {
			return nil, err
		}
	}

	_, err = w.writeBoxStart(&gomp4.Mdia{}) // <mdia>
	if err != nil {
		return nil, err
	}

	mediaDuration := t.mediaDuration()

	mdhd := &gomp4.Mdhd{
		Timescale: t.media.Timescale,
		Language: [3]byte{
			byte(t.media.Language>>10) & 0x1f,
			byte(t.media.Language>>5) & 0x1f,
			byte(t.media.Language) & 0x1f,
		},
	}
	if mediaDuration > math.MaxUint32 {
		mdhd.Version = 1
		mdhd.DurationV1 = mediaDuration
	} else {
		mdhd.DurationV0 = uint32(mediaDuration)
	}

	_, err = w.writeBox(mdhd) // <mdhd/>
	if err != nil {
		return nil, err
	}

	_, err = w.writeBox(&gomp4.Hdlr{ // <hdlr/>
		HandlerType: t.media.HandlerType,
		Name:        t.media.HandlerName,
	})
	if err != nil {
		return nil, err
	}

	_, err = w.writeBoxStart(&gomp4.Minf{}) // <minf>
	if err != nil {
		return nil, err
	}

	err = t.marshalMediaHeader(w)
	if err != nil {
		return nil, err
	}

	_, err = w.writeBoxStart(&gomp4.Dinf{}) // <dinf>
	if err != nil {
		return nil, err
	}

	_, err = w.writeBoxStart(&gomp4.Dref{ // <dref>
		EntryCount: 1,
	})
	if err != nil {
		return nil, err
	}

	_, err = w.writeBox(&gomp4.Url{ // <url/>
		FullBox: gomp4.FullBox{
			Flags: [3]byte{0, 0, 1},
		},
	})
	if err != nil {
		return nil, err
	}

	err = w.writeBoxEnd() // </dref>
	if err != nil {
		return nil, err
	}

	err = w.writeBoxEnd() // </dinf>
	if err != nil {
		return nil, err
	}

	_, err = w.writeBoxStart(&gomp4.Stbl{}) // <stbl>
	if err != nil {
		return nil, err
	}

	err = w.writeRawBox([4]byte{'s', 't', 's', 'd'}, t.description) // <stsd/>
	if err != nil {
		return nil, err
	}

	err = t.marshalSTTS(w) // <stts/>
	if err != nil {
		return nil, err
	}

	err = t.marshalSTSS(w) // <stss/>
	if err != nil {
		return nil, err
	}

	err = t.marshalCTTS(w) // <ctts/>
	if err != nil {
		return nil, err
	}

	chunks := t.chunks()

	err = marshalSTSC(w, chunks) // <stsc/>
	if err != nil {
		return nil, err
	}

	err = t.marshalSTSZ(w) // <stsz/>
	if err != nil {
		return nil, err
	}

	chunkOffsets := make([]uint64, len(chunks))
	for i, c := range chunks {
		chunkOffsets[i] = c.offset
	}

	chunkOffsetsPos, err := w.writeBox(chunkOffsetBox(chunkOffsets, 0, useCo64)) // <stco/>
	if err != nil {
		return nil, err
	}

	err = w.writeBoxEnd() // </stbl>
	if err != nil {
		return nil, err
	}

	err = w.writeBoxEnd() // </minf>
	if err != nil {
		return nil, err
	}

	err = w.writeBoxEnd() // </mdia>
	if err != nil {
		return nil, err
	}

	err = w.writeBoxEnd() // </trak>
	if err != nil {
		return nil, err
	}

	return &trakMarshalResult{
		chunkOffsets:    chunkOffsets,
		chunkOffsetsPos: chunkOffsetsPos,
	}, nil
}

func (t *writerTrack) marshalMediaHeader(w *boxWriter) error {
	if len(t.media.MediaHeader) >= 4 {
		var typ [4]byte
		copy(typ[:], t.media.MediaHeader[:4])
		return w.writeRawBox(typ, t.media.MediaHeader[4:])
	}

	switch t.media.HandlerType {
	case container.HandlerTypeVideo:
		_, err := w.writeBox(&gomp4.Vmhd{ // <vmhd/>
			FullBox: gomp4.FullBox{
				Flags: [3]byte{0, 0, 1},
			},
		})
		return err

	case container.HandlerTypeAudio:
		_, err := w.writeBox(&gomp4.Smhd{}) // <smhd/>
		return err

	default:
		return w.writeRawBox([4]byte{'n', 'm', 'h', 'd'}, []byte{0, 0, 0, 0}) // <nmhd/>
	}
}

func (t *writerTrack) marshalSTTS(w *boxWriter) error {
	var entries []gomp4.SttsEntry

	for _, sa := range t.samples {
		if len(entries) != 0 && sa.duration == entries[len(entries)-1].SampleDelta {
			entries[len(entries)-1].SampleCount++
		} else {
			entries = append(entries, gomp4.SttsEntry{
				SampleCount: 1,
				SampleDelta: sa.duration,
			})
		}
	}

	_, err := w.writeBox(&gomp4.Stts{
		EntryCount: uint32(len(entries)),
		Entries:    entries,
	})
	return err
}

func (t *writerTrack) marshalSTSS(w *boxWriter) error {
	allSync := true
	for _, sa := range t.samples {
		if sa.isNonSync {
			allSync = false
			break
		}
	}

	if allSync {
		return nil
	}

	var sampleNumbers []uint32

	for i, sa := range t.samples {
		if !sa.isNonSync {
			sampleNumbers = append(sampleNumbers, uint32(i+1))
		}
	}

	_, err := w.writeBox(&gomp4.Stss{
		EntryCount:   uint32(len(sampleNumbers)),
		SampleNumber: sampleNumbers,
	})
	return err
}

func (t *writerTrack) marshalCTTS(w *boxWriter) error {
	hasOffsets := false
	hasNegativeOffsets := false

	for _, sa := range t.samples {
		if sa.ctsOffset != 0 {
			hasOffsets = true
		}
		if sa.ctsOffset < 0 {
			hasNegativeOffsets = true
		}
	}

	if !hasOffsets {
		return nil
	}

	var entries []gomp4.CttsEntry
	var last int64

	for _, sa := range t.samples {
		if len(entries) != 0 && sa.ctsOffset == last {
			entries[len(entries)-1].SampleCount++
			continue
		}

		if sa.ctsOffset < math.MinInt32 || sa.ctsOffset > math.MaxInt32 {
			return fmt.Errorf("composition offset %d of track %d is out of range", sa.ctsOffset, t.params.TrackID)
		}

		entry := gomp4.CttsEntry{SampleCount: 1}
		if hasNegativeOffsets {
			entry.SampleOffsetV1 = int32(sa.ctsOffset)
		} else {
			entry.SampleOffsetV0 = uint32(sa.ctsOffset)
		}

		entries = append(entries, entry)
		last = sa.ctsOffset
	}

	ctts := &gomp4.Ctts{
		EntryCount: uint32(len(entries)),
		Entries:    entries,
	}
	if hasNegativeOffsets {
		ctts.Version = 1
	}

	_, err := w.writeBox(ctts)
	return err
}

func marshalSTSC(w *boxWriter, chunks []writerChunk) error {
	var entries []gomp4.StscEntry

	for i, c := range chunks {
		if len(entries) != 0 {
			prev := entries[len(entries)-1]
			if prev.SamplesPerChunk == c.sampleCount && prev.SampleDescriptionIndex == c.descriptionIndex {
				continue
			}
		}

		entries = append(entries, gomp4.StscEntry{
			FirstChunk:             uint32(i + 1),
			SamplesPerChunk:        c.sampleCount,
			SampleDescriptionIndex: c.descriptionIndex,
		})
	}

	_, err := w.writeBox(&gomp4.Stsc{
		EntryCount: uint32(len(entries)),
		Entries:    entries,
	})
	return err
}

func (t *writerTrack) marshalSTSZ(w *boxWriter) error {
	sampleSizes := make([]uint32, len(t.samples))
	for i, sa := range t.samples {
		sampleSizes[i] = sa.size
	}

	_, err := w.writeBox(&gomp4.Stsz{
		SampleSize:  0,
		SampleCount: uint32(len(sampleSizes)),
		EntrySize:   sampleSizes,
	})
	return err
}

func chunkOffsetBox(offsets []uint64, shift uint64, useCo64 bool) gomp4.IImmutableBox {
	if useCo64 {
		entries := make([]uint64, len(offsets))
		for i, o := range offsets {
			entries[i] = o + shift
		}

		return &gomp4.Co64{
			EntryCount:  uint32(len(entries)),
			ChunkOffset: entries,
		}
	}

	entries := make([]uint32, len(offsets))
	for i, o := range offsets {
		entries[i] = uint32(o + shift)
	}

	return &gomp4.Stco{
		EntryCount:  uint32(len(entries)),
		ChunkOffset: entries,
	}
}

func editListToBox(entries []container.EditEntry) *gomp4.Elst {
	version1 := false
	for _, e := range entries {
		if e.SegmentDuration > math.MaxUint32 || e.MediaTime > math.MaxInt32 || e.MediaTime < math.MinInt32 {
			version1 = true
			break
		}
	}

	elst := &gomp4.Elst{
		EntryCount: uint32(len(entries)),
		Entries:    make([]gomp4.ElstEntry, len(entries)),
	}

	if version1 {
		elst.Version = 1
	}

	for i, e := range entries {
		if version1 {
			elst.Entries[i].SegmentDurationV1 = e.SegmentDuration
			elst.Entries[i].MediaTimeV1 = e.MediaTime
		} else {
			elst.Entries[i].SegmentDurationV0 = uint32(e.SegmentDuration)
			elst.Entries[i].MediaTimeV0 = int32(e.MediaTime)
		}
		elst.Entries[i].MediaRateInteger = e.MediaRateInteger
		elst.Entries[i].MediaRateFraction = e.MediaRateFraction
	}

	return elst
}

// rescale converts v from timescale src to timescale dst.
func rescale(v uint64, dst uint32, src uint32) uint64 {
	if src == 0 || dst == src {
		return v
	}
	secs := v / uint64(src)
	dec := v % uint64(src)
	return secs*uint64(dst) + dec*uint64(dst)/uint64(src)
}
