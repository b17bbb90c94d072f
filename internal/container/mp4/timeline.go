package mp4

import (
	"fmt"
)

type timelineSample struct {
	offset           uint64
	size             uint32
	dts              uint64
	ctsOffset        int64
	isNonSync        bool
	descriptionIndex uint32
}

func (t *readerTrack) chunkOffsets() []uint64 {
	if t.co64 != nil {
		return t.co64.ChunkOffset
	}

	ret := make([]uint64, len(t.stco.ChunkOffset))
	for i, v := range t.stco.ChunkOffset {
		ret[i] = uint64(v)
	}
	return ret
}

func (t *readerTrack) hasSampleTable() bool {
	return t.stts != nil && t.stsc != nil && t.stsz != nil && (t.stco != nil || t.co64 != nil)
}

func (t *readerTrack) constructTimeline() error {
	var samples []timelineSample
	var dts uint64
	var lastDelta uint32

	switch {
	case t.hasSampleTable():
		var err error
		samples, dts, lastDelta, err = t.sampleTableTimeline()
		if err != nil {
			return err
		}

	case len(t.fragments) == 0:
		return fmt.Errorf("sample table is incomplete")
	}

	// samples of movie fragments follow the ones of the sample table.
	for _, run := range t.fragments {
		if run.hasBaseDTS {
			dts = run.baseDTS
		}

		for _, sa := range run.samples {
			samples = append(samples, timelineSample{
				offset:           sa.offset,
				size:             sa.size,
				dts:              dts,
				ctsOffset:        sa.ctsOffset,
				isNonSync:        sa.isNonSync,
				descriptionIndex: sa.descriptionIndex,
			})
			dts += uint64(sa.duration)
			lastDelta = sa.duration
		}
	}

	if samples == nil {
		samples = []timelineSample{}
	}

	t.timeline = samples
	t.lastDelta = lastDelta

	return nil
}

// sampleTableTimeline expands the sample table.
// It returns samples, the end timestamp and the duration of the last sample.
func (t *readerTrack) sampleTableTimeline() ([]timelineSample, uint64, uint32, error) {
	count := int(t.stsz.SampleCount)
	samples := make([]timelineSample, count)

	for i := range samples {
		if t.stsz.SampleSize != 0 {
			samples[i].size = t.stsz.SampleSize
		} else {
			if i >= len(t.stsz.EntrySize) {
				return nil, 0, 0, fmt.Errorf("sample size table is too short")
			}
			samples[i].size = t.stsz.EntrySize[i]
		}
	}

	pos := 0
	dts := uint64(0)
	lastDelta := uint32(0)

	for _, e := range t.stts.Entries {
		for j := uint32(0); j < e.SampleCount && pos < count; j++ {
			samples[pos].dts = dts
			dts += uint64(e.SampleDelta)
			pos++
		}
		if e.SampleCount != 0 {
			lastDelta = e.SampleDelta
		}
	}

	if pos < count {
		return nil, 0, 0, fmt.Errorf("time-to-sample table covers %d samples out of %d", pos, count)
	}

	if t.ctts != nil {
		pos = 0

		for _, e := range t.ctts.Entries {
			var offset int64
			if t.ctts.GetVersion() == 0 {
				// version 0 offsets are often written as signed values
				offset = int64(int32(e.SampleOffsetV0))
			} else {
				offset = int64(e.SampleOffsetV1)
			}

			for j := uint32(0); j < e.SampleCount && pos < count; j++ {
				samples[pos].ctsOffset = offset
				pos++
			}
		}
	}

	if t.stss != nil {
		for i := range samples {
			samples[i].isNonSync = true
		}

		for _, n := range t.stss.SampleNumber {
			if n >= 1 && int(n) <= count {
				samples[n-1].isNonSync = false
			}
		}
	}

	offsets := t.chunkOffsets()
	pos = 0

	for i, e := range t.stsc.Entries {
		lastChunk := uint32(len(offsets))
		if i+1 < len(t.stsc.Entries) {
			lastChunk = t.stsc.Entries[i+1].FirstChunk - 1
		}

		for chunk := e.FirstChunk; chunk <= lastChunk && pos < count; chunk++ {
			if chunk == 0 || int(chunk) > len(offsets) {
				return nil, 0, 0, fmt.Errorf("invalid chunk number %d", chunk)
			}

			offset := offsets[chunk-1]

			for j := uint32(0); j < e.SamplesPerChunk && pos < count; j++ {
				samples[pos].offset = offset
				samples[pos].descriptionIndex = e.SampleDescriptionIndex
				offset += uint64(samples[pos].size)
				pos++
			}
		}
	}

	if pos < count {
		return nil, 0, 0, fmt.Errorf("sample-to-chunk table covers %d samples out of %d", pos, count)
	}

	return samples, dts, lastDelta, nil
}
