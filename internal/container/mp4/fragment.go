package mp4

import (
	"fmt"

	gomp4 "github.com/abema/go-mp4"
)

const (
	tfhdFlagBaseDataOffsetPresent         = 0x01
	tfhdFlagSampleDescriptionIndexPresent = 0x02
	tfhdFlagDefaultSampleDurationPresent  = 0x08
	tfhdFlagDefaultSampleSizePresent      = 0x10
	tfhdFlagDefaultSampleFlagsPresent     = 0x20
)

const (
	trunFlagDataOffsetPresent                      = 0x01
	trunFlagFirstSampleFlagsPresent                = 0x04
	trunFlagSampleDurationPresent                  = 0x100
	trunFlagSampleSizePresent                      = 0x200
	trunFlagSampleFlagsPresent                     = 0x400
	trunFlagSampleCompositionTimeOffsetPresentOrV1 = 0x800
)

const sampleFlagIsNonSyncSample = 1 << 16

type fragmentSample struct {
	offset           uint64
	size             uint32
	duration         uint32
	ctsOffset        int64
	isNonSync        bool
	descriptionIndex uint32
}

// fragmentRun is a run of samples of a movie fragment.
type fragmentRun struct {
	baseDTS    uint64
	hasBaseDTS bool
	samples    []fragmentSample
}

// trackFragment is a track fragment (traf) being read.
type trackFragment struct {
	track            *readerTrack
	baseOffset       uint64
	nextOffset       uint64
	descriptionIndex uint32
	defaultDuration  uint32
	defaultSize      uint32
	defaultFlags     uint32
	baseDTS          uint64
	hasBaseDTS       bool
}

func newTrackFragment(track *readerTrack, tfhd *gomp4.Tfhd, trex *gomp4.Trex, moofOffset uint64) *trackFragment {
	f := &trackFragment{
		track:            track,
		baseOffset:       moofOffset,
		descriptionIndex: 1,
	}

	if trex != nil {
		if trex.DefaultSampleDescriptionIndex != 0 {
			f.descriptionIndex = trex.DefaultSampleDescriptionIndex
		}
		f.defaultDuration = trex.DefaultSampleDuration
		f.defaultSize = trex.DefaultSampleSize
		f.defaultFlags = trex.DefaultSampleFlags
	}

	flags := flagsToUint32(tfhd.Flags)

	if flags&tfhdFlagBaseDataOffsetPresent != 0 {
		f.baseOffset = tfhd.BaseDataOffset
	}
	if flags&tfhdFlagSampleDescriptionIndexPresent != 0 && tfhd.SampleDescriptionIndex != 0 {
		f.descriptionIndex = tfhd.SampleDescriptionIndex
	}
	if flags&tfhdFlagDefaultSampleDurationPresent != 0 {
		f.defaultDuration = tfhd.DefaultSampleDuration
	}
	if flags&tfhdFlagDefaultSampleSizePresent != 0 {
		f.defaultSize = tfhd.DefaultSampleSize
	}
	if flags&tfhdFlagDefaultSampleFlagsPresent != 0 {
		f.defaultFlags = tfhd.DefaultSampleFlags
	}

	f.nextOffset = f.baseOffset

	return f
}

func (f *trackFragment) setBaseDTS(tfdt *gomp4.Tfdt) {
	if tfdt.GetVersion() == 0 {
		f.baseDTS = uint64(tfdt.BaseMediaDecodeTimeV0)
	} else {
		f.baseDTS = tfdt.BaseMediaDecodeTimeV1
	}
	f.hasBaseDTS = true
}

func (f *trackFragment) addRun(trun *gomp4.Trun) error {
	flags := flagsToUint32(trun.Flags)

	offset := f.nextOffset
	if flags&trunFlagDataOffsetPresent != 0 {
		v := int64(f.baseOffset) + int64(trun.DataOffset)
		if v < 0 {
			return fmt.Errorf("invalid data offset %d", trun.DataOffset)
		}
		offset = uint64(v)
	}

	run := fragmentRun{
		baseDTS:    f.baseDTS,
		hasBaseDTS: f.hasBaseDTS,
		samples:    make([]fragmentSample, len(trun.Entries)),
	}

	// the decode time applies to the first run of the fragment only.
	f.hasBaseDTS = false

	for i, e := range trun.Entries {
		sa := &run.samples[i]

		sa.duration = f.defaultDuration
		if flags&trunFlagSampleDurationPresent != 0 {
			sa.duration = e.SampleDuration
		}

		sa.size = f.defaultSize
		if flags&trunFlagSampleSizePresent != 0 {
			sa.size = e.SampleSize
		}

		sampleFlags := f.defaultFlags
		switch {
		case flags&trunFlagSampleFlagsPresent != 0:
			sampleFlags = e.SampleFlags
		case i == 0 && flags&trunFlagFirstSampleFlagsPresent != 0:
			sampleFlags = trun.FirstSampleFlags
		}
		sa.isNonSync = sampleFlags&sampleFlagIsNonSyncSample != 0

		if flags&trunFlagSampleCompositionTimeOffsetPresentOrV1 != 0 {
			if trun.GetVersion() == 0 {
				sa.ctsOffset = int64(int32(e.SampleCompositionTimeOffsetV0))
			} else {
				sa.ctsOffset = int64(e.SampleCompositionTimeOffsetV1)
			}
		}

		sa.descriptionIndex = f.descriptionIndex
		sa.offset = offset
		offset += uint64(sa.size)
	}

	f.nextOffset = offset
	f.track.fragments = append(f.track.fragments, run)

	return nil
}
