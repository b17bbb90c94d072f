package mp4

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	gomp4 "github.com/abema/go-mp4"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/remuxer/internal/container"
)

var testSPS = []byte{
	0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
	0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
	0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9, 0x20,
}

var testPPS = []byte{0x08, 0x06, 0x07, 0x08}

// ©nam item containing a "data" box with the "test" string.
var testMetadataItem = container.MetadataItem{
	Type: [4]byte{0xa9, 'n', 'a', 'm'},
	Data: []byte{
		0x00, 0x00, 0x00, 0x1c, 0xa9, 'n', 'a', 'm',
		0x00, 0x00, 0x00, 0x14, 'd', 'a', 't', 'a',
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00,
		't', 'e', 's', 't',
	},
}

func h264Description(t *testing.T) []byte {
	bw := newBoxWriter()

	_, err := bw.writeBoxStart(&gomp4.VisualSampleEntry{ // <avc1>
		SampleEntry: gomp4.SampleEntry{
			AnyTypeBox: gomp4.AnyTypeBox{
				Type: gomp4.BoxTypeAvc1(),
			},
			DataReferenceIndex: 1,
		},
		Width:           1920,
		Height:          1080,
		Horizresolution: 4718592,
		Vertresolution:  4718592,
		FrameCount:      1,
		Depth:           24,
		PreDefined3:     -1,
	})
	require.NoError(t, err)

	_, err = bw.writeBox(&gomp4.AVCDecoderConfiguration{ // <avcC/>
		AnyTypeBox: gomp4.AnyTypeBox{
			Type: gomp4.BoxTypeAvcC(),
		},
		ConfigurationVersion:       1,
		Profile:                    testSPS[1],
		ProfileCompatibility:       testSPS[2],
		Level:                      testSPS[3],
		LengthSizeMinusOne:         3,
		NumOfSequenceParameterSets: 1,
		SequenceParameterSets: []gomp4.AVCParameterSet{{
			Length:  uint16(len(testSPS)),
			NALUnit: testSPS,
		}},
		NumOfPictureParameterSets: 1,
		PictureParameterSets: []gomp4.AVCParameterSet{{
			Length:  uint16(len(testPPS)),
			NALUnit: testPPS,
		}},
	})
	require.NoError(t, err)

	err = bw.writeBoxEnd() // </avc1>
	require.NoError(t, err)

	return append([]byte{0, 0, 0, 0, 0, 0, 0, 1}, bw.bytes()...)
}

func audioDescription() []byte {
	return []byte{
		0, 0, 0, 0, 0, 0, 0, 1,
		0x00, 0x00, 0x00, 0x0c, 't', 'e', 's', 't',
		0x01, 0x02, 0x03, 0x04,
	}
}

func topLevelBoxes(t *testing.T, path string) []string {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var types []string

	_, err = gomp4.ReadBoxStructure(f, func(h *gomp4.ReadHandle) (interface{}, error) {
		types = append(types, h.BoxInfo.Type.String())
		return nil, nil
	})
	require.NoError(t, err)

	return types
}

func writeTestFile(t *testing.T, path string, relocationBufferSize int) {
	w, err := Create(path, relocationBufferSize)
	require.NoError(t, err)
	defer w.Close()

	err = w.SetMovieParams(container.MovieParams{
		MajorBrand:   container.Brand{'m', 'p', '4', '2'},
		MinorVersion: 1,
		CompatibleBrands: []container.Brand{
			{'i', 's', 'o', 'm'},
			{'m', 'p', '4', '2'},
		},
		Timescale: 1000,
	})
	require.NoError(t, err)

	err = w.ImportMetadata([]container.MetadataItem{testMetadataItem})
	require.NoError(t, err)

	videoID, err := w.CreateTrack(container.HandlerTypeVideo)
	require.NoError(t, err)
	require.Equal(t, uint32(1), videoID)

	audioID, err := w.CreateTrack(container.HandlerTypeAudio)
	require.NoError(t, err)
	require.Equal(t, uint32(2), audioID)

	err = w.SetTrackParams(videoID, container.TrackParams{
		TrackID:        1234,
		Flags:          3,
		AlternateGroup: 0,
		Matrix:         [9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000},
		Width:          1920 * 65536,
		Height:         1080 * 65536,
	})
	require.NoError(t, err)

	err = w.SetMediaParams(videoID, container.MediaParams{
		HandlerType: container.HandlerTypeVideo,
		HandlerName: "VideoHandler",
		Timescale:   90000,
		Language:    0x15c7,
	})
	require.NoError(t, err)

	err = w.SetSampleDescription(videoID, &container.SampleDescription{Payload: h264Description(t)})
	require.NoError(t, err)

	err = w.SetTrackParams(audioID, container.TrackParams{
		Flags:          3,
		AlternateGroup: 1,
		Volume:         256,
		Matrix:         [9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000},
	})
	require.NoError(t, err)

	err = w.SetMediaParams(audioID, container.MediaParams{
		HandlerType: container.HandlerTypeAudio,
		HandlerName: "SoundHandler",
		Timescale:   48000,
		Language:    container.LanguageUndetermined,
	})
	require.NoError(t, err)

	err = w.SetSampleDescription(audioID, &container.SampleDescription{Payload: audioDescription()})
	require.NoError(t, err)

	for _, sa := range []struct {
		trackID uint32
		sample  *container.Sample
	}{
		{videoID, &container.Sample{DTS: 0, CTSOffset: 3000, Payload: []byte{1, 2, 3, 4}}},
		{audioID, &container.Sample{DTS: 0, Payload: []byte{5, 6}}},
		{videoID, &container.Sample{DTS: 3000, CTSOffset: 6000, IsNonSyncSample: true, Payload: []byte{7, 8, 9}}},
		{audioID, &container.Sample{DTS: 1024, Payload: []byte{10, 11}}},
		{videoID, &container.Sample{DTS: 6000, CTSOffset: 3000, IsNonSyncSample: true, Payload: []byte{12}}},
		{audioID, &container.Sample{DTS: 2048, Payload: []byte{13, 14, 15}}},
	} {
		err = w.AppendSample(sa.trackID, sa.sample)
		require.NoError(t, err)
	}

	err = w.FlushTrailing(videoID, 3000)
	require.NoError(t, err)

	err = w.FlushTrailing(audioID, 1024)
	require.NoError(t, err)

	err = w.SetEditList(videoID, []container.EditEntry{{
		SegmentDuration:  200,
		MediaTime:        3000,
		MediaRateInteger: 1,
	}}, 2000)
	require.NoError(t, err)

	var progress [][2]uint64

	err = w.Finalize(func(done uint64, total uint64) {
		progress = append(progress, [2]uint64{done, total})
	})
	require.NoError(t, err)
	require.NotEmpty(t, progress)
	require.Equal(t, progress[len(progress)-1][0], progress[len(progress)-1][1])

	err = w.Close()
	require.NoError(t, err)
}

func TestWriterReader(t *testing.T) {
	for _, ca := range []struct {
		name       string
		bufferSize int
	}{
		{"single block", 1024 * 1024},
		{"multiple blocks", 5},
	} {
		t.Run(ca.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.mp4")
			writeTestFile(t, path, ca.bufferSize)

			require.Equal(t, []string{"ftyp", "moov", "mdat"}, topLevelBoxes(t, path))

			r, err := Open(path)
			require.NoError(t, err)
			defer r.Close()

			require.Equal(t, container.MovieParams{
				MajorBrand:   container.Brand{'m', 'p', '4', '2'},
				MinorVersion: 1,
				CompatibleBrands: []container.Brand{
					{'i', 's', 'o', 'm'},
					{'m', 'p', '4', '2'},
				},
				Timescale: 1000,
			}, r.MovieParams())

			require.Equal(t, []uint32{1, 2}, r.TrackIDs())
			require.Equal(t, []container.MetadataItem{testMetadataItem}, r.Metadata())

			tp, err := r.TrackParams(1)
			require.NoError(t, err)
			require.Equal(t, container.TrackParams{
				TrackID: 1,
				Flags:   3,
				Matrix:  [9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000},
				Width:   1920 * 65536,
				Height:  1080 * 65536,
			}, tp)

			mp, err := r.MediaParams(1)
			require.NoError(t, err)
			require.Equal(t, container.MediaParams{
				HandlerType: container.HandlerTypeVideo,
				HandlerName: "VideoHandler",
				Timescale:   90000,
				Language:    0x15c7,
				MediaHeader: []byte{'v', 'm', 'h', 'd', 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0},
			}, mp)

			tp, err = r.TrackParams(2)
			require.NoError(t, err)
			require.Equal(t, int16(1), tp.AlternateGroup)
			require.Equal(t, int16(256), tp.Volume)

			mp, err = r.MediaParams(2)
			require.NoError(t, err)
			require.Equal(t, container.HandlerTypeAudio, mp.HandlerType)
			require.Equal(t, uint32(48000), mp.Timescale)
			require.Equal(t, container.LanguageUndetermined, mp.Language)

			desc, err := r.SampleDescription(1)
			require.NoError(t, err)
			require.Equal(t, h264Description(t), desc.Payload)
			require.Equal(t, "avc1 1920x1080", describeSampleDescription(desc.Payload))

			desc, err = r.SampleDescription(2)
			require.NoError(t, err)
			require.Equal(t, audioDescription(), desc.Payload)

			editList, movieTimescale, err := r.EditList(1)
			require.NoError(t, err)
			require.Equal(t, uint32(1000), movieTimescale)
			require.Equal(t, []container.EditEntry{{
				SegmentDuration:  100,
				MediaTime:        3000,
				MediaRateInteger: 1,
			}}, editList)

			editList, _, err = r.EditList(2)
			require.NoError(t, err)
			require.Empty(t, editList)

			_, err = r.SampleDTS(1, 1)
			require.EqualError(t, err, "timeline of track 1 has not been constructed")

			err = r.ConstructTimeline(1)
			require.NoError(t, err)

			err = r.ConstructTimeline(2)
			require.NoError(t, err)

			delta, err := r.LastSampleDelta(1)
			require.NoError(t, err)
			require.Equal(t, uint32(3000), delta)

			delta, err = r.LastSampleDelta(2)
			require.NoError(t, err)
			require.Equal(t, uint32(1024), delta)

			for i, exp := range []*container.Sample{
				{DTS: 0, CTSOffset: 3000, DescriptionIndex: 1, Payload: []byte{1, 2, 3, 4}},
				{DTS: 3000, CTSOffset: 6000, IsNonSyncSample: true, DescriptionIndex: 1, Payload: []byte{7, 8, 9}},
				{DTS: 6000, CTSOffset: 3000, IsNonSyncSample: true, DescriptionIndex: 1, Payload: []byte{12}},
			} {
				dts, err2 := r.SampleDTS(1, uint32(i+1))
				require.NoError(t, err2)
				require.Equal(t, exp.DTS, dts)

				sa, err2 := r.Sample(1, uint32(i+1))
				require.NoError(t, err2)
				require.Equal(t, exp, sa)
			}

			for i, exp := range []*container.Sample{
				{DTS: 0, DescriptionIndex: 1, Payload: []byte{5, 6}},
				{DTS: 1024, DescriptionIndex: 1, Payload: []byte{10, 11}},
				{DTS: 2048, DescriptionIndex: 1, Payload: []byte{13, 14, 15}},
			} {
				sa, err2 := r.Sample(2, uint32(i+1))
				require.NoError(t, err2)
				require.Equal(t, exp, sa)
			}

			_, err = r.SampleDTS(1, 4)
			require.ErrorIs(t, err, container.ErrSampleNotFound)

			_, err = r.Sample(2, 4)
			require.ErrorIs(t, err, container.ErrSampleNotFound)

			_, err = r.TrackParams(3)
			require.EqualError(t, err, "track 3 not found")
		})
	}
}

func TestOpenerEmptyMovie(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mp4")

	o := &Opener{RelocationBufferSize: 4096}

	out, err := o.OpenOutput(path)
	require.NoError(t, err)

	err = out.Finalize(nil)
	require.NoError(t, err)

	err = out.Close()
	require.NoError(t, err)

	err = out.Close()
	require.NoError(t, err)

	in, err := o.OpenInput(path)
	require.NoError(t, err)
	defer in.Close()

	require.Empty(t, in.TrackIDs())
	require.Equal(t, uint32(1000), in.MovieParams().Timescale)
	require.Equal(t, container.Brand{'i', 's', 'o', 'm'}, in.MovieParams().MajorBrand)
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.mp4"))
	require.Error(t, err)

	path := filepath.Join(dir, "nomoov.mp4")
	err = os.WriteFile(path, []byte{
		0x00, 0x00, 0x00, 0x10, 'f', 't', 'y', 'p',
		'i', 's', 'o', 'm', 0x00, 0x00, 0x00, 0x01,
	}, 0o644)
	require.NoError(t, err)

	_, err = Open(path)
	require.EqualError(t, err, "unable to parse "+path+": moov box not found")
}

func TestWriterErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4")

	_, err := Create(path, 0)
	require.EqualError(t, err, "invalid relocation buffer size")

	w, err := Create(path, 4096)
	require.NoError(t, err)
	defer w.Close()

	id, err := w.CreateTrack(container.HandlerTypeAudio)
	require.NoError(t, err)

	err = w.SetMediaParams(id, container.MediaParams{})
	require.EqualError(t, err, "invalid timescale of track 1")

	err = w.SetSampleDescription(id, &container.SampleDescription{Payload: []byte{1}})
	require.EqualError(t, err, "invalid sample description")

	err = w.AppendSample(id, &container.Sample{DTS: 10, Payload: []byte{1}})
	require.NoError(t, err)

	err = w.AppendSample(id, &container.Sample{DTS: 5, Payload: []byte{1}})
	require.EqualError(t, err, "DTS of track 1 is not monotonic")

	err = w.AppendSample(2, &container.Sample{DTS: 5, Payload: []byte{1}})
	require.EqualError(t, err, "track 2 not found")

	err = w.FlushTrailing(id, 10)
	require.NoError(t, err)

	err = w.AppendSample(id, &container.Sample{DTS: 20, Payload: []byte{1}})
	require.EqualError(t, err, "track 1 has been flushed")

	err = w.Finalize(nil)
	require.EqualError(t, err, "sample description of track 1 has not been set")

	err = w.Finalize(nil)
	require.EqualError(t, err, "writer has been finalized")
}

func TestImportMetadata(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "out.mp4"), 4096)
	require.NoError(t, err)
	defer w.Close()

	other := container.MetadataItem{
		Type: testMetadataItem.Type,
		Data: []byte{0x00, 0x00, 0x00, 0x08, 0xa9, 'n', 'a', 'm'},
	}

	err = w.ImportMetadata([]container.MetadataItem{testMetadataItem})
	require.NoError(t, err)

	err = w.ImportMetadata([]container.MetadataItem{other})
	require.NoError(t, err)

	require.Equal(t, []container.MetadataItem{testMetadataItem}, w.metadata)

	err = w.ImportMetadata([]container.MetadataItem{{Type: [4]byte{'a', 'b', 'c', 'd'}}})
	require.EqualError(t, err, "invalid metadata item 'abcd'")
}

type memFile struct {
	buf []byte
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, f.buf[off:]), nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(f.buf) {
		f.buf = append(f.buf, make([]byte, end-len(f.buf))...)
	}
	return copy(f.buf[off:], p), nil
}

func TestRelocate(t *testing.T) {
	f := &memFile{buf: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}}

	var progress [][2]uint64

	err := relocate(f, 10, 4, make([]byte, 3), func(done uint64, total uint64) {
		progress = append(progress, [2]uint64{done, total})
	})
	require.NoError(t, err)

	require.Equal(t, []byte{1, 2, 3, 4, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, f.buf)
	require.Equal(t, [][2]uint64{{3, 10}, {6, 10}, {9, 10}, {10, 10}}, progress)
}

func TestChunkOffsetBox(t *testing.T) {
	box := chunkOffsetBox([]uint64{16, 100}, 50, false)
	require.Equal(t, &gomp4.Stco{
		EntryCount:  2,
		ChunkOffset: []uint32{66, 150},
	}, box)

	box = chunkOffsetBox([]uint64{16, 0x100000000}, 50, true)
	require.Equal(t, &gomp4.Co64{
		EntryCount:  2,
		ChunkOffset: []uint64{66, 0x100000032},
	}, box)
}

func TestWriterChunks(t *testing.T) {
	track := &writerTrack{
		samples: []*writerSample{
			{offset: 16, size: 4, descriptionIndex: 1},
			{offset: 20, size: 4, descriptionIndex: 1},
			{offset: 30, size: 2, descriptionIndex: 1},
			{offset: 32, size: 2, descriptionIndex: 2},
			{offset: 34, size: 2, descriptionIndex: 2},
		},
	}

	require.Equal(t, []writerChunk{
		{offset: 16, sampleCount: 2, descriptionIndex: 1},
		{offset: 30, sampleCount: 1, descriptionIndex: 1},
		{offset: 32, sampleCount: 2, descriptionIndex: 2},
	}, track.chunks())
}

func TestConstructTimeline(t *testing.T) {
	track := &readerTrack{
		stts: &gomp4.Stts{
			EntryCount: 2,
			Entries: []gomp4.SttsEntry{
				{SampleCount: 3, SampleDelta: 10},
				{SampleCount: 2, SampleDelta: 20},
			},
		},
		ctts: &gomp4.Ctts{
			FullBox:    gomp4.FullBox{Version: 1},
			EntryCount: 2,
			Entries: []gomp4.CttsEntry{
				{SampleCount: 1, SampleOffsetV1: -5},
				{SampleCount: 4, SampleOffsetV1: 5},
			},
		},
		stss: &gomp4.Stss{
			EntryCount:   2,
			SampleNumber: []uint32{1, 4},
		},
		stsc: &gomp4.Stsc{
			EntryCount: 2,
			Entries: []gomp4.StscEntry{
				{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionIndex: 1},
				{FirstChunk: 2, SamplesPerChunk: 3, SampleDescriptionIndex: 2},
			},
		},
		stsz: &gomp4.Stsz{
			SampleCount: 5,
			EntrySize:   []uint32{1, 2, 3, 4, 5},
		},
		co64: &gomp4.Co64{
			EntryCount:  2,
			ChunkOffset: []uint64{100, 200},
		},
	}

	err := track.constructTimeline()
	require.NoError(t, err)

	require.Equal(t, []timelineSample{
		{offset: 100, size: 1, dts: 0, ctsOffset: -5, descriptionIndex: 1},
		{offset: 101, size: 2, dts: 10, ctsOffset: 5, isNonSync: true, descriptionIndex: 1},
		{offset: 200, size: 3, dts: 20, ctsOffset: 5, isNonSync: true, descriptionIndex: 2},
		{offset: 203, size: 4, dts: 30, ctsOffset: 5, descriptionIndex: 2},
		{offset: 207, size: 5, dts: 50, ctsOffset: 5, isNonSync: true, descriptionIndex: 2},
	}, track.timeline)
	require.Equal(t, uint32(20), track.lastDelta)
}

func TestConstructTimelineErrors(t *testing.T) {
	for _, ca := range []struct {
		name  string
		track *readerTrack
		err   string
	}{
		{
			"incomplete",
			&readerTrack{},
			"sample table is incomplete",
		},
		{
			"short stts",
			&readerTrack{
				stts: &gomp4.Stts{Entries: []gomp4.SttsEntry{{SampleCount: 1, SampleDelta: 1}}},
				stsc: &gomp4.Stsc{Entries: []gomp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionIndex: 1}}},
				stsz: &gomp4.Stsz{SampleCount: 2, SampleSize: 1},
				stco: &gomp4.Stco{ChunkOffset: []uint32{8}},
			},
			"time-to-sample table covers 1 samples out of 2",
		},
		{
			"short stsc",
			&readerTrack{
				stts: &gomp4.Stts{Entries: []gomp4.SttsEntry{{SampleCount: 2, SampleDelta: 1}}},
				stsc: &gomp4.Stsc{Entries: []gomp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionIndex: 1}}},
				stsz: &gomp4.Stsz{SampleCount: 2, SampleSize: 1},
				stco: &gomp4.Stco{ChunkOffset: []uint32{8}},
			},
			"sample-to-chunk table covers 1 samples out of 2",
		},
		{
			"short stsz",
			&readerTrack{
				stts: &gomp4.Stts{Entries: []gomp4.SttsEntry{{SampleCount: 2, SampleDelta: 1}}},
				stsc: &gomp4.Stsc{Entries: []gomp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionIndex: 1}}},
				stsz: &gomp4.Stsz{SampleCount: 2, EntrySize: []uint32{1}},
				stco: &gomp4.Stco{ChunkOffset: []uint32{8}},
			},
			"sample size table is too short",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			err := ca.track.constructTimeline()
			require.EqualError(t, err, ca.err)
		})
	}
}

func TestDescribeSampleDescription(t *testing.T) {
	require.Equal(t, "avc1 1920x1080", describeSampleDescription(h264Description(t)))
	require.Equal(t, "test", describeSampleDescription(audioDescription()))
	require.Equal(t, "unknown", describeSampleDescription([]byte{1, 2}))
	require.Equal(t, "unknown", describeSampleDescription(bytes.Repeat([]byte{0xff}, 8)))
}

type fragmentedRun struct {
	baseTime uint64
	samples  [][]byte
}

// writeFragmentedFile writes a fragmented file with a video track,
// whose samples are all contained into movie fragments.
func writeFragmentedFile(t *testing.T, path string, runs []fragmentedRun) {
	bw := newBoxWriter()

	for _, brand := range [][4]byte{{'i', 's', 'o', '5'}, {'q', 't', ' ', ' '}} {
		_, err := bw.writeBox(&gomp4.Ftyp{ // <ftyp/>
			MajorBrand:   brand,
			MinorVersion: 512,
			CompatibleBrands: []gomp4.CompatibleBrandElem{
				{CompatibleBrand: brand},
			},
		})
		require.NoError(t, err)
	}

	_, err := bw.writeBoxStart(&gomp4.Moov{}) // <moov>
	require.NoError(t, err)

	_, err = bw.writeBox(&gomp4.Mvhd{ // <mvhd/>
		Timescale:   1000,
		Rate:        65536,
		Volume:      256,
		Matrix:      [9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000},
		NextTrackID: 2,
	})
	require.NoError(t, err)

	_, err = bw.writeBoxStart(&gomp4.Trak{}) // <trak>
	require.NoError(t, err)

	_, err = bw.writeBox(&gomp4.Tkhd{ // <tkhd/>
		FullBox: gomp4.FullBox{
			Flags: [3]byte{0, 0, 3},
		},
		TrackID: 1,
		Matrix:  [9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000},
		Width:   1920 * 65536,
		Height:  1080 * 65536,
	})
	require.NoError(t, err)

	_, err = bw.writeBoxStart(&gomp4.Mdia{}) // <mdia>
	require.NoError(t, err)

	_, err = bw.writeBox(&gomp4.Mdhd{ // <mdhd/>
		Timescale: 90000,
		Language:  [3]byte{'u' - 0x60, 'n' - 0x60, 'd' - 0x60},
	})
	require.NoError(t, err)

	_, err = bw.writeBox(&gomp4.Hdlr{ // <hdlr/>
		HandlerType: [4]byte{'v', 'i', 'd', 'e'},
		Name:        "VideoHandler",
	})
	require.NoError(t, err)

	_, err = bw.writeBoxStart(&gomp4.Minf{}) // <minf>
	require.NoError(t, err)

	_, err = bw.writeBox(&gomp4.Vmhd{ // <vmhd/>
		FullBox: gomp4.FullBox{
			Flags: [3]byte{0, 0, 1},
		},
	})
	require.NoError(t, err)

	_, err = bw.writeBoxStart(&gomp4.Stbl{}) // <stbl>
	require.NoError(t, err)

	err = bw.writeRawBox([4]byte{'s', 't', 's', 'd'}, h264Description(t)) // <stsd/>
	require.NoError(t, err)

	for _, box := range []gomp4.IImmutableBox{
		&gomp4.Stts{}, // <stts/>
		&gomp4.Stsc{}, // <stsc/>
		&gomp4.Stsz{}, // <stsz/>
		&gomp4.Stco{}, // <stco/>
	} {
		_, err = bw.writeBox(box)
		require.NoError(t, err)
	}

	for range make([]struct{}, 4) { // </stbl></minf></mdia></trak>
		err = bw.writeBoxEnd()
		require.NoError(t, err)
	}

	_, err = bw.writeBoxStart(&gomp4.Mvex{}) // <mvex>
	require.NoError(t, err)

	_, err = bw.writeBox(&gomp4.Trex{ // <trex/>
		TrackID:                       1,
		DefaultSampleDescriptionIndex: 1,
		DefaultSampleDuration:         3000,
	})
	require.NoError(t, err)

	for range make([]struct{}, 2) { // </mvex></moov>
		err = bw.writeBoxEnd()
		require.NoError(t, err)
	}

	for i, run := range runs {
		moofOffset, err := bw.writeBoxStart(&gomp4.Moof{}) // <moof>
		require.NoError(t, err)

		_, err = bw.writeBox(&gomp4.Mfhd{ // <mfhd/>
			SequenceNumber: uint32(i + 1),
		})
		require.NoError(t, err)

		_, err = bw.writeBoxStart(&gomp4.Traf{}) // <traf>
		require.NoError(t, err)

		tfhdFlags := 0x020000 | tfhdFlagDefaultSampleFlagsPresent

		_, err = bw.writeBox(&gomp4.Tfhd{ // <tfhd/>
			FullBox: gomp4.FullBox{
				Flags: uint32ToFlags(uint32(tfhdFlags)),
			},
			TrackID:            1,
			DefaultSampleFlags: sampleFlagIsNonSyncSample,
		})
		require.NoError(t, err)

		_, err = bw.writeBox(&gomp4.Tfdt{ // <tfdt/>
			FullBox: gomp4.FullBox{
				Version: 1,
			},
			BaseMediaDecodeTimeV1: run.baseTime,
		})
		require.NoError(t, err)

		trunFlags := trunFlagDataOffsetPresent |
			trunFlagFirstSampleFlagsPresent |
			trunFlagSampleSizePresent |
			trunFlagSampleCompositionTimeOffsetPresentOrV1

		trun := &gomp4.Trun{ // <trun/>
			FullBox: gomp4.FullBox{
				Flags: uint32ToFlags(uint32(trunFlags)),
			},
			SampleCount: uint32(len(run.samples)),
		}

		for j, sample := range run.samples {
			entry := gomp4.TrunEntry{
				SampleSize: uint32(len(sample)),
			}
			if j == 0 {
				entry.SampleCompositionTimeOffsetV0 = 3000
			}
			trun.Entries = append(trun.Entries, entry)
		}

		trunOffset, err := bw.writeBox(trun)
		require.NoError(t, err)

		for range make([]struct{}, 2) { // </traf></moof>
			err = bw.writeBoxEnd()
			require.NoError(t, err)
		}

		trun.DataOffset = int32(len(bw.bytes()) - moofOffset + 8)
		err = bw.rewriteBox(trunOffset, trun)
		require.NoError(t, err)

		err = bw.writeRawBox([4]byte{'m', 'd', 'a', 't'}, bytes.Join(run.samples, nil)) // <mdat/>
		require.NoError(t, err)
	}

	err = os.WriteFile(path, bw.bytes(), 0o644)
	require.NoError(t, err)
}

func TestReaderFragmented(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "fragmented.mp4")

	writeFragmentedFile(t, fpath, []fragmentedRun{
		{baseTime: 0, samples: [][]byte{{1, 2, 3, 4}, {5, 6, 7}}},
		{baseTime: 9000, samples: [][]byte{{8, 9}, {10}}},
	})

	r, err := Open(fpath)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, container.MovieParams{
		MajorBrand:       container.Brand{'i', 's', 'o', '5'},
		MinorVersion:     512,
		CompatibleBrands: []container.Brand{{'i', 's', 'o', '5'}},
		Timescale:        1000,
	}, r.MovieParams())

	require.Equal(t, []uint32{1}, r.TrackIDs())

	err = r.ConstructTimeline(1)
	require.NoError(t, err)

	for i, expected := range []*container.Sample{
		{DTS: 0, CTSOffset: 3000, DescriptionIndex: 1, Payload: []byte{1, 2, 3, 4}},
		{DTS: 3000, IsNonSyncSample: true, DescriptionIndex: 1, Payload: []byte{5, 6, 7}},
		{DTS: 9000, CTSOffset: 3000, DescriptionIndex: 1, Payload: []byte{8, 9}},
		{DTS: 12000, IsNonSyncSample: true, DescriptionIndex: 1, Payload: []byte{10}},
	} {
		sample, err := r.Sample(1, uint32(i+1))
		require.NoError(t, err)
		require.Equal(t, expected, sample)
	}

	_, err = r.SampleDTS(1, 5)
	require.ErrorIs(t, err, container.ErrSampleNotFound)

	delta, err := r.LastSampleDelta(1)
	require.NoError(t, err)
	require.Equal(t, uint32(3000), delta)
}
