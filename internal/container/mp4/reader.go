package mp4

import (
	"bytes"
	"fmt"
	"io"
	"os"

	gomp4 "github.com/abema/go-mp4"

	"github.com/bluenviron/remuxer/internal/container"
)

type readerTrack struct {
	params      container.TrackParams
	media       container.MediaParams
	editList    []container.EditEntry
	description []byte

	stts *gomp4.Stts
	ctts *gomp4.Ctts
	stss *gomp4.Stss
	stsc *gomp4.Stsc
	stsz *gomp4.Stsz
	stco *gomp4.Stco
	co64 *gomp4.Co64

	// movie fragments.
	fragments []fragmentRun

	timeline  []timelineSample
	lastDelta uint32
}

// Reader is a MP4 reader.
type Reader struct {
	f           *os.File
	movieParams container.MovieParams
	tracks      []*readerTrack
	metadata    []container.MetadataItem
}

// Open opens a MP4 file for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := &Reader{f: f}

	err = r.parse()
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}

	return r, nil
}

func (r *Reader) parse() error {
	var stack []string
	var curTrack *readerTrack
	moovFound := false
	ftypFound := false
	trexes := make(map[uint32]*gomp4.Trex)
	var moofOffset uint64
	var curTraf *trackFragment

	parent := func() string {
		if len(stack) == 0 {
			return ""
		}
		return stack[len(stack)-1]
	}

	expand := func(h *gomp4.ReadHandle) (interface{}, error) {
		stack = append(stack, h.BoxInfo.Type.String())
		defer func() { stack = stack[:len(stack)-1] }()
		return h.Expand()
	}

	_, err := gomp4.ReadBoxStructure(r.f, func(h *gomp4.ReadHandle) (interface{}, error) {
		typ := h.BoxInfo.Type.String()

		if parent() == "ilst" {
			item, err := r.readRawBox(&h.BoxInfo)
			if err != nil {
				return nil, err
			}
			r.metadata = append(r.metadata, item)
			return nil, nil
		}

		switch typ {
		case "ftyp":
			if parent() != "" || ftypFound {
				return nil, nil
			}
			ftypFound = true

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			ftyp := box.(*gomp4.Ftyp)

			r.movieParams.MajorBrand = ftyp.MajorBrand
			r.movieParams.MinorVersion = ftyp.MinorVersion
			for _, b := range ftyp.CompatibleBrands {
				r.movieParams.CompatibleBrands = append(r.movieParams.CompatibleBrands, b.CompatibleBrand)
			}

		case "moov":
			if parent() != "" {
				return nil, nil
			}
			if moovFound {
				return nil, fmt.Errorf("multiple moov boxes")
			}
			moovFound = true
			return expand(h)

		case "mvhd":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			r.movieParams.Timescale = box.(*gomp4.Mvhd).Timescale

		case "trak":
			curTrack = &readerTrack{
				media: container.MediaParams{
					Language: container.LanguageUndetermined,
				},
			}
			r.tracks = append(r.tracks, curTrack)
			return expand(h)

		case "tkhd":
			if curTrack == nil {
				return nil, nil
			}

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			tkhd := box.(*gomp4.Tkhd)

			curTrack.params = container.TrackParams{
				TrackID:        tkhd.TrackID,
				Flags:          flagsToUint32(tkhd.Flags),
				Layer:          tkhd.Layer,
				AlternateGroup: tkhd.AlternateGroup,
				Volume:         tkhd.Volume,
				Matrix:         tkhd.Matrix,
				Width:          tkhd.Width,
				Height:         tkhd.Height,
			}

		case "edts", "mdia", "minf", "stbl":
			if curTrack == nil {
				return nil, nil
			}
			return expand(h)

		case "elst":
			if curTrack == nil {
				return nil, nil
			}

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			curTrack.editList = editListFromBox(box.(*gomp4.Elst))

		case "mdhd":
			if curTrack == nil {
				return nil, nil
			}

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			mdhd := box.(*gomp4.Mdhd)

			if mdhd.Timescale == 0 {
				return nil, fmt.Errorf("track has a zero media timescale")
			}

			curTrack.media.Timescale = mdhd.Timescale
			curTrack.media.Language = uint16(mdhd.Language[0])<<10 |
				uint16(mdhd.Language[1])<<5 |
				uint16(mdhd.Language[2])

		case "hdlr":
			if curTrack == nil || parent() != "mdia" {
				return nil, nil
			}

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			hdlr := box.(*gomp4.Hdlr)

			curTrack.media.HandlerType = hdlr.HandlerType
			curTrack.media.HandlerName = hdlr.Name

		case "vmhd", "smhd", "hmhd", "nmhd", "sthd", "gmhd":
			if curTrack == nil || parent() != "minf" {
				return nil, nil
			}

			var buf bytes.Buffer
			buf.Write(h.BoxInfo.Type[:])
			_, err := h.ReadData(&buf)
			if err != nil {
				return nil, err
			}
			curTrack.media.MediaHeader = buf.Bytes()

		case "stsd":
			if curTrack == nil {
				return nil, nil
			}

			var buf bytes.Buffer
			_, err := h.ReadData(&buf)
			if err != nil {
				return nil, err
			}
			curTrack.description = buf.Bytes()

		case "stts", "ctts", "stss", "stsc", "stsz", "stco", "co64":
			if curTrack == nil || parent() != "stbl" {
				return nil, nil
			}

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}

			switch box := box.(type) {
			case *gomp4.Stts:
				curTrack.stts = box
			case *gomp4.Ctts:
				curTrack.ctts = box
			case *gomp4.Stss:
				curTrack.stss = box
			case *gomp4.Stsc:
				curTrack.stsc = box
			case *gomp4.Stsz:
				curTrack.stsz = box
			case *gomp4.Stco:
				curTrack.stco = box
			case *gomp4.Co64:
				curTrack.co64 = box
			}

		case "mvex":
			if parent() != "moov" {
				return nil, nil
			}
			return expand(h)

		case "trex":
			if parent() != "mvex" {
				return nil, nil
			}

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			trex := box.(*gomp4.Trex)
			trexes[trex.TrackID] = trex

		case "moof":
			if parent() != "" {
				return nil, nil
			}
			if !moovFound {
				return nil, fmt.Errorf("movie fragment found before moov box")
			}
			moofOffset = h.BoxInfo.Offset
			return expand(h)

		case "traf":
			if parent() != "moof" {
				return nil, nil
			}
			curTraf = nil
			res, err := expand(h)
			curTraf = nil
			return res, err

		case "tfhd":
			if parent() != "traf" {
				return nil, nil
			}

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			tfhd := box.(*gomp4.Tfhd)

			track, err := r.track(tfhd.TrackID)
			if err != nil {
				return nil, fmt.Errorf("movie fragment refers to unknown track %d", tfhd.TrackID)
			}

			curTraf = newTrackFragment(track, tfhd, trexes[tfhd.TrackID], moofOffset)

		case "tfdt", "trun":
			if parent() != "traf" {
				return nil, nil
			}
			if curTraf == nil {
				return nil, fmt.Errorf("track fragment header not found")
			}

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}

			switch box := box.(type) {
			case *gomp4.Tfdt:
				curTraf.setBaseDTS(box)
			case *gomp4.Trun:
				err = curTraf.addRun(box)
				if err != nil {
					return nil, err
				}
			}

		case "udta":
			if parent() != "moov" {
				return nil, nil
			}
			return expand(h)

		case "meta":
			if parent() != "udta" {
				return nil, nil
			}
			return expand(h)

		case "ilst":
			if parent() != "meta" {
				return nil, nil
			}
			return expand(h)
		}

		return nil, nil
	})
	if err != nil {
		return err
	}

	if !moovFound {
		return fmt.Errorf("moov box not found")
	}

	ids := make(map[uint32]struct{})
	for _, track := range r.tracks {
		if track.params.TrackID == 0 {
			return fmt.Errorf("track header not found or invalid track ID")
		}
		if _, ok := ids[track.params.TrackID]; ok {
			return fmt.Errorf("duplicate track ID %d", track.params.TrackID)
		}
		ids[track.params.TrackID] = struct{}{}

		if track.media.Timescale == 0 {
			return fmt.Errorf("media header of track %d not found", track.params.TrackID)
		}
		if track.description == nil {
			return fmt.Errorf("sample description of track %d not found", track.params.TrackID)
		}
	}

	return nil
}

func (r *Reader) readRawBox(bi *gomp4.BoxInfo) (container.MetadataItem, error) {
	buf := make([]byte, bi.Size)
	_, err := io.ReadFull(io.NewSectionReader(r.f, int64(bi.Offset), int64(bi.Size)), buf)
	if err != nil {
		return container.MetadataItem{}, err
	}

	return container.MetadataItem{
		Type: bi.Type,
		Data: buf,
	}, nil
}

func (r *Reader) track(trackID uint32) (*readerTrack, error) {
	for _, track := range r.tracks {
		if track.params.TrackID == trackID {
			return track, nil
		}
	}
	return nil, fmt.Errorf("track %d not found", trackID)
}

// MovieParams implements container.Input.
func (r *Reader) MovieParams() container.MovieParams {
	return r.movieParams
}

// TrackIDs implements container.Input.
func (r *Reader) TrackIDs() []uint32 {
	ids := make([]uint32, len(r.tracks))
	for i, track := range r.tracks {
		ids[i] = track.params.TrackID
	}
	return ids
}

// TrackParams implements container.Input.
func (r *Reader) TrackParams(trackID uint32) (container.TrackParams, error) {
	track, err := r.track(trackID)
	if err != nil {
		return container.TrackParams{}, err
	}
	return track.params, nil
}

// MediaParams implements container.Input.
func (r *Reader) MediaParams(trackID uint32) (container.MediaParams, error) {
	track, err := r.track(trackID)
	if err != nil {
		return container.MediaParams{}, err
	}
	return track.media, nil
}

// ConstructTimeline implements container.Input.
func (r *Reader) ConstructTimeline(trackID uint32) error {
	track, err := r.track(trackID)
	if err != nil {
		return err
	}

	if track.timeline != nil {
		return nil
	}

	err = track.constructTimeline()
	if err != nil {
		return fmt.Errorf("track %d: %w", trackID, err)
	}

	return nil
}

func (r *Reader) timelineSample(trackID uint32, sampleNumber uint32) (*timelineSample, error) {
	track, err := r.track(trackID)
	if err != nil {
		return nil, err
	}

	if track.timeline == nil {
		return nil, fmt.Errorf("timeline of track %d has not been constructed", trackID)
	}

	if sampleNumber == 0 {
		return nil, fmt.Errorf("invalid sample number 0")
	}

	if int(sampleNumber) > len(track.timeline) {
		return nil, container.ErrSampleNotFound
	}

	return &track.timeline[sampleNumber-1], nil
}

// LastSampleDelta implements container.Input.
func (r *Reader) LastSampleDelta(trackID uint32) (uint32, error) {
	track, err := r.track(trackID)
	if err != nil {
		return 0, err
	}

	if track.timeline == nil {
		return 0, fmt.Errorf("timeline of track %d has not been constructed", trackID)
	}

	return track.lastDelta, nil
}

// SampleDTS implements container.Input.
func (r *Reader) SampleDTS(trackID uint32, sampleNumber uint32) (uint64, error) {
	sa, err := r.timelineSample(trackID, sampleNumber)
	if err != nil {
		return 0, err
	}
	return sa.dts, nil
}

// Sample implements container.Input.
func (r *Reader) Sample(trackID uint32, sampleNumber uint32) (*container.Sample, error) {
	sa, err := r.timelineSample(trackID, sampleNumber)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, sa.size)
	_, err = io.ReadFull(io.NewSectionReader(r.f, int64(sa.offset), int64(sa.size)), payload)
	if err != nil {
		return nil, fmt.Errorf("unable to read sample %d of track %d: %w", sampleNumber, trackID, err)
	}

	return &container.Sample{
		DTS:              sa.dts,
		CTSOffset:        sa.ctsOffset,
		IsNonSyncSample:  sa.isNonSync,
		DescriptionIndex: sa.descriptionIndex,
		Payload:          payload,
	}, nil
}

// SampleDescription implements container.Input.
func (r *Reader) SampleDescription(trackID uint32) (*container.SampleDescription, error) {
	track, err := r.track(trackID)
	if err != nil {
		return nil, err
	}

	return &container.SampleDescription{
		Payload: track.description,
	}, nil
}

// EditList implements container.Input.
func (r *Reader) EditList(trackID uint32) ([]container.EditEntry, uint32, error) {
	track, err := r.track(trackID)
	if err != nil {
		return nil, 0, err
	}

	return track.editList, r.movieParams.Timescale, nil
}

// Metadata implements container.Input.
func (r *Reader) Metadata() []container.MetadataItem {
	return r.metadata
}

// Close implements container.Input.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

func flagsToUint32(f [3]byte) uint32 {
	return uint32(f[0])<<16 | uint32(f[1])<<8 | uint32(f[2])
}

func uint32ToFlags(v uint32) [3]byte {
	return [3]byte{byte(v >> 16), byte(v >> 8), byte(v)}
}

func editListFromBox(elst *gomp4.Elst) []container.EditEntry {
	entries := make([]container.EditEntry, len(elst.Entries))

	for i, e := range elst.Entries {
		if elst.GetVersion() == 1 {
			entries[i].SegmentDuration = e.SegmentDurationV1
			entries[i].MediaTime = e.MediaTimeV1
		} else {
			entries[i].SegmentDuration = uint64(e.SegmentDurationV0)
			entries[i].MediaTime = int64(e.MediaTimeV0)
		}
		entries[i].MediaRateInteger = e.MediaRateInteger
		entries[i].MediaRateFraction = e.MediaRateFraction
	}

	return entries
}
