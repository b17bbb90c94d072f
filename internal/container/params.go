package container

// Brand is a container compatibility tag.
type Brand [4]byte

// IsZero checks whether the brand is empty.
func (b Brand) IsZero() bool {
	return b == Brand{}
}

func (b Brand) String() string {
	return string(b[:])
}

// HandlerType is the media handler of a track.
type HandlerType [4]byte

// handler types.
var (
	HandlerTypeVideo    = HandlerType{'v', 'i', 'd', 'e'}
	HandlerTypeAudio    = HandlerType{'s', 'o', 'u', 'n'}
	HandlerTypeText     = HandlerType{'t', 'e', 'x', 't'}
	HandlerTypeSubtitle = HandlerType{'s', 'b', 't', 'l'}
	HandlerTypeHint     = HandlerType{'h', 'i', 'n', 't'}
)

func (h HandlerType) String() string {
	return string(h[:])
}

// MovieParams are movie-level parameters.
type MovieParams struct {
	MajorBrand       Brand
	MinorVersion     uint32
	CompatibleBrands []Brand
	Timescale        uint32
}

// TrackParams are track-level parameters.
type TrackParams struct {
	TrackID        uint32
	Flags          uint32
	Layer          int16
	AlternateGroup int16
	Volume         int16
	Matrix         [9]int32
	Width          uint32 // 16.16 fixed point
	Height         uint32 // 16.16 fixed point
}

// MediaParams are media-level parameters.
type MediaParams struct {
	HandlerType HandlerType
	HandlerName string
	Timescale   uint32
	Language    uint16 // packed ISO-639-2/T

	// MediaHeader is the media information header box (vmhd, smhd, nmhd, ...),
	// including its type and excluding its size.
	MediaHeader []byte
}

// Sample is a timed unit of a track.
type Sample struct {
	DTS              uint64
	CTSOffset        int64
	IsNonSyncSample  bool
	DescriptionIndex uint32
	Payload          []byte
}

// SampleDescription is the codec-specific configuration of a track.
type SampleDescription struct {
	// Payload is the payload of the sample description box (stsd), entries included.
	Payload []byte
}

// EditEntry is an entry of an edit list.
type EditEntry struct {
	SegmentDuration   uint64 // in movie timescale
	MediaTime         int64  // in media timescale, -1 for empty edits
	MediaRateInteger  int16
	MediaRateFraction int16
}

// MetadataItem is a container-level metadata item.
type MetadataItem struct {
	Type [4]byte
	Data []byte // whole box, header included
}
