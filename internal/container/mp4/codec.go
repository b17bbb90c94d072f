package mp4

import (
	"bytes"
	"fmt"
	"strings"

	gomp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
)

// describeSampleDescription returns a human-readable description
// of the entries of a sample description box payload.
func describeSampleDescription(payload []byte) string {
	// version, flags and entry count
	if len(payload) < 8 {
		return "unknown"
	}

	var entries []string
	depth := 0

	_, err := gomp4.ReadBoxStructure(bytes.NewReader(payload[8:]), func(h *gomp4.ReadHandle) (interface{}, error) {
		typ := h.BoxInfo.Type.String()

		if depth == 0 {
			entries = append(entries, typ)

			switch typ {
			case "avc1", "hev1", "hvc1":
				depth++
				defer func() { depth-- }()
				return h.Expand()
			}

			return nil, nil
		}

		switch typ {
		case "avcC":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			conf := box.(*gomp4.AVCDecoderConfiguration)

			if len(conf.SequenceParameterSets) != 0 {
				var sps h264.SPS
				err = sps.Unmarshal(conf.SequenceParameterSets[0].NALUnit)
				if err == nil {
					entries[len(entries)-1] += fmt.Sprintf(" %dx%d", sps.Width(), sps.Height())
				}
			}

		case "hvcC":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			conf := box.(*gomp4.HvcC)

			for _, arr := range conf.NaluArrays {
				if h265.NALUType(arr.NaluType&0x3f) == h265.NALUType_SPS_NUT && len(arr.Nalus) != 0 {
					var sps h265.SPS
					err = sps.Unmarshal(arr.Nalus[0].NALUnit)
					if err == nil {
						entries[len(entries)-1] += fmt.Sprintf(" %dx%d", sps.Width(), sps.Height())
					}
					break
				}
			}
		}

		return nil, nil
	})
	if err != nil || len(entries) == 0 {
		return "unknown"
	}

	return strings.Join(entries, ", ")
}
