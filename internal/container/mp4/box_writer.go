package mp4

import (
	"io"

	gomp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
)

// boxWriter writes boxes into an in-memory buffer.
type boxWriter struct {
	buf *seekablebuffer.Buffer
	w   *gomp4.Writer
}

func newBoxWriter() *boxWriter {
	w := &boxWriter{
		buf: &seekablebuffer.Buffer{},
	}

	w.w = gomp4.NewWriter(w.buf)

	return w
}

func (w *boxWriter) writeBoxStart(box gomp4.IImmutableBox) (int, error) {
	bi := &gomp4.BoxInfo{
		Type: box.GetType(),
	}
	var err error
	bi, err = w.w.StartBox(bi)
	if err != nil {
		return 0, err
	}

	_, err = gomp4.Marshal(w.w, box, gomp4.Context{})
	if err != nil {
		return 0, err
	}

	return int(bi.Offset), nil
}

func (w *boxWriter) writeBoxEnd() error {
	_, err := w.w.EndBox()
	return err
}

func (w *boxWriter) writeBox(box gomp4.IImmutableBox) (int, error) {
	off, err := w.writeBoxStart(box)
	if err != nil {
		return 0, err
	}

	err = w.writeBoxEnd()
	if err != nil {
		return 0, err
	}

	return off, nil
}

// writeRawBox writes a box whose payload is already serialized.
func (w *boxWriter) writeRawBox(typ [4]byte, payload []byte) error {
	_, err := w.w.StartBox(&gomp4.BoxInfo{Type: gomp4.BoxType(typ)})
	if err != nil {
		return err
	}

	_, err = w.w.Write(payload)
	if err != nil {
		return err
	}

	return w.writeBoxEnd()
}

// writeBytes writes serialized boxes, headers included.
func (w *boxWriter) writeBytes(byts []byte) error {
	_, err := w.w.Write(byts)
	return err
}

func (w *boxWriter) rewriteBox(off int, box gomp4.IImmutableBox) error {
	prevOff, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	_, err = w.w.Seek(int64(off), io.SeekStart)
	if err != nil {
		return err
	}

	_, err = w.writeBox(box)
	if err != nil {
		return err
	}

	_, err = w.w.Seek(prevOff, io.SeekStart)
	return err
}

func (w *boxWriter) bytes() []byte {
	return w.buf.Bytes()
}
