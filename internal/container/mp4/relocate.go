package mp4

import (
	"io"

	"github.com/bluenviron/remuxer/internal/container"
)

type readerWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// relocate moves the first size bytes of f forward by shift bytes.
// Blocks are moved starting from the tail, so that source and destination can overlap.
func relocate(f readerWriterAt, size uint64, shift uint64, buf []byte, progress container.ProgressFunc) error {
	done := uint64(0)

	for done < size {
		n := uint64(len(buf))
		if rem := size - done; rem < n {
			n = rem
		}

		src := size - done - n

		_, err := f.ReadAt(buf[:n], int64(src))
		if err != nil {
			return err
		}

		_, err = f.WriteAt(buf[:n], int64(src+shift))
		if err != nil {
			return err
		}

		done += n

		if progress != nil {
			progress(done, size)
		}
	}

	return nil
}
