package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"secchat/internal/errors"
)

// MaxFrameSize bounds a single frame (1 MiB).  Anything larger is a
// protocol violation or a corrupted length prefix; the reader rejects
// it before allocating.
const MaxFrameSize = 1 << 20

// WriteFrame writes payload preceded by a big-endian uint32 length.
// The prefix and payload go out in a single Write call so a frame is
// never interleaved with a concurrent writer's output.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("write frame of %d bytes: %w", len(payload), errors.ErrFrameTooLarge)
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame.  It is robust to arbitrary
// TCP fragmentation and coalescing: both the prefix and the payload are
// read to completion regardless of how the stream delivers them.
// A clean close before the first prefix byte returns io.EOF; a close
// mid-frame returns io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("read frame of %d bytes: %w", n, errors.ErrFrameTooLarge)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return payload, nil
}
