package inspectorproxy

import (
	"encoding/binary"
	"fmt"
	"io"
)

// writeFrame and readFrame implement the same 4-byte-big-endian-length
// framing as the inspector package's host-side client — the wire format is
// shared by both ends of the bridge.

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("inspectorproxy: writing frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("inspectorproxy: writing frame payload: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("inspectorproxy: connection closed mid-frame: %w", err)
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("inspectorproxy: reading frame payload: %w", err)
	}
	return payload, nil
}
