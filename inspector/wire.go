// Package inspector implements the host-side Web Inspector client: a
// framed plist socket, a typed message schema keyed by the WIR* selector
// registry, a background receive pump, and a small lifecycle state machine.
package inspector

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"howett.net/plist"
)

// writeFrame writes a 4-byte big-endian length prefix followed by payload —
// the wire framing shared by C9 and C10.
func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("inspector: writing frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("inspector: writing frame payload: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed payload. An EOF while reading the
// length prefix (i.e. at a frame boundary) is normal stream closure and is
// returned unwrapped so callers can distinguish it with errors.Is(err,
// io.EOF); an EOF in the middle of a frame is a genuine error.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("inspector: connection closed mid-frame: %w", err)
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("inspector: reading frame payload: %w", err)
	}
	return payload, nil
}

// isXMLPlist reports whether payload looks like an XML property list,
// distinguishing it from a binary plist (which starts "bplist00").
func isXMLPlist(payload []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(payload), []byte("<?xml"))
}

// wireMessage is the plist root every frame carries: a dictionary with
// `__selector` (string) and `__argument` (dictionary).
type wireMessage struct {
	Selector string         `plist:"__selector"`
	Argument map[string]any `plist:"__argument"`
}

func encodeMessage(selector string, argument map[string]any) ([]byte, error) {
	return plist.Marshal(wireMessage{Selector: selector, Argument: argument}, plist.BinaryFormat)
}

func decodeMessage(payload []byte) (wireMessage, error) {
	var msg wireMessage
	if _, err := plist.Unmarshal(payload, &msg); err != nil {
		return wireMessage{}, fmt.Errorf("inspector: decoding wire message: %w", err)
	}
	return msg, nil
}
