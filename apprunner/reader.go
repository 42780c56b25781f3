package apprunner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"
)

const (
	// maxPacketBuffer bounds the assembled-payload buffer; overflow is a
	// fatal protocol violation rather than a silently truncated packet.
	maxPacketBuffer = 64 * 1024

	perRecvTimeout  = 500 * time.Millisecond
	wallClockCeil   = 10 * time.Second
	emptyReadSpin   = 1 * time.Second
	emptyReadsLimit = 5
)

// reader assembles `$payload#xx` packets off an underlying byte stream,
// acking each with a bare "+" once parsed.
type reader struct {
	br  *bufio.Reader
	w   io.Writer
	buf []byte
}

func newReader(r io.Reader, w io.Writer) *reader {
	return &reader{br: bufio.NewReader(r), w: w}
}

// next blocks until one full packet is assembled, or returns an error. The
// wall-clock ceiling is checked only between bytes: no per-recv deadline is
// set on the underlying stream, so a read that blocks there is not
// interrupted. With allowEmpty, read errors are retried instead of returned
// (sleeping emptyReadSpin after every emptyReadsLimit consecutive failures)
// and the wall-clock ceiling is not applied.
func (rd *reader) next(ctx context.Context, allowEmpty bool) (decodedPacket, error) {
	deadline := time.Now().Add(wallClockCeil)
	emptyReads := 0
	for {
		if !allowEmpty && time.Now().After(deadline) {
			return decodedPacket{}, fmt.Errorf("apprunner: wall-clock ceiling exceeded waiting for packet")
		}
		select {
		case <-ctx.Done():
			return decodedPacket{}, ctx.Err()
		default:
		}

		b, err := rd.br.ReadByte()
		if err != nil {
			emptyReads++
			if emptyReads > emptyReadsLimit {
				time.Sleep(emptyReadSpin)
				emptyReads = 0
			}
			if allowEmpty {
				continue
			}
			return decodedPacket{}, fmt.Errorf("apprunner: reading packet: %w", err)
		}

		switch b {
		case '+', '-':
			// bare ack/nack outside a packet; ignore and keep reading
			continue
		case '$':
			rd.buf = rd.buf[:0]
			payload, err := rd.readUntilHash()
			if err != nil {
				return decodedPacket{}, err
			}
			// two checksum hex digits follow '#'; readChecksum consumes
			// them without verifying them
			if err := rd.readChecksum(); err != nil {
				return decodedPacket{}, err
			}
			if rd.w != nil {
				io.WriteString(rd.w, "+")
			}
			return decodedPacket{raw: payload}, nil
		}
	}
}

func (rd *reader) readUntilHash() (string, error) {
	for {
		b, err := rd.br.ReadByte()
		if err != nil {
			return "", fmt.Errorf("apprunner: reading payload: %w", err)
		}
		if b == '#' {
			return string(rd.buf), nil
		}
		if len(rd.buf) >= maxPacketBuffer {
			return "", fmt.Errorf("apprunner: packet exceeds %d bytes, fatal overflow", maxPacketBuffer)
		}
		rd.buf = append(rd.buf, b)
	}
}

func (rd *reader) readChecksum() error {
	for i := 0; i < 2; i++ {
		if _, err := rd.br.ReadByte(); err != nil {
			return fmt.Errorf("apprunner: reading checksum: %w", err)
		}
	}
	return nil
}

// send writes a full `$payload#xx` frame, expecting no explicit ack from
// the caller (the debugserver's own `+` arrives as the next byte on the
// stream and is consumed transparently by next's '+' case).
func send(w io.Writer, payload string) error {
	_, err := io.WriteString(w, frame(payload))
	return err
}
