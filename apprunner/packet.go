// Package apprunner implements the GDB-remote-serial-protocol dialogue
// used to launch an application on a tethered iOS device through Apple's
// debugserver, relay its stdout, and detect its exit code.
package apprunner

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// frame wraps payload in the GDB-RSP packet form `$<payload>#<checksum>`.
func frame(payload string) string {
	return fmt.Sprintf("$%s#%02x", payload, checksum(payload))
}

// checksum is the mod-256 sum of every byte in payload, per the GDB remote
// serial protocol.
func checksum(payload string) byte {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum += payload[i]
	}
	return sum
}

// hexEncode returns the uppercase hex encoding of s — two uppercase hex
// digits per byte, as used for every environment variable, path, and
// argument sent over the wire.
func hexEncode(s string) string {
	return strings.ToUpper(hex.EncodeToString([]byte(s)))
}

// hexDecode reverses hexEncode; used to decode $O<hex>#... stdout packets.
func hexDecode(s string) (string, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("apprunner: invalid hex payload %q: %w", s, err)
	}
	return string(b), nil
}

// packetKind classifies a decoded packet's payload by its leading byte.
type packetKind byte

const (
	kindStdout  packetKind = 'O'
	kindExitW   packetKind = 'W'
	kindExitX   packetKind = 'X'
	kindCrash   packetKind = 'T'
	kindUnknown packetKind = 0
)

// decodedPacket is one payload extracted from the `$...#xx` framing. The
// reader consumes the two checksum digits but does not verify them.
type decodedPacket struct {
	raw string // payload between $ and #
}

func (p decodedPacket) isOK() bool { return p.raw == "OK" }

func (p decodedPacket) kind() packetKind {
	if len(p.raw) == 0 {
		return kindUnknown
	}
	switch p.raw[0] {
	case 'O':
		return kindStdout
	case 'W':
		return kindExitW
	case 'X':
		return kindExitX
	case 'T':
		return kindCrash
	default:
		return kindUnknown
	}
}

// stdoutText decodes an O-packet's hex payload into the bytes the launched
// app wrote to stdout.
func (p decodedPacket) stdoutText() (string, error) {
	return hexDecode(strings.TrimPrefix(p.raw, "O"))
}

// exitCode extracts the exit code from a W or X packet. Both encode it as
// two hex digits immediately after the leading letter (X additionally
// carries a signal number after a semicolon, which we ignore — a killed
// process is reported as a nonzero exit to the caller either way).
func (p decodedPacket) exitCode() (int, error) {
	body := p.raw[1:]
	if i := strings.IndexByte(body, ';'); i >= 0 {
		body = body[:i]
	}
	var code int
	if _, err := fmt.Sscanf(body, "%02x", &code); err != nil {
		return 0, fmt.Errorf("apprunner: malformed exit packet %q: %w", p.raw, err)
	}
	return code, nil
}
