package apprunner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrame_ComputesChecksum(t *testing.T) {
	require.Equal(t, "$OK#9a", frame("OK"))
}

func TestHexEncodeDecode_RoundTrips(t *testing.T) {
	enc := hexEncode("K=V")
	dec, err := hexDecode(enc)
	require.NoError(t, err)
	require.Equal(t, "K=V", dec)
}

func TestDecodedPacket_Kind(t *testing.T) {
	require.Equal(t, kindStdout, decodedPacket{raw: "Ohello"}.kind())
	require.Equal(t, kindExitW, decodedPacket{raw: "W00"}.kind())
	require.Equal(t, kindExitX, decodedPacket{raw: "X00;05"}.kind())
	require.Equal(t, kindCrash, decodedPacket{raw: "T05"}.kind())
	require.Equal(t, kindUnknown, decodedPacket{raw: ""}.kind())
}

func TestDecodedPacket_StdoutText(t *testing.T) {
	p := decodedPacket{raw: "O" + hexEncode("hello\n")}
	text, err := p.stdoutText()
	require.NoError(t, err)
	require.Equal(t, "hello\n", text)
}

func TestDecodedPacket_ExitCode(t *testing.T) {
	p := decodedPacket{raw: "W00"}
	code, err := p.exitCode()
	require.NoError(t, err)
	require.Equal(t, 0, code)

	p = decodedPacket{raw: "X0a;05"}
	code, err = p.exitCode()
	require.NoError(t, err)
	require.Equal(t, 10, code)
}

func TestLaunchPayload_EncodesPathAndArgs(t *testing.T) {
	payload := launchPayload("/a", []string{"x"})
	require.Equal(t, "A4,0,"+hexEncode("/a")+",2,1,"+hexEncode("x"), payload)
}
