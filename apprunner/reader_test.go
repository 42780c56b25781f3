package apprunner

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReader_NextParsesFramedPacketAndAcks(t *testing.T) {
	in := bytes.NewBufferString(frame("OK"))
	var out bytes.Buffer
	rd := newReader(in, &out)

	pkt, err := rd.next(context.Background(), false)
	require.NoError(t, err)
	require.True(t, pkt.isOK())
	require.Equal(t, "+", out.String())
}

func TestReader_SkipsBareAcks(t *testing.T) {
	in := bytes.NewBufferString("+" + frame("O"+hexEncode("hi")))
	rd := newReader(in, nil)

	pkt, err := rd.next(context.Background(), false)
	require.NoError(t, err)
	text, err := pkt.stdoutText()
	require.NoError(t, err)
	require.Equal(t, "hi", text)
}

func TestReader_OverflowIsFatal(t *testing.T) {
	big := make([]byte, maxPacketBuffer+1)
	for i := range big {
		big[i] = 'a'
	}
	in := bytes.NewBuffer(append([]byte{'$'}, big...))
	rd := newReader(in, nil)

	_, err := rd.next(context.Background(), false)
	require.Error(t, err)
}
