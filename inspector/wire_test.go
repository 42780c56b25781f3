package inspector

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrame_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("hello")))

	payload, err := readFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), payload)
}

func TestReadFrame_CleanEOFAtBoundary(t *testing.T) {
	_, err := readFrame(bytes.NewReader(nil))
	require.True(t, errors.Is(err, io.EOF))
}

func TestReadFrame_MidFrameEOFIsError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("hello")))
	truncated := buf.Bytes()[:5]
	_, err := readFrame(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestIsXMLPlist(t *testing.T) {
	require.True(t, isXMLPlist([]byte("<?xml version=\"1.0\"?><plist/>")))
	require.False(t, isXMLPlist([]byte("bplist00...")))
}
