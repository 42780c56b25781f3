package inspectorproxy

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

// fakeDevice is an in-memory stand-in for the device's webinspector
// lockdown service, implemented over net.Pipe.
type fakeDevice struct {
	net.Conn
}

func (f fakeDevice) Close() error { return f.Conn.Close() }

func newFakeDialer(devSide net.Conn) DeviceDialer {
	return func(udid string) (io.ReadWriteCloser, error) {
		return fakeDevice{devSide}, nil
	}
}

// TestProxy_RelaysClientFrameToDevice exercises the client->device pump:
// a frame the client sends, re-encoded as binary plist, arrives intact at
// the device side.
func TestProxy_RelaysClientFrameToDevice(t *testing.T) {
	devClientSide, devServerSide := net.Pipe()
	p := &Proxy{UDID: "fake-udid", Dial: newFakeDialer(devServerSide)}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Serve(ctx, ln)

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	payload, err := plist.Marshal(map[string]any{
		"__selector": "_rpc_reportIdentifier:",
		"__argument": map[string]any{"WIRConnectionIdentifierKey": "id1"},
	}, plist.XMLFormat)
	require.NoError(t, err)
	require.NoError(t, writeFrame(client, payload))

	done := make(chan []byte, 1)
	go func() {
		b, err := readFrame(devClientSide)
		require.NoError(t, err)
		done <- b
	}()

	select {
	case b := <-done:
		var root map[string]any
		_, err := plist.Unmarshal(b, &root)
		require.NoError(t, err)
		require.Equal(t, "_rpc_reportIdentifier:", root["__selector"])
	case <-time.After(2 * time.Second):
		t.Fatal("device side did not receive a relayed frame")
	}
}

// TestProxy_RelaysDeviceFrameToClient exercises the device->client pump
// started lazily on first client activity.
func TestProxy_RelaysDeviceFrameToClient(t *testing.T) {
	devClientSide, devServerSide := net.Pipe()
	p := &Proxy{UDID: "fake-udid", Dial: newFakeDialer(devServerSide)}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Serve(ctx, ln)

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	// Prime the device connection by sending one client frame, which
	// triggers ensureDialed and starts the device->client pump.
	primePayload, err := plist.Marshal(map[string]any{
		"__selector": "_rpc_reportIdentifier:",
		"__argument": map[string]any{"WIRConnectionIdentifierKey": "id1"},
	}, plist.BinaryFormat)
	require.NoError(t, err)
	require.NoError(t, writeFrame(client, primePayload))
	_, err = readFrame(devClientSide)
	require.NoError(t, err)

	devPayload, err := plist.Marshal(map[string]any{
		"__selector": "_rpc_applicationConnected:",
		"__argument": map[string]any{"WIRApplicationIdentifierKey": "app1"},
	}, plist.BinaryFormat)
	require.NoError(t, err)
	require.NoError(t, writeFrame(devClientSide, devPayload))

	done := make(chan []byte, 1)
	go func() {
		b, err := readFrame(client)
		require.NoError(t, err)
		done <- b
	}()

	select {
	case b := <-done:
		var root map[string]any
		_, err := plist.Unmarshal(b, &root)
		require.NoError(t, err)
		require.Equal(t, "_rpc_applicationConnected:", root["__selector"])
	case <-time.After(2 * time.Second):
		t.Fatal("client side did not receive a relayed frame")
	}
}
