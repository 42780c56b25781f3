package inspector

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessageKeyForString_RoundTripsAllGlossaryKeys(t *testing.T) {
	for _, k := range allWIRKeys {
		got, ok := messageKeyForString(k)
		require.True(t, ok, "key %q should be recognized", k)
		require.Equal(t, k, got)
	}
}

func TestMessageKeyForString_RejectsUnknownKey(t *testing.T) {
	_, ok := messageKeyForString("WIRNotARealKey")
	require.False(t, ok)
}

func TestEncodeDecodeMessage_RoundTrips(t *testing.T) {
	msg := ReportIdentifier{ConnectionIdentifier: "id1"}
	payload, err := encodeMessage(msg.Selector(), msg.ToArgument())
	require.NoError(t, err)

	wire, err := decodeMessage(payload)
	require.NoError(t, err)
	require.Equal(t, "_rpc_reportIdentifier:", wire.Selector)
	require.Equal(t, "id1", wire.Argument[wirConnectionIdentifierKey])
}

func TestApplicationConnected_EncodesActiveFlagAsInteger(t *testing.T) {
	msg := ApplicationConnected{ApplicationIdentifier: "app1", IsApplicationActive: true}
	arg := msg.ToArgument()
	require.Equal(t, 1, arg[wirIsApplicationActiveKey])
}

// TestClientSendMessage_ReportIdentifier exercises the scenario from the
// protocol's worked example: sending ReportIdentifier produces exactly one
// framed binary plist whose selector/argument match, and the received
// selector/argument pair goes back through the decoder table without error.
func TestClientSendMessage_ReportIdentifier(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewClient(clientConn)
	require.NoError(t, client.StartListening(func(Message) {}))
	defer client.Close()

	recvErr := make(chan error, 1)
	recvPayload := make(chan []byte, 1)
	go func() {
		payload, err := readFrame(serverConn)
		recvPayload <- payload
		recvErr <- err
	}()

	done := make(chan error, 1)
	go func() { done <- client.sendMessage(ReportIdentifier{ConnectionIdentifier: "id1"}) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sendMessage did not return in time")
	}

	require.NoError(t, <-recvErr)
	payload := <-recvPayload
	wire, err := decodeMessage(payload)
	require.NoError(t, err)
	require.Equal(t, "_rpc_reportIdentifier:", wire.Selector)
	require.Equal(t, "id1", wire.Argument[wirConnectionIdentifierKey])

	reply, err := decode(wire.Selector, wire.Argument)
	require.NoError(t, err)
	_ = reply
}

func TestClientStartListening_DispatchesApplicationConnected(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	client := NewClient(clientConn)

	received := make(chan Message, 1)
	require.NoError(t, client.StartListening(func(m Message) { received <- m }))
	defer client.Close()

	payload, err := encodeMessage("_rpc_applicationConnected:", map[string]any{
		wirApplicationIdentifierKey: "app1",
		wirIsApplicationActiveKey:   int64(1),
	})
	require.NoError(t, err)
	go writeFrame(serverConn, payload)

	select {
	case m := <-received:
		ac, ok := m.(ApplicationConnected)
		require.True(t, ok)
		require.Equal(t, "app1", ac.ApplicationIdentifier)
		require.True(t, ac.IsApplicationActive)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked in time")
	}
	serverConn.Close()
}

// TestMessage_RoundTripsThroughPlist exercises invariant 6: for every
// selector, decode(selector, ToArgument()) reconstructs an equal value.
func TestMessage_RoundTripsThroughPlist(t *testing.T) {
	cases := []Message{
		ReportIdentifier{ConnectionIdentifier: "id1"},
		ForwardGetListing{ApplicationIdentifier: "app1"},
		ForwardSocketSetup{ApplicationIdentifier: "app1", PageIdentifier: 2, ConnectionIdentifier: "id1", SenderIdentifier: "sender1"},
		ForwardSocketData{ApplicationIdentifier: "app1", PageIdentifier: 2, ConnectionIdentifier: "id1", SenderIdentifier: "sender1", SocketData: []byte("hi")},
		ApplicationConnected{ApplicationIdentifier: "app1", ApplicationName: "App", ApplicationBundleId: "com.example.app", IsApplicationProxy: true, HostApplicationIdentifier: "host1", IsApplicationActive: true},
		ApplicationDisconnected{ApplicationIdentifier: "app1"},
		PageListing{ApplicationIdentifier: "app1", Listing: map[string]PageInfo{"1": {Title: "t", URL: "https://example.com"}}},
		SocketDataMessage{ApplicationIdentifier: "app1", PageIdentifier: 2, SocketData: []byte("frame")},
		ApplicationUpdated{ApplicationIdentifier: "app1", IsApplicationProxy: false, IsApplicationActive: true},
		ReportConnectedApplicationList{ApplicationDictionary: map[string]ApplicationConnected{
			"app1": {ApplicationIdentifier: "app1", ApplicationName: "App", IsApplicationActive: true},
		}},
		ReportConnectedDriverList{DriverDictionary: map[string]DriverInfo{"driver1": {RemoteAutomationEnabled: true}}},
		ReportSetup{},
	}

	for _, want := range cases {
		got, err := decode(want.Selector(), want.ToArgument())
		require.NoError(t, err, want.Selector())
		require.Equal(t, want, got, want.Selector())
	}
}

func TestClientSendMessage_BeforeStartListeningIsAnError(t *testing.T) {
	clientConn, _ := net.Pipe()
	defer clientConn.Close()
	client := NewClient(clientConn)
	require.Error(t, client.SendMessage(ReportIdentifier{ConnectionIdentifier: "id1"}))
}

func TestClientStartListening_TwiceIsAnError(t *testing.T) {
	clientConn, _ := net.Pipe()
	defer clientConn.Close()
	client := NewClient(clientConn)
	require.NoError(t, client.StartListening(func(Message) {}))
	defer client.Close()
	require.Error(t, client.StartListening(func(Message) {}))
}
