package inspector

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// clientState is the Created -> Started -> Closed lifecycle every Client
// moves through exactly once.
type clientState int

const (
	stateCreated clientState = iota
	stateStarted
	stateClosed
)

const (
	// simulatorDialAddr is where a booted simulator's webinspectord listens
	// directly; real devices are reached through idevicewebinspectorproxy
	// instead, dialed by the caller and handed to NewClient as conn.
	simulatorDialAddr = "[::1]:27753"
	pumpInterval       = 50 * time.Millisecond
	closeGracePeriod   = 5 * time.Second
)

// DialSimulator connects to the locally-running simulator webinspectord.
func DialSimulator() (net.Conn, error) {
	return net.Dial("tcp", simulatorDialAddr)
}

// Handler is invoked once per inbound Message while the client is listening.
type Handler func(Message)

// Client is a framed Web Inspector protocol connection. A zero Client is
// not usable; construct with NewClient.
type Client struct {
	conn net.Conn

	mu       sync.Mutex
	state    clientState
	stopPump chan struct{}
	pumpDone chan error
}

// NewClient wraps an already-established connection (either a direct
// simulator socket or an idevicewebinspectorproxy-relayed real-device
// socket) in state Created.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, state: stateCreated}
}

// sendMessage encodes msg as a binary plist frame and writes it. Valid only
// in Started: sending before StartListening or after Close is a programming
// error.
func (c *Client) sendMessage(msg Message) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == stateCreated {
		return errors.New("inspector: sendMessage called before StartListening")
	}
	if state == stateClosed {
		return errors.New("inspector: sendMessage called on a closed client")
	}
	payload, err := encodeMessage(msg.Selector(), msg.ToArgument())
	if err != nil {
		return err
	}
	return writeFrame(c.conn, payload)
}

// SendMessage is the exported form of sendMessage; the identical guard
// applies.
func (c *Client) SendMessage(msg Message) error { return c.sendMessage(msg) }

// receiveMessage reads and decodes exactly one frame. Returns io.EOF
// unwrapped on a clean peer-initiated close at a frame boundary.
func (c *Client) receiveMessage() (Message, error) {
	payload, err := readFrame(c.conn)
	if err != nil {
		return nil, err
	}
	wire, err := decodeMessage(payload)
	if err != nil {
		return nil, err
	}
	return decode(wire.Selector, wire.Argument)
}

// StartListening moves the client to Started and begins a cooperative
// receive pump on a 50ms cadence, invoking handler for every decoded
// message. Starting twice is a programming error.
func (c *Client) StartListening(handler Handler) error {
	c.mu.Lock()
	if c.state != stateCreated {
		c.mu.Unlock()
		return fmt.Errorf("inspector: StartListening called in state %d, want Created", c.state)
	}
	c.state = stateStarted
	c.stopPump = make(chan struct{})
	c.pumpDone = make(chan error, 1)
	stop := c.stopPump
	done := c.pumpDone
	c.mu.Unlock()

	go c.pump(handler, stop, done)
	return nil
}

func (c *Client) pump(handler Handler, stop chan struct{}, done chan error) {
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			done <- nil
			return
		case <-ticker.C:
			c.conn.SetReadDeadline(time.Now().Add(pumpInterval))
			msg, err := c.receiveMessage()
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				if errors.Is(err, io.EOF) {
					c.closeUnexpectedly()
					done <- nil
					return
				}
				done <- err
				return
			}
			handler(msg)
		}
	}
}

// closeUnexpectedly is invoked by the pump when the peer closes the
// connection without Close having been called first.
func (c *Client) closeUnexpectedly() {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	c.mu.Unlock()
	c.conn.Close()
}

// Close cancels the receive pump (propagating any error it hit), waits up
// to closeGracePeriod for it to exit, and closes the underlying socket.
// Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	started := c.state == stateStarted
	c.state = stateClosed
	stop := c.stopPump
	done := c.pumpDone
	c.mu.Unlock()

	var pumpErr error
	if started {
		close(stop)
		select {
		case pumpErr = <-done:
		case <-time.After(closeGracePeriod):
			pumpErr = errors.New("inspector: receive pump did not stop within grace period")
		}
	}
	closeErr := c.conn.Close()
	if pumpErr != nil {
		return pumpErr
	}
	return closeErr
}
