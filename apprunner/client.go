package apprunner

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/danielpaulus/go-ios/ios"
)

const debugserverServiceName = "com.apple.debugserver"

// Connect opens a com.apple.debugserver connection to device via lockdown's
// start_service, the same way every other go-ios-backed service connection
// in this module is established.
func Connect(device ios.DeviceEntry) (io.ReadWriteCloser, error) {
	conn, err := ios.ConnectToService(device, debugserverServiceName)
	if err != nil {
		return nil, fmt.Errorf("apprunner: connecting to %s: %w", debugserverServiceName, err)
	}
	return conn, nil
}

// Client drives one GDB-remote-serial-protocol launch dialogue over an
// already-connected debugserver transport.
type Client struct {
	conn io.ReadWriteCloser
	rd   *reader
}

// NewClient wraps conn (as returned by Connect) in a Client ready to launch
// one app.
func NewClient(conn io.ReadWriteCloser) *Client {
	return &Client{conn: conn, rd: newReader(conn, conn)}
}

// Close tears down the underlying transport, sending the protocol's
// graceful-shutdown packet first.
func (c *Client) Close() error {
	send(c.conn, "k")
	return c.conn.Close()
}

// Launch runs the full dialogue described in the app-launch GDB-RSP
// protocol write-up: no-ack handshake, environment, the A-packet launch,
// qLaunchSuccess, thread selection, and continue. onStdout is called for
// every decoded $O packet's text as it arrives, from the same goroutine
// that called Launch (the caller is expected to run Launch in its own
// goroutine if concurrent stdout draining is needed elsewhere).
func (c *Client) Launch(ctx context.Context, path string, args []string, env map[string]string, onStdout func(string)) (int, error) {
	if err := c.noAckHandshake(); err != nil {
		return 0, err
	}
	for k, v := range env {
		if err := c.sendExpectOK(ctx, "QEnvironmentHexEncoded:"+hexEncode(k+"="+v)); err != nil {
			return 0, fmt.Errorf("apprunner: setting env %s: %w", k, err)
		}
	}
	if err := c.sendExpectOK(ctx, launchPayload(path, args)); err != nil {
		return 0, fmt.Errorf("apprunner: launch (A-packet): %w", err)
	}
	if err := c.sendExpectOK(ctx, "qLaunchSuccess"); err != nil {
		return 0, fmt.Errorf("apprunner: qLaunchSuccess: %w", err)
	}
	if err := c.sendExpectOK(ctx, "Hc-1"); err != nil {
		return 0, fmt.Errorf("apprunner: Hc-1: %w", err)
	}
	if err := send(c.conn, "c"); err != nil {
		return 0, fmt.Errorf("apprunner: continue: %w", err)
	}

	for {
		pkt, err := c.rd.next(ctx, false)
		if err != nil {
			return 0, fmt.Errorf("apprunner: read loop: %w", err)
		}
		switch pkt.kind() {
		case kindStdout:
			text, err := pkt.stdoutText()
			if err != nil {
				return 0, err
			}
			if onStdout != nil {
				onStdout(text)
			}
			if err := send(c.conn, "OK"); err != nil {
				return 0, err
			}
		case kindExitW, kindExitX:
			code, err := pkt.exitCode()
			if err != nil {
				return 0, err
			}
			send(c.conn, "OK")
			return code, nil
		case kindCrash:
			return 0, fmt.Errorf("apprunner: app crashed (%s)", pkt.raw)
		}
	}
}

// noAckHandshake sends the fixed-checksum QStartNoAckMode packet (its
// checksum is specified literally by the protocol, not computed), expects
// the device's '+' ack followed by $OK#9a, and acks back with '+'.
func (c *Client) noAckHandshake() error {
	if _, err := io.WriteString(c.conn, "$QStartNoAckMode#b0"); err != nil {
		return fmt.Errorf("apprunner: sending QStartNoAckMode: %w", err)
	}
	pkt, err := c.rd.next(context.Background(), false)
	if err != nil {
		return fmt.Errorf("apprunner: awaiting QStartNoAckMode ack: %w", err)
	}
	if !pkt.isOK() {
		return fmt.Errorf("apprunner: unexpected response to QStartNoAckMode: %q", pkt.raw)
	}
	_, err = io.WriteString(c.conn, "+")
	return err
}

func (c *Client) sendExpectOK(ctx context.Context, payload string) error {
	if err := send(c.conn, payload); err != nil {
		return err
	}
	pkt, err := c.rd.next(ctx, false)
	if err != nil {
		return err
	}
	if !pkt.isOK() {
		return fmt.Errorf("apprunner: expected OK, got %q", pkt.raw)
	}
	return nil
}

// launchPayload builds the A-packet: `A<2*len(path)>,0,<hex(path)>[,<2*len(arg)>,<i>,<hex(arg)>]...`
func launchPayload(path string, args []string) string {
	var b strings.Builder
	b.WriteByte('A')
	writeArg(&b, 0, path)
	for i, a := range args {
		b.WriteByte(',')
		writeArg(&b, i+1, a)
	}
	return b.String()
}

func writeArg(b *strings.Builder, index int, value string) {
	hexVal := hexEncode(value)
	fmt.Fprintf(b, "%d,%d,%s", len(hexVal), index, hexVal)
}
