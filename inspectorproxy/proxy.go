// Package inspectorproxy implements the device-side Web Inspector bridge:
// a long-lived TCP listener that, per accepted client, relays
// length-prefixed property-list frames between that client and one real
// device's com.apple.webinspector lockdown service. It is a
// reimplementation of the idevicewebinspectorproxy binary, not a wrapper
// around it — inspector.Client is the counterpart that dials this proxy
// (or a simulator directly).
package inspectorproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"howett.net/plist"
)

// DeviceDialer opens a bidirectional connection to one device's
// com.apple.webinspector lockdown service. Real use is DialGoIOS; tests
// substitute an in-memory pipe.
type DeviceDialer func(udid string) (io.ReadWriteCloser, error)

// Proxy bridges TCP clients to one device's webinspector service.
type Proxy struct {
	UDID string
	Dial DeviceDialer

	// RecvTimeout bounds each read from the device connection in the
	// device->client pump; zero means no deadline.
	RecvTimeout time.Duration

	// XML re-serializes device->client frames as XML plists instead of
	// binary when true. Binary is the default, matching the device's own
	// wire format.
	XML bool

	Logger *slog.Logger
}

func (p *Proxy) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Serve accepts connections on ln until ctx is cancelled or Accept fails.
// Each connection is handled in its own bridge; Serve does not return until
// every in-flight bridge has finished tearing down. Per-client bridges are
// tracked with an errgroup so an error in one client's pumps never takes
// down the others' accounting; panics are not recovered.
func (p *Proxy) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		ln.Close()
		close(done)
	}()

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-done:
				acceptErr = nil
			default:
				acceptErr = fmt.Errorf("inspectorproxy: accept: %w", err)
			}
			break
		}
		g.Go(func() error {
			p.handleClient(gctx, conn)
			return nil
		})
	}
	g.Wait()
	return acceptErr
}

// bridge holds the per-connection state shared by the two pump goroutines.
type bridge struct {
	client net.Conn

	mu       sync.Mutex
	device   io.ReadWriteCloser
	dialErr  error
	dialOnce sync.Once

	stopDeviceToClient chan struct{}
}

func (p *Proxy) handleClient(ctx context.Context, client net.Conn) {
	log := p.logger().With("udid", p.UDID, "remote", client.RemoteAddr())
	log.Debug("inspectorproxy: client connected")
	b := &bridge{client: client, stopDeviceToClient: make(chan struct{})}

	defer func() {
		client.Close()
		b.mu.Lock()
		dev := b.device
		b.mu.Unlock()
		if dev != nil {
			dev.Close()
		}
		log.Debug("inspectorproxy: client disconnected")
	}()

	var pumpWG sync.WaitGroup
	clientToDeviceErr := p.clientToDevice(client, b, &pumpWG, log)

	// Signal the device->client pump (if it was ever started) to stop, and
	// wait for it to exit before returning.
	close(b.stopDeviceToClient)
	pumpWG.Wait()

	if clientToDeviceErr != nil && !errors.Is(clientToDeviceErr, io.EOF) {
		log.Warn("inspectorproxy: client->device pump ended", "error", clientToDeviceErr)
	}
}

// clientToDevice reads frames from client, lazily dials the device on the
// first frame, forwards each frame re-encoded as binary plist, and starts
// the device->client pump alongside the first successful dial.
func (p *Proxy) clientToDevice(client net.Conn, b *bridge, pumpWG *sync.WaitGroup, log *slog.Logger) error {
	for {
		payload, err := readFrame(client)
		if err != nil {
			return err
		}
		var root any
		if _, err := plist.Unmarshal(payload, &root); err != nil {
			return fmt.Errorf("inspectorproxy: decoding client frame: %w", err)
		}

		dev, err := p.ensureDialed(b, pumpWG, log)
		if err != nil {
			return err
		}

		encoded, err := plist.Marshal(root, plist.BinaryFormat)
		if err != nil {
			return fmt.Errorf("inspectorproxy: re-encoding client frame: %w", err)
		}
		if err := writeFrame(dev, encoded); err != nil {
			return fmt.Errorf("inspectorproxy: writing to device: %w", err)
		}
	}
}

// ensureDialed opens the device connection on first use and starts the
// device->client pump exactly once, guarded by dialOnce so concurrent
// callers (there is only ever one, clientToDevice's own loop) never double
// dial.
func (p *Proxy) ensureDialed(b *bridge, pumpWG *sync.WaitGroup, log *slog.Logger) (io.ReadWriteCloser, error) {
	b.dialOnce.Do(func() {
		dev, err := p.Dial(p.UDID)
		if err != nil {
			b.dialErr = fmt.Errorf("inspectorproxy: dialing device %s: %w", p.UDID, err)
			return
		}
		b.mu.Lock()
		b.device = dev
		b.mu.Unlock()
		pumpWG.Add(1)
		go func() {
			defer pumpWG.Done()
			p.deviceToClient(dev, b.client, b.stopDeviceToClient, log)
		}()
	})
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	b.mu.Lock()
	dev := b.device
	b.mu.Unlock()
	return dev, nil
}

// deviceToClient relays frames from the device to the client until the
// device connection closes or stop is signalled by the sibling pump's
// teardown.
func (p *Proxy) deviceToClient(dev io.ReadWriteCloser, client net.Conn, stop <-chan struct{}, log *slog.Logger) {
	type frameOrErr struct {
		payload []byte
		err     error
	}
	recv := make(chan frameOrErr, 1)

	for {
		go func() {
			if deadliner, ok := dev.(interface{ SetReadDeadline(time.Time) error }); ok && p.RecvTimeout > 0 {
				deadliner.SetReadDeadline(time.Now().Add(p.RecvTimeout))
			}
			payload, err := readFrame(dev)
			recv <- frameOrErr{payload, err}
		}()

		select {
		case <-stop:
			return
		case r := <-recv:
			if r.err != nil {
				if !errors.Is(r.err, io.EOF) {
					log.Warn("inspectorproxy: device->client pump ended", "error", r.err)
				}
				client.Close()
				return
			}
			format := plist.BinaryFormat
			if p.XML {
				format = plist.XMLFormat
			}
			var root any
			if _, err := plist.Unmarshal(r.payload, &root); err != nil {
				log.Warn("inspectorproxy: decoding device frame", "error", err)
				continue
			}
			encoded, err := plist.Marshal(root, format)
			if err != nil {
				log.Warn("inspectorproxy: re-encoding device frame", "error", err)
				continue
			}
			if err := writeFrame(client, encoded); err != nil {
				return
			}
		}
	}
}
