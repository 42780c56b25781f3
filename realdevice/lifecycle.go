package realdevice

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"net"
	"time"

	"golang.org/x/image/tiff"

	"github.com/go-drift/iosctl/command"
	"github.com/go-drift/iosctl/device"
)

// Restart issues `idevicediagnostics restart`, marks the device restarting
// for the duration, sleeps the mandatory 30s, then polls isResponsive up to
// 12 times at 5s. isRestarting is cleared on every exit path.
func (d *Device) Restart() error {
	d.restarting.Store(true)
	defer d.restarting.Store(false)

	if _, err := runIdeviceCommand(d.udid, "idevicediagnostics", []string{"restart"}, d.identity); err != nil {
		return d.wrapErr("restarting device", err, device.RemedyNone)
	}

	time.Sleep(restartSleep)

	for i := 0; i < restartPollAttempts; i++ {
		if d.IsResponsive() {
			return nil
		}
		time.Sleep(restartPollInterval)
	}
	return d.wrapErr("restart", fmt.Errorf("device did not become responsive after restart"), device.RemedyNone)
}

// TakeScreenshot shells `idevicescreenshot`, auto-mounting the developer
// image when the first line of its stdout begins with "Could not start" (the
// same algorithm RunApplication uses), and transcodes the TIFF output (pre-iOS 9) to
// PNG; iOS 9+ already yields PNG and is returned unchanged.
func (d *Device) TakeScreenshot() ([]byte, error) {
	var data []byte
	op := func() error {
		res, err := runIdeviceCommand(d.udid, "idevicescreenshot", []string{"-"}, d.identity)
		if err != nil {
			if needsDeveloperImage(firstLine(outputOf(err))) {
				return &needsImageMount{cause: err}
			}
			return err
		}
		data = res.Stdout
		return nil
	}

	if err := d.runWithImageMountRetry(op); err != nil {
		return nil, d.wrapErr("taking screenshot", err, device.RemedyNone)
	}

	if isPNG(data) {
		return data, nil
	}
	png, err := transcodeTIFFtoPNG(data)
	if err != nil {
		return nil, d.wrapErr("transcoding screenshot", err, device.RemedyNone)
	}
	return png, nil
}

func isPNG(b []byte) bool {
	return len(b) >= 8 && bytes.Equal(b[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
}

func transcodeTIFFtoPNG(data []byte) ([]byte, error) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("realdevice: decoding TIFF screenshot: %w", err)
	}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("realdevice: encoding PNG screenshot: %w", err)
	}
	return out.Bytes(), nil
}

// needsImageMount is the unchecked-to-the-outside signal used internally to
// drive the auto-mount retry; runWithImageMountRetry never lets it escape.
type needsImageMount struct{ cause error }

func (e *needsImageMount) Error() string { return e.cause.Error() }
func (e *needsImageMount) Unwrap() error { return e.cause }

func needsDeveloperImage(firstOutputLine string) bool {
	return len(firstOutputLine) >= len("Could not start") && firstOutputLine[:len("Could not start")] == "Could not start"
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

func outputOf(err error) string {
	var f *command.Failure
	if isCommandFailure(err, &f) {
		return f.Result.StdoutString()
	}
	return ""
}

const (
	imageMountAttempts = 10
	imageMountDelay    = 3 * time.Second
)

// runWithImageMountRetry retries op up to imageMountAttempts times with a
// 3s delay, mounting the developer image via d.images whenever op signals
// needsImageMount.
func (d *Device) runWithImageMountRetry(op func() error) error {
	var lastErr error
	for attempt := 0; attempt < imageMountAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		mountErr, ok := err.(*needsImageMount)
		if !ok {
			return err
		}
		lastErr = mountErr.cause
		if d.images == nil {
			return lastErr
		}
		version, verr := d.Version()
		if verr != nil {
			return verr
		}
		imagePath, sigPath, merr := d.images.ImagePaths(version.ProductVersion)
		if merr != nil {
			return merr
		}
		if merr := mountDeveloperImage(d.udid, imagePath, sigPath, d.identity); merr != nil {
			return merr
		}
		time.Sleep(imageMountDelay)
	}
	return lastErr
}

func mountDeveloperImage(udid, imagePath, signaturePath string, identity *PairingIdentity) error {
	_, err := runIdeviceCommand(udid, "ideviceimagemounter", []string{imagePath, signaturePath}, identity)
	return err
}

const webInspectorProxyDialAttempts = 15
const webInspectorProxyDialInterval = 1 * time.Second

// OpenWebInspectorSocket starts idevicewebinspectorproxy bound to an
// ephemeral local port (picked by briefly binding a listener, then closing
// it before the proxy claims it) and connects a TCP client to it, retrying
// up to 15 times at 1s. Closing the returned socket also kills the proxy.
func (d *Device) OpenWebInspectorSocket(ctx context.Context) (io.ReadWriteCloser, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, d.wrapErr("allocating web inspector port", err, device.RemedyNone)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	proxyCmd := command.New("idevicewebinspectorproxy", "-u", d.udid, fmt.Sprintf("%d", port))
	proxy, err := proxyCmd.Start()
	if err != nil {
		return nil, d.wrapErr("starting web inspector proxy", err, device.RemedyNone)
	}

	var sock net.Conn
	for i := 0; i < webInspectorProxyDialAttempts; i++ {
		sock, err = net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			break
		}
		time.Sleep(webInspectorProxyDialInterval)
	}
	if sock == nil {
		proxy.Kill()
		return nil, d.wrapErr("connecting to web inspector proxy", err, device.RemedyNone)
	}
	return &proxiedSocket{Conn: sock, proxy: proxy}, nil
}

// proxiedSocket closes both the TCP connection and the backing proxy
// process when Close is called, so callers don't leak the subprocess.
type proxiedSocket struct {
	net.Conn
	proxy *command.Process
}

func (s *proxiedSocket) Close() error {
	err := s.Conn.Close()
	s.proxy.Kill()
	return err
}
