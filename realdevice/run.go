package realdevice

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-drift/iosctl/command"
	"github.com/go-drift/iosctl/device"
)

// appRunnerBinary is the name this module's own cmd/ios-app-runner is
// expected to be installed under; it wraps the apprunner package's
// GDB-remote-serial-protocol client the same way idevice-app-runner would.
const appRunnerBinary = "ios-app-runner"

const (
	wedgeCheckAttempts = 5
	wedgeCheckInterval = 1 * time.Second
)

// RunApplication launches bundleID via the ios-app-runner helper binary,
// auto-mounting the developer image on "Could not start" failures and
// treating an unresponsive debug server (no stderr within 5s) as wedged —
// restarting the device and retrying the launch once.
func (d *Device) RunApplication(bundleID device.AppBundleId, args ...string) (device.AppProcess, error) {
	argv := []string{"-u", d.udid, "-s", bundleID.String()}
	if len(args) > 0 {
		argv = append(append(argv, "--"), args...)
	}

	var proc *command.Process
	launch := func() error {
		cmd := command.New(appRunnerBinary, argv...)
		p, err := cmd.Start()
		if err != nil {
			return err
		}
		alive, firstErrLine := waitForStderr(p, wedgeCheckAttempts, wedgeCheckInterval)
		if !alive {
			p.Kill()
			return &wedgedLaunch{}
		}
		if needsDeveloperImage(firstErrLine) {
			p.Await(context.Background())
			return &needsImageMount{cause: fmt.Errorf("app-runner reported %q", firstErrLine)}
		}
		proc = p
		return nil
	}

	if err := d.runWithImageMountRetry(launch); err != nil {
		if _, wedged := err.(*wedgedLaunch); wedged {
			if rerr := d.Restart(); rerr != nil {
				return nil, rerr
			}
			if err2 := launch(); err2 != nil {
				return nil, d.wrapErr("launching application", err2, device.RemedyRestartDevice)
			}
		} else {
			return nil, d.wrapErr("launching application", err, device.RemedyNone)
		}
	}

	return &realAppProcess{proc: proc, device: d}, nil
}

type wedgedLaunch struct{}

func (e *wedgedLaunch) Error() string { return "apprunner: debug server appears wedged" }

// waitForStderr blocks up to attempts*interval for the first byte to arrive
// on proc's stderr, returning it decoded as the first line if any arrived.
func waitForStderr(proc *command.Process, attempts int, interval time.Duration) (alive bool, line string) {
	rd := proc.StderrReader()
	result := make(chan string, 1)
	go func() {
		buf := make([]byte, 4096)
		n, _ := rd.Read(buf)
		result <- firstLine(string(buf[:n]))
	}()
	select {
	case line := <-result:
		return true, line
	case <-time.After(time.Duration(attempts) * interval):
		return false, ""
	}
}

// realAppProcess adapts a running ios-app-runner subprocess to the
// device.AppProcess contract; its relayed app stdout is the subprocess's
// own stdout (ios-app-runner decodes $O packets onto its stdout exactly
// like idevice-app-runner does).
type realAppProcess struct {
	proc   *command.Process
	device *Device
}

func (p *realAppProcess) Kill() error { return p.proc.Kill() }

func (p *realAppProcess) Await(ctx context.Context) (string, error) {
	res, err := p.proc.Await(ctx)
	if err != nil {
		remedy := classifyLaunchFailure(res.StderrString())
		return res.StdoutString(), p.device.wrapErr("application exited abnormally", err, remedy)
	}
	return res.StdoutString(), nil
}

func (p *realAppProcess) AwaitTimeout(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := p.proc.AwaitTimeout(ctx, timeout)
	if err != nil {
		return "", p.device.wrapErr("application launch timed out", err, device.RemedyDismissDialog)
	}
	return res.StdoutString(), nil
}

func (p *realAppProcess) OutputReader() (io.Reader, error) {
	return p.proc.StdoutReader(), nil
}
