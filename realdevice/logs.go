package realdevice

import (
	"context"

	"github.com/go-drift/iosctl/command"
	"github.com/go-drift/iosctl/device"
)

// systemLoggerResource wraps a running idevicesyslog process. Releasing it
// kills the process and frees the device's logger slot; a second Release is
// a programming error.
type systemLoggerResource struct {
	proc     *command.Process
	device   *Device
	released atomicBool
}

func (r *systemLoggerResource) Release() error {
	if !r.released.CompareAndSwap(false, true) {
		return &device.IllegalStateError{Msg: "system logger already released"}
	}
	err := r.proc.Kill()
	r.device.loggerActive.Store(false)
	return err
}

// StartSystemLogger starts `idevicesyslog`, redirecting its stdout to
// logPath, and returns a Resource whose Release stops the stream. At most
// one logger may run per device at a time; a second concurrent start is a
// programming error.
func (d *Device) StartSystemLogger(logPath string) (device.Resource, error) {
	if !d.loggerActive.CompareAndSwap(false, true) {
		return nil, &device.IllegalStateError{Msg: "system logger already running"}
	}
	cmd := command.New("idevicesyslog", "-u", d.udid).
		WithStdout(command.OutputToFile(logPath))
	proc, err := cmd.Start()
	if err != nil {
		d.loggerActive.Store(false)
		return nil, d.wrapErr("starting system logger", err, device.RemedyNone)
	}
	return &systemLoggerResource{proc: proc, device: d}, nil
}

// PullCrashLogs copies crash reports off the device into dir via
// `idevicecrashreport -u <udid> <dir>`.
func (d *Device) PullCrashLogs(dir string) error {
	cmd := command.New("idevicecrashreport", "-u", d.udid, dir)
	if _, err := cmd.Execute(context.Background()); err != nil {
		return d.wrapErr("pulling crash logs", err, device.RemedyNone)
	}
	return nil
}

// ClearCrashLogs removes on-device crash reports via
// `idevicecrashreport -u <udid> --remove -k`.
func (d *Device) ClearCrashLogs() error {
	cmd := command.New("idevicecrashreport", "-u", d.udid, "--remove", "-k")
	if _, err := cmd.Execute(context.Background()); err != nil {
		return d.wrapErr("clearing crash logs", err, device.RemedyNone)
	}
	return nil
}
