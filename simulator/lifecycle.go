package simulator

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-drift/iosctl/command"
	"github.com/go-drift/iosctl/device"
)

// TakeScreenshot shells `simctl io <udid> screenshot -`, writing PNG bytes
// to stdout; the simulator only ever produces PNG, so no transcoding step
// is needed (unlike the real-device driver).
func (s *Simulator) TakeScreenshot() ([]byte, error) {
	res, err := s.simctl("io", s.udid, "screenshot", "-").Execute(context.Background())
	if err != nil {
		return nil, s.wrapErr("taking screenshot", err)
	}
	return res.Stdout, nil
}

type simLoggerResource struct {
	proc      *command.Process
	simulator *Simulator
	released  atomic.Bool
}

func (r *simLoggerResource) Release() error {
	if !r.released.CompareAndSwap(false, true) {
		return &device.IllegalStateError{Msg: "system logger already released"}
	}
	err := r.proc.Kill()
	r.simulator.loggerActive.Store(false)
	return err
}

// StartSystemLogger streams the simulator's unified log via
// `simctl spawn <udid> log stream`, redirecting to logPath. At most one
// logger may run per device at a time.
func (s *Simulator) StartSystemLogger(logPath string) (device.Resource, error) {
	if !s.loggerActive.CompareAndSwap(false, true) {
		return nil, &device.IllegalStateError{Msg: "system logger already running"}
	}
	cmd := s.simctl("spawn", s.udid, "log", "stream", "--style", "compact").
		WithStdout(command.OutputToFile(logPath))
	proc, err := cmd.Start()
	if err != nil {
		s.loggerActive.Store(false)
		return nil, s.wrapErr("starting system logger", err)
	}
	return &simLoggerResource{proc: proc, simulator: s}, nil
}

// PullCrashLogs runs `simctl spawn <udid> log collect --output dir`, which
// writes the simulator's log archive into dir; it does not copy crash
// report files out of the host's diagnostic reports directory.
func (s *Simulator) PullCrashLogs(dir string) error {
	if _, err := s.simctl("spawn", s.udid, "log", "collect", "--output", dir).Execute(context.Background()); err != nil {
		return s.wrapErr("pulling crash logs", err)
	}
	return nil
}

// ClearCrashLogs has no dedicated simctl subcommand; simulator crash log
// retention is managed by the host OS, not this driver.
func (s *Simulator) ClearCrashLogs() error {
	return &device.UnsupportedOperationError{Msg: "simulator driver does not manage crash log retention"}
}

// webinspectordAddr is where a booted simulator's webinspectord listens on
// the host; no proxy process is needed, unlike real devices.
const webinspectordAddr = "[::1]:27753"

// OpenWebInspectorSocket connects directly to the simulator's
// webinspectord. The returned connection carries the same length-prefixed
// binary-plist framing the real-device proxy path does.
func (s *Simulator) OpenWebInspectorSocket(ctx context.Context) (io.ReadWriteCloser, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", webinspectordAddr)
	if err != nil {
		return nil, s.wrapErr("connecting to webinspectord", err)
	}
	return conn, nil
}

// ProcessMetrics reports live memory usage for a running app. It is not
// part of the Device contract; callers that want it use the Simulator type
// directly.
type ProcessMetrics struct {
	ResidentBytes float64
}

// Memory samples bundleID's resident memory via
// `simctl spawn <udid> memory_usage -b <bundleID>`.
func (s *Simulator) Memory(bundleID device.AppBundleId) (ProcessMetrics, error) {
	res, err := s.simctl("spawn", s.udid, "memory_usage", "-b", bundleID.String()).Execute(context.Background())
	if err != nil {
		return ProcessMetrics{}, s.wrapErr("sampling memory usage", err)
	}
	mem, err := parseMemoryUsageOutput(res.Stdout)
	if err != nil {
		return ProcessMetrics{}, s.wrapErr("parsing memory usage output", err)
	}
	return ProcessMetrics{ResidentBytes: mem}, nil
}

func parseMemoryUsageOutput(output []byte) (float64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("no numeric memory_usage value found")
}
