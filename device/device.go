package device

import (
	"context"
	"io"
	"time"
)

// AppProcess is a future-like handle over a running application, returned by
// Device.RunApplication.
type AppProcess interface {
	// Kill terminates the running app without blocking.
	Kill() error
	// Await blocks until the app exits (or ctx is cancelled) and returns
	// its captured output.
	Await(ctx context.Context) (string, error)
	// AwaitTimeout behaves like Await but fails if timeout elapses first.
	AwaitTimeout(ctx context.Context, timeout time.Duration) (string, error)
	// OutputReader returns a streaming view of the same output Await will
	// eventually return in full.
	OutputReader() (io.Reader, error)
}

// Resource is a scoped, device-owned acquisition (e.g. a running system
// logger). Release is guaranteed to be safe to call on every exit path; a
// second call to Release is a programming error.
type Resource interface {
	Release() error
}

// Device is the contract every iOS device implementation — real or
// simulated — satisfies.
type Device interface {
	UDID() string
	IsResponsive() bool
	IsRestarting() bool

	Model() (Model, error)
	Version() (Version, error)

	ListApplications() ([]AppBundleId, error)
	IsApplicationInstalled(bundleID AppBundleId) (bool, error)
	InstallApplication(pathToAppOrIPA string) error
	UninstallApplication(bundleID AppBundleId) error
	RunApplication(bundleID AppBundleId, args ...string) (AppProcess, error)

	StartSystemLogger(logPath string) (Resource, error)
	PullCrashLogs(dir string) error
	ClearCrashLogs() error

	Restart() error
	TakeScreenshot() ([]byte, error)

	OpenWebInspectorSocket(ctx context.Context) (io.ReadWriteCloser, error)
}

// ConfigurationProfile is a minimal descriptor of an installed
// configuration profile, as reported by `cfgutil list-profiles`-equivalent
// tooling.
type ConfigurationProfile struct {
	Identifier  string
	DisplayName string
}

// RealDevice extends Device with operations that only make sense for
// physically tethered, possibly-supervised hardware.
type RealDevice interface {
	Device

	InstallProfile(path string) error
	RemoveProfile(identifier string) error
	ListConfigurationProfiles() ([]ConfigurationProfile, error)
	SyncToSystemTime() error
	BatteryLevel() (int, error)
}

// SimulatorDevice extends Device with simulator lifecycle operations.
type SimulatorDevice interface {
	Device

	Startup() error
	Shutdown() error
	Erase() error
}

// Equal reports whether a and b refer to the same device. Device equality
// is defined purely by UDID.
func Equal(a, b Device) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.UDID() == b.UDID()
}
