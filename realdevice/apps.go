package realdevice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"howett.net/plist"

	"github.com/go-drift/iosctl/command"
	"github.com/go-drift/iosctl/device"
	"github.com/go-drift/iosctl/retry"
)

// ListApplications shells `ideviceinstaller -l -o xml` and parses the
// resulting plist array of app dictionaries into bundle IDs.
func (d *Device) ListApplications() ([]device.AppBundleId, error) {
	res, err := runIdeviceCommand(d.udid, "ideviceinstaller", []string{"-l", "-o", "xml"}, d.identity)
	if err != nil {
		return nil, d.wrapErr("listing applications", err, device.RemedyNone)
	}
	var apps []struct {
		CFBundleIdentifier string `plist:"CFBundleIdentifier"`
	}
	if _, err := plist.Unmarshal(res.Stdout, &apps); err != nil {
		return nil, d.wrapErr("parsing application list", err, device.RemedyNone)
	}
	out := make([]device.AppBundleId, 0, len(apps))
	for _, a := range apps {
		id, err := device.NewAppBundleId(a.CFBundleIdentifier)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// IsApplicationInstalled reports whether bundleID currently appears in the
// installed-application list.
func (d *Device) IsApplicationInstalled(bundleID device.AppBundleId) (bool, error) {
	apps, err := d.ListApplications()
	if err != nil {
		return false, err
	}
	for _, a := range apps {
		if a == bundleID {
			return true, nil
		}
	}
	return false, nil
}

const (
	postInstallPollAttempts = 5
	postInstallPollDelay    = 2 * time.Second
)

// InstallApplication installs the .app or .ipa at pathToAppOrIPA, retrying
// once on an entitlement mismatch, then polls isApplicationInstalled to
// defend against the device's internal app list lagging the install
// command.
func (d *Device) InstallApplication(pathToAppOrIPA string) error {
	info, err := device.ParseAppInfo(pathToAppOrIPA)
	if err != nil {
		return d.wrapErr("reading app bundle", err, device.RemedyNone)
	}

	install := func() error {
		_, err := runIdeviceCommand(d.udid, "ideviceinstaller", []string{"-i", pathToAppOrIPA}, d.identity)
		if err == nil {
			return nil
		}
		var failure *command.Failure
		if isCommandFailure(err, &failure) && strings.Contains(failure.Result.StderrString(), "MismatchedApplicationIdentifierEntitlement") {
			return &entitlementMismatch{cause: err}
		}
		return err
	}

	r := retry.New().
		WithMaxAttempts(2).
		WithExceptionHandler(func(err error) (retry.Action, error) {
			if _, ok := err.(*entitlementMismatch); !ok {
				return retry.ActionFail, err
			}
			if uerr := d.UninstallApplication(info.BundleID); uerr != nil {
				return retry.ActionFail, uerr
			}
			return retry.ActionRetry, nil
		})

	if err := r.Run(context.Background(), install); err != nil {
		return d.wrapErr("installing application", err, device.RemedyNone)
	}

	for i := 0; i < postInstallPollAttempts; i++ {
		installed, err := d.IsApplicationInstalled(info.BundleID)
		if err == nil && installed {
			return nil
		}
		time.Sleep(postInstallPollDelay)
	}
	return d.wrapErr("verifying install", fmt.Errorf("%s not in application list after install", info.BundleID), device.RemedyNone)
}

// entitlementMismatch is the internal signal used to drive the install-retry
// state machine. It is an ordinary (checked) error to the retry harness; when
// both attempts hit the mismatch it stays in the returned error's cause chain.
type entitlementMismatch struct{ cause error }

func (e *entitlementMismatch) Error() string { return e.cause.Error() }
func (e *entitlementMismatch) Unwrap() error { return e.cause }

func (d *Device) UninstallApplication(bundleID device.AppBundleId) error {
	_, err := runIdeviceCommand(d.udid, "ideviceinstaller", []string{"-U", bundleID.String()}, d.identity)
	if err != nil {
		return d.wrapErr("uninstalling application", err, device.RemedyNone)
	}
	return nil
}

// remedyTable maps the last newline-delimited line of a failed
// idevice-app-runner's stderr to a recovery Remedy.
var remedyTable = []struct {
	contains string
	remedy   device.Remedy
}{
	{"$E4294967295#", device.RemedyReinstallApp},
	{"failed to get the task for process", device.RemedyReinstallApp},
	{"No such file or directory", device.RemedyReinstallApp},
	{"$ENotFound#", device.RemedyReinstallApp},
	{"Unknown APPID", device.RemedyReinstallApp},
	{"timed out trying to launch app", device.RemedyRestartDevice},
}

func classifyLaunchFailure(stderr string) device.Remedy {
	lines := strings.Split(strings.TrimRight(stderr, "\n"), "\n")
	last := ""
	if len(lines) > 0 {
		last = lines[len(lines)-1]
	}
	for _, rule := range remedyTable {
		if strings.Contains(last, rule.contains) {
			return rule.remedy
		}
	}
	return device.RemedyNone
}

func (d *Device) wrapErr(msg string, cause error, remedy device.Remedy) *device.Error {
	return &device.Error{UDID: d.udid, Msg: msg, Cause: cause, Remedy: remedy}
}
