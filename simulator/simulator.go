// Package simulator implements the Device contract over the iOS
// Simulator by shelling out to `xcrun simctl`, following the same
// Command/Process plumbing used by the realdevice driver.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"howett.net/plist"

	"github.com/go-drift/iosctl/cache"
	"github.com/go-drift/iosctl/command"
	"github.com/go-drift/iosctl/device"
)

var _ device.SimulatorDevice = (*Simulator)(nil)

// Simulator drives one simulator device via simctl.
type Simulator struct {
	udid       string
	deviceSet  string // "" means the default device set
	deviceType string // deviceTypeIdentifier, used for Model resolution

	model *cache.Lazy[device.Model]

	loggerActive atomic.Bool
}

// New returns a Simulator for udid in the default device set.
func New(udid, deviceType string) *Simulator {
	return newWithSet(udid, deviceType, "")
}

// NewInDeviceSet returns a Simulator for udid inside a custom device set,
// letting automated runs keep an isolated simulator pool.
func NewInDeviceSet(udid, deviceType, deviceSetPath string) *Simulator {
	return newWithSet(udid, deviceType, deviceSetPath)
}

func newWithSet(udid, deviceType, deviceSet string) *Simulator {
	s := &Simulator{udid: udid, deviceType: deviceType, deviceSet: deviceSet}
	s.model = cache.NewLazy(s.fetchModel)
	return s
}

func (s *Simulator) simctl(args ...string) command.Command {
	full := args
	if s.deviceSet != "" {
		full = append([]string{"--set", s.deviceSet}, args...)
	}
	return command.New("xcrun", append([]string{"simctl"}, full...)...)
}

type simctlDevice struct {
	Name                 string `json:"name"`
	UDID                 string `json:"udid"`
	State                string `json:"state"`
	DeviceTypeIdentifier string `json:"deviceTypeIdentifier"`
}

type simctlListResult struct {
	Devices map[string][]simctlDevice `json:"devices"`
}

// List enumerates every available simulator in the default device set,
// suitable as the lister function for device.Host[*Simulator].
func List() ([]*Simulator, error) {
	return listInSet("")
}

// ListInDeviceSet enumerates simulators inside a custom device set.
func ListInDeviceSet(deviceSetPath string) ([]*Simulator, error) {
	return listInSet(deviceSetPath)
}

func listInSet(deviceSet string) ([]*Simulator, error) {
	args := []string{"simctl"}
	if deviceSet != "" {
		args = append(args, "--set", deviceSet)
	}
	args = append(args, "list", "devices", "available", "--json")
	res, err := command.New("xcrun", args...).Execute(context.Background())
	if err != nil {
		return nil, fmt.Errorf("simulator: listing devices: %w", err)
	}
	var result simctlListResult
	if err := json.Unmarshal(res.Stdout, &result); err != nil {
		return nil, fmt.Errorf("simulator: parsing simctl output: %w", err)
	}
	var out []*Simulator
	for _, devices := range result.Devices {
		for _, d := range devices {
			// Simulator UDIDs are standard UUIDs;
			// simctl's own JSON has occasionally emitted malformed rows for
			// devices belonging to an uninstalled runtime, so validate
			// before trusting the identifier as an equality key.
			if _, err := uuid.Parse(d.UDID); err != nil {
				slog.Warn("simulator: skipping device with non-UUID udid", "udid", d.UDID, "error", err)
				continue
			}
			out = append(out, newWithSet(d.UDID, d.DeviceTypeIdentifier, deviceSet))
		}
	}
	return out, nil
}

func (s *Simulator) UDID() string { return s.udid }

func (s *Simulator) state() (string, error) {
	args := []string{"list", "devices", "--json"}
	res, err := s.simctl(args...).Execute(context.Background())
	if err != nil {
		return "", fmt.Errorf("simulator: querying state: %w", err)
	}
	var result simctlListResult
	if err := json.Unmarshal(res.Stdout, &result); err != nil {
		return "", fmt.Errorf("simulator: parsing simctl output: %w", err)
	}
	for _, devices := range result.Devices {
		for _, d := range devices {
			if d.UDID == s.udid {
				return d.State, nil
			}
		}
	}
	return "", fmt.Errorf("simulator: %s not found", s.udid)
}

// IsResponsive reports whether the simulator can currently produce a
// screenshot — the same "booted AND can screenshot" test Startup waits for.
func (s *Simulator) IsResponsive() bool {
	state, err := s.state()
	if err != nil || state != "Booted" {
		return false
	}
	return s.canEnumerateIOSurface()
}

func (s *Simulator) canEnumerateIOSurface() bool {
	res, err := s.simctl("io", s.udid, "enumerate").Execute(context.Background())
	if err != nil {
		return false
	}
	return strings.Contains(res.StdoutString(), "IOSurface port")
}

// IsRestarting is always false for simulators: there is no restart
// operation distinct from shutdown+boot, and neither blocks other calls.
func (s *Simulator) IsRestarting() bool { return false }

var runtimeVersionPattern = regexp.MustCompile(`iOS-(\d+)-(\d+)`)

// deviceTypeProfilesRoot holds one .simdevicetype directory per device
// type, each carrying a Contents/Resources/profile.plist; a var so tests
// can point it at a fixture tree.
var deviceTypeProfilesRoot = "/Library/Developer/CoreSimulator/Profiles/DeviceTypes"

var nonWordPattern = regexp.MustCompile(`\W+`)

// normalizeDeviceType replaces every non-word run with a hyphen and trims
// leading and trailing hyphens, the form device-type directory names and
// identifiers are compared in.
func normalizeDeviceType(s string) string {
	return strings.Trim(nonWordPattern.ReplaceAllString(s, "-"), "-")
}

// deviceTypeProfile is the subset of a device type's profile.plist we read.
type deviceTypeProfile struct {
	ModelIdentifier string   `plist:"modelIdentifier"`
	SupportedArchs  []string `plist:"supportedArchs"`
}

// findDeviceTypeProfile locates the .simdevicetype directory under root
// whose normalised name matches deviceType (either exactly or as the final
// component of a reverse-DNS identifier) and parses its profile.plist.
func findDeviceTypeProfile(root, deviceType string) (deviceTypeProfile, bool) {
	want := normalizeDeviceType(deviceType)
	entries, err := os.ReadDir(root)
	if err != nil {
		return deviceTypeProfile{}, false
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), ".simdevicetype") {
			continue
		}
		name := normalizeDeviceType(strings.TrimSuffix(e.Name(), ".simdevicetype"))
		if want != name && !strings.HasSuffix(want, "-"+name) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, e.Name(), "Contents", "Resources", "profile.plist"))
		if err != nil {
			return deviceTypeProfile{}, false
		}
		var p deviceTypeProfile
		if _, err := plist.Unmarshal(data, &p); err != nil {
			return deviceTypeProfile{}, false
		}
		return p, true
	}
	return deviceTypeProfile{}, false
}

func (s *Simulator) fetchModel() (device.Model, error) {
	identifier := s.deviceType
	var supported []string
	if p, ok := findDeviceTypeProfile(deviceTypeProfilesRoot, s.deviceType); ok {
		identifier = p.ModelIdentifier
		supported = p.SupportedArchs
	}
	arch := device.ArchX86_64
	if !supportsX86_64(supported) {
		arch = device.ArchI386
	}
	return device.NewModel(identifier, arch), nil
}

func supportsX86_64(archs []string) bool {
	if len(archs) == 0 {
		return archSupportsX86_64()
	}
	for _, a := range archs {
		if a == string(device.ArchX86_64) {
			return true
		}
	}
	return false
}

// archSupportsX86_64 is the host-architecture fallback used when no device
// type profile declares supported architectures; a seam so tests can force
// the i386 path without mocking exec.
var archSupportsX86_64 = func() bool { return true }

func (s *Simulator) Model() (device.Model, error) { return s.model.Get() }

func (s *Simulator) Version() (device.Version, error) {
	args := []string{"list", "devices", "available", "--json"}
	res, err := s.simctl(args...).Execute(context.Background())
	if err != nil {
		return device.Version{}, fmt.Errorf("simulator: querying version: %w", err)
	}
	var result simctlListResult
	if err := json.Unmarshal(res.Stdout, &result); err != nil {
		return device.Version{}, fmt.Errorf("simulator: parsing simctl output: %w", err)
	}
	for runtime, devices := range result.Devices {
		for _, d := range devices {
			if d.UDID != s.udid {
				continue
			}
			m := runtimeVersionPattern.FindStringSubmatch(runtime)
			if m == nil {
				return device.Version{}, fmt.Errorf("simulator: runtime %q is not an iOS runtime", runtime)
			}
			return device.Version{ProductVersion: m[1] + "." + m[2]}, nil
		}
	}
	return device.Version{}, fmt.Errorf("simulator: %s not found", s.udid)
}

const (
	bootPollInterval = 100 * time.Millisecond
	bootPollTimeout  = 60 * time.Second
)

// alreadyInStateExit is simctl's exit code for booting an already-booted
// or shutting down an already-shutdown device; both are documented no-ops.
const alreadyInStateExit = 163

func isAlreadyInState(err error) bool {
	var f *command.Failure
	if !errors.As(err, &f) {
		return false
	}
	return f.Result.ExitCode == alreadyInStateExit
}

// Startup boots the simulator and waits until it is both responsive and
// screenshot-capable, polling every 100ms.
func (s *Simulator) Startup() error {
	if _, err := s.simctl("boot", s.udid).Execute(context.Background()); err != nil && !isAlreadyInState(err) {
		return s.wrapErr("booting simulator", err)
	}
	deadline := time.Now().Add(bootPollTimeout)
	for time.Now().Before(deadline) {
		if s.IsResponsive() {
			return nil
		}
		time.Sleep(bootPollInterval)
	}
	return s.wrapErr("booting simulator", fmt.Errorf("simulator did not become responsive within %s", bootPollTimeout))
}

func (s *Simulator) Shutdown() error {
	if _, err := s.simctl("shutdown", s.udid).Execute(context.Background()); err != nil && !isAlreadyInState(err) {
		return s.wrapErr("shutting down simulator", err)
	}
	return nil
}

func (s *Simulator) Erase() error {
	if _, err := s.simctl("erase", s.udid).Execute(context.Background()); err != nil {
		return s.wrapErr("erasing simulator", err)
	}
	return nil
}

func (s *Simulator) Restart() error {
	if err := s.Shutdown(); err != nil {
		return err
	}
	return s.Startup()
}

func (s *Simulator) wrapErr(msg string, cause error) *device.Error {
	return &device.Error{UDID: s.udid, Msg: msg, Cause: cause}
}
