package simulator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"howett.net/plist"

	"github.com/go-drift/iosctl/device"
)

// parseListAppsOutput parses `simctl listapps`'s output: a plist dictionary
// keyed by bundle ID, each value itself a dictionary of app metadata.
func parseListAppsOutput(data []byte) ([]device.AppBundleId, error) {
	var apps map[string]simAppInfo
	if _, err := plist.Unmarshal(data, &apps); err != nil {
		return nil, fmt.Errorf("simulator: parsing listapps output: %w", err)
	}
	out := make([]device.AppBundleId, 0, len(apps))
	for key := range apps {
		id, err := device.NewAppBundleId(key)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// coreSimulatorDevicesRoot is where CoreSimulator keeps per-device data
// containers; a var so tests can point it at a fixture tree.
var coreSimulatorDevicesRoot = func() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Library", "Developer", "CoreSimulator", "Devices")
}

// runtimeRootCandidates lists where a runtime's system applications may
// live, in fallback order: the Xcode SDK first, then the CoreSimulator
// profile directory.
func runtimeRootCandidates(productVersion string) []string {
	return []string{
		fmt.Sprintf("/Applications/Xcode.app/Contents/Developer/Platforms/iPhoneSimulator.platform/Developer/SDKs/iPhoneSimulator%s.sdk", productVersion),
		fmt.Sprintf("/Library/Developer/CoreSimulator/Profiles/Runtimes/iOS %s.simruntime/Contents/Resources/RuntimeRoot", productVersion),
	}
}

// listApplicationsFromDisk enumerates installed apps the filesystem way:
// system apps under the runtime root combined with user apps under the
// device's bundle containers. Used when `simctl listapps` is unavailable
// (it only appeared in Xcode 11.4's simctl).
func (s *Simulator) listApplicationsFromDisk() ([]device.AppBundleId, error) {
	var out []device.AppBundleId
	version, err := s.Version()
	if err != nil {
		return nil, err
	}
	for _, root := range runtimeRootCandidates(version.ProductVersion) {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		out = append(out, systemAppsUnder(root)...)
		break
	}
	out = append(out, userAppsUnder(coreSimulatorDevicesRoot(), s.udid)...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// systemAppsUnder lists bundle IDs of every <runtimeRoot>/Applications/*.app
// that carries an Info.plist; entries without one are not app bundles and
// are skipped.
func systemAppsUnder(runtimeRoot string) []device.AppBundleId {
	return appsInDir(filepath.Join(runtimeRoot, "Applications"))
}

// userAppsUnder lists bundle IDs of user-installed apps under
// <devicesRoot>/<udid>/data/Containers/Bundle/Application/<uuid>/<name>.app.
func userAppsUnder(devicesRoot, udid string) []device.AppBundleId {
	if devicesRoot == "" {
		return nil
	}
	containers := filepath.Join(devicesRoot, udid, "data", "Containers", "Bundle", "Application")
	entries, err := os.ReadDir(containers)
	if err != nil {
		return nil
	}
	var out []device.AppBundleId
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		out = append(out, appsInDir(filepath.Join(containers, e.Name()))...)
	}
	return out
}

func appsInDir(dir string) []device.AppBundleId {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []device.AppBundleId
	for _, e := range entries {
		if !e.IsDir() || filepath.Ext(e.Name()) != ".app" {
			continue
		}
		info, err := device.ParseAppInfo(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, info.BundleID)
	}
	return out
}
