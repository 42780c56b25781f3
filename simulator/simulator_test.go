package simulator

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"howett.net/plist"

	"github.com/go-drift/iosctl/command"
	"github.com/go-drift/iosctl/device"
)

func TestParseListAppsOutput_ExtractsBundleIDs(t *testing.T) {
	data, err := plist.Marshal(map[string]map[string]string{
		"com.apple.mobilesafari": {"CFBundleIdentifier": "com.apple.mobilesafari"},
		"fake.google.OpenUrl":    {"CFBundleIdentifier": "fake.google.OpenUrl"},
	}, plist.XMLFormat)
	require.NoError(t, err)

	ids, err := parseListAppsOutput(data)
	require.NoError(t, err)
	require.Len(t, ids, 2)
}

func TestParseMemoryUsageOutput_ExtractsLeadingNumber(t *testing.T) {
	v, err := parseMemoryUsageOutput([]byte("12345678 bytes resident\n"))
	require.NoError(t, err)
	require.Equal(t, float64(12345678), v)
}

func TestParseMemoryUsageOutput_ErrorsWithoutNumber(t *testing.T) {
	_, err := parseMemoryUsageOutput([]byte("no numbers here\n"))
	require.Error(t, err)
}

func TestUnzipIPA_LocatesPayloadApp(t *testing.T) {
	dir := t.TempDir()
	ipaPath := filepath.Join(dir, "Runner.ipa")
	f, err := os.Create(ipaPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("Payload/Runner.app/Info.plist")
	require.NoError(t, err)
	_, err = w.Write([]byte("<plist></plist>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	appPath, cleanup, err := unzipIPA(ipaPath)
	require.NoError(t, err)
	defer cleanup()
	require.Equal(t, "Runner.app", filepath.Base(appPath))
	_, err = os.Stat(filepath.Join(appPath, "Info.plist"))
	require.NoError(t, err)
}

func TestFetchModel_UsesI386FallbackWhenX86_64Unsupported(t *testing.T) {
	prevRoot := deviceTypeProfilesRoot
	deviceTypeProfilesRoot = t.TempDir()
	prev := archSupportsX86_64
	archSupportsX86_64 = func() bool { return false }
	defer func() {
		archSupportsX86_64 = prev
		deviceTypeProfilesRoot = prevRoot
	}()

	s := New("fake-udid", "com.apple.CoreSimulator.SimDeviceType.iPhone-15")
	m, err := s.fetchModel()
	require.NoError(t, err)
	require.Equal(t, device.ArchI386, m.Architecture)
}

func TestNormalizeDeviceType(t *testing.T) {
	require.Equal(t, "iPhone-15", normalizeDeviceType("iPhone 15"))
	require.Equal(t, "iPad-Pro-12-9-inch", normalizeDeviceType("iPad Pro (12.9-inch)"))
}

func writeDeviceTypeProfile(t *testing.T, root, name string, profile map[string]any) {
	t.Helper()
	dir := filepath.Join(root, name+".simdevicetype", "Contents", "Resources")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := plist.Marshal(profile, plist.XMLFormat)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile.plist"), data, 0o644))
}

func TestFetchModel_ResolvesProfilePlist(t *testing.T) {
	root := t.TempDir()
	writeDeviceTypeProfile(t, root, "iPhone 15", map[string]any{
		"modelIdentifier": "iPhone15,4",
		"supportedArchs":  []string{"arm64", "x86_64"},
	})
	prevRoot := deviceTypeProfilesRoot
	deviceTypeProfilesRoot = root
	defer func() { deviceTypeProfilesRoot = prevRoot }()

	s := New("fake-udid", "com.apple.CoreSimulator.SimDeviceType.iPhone-15")
	m, err := s.fetchModel()
	require.NoError(t, err)
	require.Equal(t, "iPhone15,4", m.Identifier)
	require.Equal(t, "iPhone 15", m.ProductName)
	require.Equal(t, device.ArchX86_64, m.Architecture)
}

func TestFetchModel_I386WhenProfileOmitsX86_64(t *testing.T) {
	root := t.TempDir()
	writeDeviceTypeProfile(t, root, "iPhone 4s", map[string]any{
		"modelIdentifier": "iPhone4,1",
		"supportedArchs":  []string{"i386"},
	})
	prevRoot := deviceTypeProfilesRoot
	deviceTypeProfilesRoot = root
	defer func() { deviceTypeProfilesRoot = prevRoot }()

	s := New("fake-udid", "com.apple.CoreSimulator.SimDeviceType.iPhone-4s")
	m, err := s.fetchModel()
	require.NoError(t, err)
	require.Equal(t, device.ArchI386, m.Architecture)
}

func writeAppBundle(t *testing.T, dir, name, bundleID string) {
	t.Helper()
	appDir := filepath.Join(dir, name+".app")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	data, err := plist.Marshal(map[string]string{"CFBundleIdentifier": bundleID}, plist.XMLFormat)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "Info.plist"), data, 0o644))
}

func TestSystemAppsUnder_FiltersBundlesWithoutInfoPlist(t *testing.T) {
	root := t.TempDir()
	writeAppBundle(t, filepath.Join(root, "Applications"), "MobileSafari", "com.apple.mobilesafari")
	// A directory that looks like an app but has no Info.plist is skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Applications", "Broken.app"), 0o755))

	apps := systemAppsUnder(root)
	require.Len(t, apps, 1)
	require.Equal(t, "com.apple.mobilesafari", apps[0].String())
}

func TestUserAppsUnder_ScansBundleContainers(t *testing.T) {
	root := t.TempDir()
	container := filepath.Join(root, "some-udid", "data", "Containers", "Bundle", "Application", "A1B2C3")
	writeAppBundle(t, container, "OpenUrl", "fake.google.OpenUrl")

	apps := userAppsUnder(root, "some-udid")
	require.Len(t, apps, 1)
	require.Equal(t, "fake.google.OpenUrl", apps[0].String())
}

func TestUserAppsUnder_MissingDeviceYieldsNothing(t *testing.T) {
	require.Empty(t, userAppsUnder(t.TempDir(), "no-such-udid"))
}

func TestStartSystemLogger_SecondStartIsIllegalState(t *testing.T) {
	s := New("fake-udid", "com.apple.CoreSimulator.SimDeviceType.iPhone-15")
	s.loggerActive.Store(true)
	_, err := s.StartSystemLogger(filepath.Join(t.TempDir(), "sys.log"))
	var ise *device.IllegalStateError
	require.ErrorAs(t, err, &ise)
}

func TestIsAlreadyInState(t *testing.T) {
	already := &command.Failure{Command: command.New("xcrun"), Result: &command.Result{ExitCode: 163}}
	require.True(t, isAlreadyInState(already))
	other := &command.Failure{Command: command.New("xcrun"), Result: &command.Result{ExitCode: 1}}
	require.False(t, isAlreadyInState(other))
	require.False(t, isAlreadyInState(nil))
}
