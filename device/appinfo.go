package device

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"howett.net/plist"
)

// AppInfo is the bundle metadata read from an .app directory's Info.plist
// or from Payload/*.app/Info.plist inside an .ipa archive.
type AppInfo struct {
	BundleID AppBundleId
}

type infoPlist struct {
	CFBundleIdentifier string `plist:"CFBundleIdentifier"`
}

// ParseAppInfo reads the Info.plist at path (an .app directory) or inside an
// .ipa archive at path, returning the parsed AppInfo. It dispatches purely
// on the path's extension; plist XML/binary parsing itself is treated as a
// black box via howett.net/plist.
func ParseAppInfo(path string) (AppInfo, error) {
	if strings.EqualFold(filepath.Ext(path), ".ipa") {
		return parseAppInfoFromIPA(path)
	}
	return parseAppInfoFromAppDir(path)
}

func parseAppInfoFromAppDir(appDir string) (AppInfo, error) {
	data, err := os.ReadFile(filepath.Join(appDir, "Info.plist"))
	if err != nil {
		return AppInfo{}, fmt.Errorf("reading Info.plist in %s: %w", appDir, err)
	}
	return parseInfoPlistBytes(data)
}

func parseAppInfoFromIPA(ipaPath string) (AppInfo, error) {
	r, err := zip.OpenReader(ipaPath)
	if err != nil {
		return AppInfo{}, fmt.Errorf("opening ipa %s: %w", ipaPath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		// Payload/<Name>.app/Info.plist, exactly one level under Payload/*.app
		if !strings.HasPrefix(f.Name, "Payload/") {
			continue
		}
		rest := strings.TrimPrefix(f.Name, "Payload/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || !strings.HasSuffix(parts[0], ".app") || parts[1] != "Info.plist" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return AppInfo{}, fmt.Errorf("opening %s in ipa: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return AppInfo{}, fmt.Errorf("reading %s in ipa: %w", f.Name, err)
		}
		return parseInfoPlistBytes(data)
	}
	return AppInfo{}, fmt.Errorf("no Payload/*.app/Info.plist found in %s", ipaPath)
}

func parseInfoPlistBytes(data []byte) (AppInfo, error) {
	var info infoPlist
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return AppInfo{}, fmt.Errorf("parsing Info.plist: %w", err)
	}
	bundleID, err := NewAppBundleId(info.CFBundleIdentifier)
	if err != nil {
		return AppInfo{}, fmt.Errorf("Info.plist CFBundleIdentifier: %w", err)
	}
	return AppInfo{BundleID: bundleID}, nil
}
