package realdevice

import (
	"context"
	"strconv"

	"howett.net/plist"

	"github.com/go-drift/iosctl/command"
	"github.com/go-drift/iosctl/device"
)

// InstallProfile installs a configuration profile via cfgutil.
func (d *Device) InstallProfile(path string) error {
	_, err := command.New("cfgutil", "-u", d.udid, "install-profile", path).Execute(context.Background())
	if err != nil {
		return d.wrapErr("installing profile", err, device.RemedyNone)
	}
	return nil
}

// RemoveProfile removes the configuration profile identified by identifier.
func (d *Device) RemoveProfile(identifier string) error {
	_, err := command.New("cfgutil", "-u", d.udid, "remove-profile", identifier).Execute(context.Background())
	if err != nil {
		return d.wrapErr("removing profile", err, device.RemedyNone)
	}
	return nil
}

// ListConfigurationProfiles lists installed configuration profiles via
// `cfgutil get-profile-list` (XML plist output).
func (d *Device) ListConfigurationProfiles() ([]device.ConfigurationProfile, error) {
	res, err := command.New("cfgutil", "-u", d.udid, "get-profile-list").Execute(context.Background())
	if err != nil {
		return nil, d.wrapErr("listing configuration profiles", err, device.RemedyNone)
	}
	var parsed []struct {
		Identifier  string `plist:"PayloadIdentifier"`
		DisplayName string `plist:"PayloadDisplayName"`
	}
	if _, err := plist.Unmarshal(res.Stdout, &parsed); err != nil {
		return nil, d.wrapErr("parsing configuration profile list", err, device.RemedyNone)
	}
	out := make([]device.ConfigurationProfile, 0, len(parsed))
	for _, p := range parsed {
		out = append(out, device.ConfigurationProfile{Identifier: p.Identifier, DisplayName: p.DisplayName})
	}
	return out, nil
}

// SyncToSystemTime sets the device clock to the host's current time via
// `idevicedate`.
func (d *Device) SyncToSystemTime() error {
	_, err := runIdeviceCommand(d.udid, "idevicedate", nil, d.identity)
	if err != nil {
		return d.wrapErr("syncing device time", err, device.RemedyNone)
	}
	return nil
}

// BatteryLevel reads the current battery charge percentage via
// `ideviceinfo -q com.apple.mobile.battery -k BatteryCurrentCapacity`.
func (d *Device) BatteryLevel() (int, error) {
	res, err := runIdeviceCommand(d.udid, "ideviceinfo", []string{"-q", "com.apple.mobile.battery", "-k", "BatteryCurrentCapacity"}, d.identity)
	if err != nil {
		return 0, d.wrapErr("reading battery level", err, device.RemedyNone)
	}
	level, err := strconv.Atoi(trimNewline(res.StdoutString()))
	if err != nil {
		return 0, d.wrapErr("parsing battery level", err, device.RemedyNone)
	}
	return level, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
