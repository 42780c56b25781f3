package inspectorproxy

import (
	"fmt"
	"io"

	"github.com/danielpaulus/go-ios/ios"
)

// webInspectorServiceName is the lockdown service the proxy bridges to;
// compare realdevice, which reaches the rest of the device's services
// through the idevice* binaries instead. Like apprunner.Connect for the
// debugserver, this talks to a lockdown service directly, because
// inspectorproxy is itself a reimplementation of idevicewebinspectorproxy,
// not a wrapper around it.
const webInspectorServiceName = "com.apple.webinspector"

// DialGoIOS opens the webinspector lockdown service on the device matching
// udid via go-ios's usbmuxd/lockdown client — the same substrate
// realdevice.List uses for enumeration.
func DialGoIOS(udid string) (io.ReadWriteCloser, error) {
	device, err := ios.GetDevice(udid)
	if err != nil {
		return nil, fmt.Errorf("inspectorproxy: resolving device %s: %w", udid, err)
	}
	conn, err := ios.ConnectToService(device, webInspectorServiceName)
	if err != nil {
		return nil, fmt.Errorf("inspectorproxy: connecting to %s: %w", webInspectorServiceName, err)
	}
	return conn, nil
}
