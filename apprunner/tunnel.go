package apprunner

import (
	"log/slog"
	"net"

	"github.com/danielpaulus/go-ios/ios"
	"github.com/danielpaulus/go-ios/ios/tunnel"
)

// EnrichWithTunnel establishes an inline userspace tunnel to an iOS 17.4+
// device and returns a DeviceEntry enriched with RSD tunnel info, plus a
// close function that must be called to tear the tunnel down. On pre-17.4
// devices (where CoreDeviceProxy is unavailable) every tunnel step degrades
// to returning the plain usbmuxd-routed entry with a nil closer, so callers
// can use the result unconditionally.
func EnrichWithTunnel(device ios.DeviceEntry, log *slog.Logger) (ios.DeviceEntry, func() error, error) {
	if log == nil {
		log = slog.Default()
	}

	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		log.Debug("apprunner: could not allocate tunnel port", "error", err)
		return device, nil, nil
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	tun, err := tunnel.ConnectUserSpaceTunnelLockdown(device, port)
	if err != nil {
		log.Debug("apprunner: tunnel setup skipped (pre-17.4 device?)", "error", err)
		return device, nil, nil
	}

	udid := device.Properties.SerialNumber

	// The TUN fields must be set before the RSD connection so it routes
	// through the local TCP proxy instead of the IPv6 tunnel address.
	device.UserspaceTUN = true
	device.UserspaceTUNHost = "127.0.0.1"
	device.UserspaceTUNPort = port

	rsdService, err := ios.NewWithAddrPortDevice(tun.Address, tun.RsdPort, device)
	if err != nil {
		log.Debug("apprunner: RSD connection failed, using plain device", "error", err)
		tun.Close()
		return device, nil, nil
	}

	rsdProvider, err := rsdService.Handshake()
	if err != nil {
		log.Debug("apprunner: RSD handshake failed, using plain device", "error", err)
		rsdService.Close()
		tun.Close()
		return device, nil, nil
	}
	rsdService.Close()

	enriched, err := ios.GetDeviceWithAddress(udid, tun.Address, rsdProvider)
	if err != nil {
		log.Debug("apprunner: device enrichment failed, using plain device", "error", err)
		tun.Close()
		return device, nil, nil
	}
	enriched.UserspaceTUN = true
	enriched.UserspaceTUNHost = "127.0.0.1"
	enriched.UserspaceTUNPort = port

	return enriched, tun.Close, nil
}
