// Package realdevice implements the Device contract over physically
// tethered hardware by shelling out to the idevice* command-line suite and
// cfgutil, following the same Command/Process plumbing the rest of this
// module uses for every other subprocess.
package realdevice

import (
	"fmt"
	"time"

	"github.com/danielpaulus/go-ios/ios"

	"github.com/go-drift/iosctl/cache"
	"github.com/go-drift/iosctl/device"
)

// ImageResolver is the subset of devimage.Resolver that the developer-image
// auto-mount algorithm needs; declared here so realdevice doesn't import
// devimage directly and the two packages stay independently testable.
type ImageResolver interface {
	ImagePaths(productVersion string) (imagePath, signaturePath string, err error)
}

// PairingIdentity is supplied by the caller when a supervision identity is
// configured, enabling the auto-pair-on-lockdownd-failure algorithm.
type PairingIdentity struct {
	// ConfigurationUDID is passed to `cfgutil -u <ConfigurationUDID> pair`.
	ConfigurationUDID string
}

var _ device.RealDevice = (*Device)(nil)

// Device drives one physical iOS device via idevice* tooling.
type Device struct {
	udid string

	model   *cache.Lazy[device.Model]
	version *cache.Lazy[device.Version]

	images   ImageResolver
	identity *PairingIdentity

	restarting   atomicBool
	loggerActive atomicBool
}

// New returns a Device for udid. images may be nil if developer-image
// auto-mount is not needed (e.g. the caller never launches apps or takes
// screenshots); identity may be nil if no supervision pairing identity is
// configured, in which case the auto-pair-on-lockdownd-failure algorithm is
// skipped and the underlying error propagates unchanged.
func New(udid string, images ImageResolver, identity *PairingIdentity) *Device {
	d := &Device{udid: udid, images: images, identity: identity}
	d.model = cache.NewLazy(d.fetchModel)
	d.version = cache.NewLazy(d.fetchVersion)
	return d
}

// List enumerates currently connected real devices via go-ios's usbmuxd
// client, suitable as the lister function for device.Host[*Device].
func List(images ImageResolver, identity *PairingIdentity) ([]*Device, error) {
	deviceList, err := ios.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("realdevice: listing devices: %w", err)
	}
	out := make([]*Device, 0, len(deviceList.DeviceList))
	for _, d := range deviceList.DeviceList {
		out = append(out, New(d.Properties.SerialNumber, images, identity))
	}
	return out, nil
}

func (d *Device) UDID() string { return d.udid }

// IsResponsive shells a trivial ideviceinfo probe; a zero exit code means
// the device answered lockdownd.
func (d *Device) IsResponsive() bool {
	_, err := runIdeviceCommand(d.udid, "ideviceinfo", []string{"-k", "ProductVersion"}, d.identity)
	return err == nil
}

func (d *Device) IsRestarting() bool { return d.restarting.Load() }

// fetchModel is memoised via cache.Lazy: ideviceinfo's ProductType is
// parsed once per device lifetime and resolved against the fixed
// identifier->product-name table.
func (d *Device) fetchModel() (device.Model, error) {
	vals, err := runIdeviceInfoXML(d.udid, d.identity)
	if err != nil {
		return device.Model{}, err
	}
	arch := device.ArchARM64
	if vals.CPUArchitecture != "" {
		arch = device.Architecture(vals.CPUArchitecture)
	}
	return device.NewModel(vals.ProductType, arch), nil
}

func (d *Device) fetchVersion() (device.Version, error) {
	vals, err := runIdeviceInfoXML(d.udid, d.identity)
	if err != nil {
		return device.Version{}, err
	}
	return device.Version{BuildVersion: vals.BuildVersion, ProductVersion: vals.ProductVersion}, nil
}

func (d *Device) Model() (device.Model, error) { return d.model.Get() }

func (d *Device) Version() (device.Version, error) { return d.version.Get() }

// deviceValues is the subset of `ideviceinfo -x` we parse.
type deviceValues struct {
	ProductType     string
	ProductVersion  string
	BuildVersion    string
	CPUArchitecture string
}

// A restart always sleeps 30s first (a device takes at least that long to
// come back), then polls IsResponsive up to 12 times at 5s.
const (
	restartSleep        = 30 * time.Second
	restartPollInterval = 5 * time.Second
	restartPollAttempts = 12
)
