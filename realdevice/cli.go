package realdevice

import (
	"context"
	"fmt"
	"strings"

	"howett.net/plist"

	"github.com/go-drift/iosctl/command"
)

// runIdeviceCommand runs one of the idevice* tools against udid, applying
// the auto-pair-on-lockdownd-failure algorithm when identity is non-nil:
// if the command fails with a nonzero exit and stderr contains "Could not
// connect to lockdownd", `cfgutil pair` is run once and the command retried.
func runIdeviceCommand(udid, tool string, args []string, identity *PairingIdentity) (*command.Result, error) {
	full := append([]string{"-u", udid}, args...)
	cmd := command.New(tool, full...)

	attempt := func() (*command.Result, error) {
		return cmd.Execute(context.Background())
	}

	res, err := attempt()
	if err == nil || identity == nil {
		return res, err
	}
	var failure *command.Failure
	if !isCommandFailure(err, &failure) || !strings.Contains(failure.Result.StderrString(), "Could not connect to lockdownd") {
		return res, err
	}
	if pairErr := cfgutilPair(udid, identity.ConfigurationUDID); pairErr != nil {
		return res, err
	}
	return attempt()
}

func isCommandFailure(err error, out **command.Failure) bool {
	f, ok := err.(*command.Failure)
	if ok {
		*out = f
	}
	return ok
}

// cfgutilPair runs `cfgutil -u <configUDID> pair` to re-establish a
// supervision pairing identity with the device.
func cfgutilPair(udid, configUDID string) error {
	args := []string{}
	if configUDID != "" {
		args = append(args, "-u", configUDID)
	}
	args = append(args, "pair")
	_, err := command.New("cfgutil", args...).Execute(context.Background())
	return err
}

// runIdeviceInfoXML runs `ideviceinfo -x` (XML plist of every device
// property) and parses the fields this driver cares about.
func runIdeviceInfoXML(udid string, identity *PairingIdentity) (deviceValues, error) {
	res, err := runIdeviceCommand(udid, "ideviceinfo", []string{"-x"}, identity)
	if err != nil {
		return deviceValues{}, fmt.Errorf("realdevice: ideviceinfo -x: %w", err)
	}
	var parsed struct {
		ProductType     string `plist:"ProductType"`
		ProductVersion  string `plist:"ProductVersion"`
		BuildVersion    string `plist:"BuildVersion"`
		CPUArchitecture string `plist:"CPUArchitecture"`
	}
	if _, err := plist.Unmarshal(res.Stdout, &parsed); err != nil {
		return deviceValues{}, fmt.Errorf("realdevice: parsing ideviceinfo output: %w", err)
	}
	return deviceValues{
		ProductType:     parsed.ProductType,
		ProductVersion:  parsed.ProductVersion,
		BuildVersion:    parsed.BuildVersion,
		CPUArchitecture: parsed.CPUArchitecture,
	}, nil
}
