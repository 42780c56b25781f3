// Command ios-app-runner is a drop-in reimplementation of
// idevice-app-runner: it launches one app on a real
// device over the debugserver GDB-remote-serial-protocol channel and
// forwards its stdout until the app exits, then exits with the app's exit
// code as the process's own.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danielpaulus/go-ios/ios"

	"github.com/go-drift/iosctl/apprunner"
)

// envFlags collects repeated `-D K=V` flags into a map.
type envFlags map[string]string

func (e envFlags) String() string { return fmt.Sprintf("%v", map[string]string(e)) }

func (e envFlags) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("expected K=V, got %q", value)
	}
	e[k] = v
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ios-app-runner:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("ios-app-runner", flag.ContinueOnError)
	debug := fs.Bool("d", false, "enable debug logging")
	udid := fs.String("u", "", "device UDID (default: first connected device)")
	bundleID := fs.String("s", "", "bundle identifier to launch (required)")
	env := envFlags{}
	fs.Var(env, "D", "environment variable K=V (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	launchArgs := fs.Args()
	if len(launchArgs) > 0 && launchArgs[0] == "--args" {
		launchArgs = launchArgs[1:]
	}
	if *bundleID == "" {
		return fmt.Errorf("-s APPID is required")
	}

	device, err := resolveDevice(*udid)
	if err != nil {
		return err
	}

	// iOS 17.4+ devices are reached through a userspace tunnel; earlier
	// devices fall back to the plain usbmuxd entry transparently.
	device, tunnelClose, err := apprunner.EnrichWithTunnel(device, nil)
	if err != nil {
		return err
	}
	if tunnelClose != nil {
		defer tunnelClose()
	}

	conn, err := apprunner.Connect(device)
	if err != nil {
		return err
	}
	client := apprunner.NewClient(conn)
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if *debug {
		fmt.Fprintf(os.Stderr, "ios-app-runner: launching %s on %s\n", *bundleID, device.Properties.SerialNumber)
	}

	exitCode, err := client.Launch(ctx, *bundleID, launchArgs, env, func(text string) {
		fmt.Print(text)
	})
	if err != nil {
		return err
	}
	os.Exit(exitCode)
	return nil
}

func resolveDevice(udid string) (ios.DeviceEntry, error) {
	if udid != "" {
		return ios.GetDevice(udid)
	}
	list, err := ios.ListDevices()
	if err != nil {
		return ios.DeviceEntry{}, fmt.Errorf("listing devices: %w", err)
	}
	if len(list.DeviceList) == 0 {
		return ios.DeviceEntry{}, fmt.Errorf("no connected devices found")
	}
	return list.DeviceList[0], nil
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
