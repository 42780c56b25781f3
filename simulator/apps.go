package simulator

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-drift/iosctl/command"
	"github.com/go-drift/iosctl/device"
)

// InstallApplication installs an .app directory as-is, or unzips an .ipa
// into a temp directory, locates Payload/<name>.app, installs that, and
// removes the temp directory afterwards.
func (s *Simulator) InstallApplication(pathToAppOrIPA string) error {
	appPath := pathToAppOrIPA
	if strings.EqualFold(filepath.Ext(pathToAppOrIPA), ".ipa") {
		extracted, cleanup, err := unzipIPA(pathToAppOrIPA)
		if err != nil {
			return s.wrapErr("extracting ipa", err)
		}
		defer cleanup()
		appPath = extracted
	}
	if _, err := s.simctl("install", s.udid, appPath).Execute(context.Background()); err != nil {
		return s.wrapErr("installing application", err)
	}
	return nil
}

// unzipIPA extracts path into a fresh temp directory and returns the path to
// the single Payload/*.app it contains, plus a cleanup func that removes the
// whole temp directory.
func unzipIPA(path string) (appPath string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "iosctl-ipa-")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp dir: %w", err)
	}
	cleanup = func() { os.RemoveAll(dir) }

	r, err := zip.OpenReader(path)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("opening ipa: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, "Payload/") {
			continue
		}
		dest := filepath.Join(dir, f.Name)
		if f.FileInfo().IsDir() {
			os.MkdirAll(dest, 0o755)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			cleanup()
			return "", nil, err
		}
		if err := extractZipFile(f, dest); err != nil {
			cleanup()
			return "", nil, err
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, "Payload"))
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("reading Payload: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), ".app") {
			return filepath.Join(dir, "Payload", e.Name()), cleanup, nil
		}
	}
	cleanup()
	return "", nil, fmt.Errorf("no Payload/*.app found in %s", path)
}

func extractZipFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, rc)
	return err
}

func (s *Simulator) UninstallApplication(bundleID device.AppBundleId) error {
	if _, err := s.simctl("uninstall", s.udid, bundleID.String()).Execute(context.Background()); err != nil {
		return s.wrapErr("uninstalling application", err)
	}
	return nil
}

// simAppInfo is one entry of `simctl listapps`'s plist-as-dict-of-dicts
// output, keyed by bundle ID.
type simAppInfo struct {
	CFBundleIdentifier string `plist:"CFBundleIdentifier"`
}

// ListApplications enumerates installed apps via `simctl listapps`. Older
// simctl versions lack the subcommand; those fall back to the filesystem
// scan combining system apps (from the simulator runtime root) with user
// apps (installed bundle containers).
func (s *Simulator) ListApplications() ([]device.AppBundleId, error) {
	res, err := s.simctl("listapps", s.udid).Execute(context.Background())
	if err != nil {
		apps, derr := s.listApplicationsFromDisk()
		if derr != nil {
			return nil, s.wrapErr("listing applications", err)
		}
		return apps, nil
	}
	return parseListAppsOutput(res.Stdout)
}

func (s *Simulator) IsApplicationInstalled(bundleID device.AppBundleId) (bool, error) {
	apps, err := s.ListApplications()
	if err != nil {
		return false, err
	}
	for _, a := range apps {
		if a == bundleID {
			return true, nil
		}
	}
	return false, nil
}

// RunApplication launches bundleID with `simctl launch --console`. Despite
// the name, `--console` multiplexes the hosted app's console output onto
// simctl's own stderr, not stdout, so simAppProcess.Await/OutputReader read
// stderr — unlike the real-device app process, whose relayed output arrives
// on stdout.
func (s *Simulator) RunApplication(bundleID device.AppBundleId, args ...string) (device.AppProcess, error) {
	argv := append([]string{"launch", "--console", s.udid, bundleID.String()}, args...)
	cmd := s.simctl(argv...)
	proc, err := cmd.Start()
	if err != nil {
		return nil, s.wrapErr("launching application", err)
	}
	return &simAppProcess{proc: proc, simulator: s}, nil
}

type simAppProcess struct {
	proc      *command.Process
	simulator *Simulator
}

func (p *simAppProcess) Kill() error { return p.proc.Kill() }

func (p *simAppProcess) Await(ctx context.Context) (string, error) {
	res, err := p.proc.Await(ctx)
	if err != nil {
		return res.StderrString(), p.simulator.wrapErr("application exited abnormally", err)
	}
	return res.StderrString(), nil
}

func (p *simAppProcess) AwaitTimeout(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := p.proc.AwaitTimeout(ctx, timeout)
	if err != nil {
		return "", p.simulator.wrapErr("application launch timed out", err)
	}
	return res.StderrString(), nil
}

func (p *simAppProcess) OutputReader() (io.Reader, error) {
	return p.proc.StderrReader(), nil
}
