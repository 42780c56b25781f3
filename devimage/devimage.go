// Package devimage resolves the developer disk image (and its signature)
// matching a connected device's iOS version, and watches the image root for
// changes so a newly dropped image becomes available without a restart.
package devimage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

var versionTokenPattern = regexp.MustCompile(`^(\d+(?:\.\d+)+)`)

// Image is a resolved developer disk image and its accompanying signature
// file, both readable regular files under the same directory.
type Image struct {
	Directory     string
	ImagePath     string
	SignaturePath string
}

// Resolver finds the developer disk image best matching a requested iOS
// product version under a fixed root directory, per the fixed scoring rule:
// tokenise both the requested version and each candidate directory name on
// "." after stripping to the leading digit-dot run, score by common token
// prefix length, and pick the highest score (ties broken by enumeration
// order), provided the score is at least 2 (major.minor).
type Resolver struct {
	root string

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	watching bool
}

// NewResolver returns a Resolver rooted at root. root is expected to contain
// one subdirectory per supported iOS version (e.g. "13.0", "13.1 (17A577)").
func NewResolver(root string) *Resolver {
	return &Resolver{root: root}
}

// Watch starts an fsnotify watch on the resolver's root so that images added
// or removed after process start are reflected on the next Resolve call
// without requiring a restart. Calling Watch more than once is a no-op.
func (r *Resolver) Watch() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watching {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("devimage: starting watcher: %w", err)
	}
	if err := w.Add(r.root); err != nil {
		w.Close()
		return fmt.Errorf("devimage: watching %s: %w", r.root, err)
	}
	r.watcher = w
	r.watching = true
	go r.drainEvents(w)
	return nil
}

// drainEvents discards fsnotify events; Resolve always re-lists the
// directory fresh, so the watcher's only job is to keep the kernel-level
// watch alive and let callers know the root is being observed.
func (r *Resolver) drainEvents(w *fsnotify.Watcher) {
	for {
		select {
		case _, ok := <-w.Events:
			if !ok {
				return
			}
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher, if one was started.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.watching {
		return nil
	}
	r.watching = false
	return r.watcher.Close()
}

// Resolve returns the developer disk image matching productVersion.
func (r *Resolver) Resolve(productVersion string) (Image, error) {
	requested := tokenize(productVersion)
	if requested == nil {
		return Image{}, fmt.Errorf("devimage: version %q has no dotted-numeric prefix", productVersion)
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return Image{}, fmt.Errorf("devimage: reading root %s: %w", r.root, err)
	}

	bestScore := -1
	bestDir := ""
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := tokenize(e.Name())
		if candidate == nil {
			continue
		}
		score := commonPrefixLen(requested, candidate)
		if score > bestScore {
			bestScore = score
			bestDir = e.Name()
		}
	}

	if bestScore < 2 {
		return Image{}, fmt.Errorf("devimage: no developer disk image under %s matches iOS %s (best score %d)", r.root, productVersion, bestScore)
	}

	dir := filepath.Join(r.root, bestDir)
	return readImageDir(dir)
}

// ImagePaths resolves productVersion and returns the matching image and
// signature file paths, satisfying realdevice.ImageResolver without that
// package needing to import devimage's Image type.
func (r *Resolver) ImagePaths(productVersion string) (string, string, error) {
	img, err := r.Resolve(productVersion)
	if err != nil {
		return "", "", err
	}
	return img.ImagePath, img.SignaturePath, nil
}

func readImageDir(dir string) (Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Image{}, fmt.Errorf("devimage: reading %s: %w", dir, err)
	}

	var dmg, sig string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch {
		case strings.EqualFold(filepath.Ext(e.Name()), ".dmg"):
			if dmg != "" {
				return Image{}, fmt.Errorf("devimage: %s contains more than one .dmg", dir)
			}
			dmg = filepath.Join(dir, e.Name())
		case strings.EqualFold(filepath.Ext(e.Name()), ".signature"):
			if sig != "" {
				return Image{}, fmt.Errorf("devimage: %s contains more than one .signature", dir)
			}
			sig = filepath.Join(dir, e.Name())
		}
	}
	if dmg == "" || sig == "" {
		return Image{}, fmt.Errorf("devimage: %s must contain exactly one .dmg and one .signature", dir)
	}
	if _, err := os.Stat(dmg); err != nil {
		return Image{}, fmt.Errorf("devimage: image not readable: %w", err)
	}
	if _, err := os.Stat(sig); err != nil {
		return Image{}, fmt.Errorf("devimage: signature not readable: %w", err)
	}
	return Image{Directory: dir, ImagePath: dmg, SignaturePath: sig}, nil
}

func tokenize(s string) []string {
	m := versionTokenPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	return strings.Split(m[1], ".")
}

func commonPrefixLen(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
