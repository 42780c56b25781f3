package device

import (
	"fmt"
	"regexp"
)

// bundleIDPattern is the printable-UTI pattern a bundle identifier must
// satisfy.
var bundleIDPattern = regexp.MustCompile(`^[A-Za-z0-9\-.]+$`)

// AppBundleId is a validated application bundle identifier.
type AppBundleId struct {
	value string
}

// NewAppBundleId validates s against the printable-UTI pattern
// (^[A-Za-z0-9\-.]+$) and returns an AppBundleId, or an invalid-argument
// error (unchecked, a programming error, not a device error).
func NewAppBundleId(s string) (AppBundleId, error) {
	if !bundleIDPattern.MatchString(s) {
		return AppBundleId{}, &InvalidArgumentError{
			Msg: fmt.Sprintf("invalid bundle identifier %q: must match %s", s, bundleIDPattern.String()),
		}
	}
	return AppBundleId{value: s}, nil
}

// MustAppBundleId is NewAppBundleId but panics on an invalid identifier; use
// only for identifiers known valid at compile time (tests, constants).
func MustAppBundleId(s string) AppBundleId {
	id, err := NewAppBundleId(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the underlying identifier string.
func (id AppBundleId) String() string { return id.value }
