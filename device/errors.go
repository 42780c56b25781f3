package device

import "fmt"

// Remedy is a recovery hint attached to a DeviceError. It is consumed by a
// retry harness (see the retry package); attaching a Remedy never triggers
// recovery automatically — callers opt in.
type Remedy int

const (
	// RemedyNone means no specific recovery is known.
	RemedyNone Remedy = iota
	// RemedyDismissDialog means a device-side modal (e.g. a trust prompt)
	// is likely blocking the operation.
	RemedyDismissDialog
	// RemedyReinstallApp means the target app should be uninstalled and
	// reinstalled before retrying.
	RemedyReinstallApp
	// RemedyRestartDevice means the device itself should be restarted
	// before retrying.
	RemedyRestartDevice
)

func (r Remedy) String() string {
	switch r {
	case RemedyDismissDialog:
		return "DISMISS_DIALOG"
	case RemedyReinstallApp:
		return "REINSTALL_APP"
	case RemedyRestartDevice:
		return "RESTART_DEVICE"
	default:
		return "NONE"
	}
}

// Error is every device-operation failure: it carries the offending
// device's UDID, a message, an optional cause, and an optional Remedy hint.
type Error struct {
	UDID   string
	Msg    string
	Cause  error
	Remedy Remedy
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("device %s: %s: %v", e.UDID, e.Msg, e.Cause)
	}
	return fmt.Sprintf("device %s: %s", e.UDID, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// HasRemedy reports whether e carries a non-trivial Remedy.
func (e *Error) HasRemedy() bool { return e.Remedy != RemedyNone }

// InvalidArgumentError, IllegalStateError, and UnsupportedOperationError
// signal API misuse rather than a device-side failure. They implement
// Unchecked() so the retry package's harness never retries them.

type InvalidArgumentError struct{ Msg string }

func (e *InvalidArgumentError) Error() string  { return "invalid argument: " + e.Msg }
func (e *InvalidArgumentError) Unchecked() bool { return true }

type IllegalStateError struct{ Msg string }

func (e *IllegalStateError) Error() string  { return "illegal state: " + e.Msg }
func (e *IllegalStateError) Unchecked() bool { return true }

type UnsupportedOperationError struct{ Msg string }

func (e *UnsupportedOperationError) Error() string  { return "unsupported operation: " + e.Msg }
func (e *UnsupportedOperationError) Unchecked() bool { return true }
