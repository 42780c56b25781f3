package device

import "sync"

// Host memoises one Device instance per UDID, satisfying invariant (ii):
// ConnectedDevice(udid) returns the same instance as the matching element of
// ConnectedDevices(). Callers supply a Lister that performs the actual
// enumeration (shelling out, querying a library, etc); Host only owns the
// identity-preserving cache on top of it.
type Host[T Device] struct {
	mu     sync.Mutex
	byUDID map[string]T
	lister func() ([]T, error)
}

// NewHost returns a Host backed by lister, which must return the current
// live set of devices on every call.
func NewHost[T Device](lister func() ([]T, error)) *Host[T] {
	return &Host[T]{byUDID: make(map[string]T), lister: lister}
}

// ConnectedDevices returns every currently connected device, updating the
// identity cache so that devices already known keep their existing
// instance and newly seen devices are added.
func (h *Host[T]) ConnectedDevices() ([]T, error) {
	fresh, err := h.lister()
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	live := make(map[string]struct{}, len(fresh))
	result := make([]T, 0, len(fresh))
	for _, d := range fresh {
		udid := d.UDID()
		live[udid] = struct{}{}
		if existing, ok := h.byUDID[udid]; ok {
			result = append(result, existing)
			continue
		}
		h.byUDID[udid] = d
		result = append(result, d)
	}
	for udid := range h.byUDID {
		if _, ok := live[udid]; !ok {
			delete(h.byUDID, udid)
		}
	}
	return result, nil
}

// ConnectedDevice returns the memoised device matching udid, or ok=false if
// no such device is currently connected.
func (h *Host[T]) ConnectedDevice(udid string) (device T, ok bool) {
	if _, err := h.ConnectedDevices(); err != nil {
		return device, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.byUDID[udid]
	return d, ok
}

// SingletonGuard enforces invariant (vi): the host's singleton real-device
// subsystem can only be initialised once per process.
type SingletonGuard struct {
	once        sync.Once
	initialized bool
	mu          sync.Mutex
}

// InitOnce runs init exactly once across the lifetime of the process; a
// second call (even after the first failed) returns an IllegalStateError
// instead of re-running init.
func (g *SingletonGuard) InitOnce(init func() error) error {
	g.mu.Lock()
	already := g.initialized
	g.initialized = true
	g.mu.Unlock()
	if already {
		return &IllegalStateError{Msg: "real-device subsystem already initialized"}
	}
	var err error
	g.once.Do(func() { err = init() })
	return err
}

// NewSingletonGuard returns a fresh process-lifetime singleton guard for a
// real-device subsystem.
func NewSingletonGuard() *SingletonGuard { return &SingletonGuard{} }
