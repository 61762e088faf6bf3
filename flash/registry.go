package flash

import "sync"

// MaxInstances bounds the number of concurrently-open driver instances,
// enforcing one driver per chip-select line.
const MaxInstances = 8

const registrySentinel = ^uint32(0)

// admitStatus mirrors the three outcomes a constructor can observe when
// claiming a registry slot.
type admitStatus int

const (
	admitOK admitStatus = iota
	admitDuplicate
	admitCapacityExceeded
)

type registry struct {
	mu    sync.Mutex
	slots [MaxInstances]uint32
}

var instanceRegistry = newRegistry()

func newRegistry() *registry {
	r := &registry{}
	for i := range r.slots {
		r.slots[i] = registrySentinel
	}
	return r
}

// admit claims a slot for chipSelect, or reports why it could not.
func (r *registry) admit(chipSelect uint32) admitStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	free := -1
	for i, cs := range r.slots {
		if cs == chipSelect {
			return admitDuplicate
		}
		if free < 0 && cs == registrySentinel {
			free = i
		}
	}
	if free < 0 {
		return admitCapacityExceeded
	}
	r.slots[free] = chipSelect
	return admitOK
}

// release frees the slot held by chipSelect, if any.
func (r *registry) release(chipSelect uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, cs := range r.slots {
		if cs == chipSelect {
			r.slots[i] = registrySentinel
			return
		}
	}
}
