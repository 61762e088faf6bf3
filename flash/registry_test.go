package flash

import "testing"

func TestRegistryAdmitAndRelease(t *testing.T) {
	r := newRegistry()

	if s := r.admit(5); s != admitOK {
		t.Fatalf("admit(5) = %v, want admitOK", s)
	}
	if s := r.admit(5); s != admitDuplicate {
		t.Fatalf("second admit(5) = %v, want admitDuplicate", s)
	}

	r.release(5)

	if s := r.admit(5); s != admitOK {
		t.Fatalf("admit(5) after release = %v, want admitOK", s)
	}
}

func TestRegistryRejectsWhenFull(t *testing.T) {
	r := newRegistry()

	for i := uint32(0); i < MaxInstances; i++ {
		if s := r.admit(i); s != admitOK {
			t.Fatalf("admit(%d) = %v, want admitOK", i, s)
		}
	}
	if s := r.admit(MaxInstances); s != admitCapacityExceeded {
		t.Fatalf("admit past capacity = %v, want admitCapacityExceeded", s)
	}
}

func TestRegistryReleaseOfUnknownChipSelectIsNoop(t *testing.T) {
	r := newRegistry()
	r.release(99) // must not panic or corrupt state

	if s := r.admit(1); s != admitOK {
		t.Fatalf("admit(1) = %v, want admitOK", s)
	}
}
