package batch

import "testing"

func TestDelayedState_RoundTrip(t *testing.T) {
	s := DelayedState(1735689600)
	if s != "DELAYED:1735689600" {
		t.Fatalf("got %q, want DELAYED:1735689600", s)
	}

	epoch, ok := ParseDelayedState(s)
	if !ok {
		t.Fatalf("ParseDelayedState(%q) reported not-delayed", s)
	}
	if epoch != 1735689600 {
		t.Fatalf("got epoch %d, want 1735689600", epoch)
	}
}

func TestParseDelayedState_RejectsOtherStates(t *testing.T) {
	for _, s := range []string{"PROCESSING", "ABORTED", "DONE", "DELAYED:notanumber", ""} {
		if _, ok := ParseDelayedState(s); ok {
			t.Fatalf("ParseDelayedState(%q) should not report delayed", s)
		}
	}
}
