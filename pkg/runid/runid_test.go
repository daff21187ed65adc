package runid

import "testing"

func TestNewReturnsDistinctValidUUIDs(t *testing.T) {
	a := New()
	b := New()
	if a == b {
		t.Fatalf("New() returned the same id twice: %q", a)
	}
	if len(a) != 36 {
		t.Errorf("New() = %q, want a 36-character UUID string", a)
	}
}
