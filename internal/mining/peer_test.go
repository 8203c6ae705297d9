package mining

import "testing"

func TestNewPeerIDIsUnique(t *testing.T) {
	a := NewPeerID()
	b := NewPeerID()
	if a == "" || b == "" {
		t.Fatal("NewPeerID returned an empty id")
	}
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
}
