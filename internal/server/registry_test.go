package server

import "testing"

// TestRegistryLifecycle verifies the lookup/set/clear contract and that a
// connection never holds more than one membership.
func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry()

	if _, ok := reg.Lookup("c1"); ok {
		t.Fatalf("Empty registry returned a membership")
	}

	reg.Set("c1", Membership{Username: "alice", Room: "lobby"})
	m, ok := reg.Lookup("c1")
	if !ok || m.Username != "alice" || m.Room != "lobby" {
		t.Fatalf("Lookup returned %+v (ok=%v)", m, ok)
	}

	// A new join replaces the prior membership outright.
	reg.Set("c1", Membership{Username: "alice", Room: "den"})
	if m, _ := reg.Lookup("c1"); m.Room != "den" {
		t.Errorf("Set did not replace the membership: %+v", m)
	}

	reg.Clear("c1")
	if _, ok := reg.Lookup("c1"); ok {
		t.Errorf("Clear left a membership behind")
	}

	// Clearing an unknown connection is a no-op.
	reg.Clear("c2")
}
