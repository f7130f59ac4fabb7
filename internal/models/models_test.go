package models

import "testing"

func TestUserRoles(t *testing.T) {
	tests := []struct {
		role       string
		privileged bool
		canScan    bool
	}{
		{RoleMarker, false, false},
		{RoleScanner, false, true},
		{RoleManager, true, true},
		{"", false, false},
	}
	for _, tt := range tests {
		u := User{Username: "amy", Role: tt.role}
		if got := u.Privileged(); got != tt.privileged {
			t.Errorf("Privileged() with role %q = %t, want %t", tt.role, got, tt.privileged)
		}
		if got := u.CanScan(); got != tt.canScan {
			t.Errorf("CanScan() with role %q = %t, want %t", tt.role, got, tt.canScan)
		}
	}
}

func TestBundleLocking(t *testing.T) {
	holder := "amy"
	b := Bundle{}
	if b.Locked() {
		t.Error("fresh bundle reports locked")
	}
	if b.LockedByOther("amy") {
		t.Error("fresh bundle reports locked by other")
	}

	b.PushLockedBy = &holder
	if !b.Locked() {
		t.Error("bundle with holder reports unlocked")
	}
	if b.LockedByOther("amy") {
		t.Error("holder counts as other")
	}
	if !b.LockedByOther("mark") {
		t.Error("non-holder does not count as other")
	}
}
