package auth

import (
	"testing"

	"github.com/google/uuid"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in    string
		want  Role
		known bool
	}{
		{"admin", RoleAdmin, true},
		{"Doctor", RoleDoctor, true},
		{"NURSE", RoleNurse, true},
		{"billing_staff", RoleBillingStaff, true},
		{"Billing Staff", RoleBillingStaff, true},
		{"billing-staff", RoleBillingStaff, true},
		{" insurance_staff ", RoleInsuranceStaff, true},
		{"receptionist", RoleReceptionist, true},
		{"patient", RolePatient, true},
		{"superuser", Role("superuser"), false},
		{"", Role(""), false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if ok != tt.known {
			t.Errorf("ParseRole(%q) known = %v, want %v", tt.in, ok, tt.known)
		}
		if ok && got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRole_Valid(t *testing.T) {
	if !RoleDoctor.Valid() {
		t.Error("doctor should be valid")
	}
	if Role("superuser").Valid() {
		t.Error("superuser should not be valid")
	}
}

func TestIdentity_IsAdmin(t *testing.T) {
	admin := &Identity{ID: uuid.New(), Role: RoleAdmin}
	if !admin.IsAdmin() {
		t.Error("expected admin")
	}
	doctor := &Identity{ID: uuid.New(), Role: RoleDoctor}
	if doctor.IsAdmin() {
		t.Error("doctor is not admin")
	}
	var nilIdent *Identity
	if nilIdent.IsAdmin() {
		t.Error("nil identity is not admin")
	}
}
