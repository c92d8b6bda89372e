package auth_test

import (
	"testing"

	"github.com/jumpindia/funzone-pos/internal/auth"
)

func TestStore_Defaults(t *testing.T) {
	s := auth.NewStore()

	if !s.HasPermission("1111", auth.PermManageRoles) {
		t.Fatal("admin should hold every permission")
	}
	if !s.HasPermission("2222", auth.PermCloseAnyDrawer) {
		t.Fatal("manager should close sessions they did not open")
	}
	if s.HasPermission("3333", auth.PermCloseAnyDrawer) {
		t.Fatal("staff must not close another user's session")
	}
	if s.HasPermission("9999", auth.PermPageSale) {
		t.Fatal("unknown user holds nothing")
	}
}

func TestStore_CustomRole(t *testing.T) {
	s := auth.NewStore()
	s.SetRole("trainee", []auth.Permission{auth.PermPageSale})
	s.PutUser(auth.User{Code: "4444", Name: "Trainee", Role: "trainee"})

	if !s.HasPermission("4444", auth.PermPageSale) {
		t.Fatal("trainee should access the sale page")
	}
	if s.HasPermission("4444", auth.PermApplyDiscount) {
		t.Fatal("trainee must not apply discounts")
	}

	// Editing the role applies to existing users.
	s.SetRole("trainee", []auth.Permission{auth.PermPageSale, auth.PermApplyDiscount})
	if !s.HasPermission("4444", auth.PermApplyDiscount) {
		t.Fatal("role edit should take effect immediately")
	}
}

func TestStore_Listing(t *testing.T) {
	s := auth.NewStore()

	users := s.Users()
	if len(users) != 3 {
		t.Fatalf("expected 3 seeded users, got %d", len(users))
	}
	if users[0].Code != "1111" || users[2].Code != "3333" {
		t.Fatalf("users not sorted by code: %v", users)
	}

	perms, ok := s.RolePermissions("staff")
	if !ok {
		t.Fatal("staff role should exist")
	}
	if len(perms) != 3 {
		t.Fatalf("expected 3 staff permissions, got %v", perms)
	}
	if _, ok := s.RolePermissions("ghost"); ok {
		t.Fatal("unknown role should not resolve")
	}
}

func TestValidPermission(t *testing.T) {
	if !auth.ValidPermission(auth.PermMakeDeposit) {
		t.Fatal("catalog key should validate")
	}
	if auth.ValidPermission("feature:madeup") {
		t.Fatal("unknown key must not validate")
	}
}
