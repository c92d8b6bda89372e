// Package auth holds the staff roster and the role/permission gate the
// checkout and drawer-close preconditions consume. The catalog is
// static configuration seeded at startup; it defines which keys exist,
// not who may hold them.
package auth

import (
	"sort"
	"sync"
)

// User is a staff member identified by their short login code.
type User struct {
	Code string
	Name string
	Role string
}

type Permission string

const (
	PermPageDashboard  Permission = "page:dashboard"
	PermPageSale       Permission = "page:sale"
	PermPageHistory    Permission = "page:history"
	PermPageCustomers  Permission = "page:customers"
	PermPageCompany    Permission = "page:company"
	PermPageCashDrawer Permission = "page:cashdrawer"

	PermApplyDiscount  Permission = "feature:sale:apply_discount"
	PermMakeDeposit    Permission = "feature:cashdrawer:make_deposit"
	PermCloseAnyDrawer Permission = "feature:cashdrawer:close_any"
	PermManageStaff    Permission = "feature:company:manage_staff"
	PermManageRoles    Permission = "feature:company:manage_roles"
)

var allPermissions = []Permission{
	PermPageDashboard, PermPageSale, PermPageHistory, PermPageCustomers,
	PermPageCompany, PermPageCashDrawer, PermApplyDiscount,
	PermMakeDeposit, PermCloseAnyDrawer, PermManageStaff, PermManageRoles,
}

// ValidPermission reports whether p is a key in the permission catalog.
func ValidPermission(p Permission) bool {
	for _, known := range allPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// Store is the in-memory role and user registry.
type Store struct {
	mu    sync.RWMutex
	users map[string]User
	roles map[string]map[Permission]bool
}

// NewStore seeds the default admin/manager/staff roles and demo users.
func NewStore() *Store {
	s := &Store{
		users: make(map[string]User),
		roles: make(map[string]map[Permission]bool),
	}

	s.SetRole("admin", allPermissions)
	s.SetRole("manager", []Permission{
		PermPageDashboard, PermPageSale, PermPageHistory, PermPageCustomers,
		PermPageCashDrawer, PermApplyDiscount, PermMakeDeposit, PermCloseAnyDrawer,
	})
	s.SetRole("staff", []Permission{
		PermPageSale, PermPageCustomers, PermMakeDeposit,
	})

	s.PutUser(User{Code: "1111", Name: "Admin User", Role: "admin"})
	s.PutUser(User{Code: "2222", Name: "Manager User", Role: "manager"})
	s.PutUser(User{Code: "3333", Name: "Staff User", Role: "staff"})
	return s
}

func (s *Store) PutUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Code] = u
}

func (s *Store) UserByCode(code string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[code]
	return u, ok
}

// Users returns the roster sorted by login code.
func (s *Store) Users() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Code < users[j].Code })
	return users
}

// RolePermissions returns the sorted permission keys a role holds.
func (s *Store) RolePermissions(role string) ([]Permission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.roles[role]
	if !ok {
		return nil, false
	}
	perms := make([]Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms, true
}

// SetRole replaces a role's permission set, creating the role if new.
func (s *Store) SetRole(role string, perms []Permission) {
	set := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		set[p] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role] = set
}

// HasPermission is the gate consumed by core preconditions. Unknown
// users and unknown roles hold nothing.
func (s *Store) HasPermission(userCode string, perm Permission) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userCode]
	if !ok {
		return false
	}
	return s.roles[u.Role][perm]
}
