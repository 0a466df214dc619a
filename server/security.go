package server

import (
	"sync"

	"molap.evalgo.org/rights"
	"molap.evalgo.org/security"
)

// account is one server-wide login identity: its password hash and the
// set of groups it belongs to (spec §4.9's "user" right object plus the
// group-membership half of the group->role->right-object chain).
type account struct {
	name         string
	passwordHash string
	groups       map[string]bool
}

// Security owns every server-wide user/group/role definition. It is
// shared by every database's rights.Engine as their RoleSource: group and
// role membership is global, while cube/dimension-element grants are
// per-database (see dbRights in database.go). Grounded on the teacher's
// auth package (auth/auth.go) for the password-check-over-an-injected-
// store shape, generalized to the graded right lattice of rights.Engine.
type Security struct {
	mu         sync.RWMutex
	users      map[string]*account
	groupRoles map[string]map[string]bool            // group -> role set
	roleRights map[string]map[string]rights.Right     // role -> rightObject -> Right
}

// NewSecurity creates an empty security store with one "admin" user in
// the "admin" group holding RightSplash on every right object (spec
// §4.9's protected admin bootstrap, mirrored from the protected "admin"
// dimension elements in dimension.Dimension.Protect).
func NewSecurity() *Security {
	s := &Security{
		users:      make(map[string]*account),
		groupRoles: make(map[string]map[string]bool),
		roleRights: make(map[string]map[string]rights.Right),
	}
	_ = s.CreateUser("admin", "admin")
	s.AddUserToGroup("admin", "admin")
	s.AddGroupRole("admin", "admin")
	for _, obj := range rights.RightObjects {
		s.SetRoleRight("admin", obj, rights.RightSplash)
	}
	return s
}

// CreateUser registers a new login identity with a bcrypt-hashed
// password (security.HashPassword).
func (s *Security) CreateUser(name, password string) error {
	hash, err := security.HashPassword(password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[name] = &account{name: name, passwordHash: hash, groups: make(map[string]bool)}
	return nil
}

// Authenticate reports whether password matches name's stored hash.
func (s *Security) Authenticate(name, password string) bool {
	s.mu.RLock()
	a, ok := s.users[name]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return security.VerifyPassword(a.passwordHash, password) == nil
}

// AddUserToGroup grants user membership in group (creating the user
// record implicitly if it came from an external/worker-authenticated
// login with no local password, per spec SUPPLEMENTED FEATURES "external
// user group membership without a user->group cell").
func (s *Security) AddUserToGroup(user, group string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.users[user]
	if !ok {
		a = &account{name: user, groups: make(map[string]bool)}
		s.users[user] = a
	}
	a.groups[group] = true
}

// AddGroupRole grants group the named role.
func (s *Security) AddGroupRole(group, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupRoles[group] == nil {
		s.groupRoles[group] = make(map[string]bool)
	}
	s.groupRoles[group][role] = true
}

// SetRoleRight assigns role's right for rightObject.
func (s *Security) SetRoleRight(role, rightObject string, r rights.Right) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roleRights[role] == nil {
		s.roleRights[role] = make(map[string]rights.Right)
	}
	s.roleRights[role][rightObject] = r
}

// GroupsForUser implements rights.RoleSource.
func (s *Security) GroupsForUser(user string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.users[user]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(a.groups))
	for g := range a.groups {
		out = append(out, g)
	}
	return out
}

// RolesForGroups implements rights.RoleSource.
func (s *Security) RolesForGroups(groups []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, g := range groups {
		for role := range s.groupRoles[g] {
			if !seen[role] {
				seen[role] = true
				out = append(out, role)
			}
		}
	}
	return out
}

// RightForRole implements rights.RoleSource.
func (s *Security) RightForRole(role, rightObject string) (rights.Right, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.roleRights[role]
	if !ok {
		return rights.RightNone, false
	}
	r, ok := m[rightObject]
	return r, ok
}
