package oracle

import (
	"sort"
	"strings"
)

// SystemPrivileges lists the privileges GRANT accepts.
var SystemPrivileges = newSet(
	"ADMINISTER DATABASE TRIGGER", "ALTER DATABASE", "ALTER SESSION", "ALTER SYSTEM",
	"ALTER TABLESPACE", "ALTER USER", "CREATE ANY TABLE", "CREATE DATABASE LINK",
	"CREATE INDEXTYPE", "CREATE LIBRARY", "CREATE MATERIALIZED VIEW", "CREATE OPERATOR",
	"CREATE PROCEDURE", "CREATE PUBLIC SYNONYM", "CREATE ROLE", "CREATE SEQUENCE",
	"CREATE SESSION", "CREATE SYNONYM", "CREATE TABLE", "CREATE TABLESPACE",
	"CREATE TRIGGER", "CREATE TYPE", "CREATE USER", "CREATE VIEW",
	"DEBUG CONNECT SESSION", "DROP ANY TABLE", "DROP TABLESPACE", "DROP USER",
	"EXECUTE ANY PROCEDURE", "FLASHBACK ANY TABLE", "RESTRICTED SESSION",
	"SELECT ANY DICTIONARY", "SELECT ANY TABLE", "SYSBACKUP", "SYSDBA", "SYSOPER",
	"UNLIMITED TABLESPACE",
)

// GeodatabasePrivileges are the system privileges an ArcGIS geodatabase
// administrator needs.
var GeodatabasePrivileges = []string{
	"CREATE SESSION", "CREATE TABLE", "CREATE PROCEDURE",
	"CREATE SEQUENCE", "CREATE TRIGGER", "CREATE VIEW",
}

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// normalizePriv collapses whitespace and upper-cases a privilege name.
func normalizePriv(p string) string {
	return strings.Join(strings.Fields(upper(p)), " ")
}

// entry returns the live (created) record for name.
func (s *State) entry(name string) (*UserRecord, bool) {
	r, ok := s.DatabaseUsers[upper(name)]
	if !ok || !r.Created {
		return nil, false
	}
	return r, true
}

// User returns a live database user (not a role).
func (s *State) User(name string) (*UserRecord, bool) {
	r, ok := s.entry(name)
	if !ok || r.IsRole {
		return nil, false
	}
	return r, true
}

// Role returns a live role.
func (s *State) Role(name string) (*UserRecord, bool) {
	r, ok := s.entry(name)
	if !ok || !r.IsRole {
		return nil, false
	}
	return r, true
}

// CreateUser creates a user. The name must not be taken by a live user or
// role. A previously dropped user of the same name is replaced.
func (s *State) CreateUser(name, password string) error {
	key := upper(name)
	if _, taken := s.entry(key); taken {
		return errUserConflict(key)
	}
	s.DatabaseUsers[key] = &UserRecord{
		Password:          password,
		Privileges:        Set{},
		Created:           true,
		GrantedRoles:      Set{},
		GrantedPrivileges: Set{},
		DefaultTablespace: "USERS",
		CreatedAt:         s.clock().Format(isoLayout),
	}
	s.afterDictionaryChange()
	return nil
}

// DropUser soft-deletes a user so its history remains in the blob.
func (s *State) DropUser(name string) error {
	r, ok := s.User(name)
	if !ok {
		return ErrNoUser(upper(name))
	}
	r.Created = false
	s.afterDictionaryChange()
	return nil
}

// AlterPassword changes a user's password.
func (s *State) AlterPassword(name, password string) error {
	r, ok := s.User(name)
	if !ok {
		return ErrNoUser(upper(name))
	}
	r.Password = password
	s.Save()
	return nil
}

// SetLocked locks or unlocks an account.
func (s *State) SetLocked(name string, locked bool) error {
	r, ok := s.User(name)
	if !ok {
		return ErrNoUser(upper(name))
	}
	r.Locked = locked
	s.Save()
	return nil
}

// SetDefaultTablespace changes a user's default tablespace.
func (s *State) SetDefaultTablespace(name, tablespace string) error {
	r, ok := s.User(name)
	if !ok {
		return ErrNoUser(upper(name))
	}
	if _, ok := s.Tablespace(tablespace); !ok {
		return ErrNoTablespace(upper(tablespace))
	}
	r.DefaultTablespace = upper(tablespace)
	s.Save()
	return nil
}

// Authenticate checks a logon. Unknown names and roles fail as invalid
// credentials; a locked account fails as locked even with the right password.
func (s *State) Authenticate(name, password string) error {
	r, ok := s.entry(name)
	switch {
	case !ok:
		return ErrInvalidLogon
	case r.IsRole:
		return ErrInvalidLogon
	case r.Locked:
		return ErrAccountLocked
	case r.Password != password:
		return ErrInvalidLogon
	}
	return nil
}

// CreateRole creates a role in the shared user/role namespace.
func (s *State) CreateRole(name string) error {
	key := upper(name)
	if _, taken := s.entry(key); taken {
		return errRoleConflict(key)
	}
	s.DatabaseUsers[key] = &UserRecord{
		Privileges:        Set{},
		Created:           true,
		IsRole:            true,
		GrantedRoles:      Set{},
		GrantedPrivileges: Set{},
		CreatedAt:         s.clock().Format(isoLayout),
	}
	s.afterDictionaryChange()
	return nil
}

// DropRole soft-deletes a role and removes it from every grantee so grants
// only reference live entries.
func (s *State) DropRole(name string) error {
	key := upper(name)
	r, ok := s.Role(key)
	if !ok {
		return ErrNoRole(key)
	}
	r.Created = false
	for _, other := range s.DatabaseUsers {
		delete(other.GrantedRoles, key)
	}
	s.afterDictionaryChange()
	return nil
}

// GrantPrivilege grants a system privilege to a user or role.
func (s *State) GrantPrivilege(grantee, priv string) error {
	priv = normalizePriv(priv)
	if !SystemPrivileges.Has(priv) {
		return ErrBadPrivilege
	}
	r, ok := s.entry(grantee)
	if !ok {
		return ErrNoGrantee(upper(grantee))
	}
	if r.IsRole {
		r.GrantedPrivileges[priv] = true
	} else {
		r.Privileges[priv] = true
	}
	s.afterDictionaryChange()
	return nil
}

// GrantPrivilegeToRole grants a system privilege to a role only.
func (s *State) GrantPrivilegeToRole(role, priv string) error {
	if _, ok := s.Role(role); !ok {
		return ErrNoRole(upper(role))
	}
	return s.GrantPrivilege(role, priv)
}

// RevokePrivilege removes a directly granted system privilege.
func (s *State) RevokePrivilege(grantee, priv string) error {
	priv = normalizePriv(priv)
	if !SystemPrivileges.Has(priv) {
		return ErrBadPrivilege
	}
	r, ok := s.entry(grantee)
	if !ok {
		return ErrNoGrantee(upper(grantee))
	}
	held := r.Privileges
	if r.IsRole {
		held = r.GrantedPrivileges
	}
	if !held[priv] {
		return errPrivNotGranted(upper(grantee))
	}
	delete(held, priv)
	s.afterDictionaryChange()
	return nil
}

// GrantRoleToUser grants a role to a user or another role.
func (s *State) GrantRoleToUser(role, grantee string) error {
	roleKey, granteeKey := upper(role), upper(grantee)
	if _, ok := s.Role(roleKey); !ok {
		return ErrNoRole(roleKey)
	}
	r, ok := s.entry(granteeKey)
	if !ok {
		return ErrNoGrantee(granteeKey)
	}
	if r.IsRole && (roleKey == granteeKey || s.roleIncludes(roleKey, granteeKey, map[string]bool{})) {
		return ErrCircularGrant
	}
	r.GrantedRoles[roleKey] = true
	s.afterDictionaryChange()
	return nil
}

// RevokeRoleFromUser removes a role grant.
func (s *State) RevokeRoleFromUser(role, grantee string) error {
	roleKey, granteeKey := upper(role), upper(grantee)
	if _, ok := s.Role(roleKey); !ok {
		return ErrNoRole(roleKey)
	}
	r, ok := s.entry(granteeKey)
	if !ok {
		return ErrNoGrantee(granteeKey)
	}
	if !r.GrantedRoles[roleKey] {
		return errRoleNotGranted(roleKey, granteeKey)
	}
	delete(r.GrantedRoles, roleKey)
	s.afterDictionaryChange()
	return nil
}

// roleIncludes reports whether role transitively grants target.
func (s *State) roleIncludes(role, target string, visited map[string]bool) bool {
	if visited[role] {
		return false
	}
	visited[role] = true
	r, ok := s.Role(role)
	if !ok {
		return false
	}
	for g := range r.GrantedRoles {
		if g == target || s.roleIncludes(g, target, visited) {
			return true
		}
	}
	return false
}

// HasPrivilege reports whether a user or role holds priv directly or through
// granted roles. SYS and the DBA role hold everything.
func (s *State) HasPrivilege(name, priv string) bool {
	return s.hasPrivilege(upper(name), normalizePriv(priv), map[string]bool{})
}

func (s *State) hasPrivilege(key, priv string, visited map[string]bool) bool {
	if visited[key] {
		return false
	}
	visited[key] = true
	r, ok := s.entry(key)
	if !ok {
		return false
	}
	if key == "SYS" || key == "DBA" {
		return true
	}
	if r.Privileges[priv] || r.GrantedPrivileges[priv] {
		return true
	}
	for g := range r.GrantedRoles {
		if s.hasPrivilege(g, priv, visited) {
			return true
		}
	}
	return false
}

// SessionPrivileges returns every privilege the user holds, sorted.
func (s *State) SessionPrivileges(name string) []string {
	key := upper(name)
	out := Set{}
	for p := range SystemPrivileges {
		if s.HasPrivilege(key, p) {
			out[p] = true
		}
	}
	return out.Sorted()
}

// UserNames returns live users sorted.
func (s *State) UserNames() []string { return s.names(false) }

// RoleNames returns live roles sorted.
func (s *State) RoleNames() []string { return s.names(true) }

func (s *State) names(roles bool) []string {
	var out []string
	for k, r := range s.DatabaseUsers {
		if r.Created && r.IsRole == roles {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// afterDictionaryChange refreshes derived checkpoints and persists.
func (s *State) afterDictionaryChange() {
	s.refreshDictionaryChecks()
	s.Save()
}
