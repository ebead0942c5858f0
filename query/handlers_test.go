package query

import (
	"context"
	"testing"

	"github.com/goliatone/go-clientcore/core"
)

type stubSessionReader struct {
	session *core.Session
	roles   map[string]bool
	allowed map[string]bool
}

func (s stubSessionReader) State() core.AuthState {
	if s.session == nil {
		return core.AuthStateAnonymous
	}
	return core.AuthStateAuthenticated
}

func (s stubSessionReader) Session() (core.Session, bool) {
	if s.session == nil {
		return core.Session{}, false
	}
	return *s.session, true
}

func (s stubSessionReader) HasPermission(resource, action string) bool {
	return s.allowed[resource+":"+action]
}

func (s stubSessionReader) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if s.roles[role] {
			return true
		}
	}
	return false
}

func TestCurrentSessionQuery_OmitsTokens(t *testing.T) {
	reader := stubSessionReader{session: &core.Session{
		User:        core.User{ID: "u1", Role: "admin"},
		Token:       core.TokenSet{AccessToken: "secret"},
		Permissions: []core.Permission{{Resource: "batch", Action: "read"}},
	}}
	view, err := NewCurrentSessionQuery(reader).Query(context.Background(), CurrentSessionMessage{})
	if err != nil {
		t.Fatalf("query session: %v", err)
	}
	if !view.Authenticated || view.State != core.AuthStateAuthenticated {
		t.Fatalf("expected authenticated view, got %#v", view)
	}
	if view.User == nil || view.User.ID != "u1" || len(view.Permissions) != 1 {
		t.Fatalf("unexpected view: %#v", view)
	}
}

func TestCurrentSessionQuery_Anonymous(t *testing.T) {
	view, err := NewCurrentSessionQuery(stubSessionReader{}).Query(context.Background(), CurrentSessionMessage{})
	if err != nil {
		t.Fatalf("query session: %v", err)
	}
	if view.Authenticated || view.User != nil || view.State != core.AuthStateAnonymous {
		t.Fatalf("expected anonymous view, got %#v", view)
	}
}

func TestAuthorizationQueries_Delegate(t *testing.T) {
	reader := stubSessionReader{
		roles:   map[string]bool{"inspector": true},
		allowed: map[string]bool{"batch:read": true},
	}

	allowed, err := NewHasPermissionQuery(reader).Query(context.Background(), HasPermissionMessage{Resource: "batch", Action: "read"})
	if err != nil || !allowed {
		t.Fatalf("expected batch:read to be allowed, got %v %v", allowed, err)
	}
	allowed, err = NewHasPermissionQuery(reader).Query(context.Background(), HasPermissionMessage{Resource: "batch", Action: "delete"})
	if err != nil || allowed {
		t.Fatalf("expected batch:delete to be denied, got %v %v", allowed, err)
	}

	matched, err := NewHasRoleQuery(reader).Query(context.Background(), HasRoleMessage{Roles: []string{"admin", "inspector"}})
	if err != nil || !matched {
		t.Fatalf("expected any-role match, got %v %v", matched, err)
	}
	if _, err := NewHasRoleQuery(reader).Query(context.Background(), HasRoleMessage{Roles: []string{" "}}); err == nil {
		t.Fatalf("expected blank roles to fail validation")
	}
}
