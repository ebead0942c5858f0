package query

import (
	"context"

	"github.com/goliatone/go-clientcore/core"
)

// SessionReader is the read surface of the token lifecycle manager.
type SessionReader interface {
	State() core.AuthState
	Session() (core.Session, bool)
	HasPermission(resource, action string) bool
	HasAnyRole(roles ...string) bool
}

// SessionView is the session without its tokens.
type SessionView struct {
	State         core.AuthState    `json:"state"`
	Authenticated bool              `json:"authenticated"`
	User          *core.User        `json:"user,omitempty"`
	Permissions   []core.Permission `json:"permissions,omitempty"`
}

type CurrentSessionQuery struct {
	reader SessionReader
}

func NewCurrentSessionQuery(reader SessionReader) *CurrentSessionQuery {
	return &CurrentSessionQuery{reader: reader}
}

func (q *CurrentSessionQuery) Query(_ context.Context, _ CurrentSessionMessage) (SessionView, error) {
	if q == nil || q.reader == nil {
		return SessionView{}, queryDependencyError("query: session reader is required")
	}
	view := SessionView{State: q.reader.State()}
	session, ok := q.reader.Session()
	if !ok {
		return view, nil
	}
	user := session.User
	view.Authenticated = true
	view.User = &user
	view.Permissions = append([]core.Permission(nil), session.Permissions...)
	return view, nil
}

type HasPermissionQuery struct {
	reader SessionReader
}

func NewHasPermissionQuery(reader SessionReader) *HasPermissionQuery {
	return &HasPermissionQuery{reader: reader}
}

func (q *HasPermissionQuery) Query(_ context.Context, msg HasPermissionMessage) (bool, error) {
	if q == nil || q.reader == nil {
		return false, queryDependencyError("query: session reader is required")
	}
	if err := msg.Validate(); err != nil {
		return false, err
	}
	return q.reader.HasPermission(msg.Resource, msg.Action), nil
}

type HasRoleQuery struct {
	reader SessionReader
}

func NewHasRoleQuery(reader SessionReader) *HasRoleQuery {
	return &HasRoleQuery{reader: reader}
}

func (q *HasRoleQuery) Query(_ context.Context, msg HasRoleMessage) (bool, error) {
	if q == nil || q.reader == nil {
		return false, queryDependencyError("query: session reader is required")
	}
	if err := msg.Validate(); err != nil {
		return false, err
	}
	return q.reader.HasAnyRole(msg.Roles...), nil
}
