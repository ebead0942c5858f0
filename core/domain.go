package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type AuthState string

const (
	AuthStateAnonymous      AuthState = "anonymous"
	AuthStateAuthenticating AuthState = "authenticating"
	AuthStateAuthenticated  AuthState = "authenticated"
	AuthStateRefreshing     AuthState = "refreshing"
	AuthStateLoggedOut      AuthState = "logged_out"
)

type LogoutReason string

const (
	LogoutReasonNone          LogoutReason = ""
	LogoutReasonUserInitiated LogoutReason = "user_initiated"
	LogoutReasonRefreshFailed LogoutReason = "refresh_failed"
)

type StateChange struct {
	From   AuthState
	To     AuthState
	Reason LogoutReason
	At     time.Time
}

// ID accepts both string and numeric identifiers on the wire.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*id = ID(value)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("core: id must be a string or number: %w", err)
	}
	*id = ID(number.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

type User struct {
	ID         ID     `json:"id"`
	Username   string `json:"username,omitempty"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
}

type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Scope    string `json:"scope,omitempty"`
}

type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type tokenSetWire struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}

func (t TokenSet) MarshalJSON() ([]byte, error) {
	wire := tokenSetWire{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}
	if !t.ExpiresAt.IsZero() {
		wire.ExpiresAt = t.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON accepts a bare access token string or an object using either
// camelCase or snake_case keys. expiresAt may be RFC3339 or epoch seconds or
// milliseconds; expiresIn is relative seconds.
func (t *TokenSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = TokenSet{}
		return nil
	}
	if data[0] == '"' {
		var access string
		if err := json.Unmarshal(data, &access); err != nil {
			return err
		}
		*t = TokenSet{AccessToken: access}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("core: token must be a string or object: %w", err)
	}
	out := TokenSet{
		AccessToken:  rawString(raw, "accessToken", "access_token", "token"),
		RefreshToken: rawString(raw, "refreshToken", "refresh_token"),
	}
	if value, ok := rawField(raw, "expiresAt", "expires_at"); ok {
		expiresAt, err := parseFlexibleTime(value)
		if err != nil {
			return err
		}
		out.ExpiresAt = expiresAt
	} else if value, ok := rawField(raw, "expiresIn", "expires_in"); ok {
		seconds, err := parseFlexibleNumber(value)
		if err != nil {
			return fmt.Errorf("core: expiresIn is invalid: %w", err)
		}
		if seconds > 0 {
			out.ExpiresAt = time.Now().UTC().Add(time.Duration(seconds * float64(time.Second)))
		}
	}
	*t = out
	return nil
}

func rawField(raw map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			continue
		}
		return value, true
	}
	return nil, false
}

func rawString(raw map[string]json.RawMessage, keys ...string) string {
	value, ok := rawField(raw, keys...)
	if !ok {
		return ""
	}
	var out string
	if err := json.Unmarshal(value, &out); err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func parseFlexibleTime(value json.RawMessage) (time.Time, error) {
	value = bytes.TrimSpace(value)
	if len(value) > 0 && value[0] == '"' {
		var text string
		if err := json.Unmarshal(value, &text); err != nil {
			return time.Time{}, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return time.Time{}, nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, text); err == nil {
			return parsed.UTC(), nil
		}
		if number, err := strconv.ParseFloat(text, 64); err == nil {
			return epochToTime(number), nil
		}
		return time.Time{}, fmt.Errorf("core: expiresAt %q is not a valid timestamp", text)
	}
	number, err := parseFlexibleNumber(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("core: expiresAt is invalid: %w", err)
	}
	return epochToTime(number), nil
}

func parseFlexibleNumber(value json.RawMessage) (float64, error) {
	var number json.Number
	if err := json.Unmarshal(value, &number); err != nil {
		return 0, err
	}
	return number.Float64()
}

func epochToTime(value float64) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	// values past year 33658 in seconds are treated as milliseconds
	if value >= 1e12 {
		return time.UnixMilli(int64(value)).UTC()
	}
	return time.Unix(int64(value), 0).UTC()
}

// Session is the authenticated user, their tokens and permissions.
type Session struct {
	User        User
	Token       TokenSet
	Permissions []Permission
}

func (s Session) clone() Session {
	s.Permissions = append([]Permission(nil), s.Permissions...)
	return s
}

type AuthPayload struct {
	User        *User        `json:"user,omitempty"`
	Token       TokenSet     `json:"token"`
	Permissions []Permission `json:"permissions"`
	// PermissionsSet reports whether the payload carried a permissions field.
	PermissionsSet bool `json:"-"`
}

func (p *AuthPayload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := AuthPayload{}
	if value, ok := rawField(raw, "user"); ok {
		var user User
		if err := json.Unmarshal(value, &user); err != nil {
			return fmt.Errorf("core: user is invalid: %w", err)
		}
		out.User = &user
	}
	if value, ok := rawField(raw, "token", "tokens"); ok {
		if err := json.Unmarshal(value, &out.Token); err != nil {
			return err
		}
	} else {
		// flat payloads carry token fields next to the user
		if err := json.Unmarshal(data, &out.Token); err != nil {
			return err
		}
	}
	if value, ok := rawField(raw, "permissions"); ok {
		if err := json.Unmarshal(value, &out.Permissions); err != nil {
			return fmt.Errorf("core: permissions are invalid: %w", err)
		}
		out.PermissionsSet = true
	}
	*p = out
	return nil
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string         `json:"username"`
	Password string         `json:"password"`
	Email    string         `json:"email,omitempty"`
	Name     string         `json:"name,omitempty"`
	Extra    map[string]any `json:"-"`
}

func (r RegisterRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+4)
	for key, value := range r.Extra {
		out[key] = value
	}
	out["username"] = r.Username
	out["password"] = r.Password
	if strings.TrimSpace(r.Email) != "" {
		out["email"] = r.Email
	}
	if strings.TrimSpace(r.Name) != "" {
		out["name"] = r.Name
	}
	return json.Marshal(out)
}

// FieldErrors maps a field name to its messages. Single string values on the
// wire are accepted as one-element lists.
type FieldErrors map[string][]string

func (f *FieldErrors) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(FieldErrors, len(raw))
	for field, value := range raw {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			out[field] = list
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err != nil {
			return fmt.Errorf("core: errors.%s must be a string or list of strings", field)
		}
		out[field] = []string{single}
	}
	*f = out
	return nil
}

func (f FieldErrors) clone() FieldErrors {
	if len(f) == 0 {
		return nil
	}
	out := make(FieldErrors, len(f))
	for field, messages := range f {
		out[field] = append([]string(nil), messages...)
	}
	return out
}

type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

// Envelope is the standard response wrapper.
type Envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
	Errors     FieldErrors     `json:"errors,omitempty"`
	Pagination *Pagination     `json:"pagination,omitempty"`
}

func (e Envelope) text() string {
	if message := strings.TrimSpace(e.Message); message != "" {
		return message
	}
	return strings.TrimSpace(e.Error)
}

type Page[T any] struct {
	Items      []T
	Pagination Pagination
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Data       json.RawMessage
	Message    string
	Pagination *Pagination
	RequestID  string
}

// RequestContext carries per-call bookkeeping through the pipeline.
type RequestContext struct {
	RequestID string
	Attempt   int
	StartedAt time.Time
}

type requestContextKey struct{}

func ContextWithRequest(ctx context.Context, reqCtx RequestContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestContextKey{}, reqCtx)
}

func RequestFromContext(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	reqCtx, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return reqCtx, ok
}
