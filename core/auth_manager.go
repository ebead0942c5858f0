package core

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const refreshFlightKey = "session-refresh"

type AuthManagerDependencies struct {
	Storage         StorageAdapter
	SecretProvider  SecretProvider
	Logger          Logger
	MetricsRecorder MetricsRecorder
	Clock           func() time.Time
}

// AuthManager owns the session lifecycle. It is the only writer of the
// persisted session and keeps at most one refresh in flight.
type AuthManager struct {
	cfg             AuthConfig
	gateway         AuthGateway
	storage         StorageAdapter
	secrets         SecretProvider
	logger          Logger
	metricsRecorder MetricsRecorder
	now             func() time.Time

	mu         sync.RWMutex
	state      AuthState
	reason     LogoutReason
	session    *Session
	generation uint64

	refreshGroup singleflight.Group
	// persistMu orders storage writes against logout removals.
	persistMu sync.Mutex

	listenersMu    sync.RWMutex
	listeners      map[int]func(StateChange)
	nextListenerID int
}

type persistedSession struct {
	IsAuthenticated bool         `json:"isAuthenticated"`
	User            *User        `json:"user"`
	Token           *TokenSet    `json:"token"`
	Permissions     []Permission `json:"permissions"`
}

func NewAuthManager(cfg AuthConfig, gateway AuthGateway, deps AuthManagerDependencies) (*AuthManager, error) {
	if gateway == nil {
		return nil, fmt.Errorf("core: auth gateway is required")
	}
	if strings.TrimSpace(cfg.SessionKey) == "" {
		cfg.SessionKey = DefaultSessionKey
	}
	if strings.TrimSpace(cfg.AdminRole) == "" {
		cfg.AdminRole = DefaultAdminRole
	}
	if cfg.DefaultTokenTTL <= 0 {
		cfg.DefaultTokenTTL = DefaultTokenTTL
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	manager := &AuthManager{
		cfg:             cfg,
		gateway:         gateway,
		storage:         deps.Storage,
		secrets:         deps.SecretProvider,
		logger:          deps.Logger,
		metricsRecorder: deps.MetricsRecorder,
		now:             deps.Clock,
		state:           AuthStateAnonymous,
		listeners:       map[int]func(StateChange){},
	}
	if manager.storage == nil {
		manager.storage = NopStorage{}
	}
	if manager.metricsRecorder == nil {
		manager.metricsRecorder = NopMetricsRecorder{}
	}
	if manager.now == nil {
		manager.now = utcNow
	}
	return manager, nil
}

func (m *AuthManager) Login(ctx context.Context, credentials Credentials) (session Session, err error) {
	if m == nil {
		return Session{}, fmt.Errorf("core: auth manager is not configured")
	}
	startedAt := m.now()
	defer func() {
		m.observe(ctx, startedAt, "login", err, map[string]any{"username": credentials.Username})
	}()

	fields := FieldErrors{}
	if strings.TrimSpace(credentials.Username) == "" {
		fields["username"] = []string{"required"}
	}
	if credentials.Password == "" {
		fields["password"] = []string{"required"}
	}
	if len(fields) > 0 {
		return Session{}, newValidationError("username and password are required", fields)
	}

	previous := m.beginAuthenticating()
	payload, err := m.gateway.Login(ctx, credentials)
	if err == nil {
		err = checkAuthPayload(payload)
	}
	if err != nil {
		m.restoreState(previous)
		return Session{}, ClassifyError(err)
	}
	return m.establish(ctx, payload)
}

// Register creates an account. When the server does not issue tokens with
// the registration response, the new credentials are used to log in.
func (m *AuthManager) Register(ctx context.Context, req RegisterRequest) (session Session, err error) {
	if m == nil {
		return Session{}, fmt.Errorf("core: auth manager is not configured")
	}
	startedAt := m.now()
	defer func() {
		m.observe(ctx, startedAt, "register", err, map[string]any{"username": req.Username})
	}()

	fields := FieldErrors{}
	if strings.TrimSpace(req.Username) == "" {
		fields["username"] = []string{"required"}
	}
	if req.Password == "" {
		fields["password"] = []string{"required"}
	}
	if len(fields) > 0 {
		return Session{}, newValidationError("username and password are required", fields)
	}

	previous := m.beginAuthenticating()
	payload, err := m.gateway.Register(ctx, req)
	if err != nil {
		m.restoreState(previous)
		return Session{}, ClassifyError(err)
	}
	if strings.TrimSpace(payload.Token.AccessToken) != "" && payload.User != nil {
		return m.establish(ctx, payload)
	}
	payload, err = m.gateway.Login(ctx, Credentials{Username: req.Username, Password: req.Password})
	if err == nil {
		err = checkAuthPayload(payload)
	}
	if err != nil {
		m.restoreState(previous)
		return Session{}, ClassifyError(err)
	}
	return m.establish(ctx, payload)
}

func (m *AuthManager) Logout(ctx context.Context) {
	if m == nil {
		return
	}
	startedAt := m.now()
	m.logout(ctx, LogoutReasonUserInitiated)
	m.observe(ctx, startedAt, "logout", nil, map[string]any{"reason": string(LogoutReasonUserInitiated)})
}

// Refresh exchanges the refresh token for a new token set. Concurrent callers
// share one in-flight exchange; the exchange is detached from any single
// caller's cancellation.
func (m *AuthManager) Refresh(ctx context.Context) (Session, error) {
	return m.refresh(ctx, "")
}

func (m *AuthManager) refresh(ctx context.Context, staleToken string) (Session, error) {
	if m == nil {
		return Session{}, fmt.Errorf("core: auth manager is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	flight := m.refreshGroup.DoChan(refreshFlightKey, func() (any, error) {
		return m.runRefresh(context.WithoutCancel(ctx), staleToken)
	})
	select {
	case <-ctx.Done():
		return Session{}, ClassifyError(ctx.Err())
	case result := <-flight:
		if result.Err != nil {
			return Session{}, result.Err
		}
		return result.Val.(Session).clone(), nil
	}
}

// runRefresh skips the exchange when staleToken was already replaced by a
// refresh that completed earlier.
func (m *AuthManager) runRefresh(ctx context.Context, staleToken string) (session Session, err error) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return Session{}, newTypedError(KindAuth, "no active session", 0, false, nil, nil)
	}
	if staleToken != "" && m.session.Token.AccessToken != staleToken &&
		!ResolveTokenState(m.now(), m.session.Token, m.cfg.ExpiryLeeway).IsExpired {
		current := m.session.clone()
		m.mu.Unlock()
		return current, nil
	}

	startedAt := m.now()
	defer func() {
		m.observe(ctx, startedAt, "refresh", err, nil)
	}()
	current := m.session.clone()
	generation := m.generation
	from := m.state
	m.state = AuthStateRefreshing
	m.mu.Unlock()
	m.notify(StateChange{From: from, To: AuthStateRefreshing, At: m.now()})

	if strings.TrimSpace(current.Token.RefreshToken) == "" {
		m.logoutGeneration(ctx, LogoutReasonRefreshFailed, generation)
		return Session{}, newTypedError(KindAuth, "session cannot be refreshed", 0, false, nil, nil)
	}

	refreshCtx, cancel := context.WithTimeout(ctx, m.cfg.RefreshTimeout)
	payload, err := m.gateway.Refresh(refreshCtx, current.Token.RefreshToken)
	cancel()
	if err != nil {
		m.logoutGeneration(ctx, LogoutReasonRefreshFailed, generation)
		status, _ := ClassifyError(err).HTTPStatus()
		return Session{}, newTypedError(KindAuth, "session refresh failed", status, false, nil, err)
	}
	if strings.TrimSpace(payload.Token.AccessToken) == "" {
		m.logoutGeneration(ctx, LogoutReasonRefreshFailed, generation)
		return Session{}, newTypedError(KindAuth, "session refresh returned no access token", 0, false, nil, nil)
	}

	next := current
	next.Token = resolveTokenExpiry(payload.Token, m.now(), m.cfg.DefaultTokenTTL)
	if next.Token.RefreshToken == "" {
		next.Token.RefreshToken = current.Token.RefreshToken
	}
	if payload.User != nil {
		next.User = *payload.User
	}
	if payload.PermissionsSet {
		next.Permissions = append([]Permission(nil), payload.Permissions...)
	}

	m.mu.Lock()
	if m.generation != generation || m.session == nil {
		// logged out while the exchange was in flight
		m.mu.Unlock()
		return Session{}, newTypedError(KindAuth, "session ended during refresh", 0, false, nil, nil)
	}
	m.session = &next
	m.state = AuthStateAuthenticated
	m.mu.Unlock()

	m.persist(ctx, next, generation)
	m.notify(StateChange{From: AuthStateRefreshing, To: AuthStateAuthenticated, At: m.now()})
	return next.clone(), nil
}

// Restore loads the persisted session. Expired or unreadable sessions are
// discarded and the manager becomes anonymous.
func (m *AuthManager) Restore(ctx context.Context) AuthState {
	if m == nil {
		return AuthStateAnonymous
	}
	startedAt := m.now()
	session, ok := m.readPersisted(ctx)

	m.mu.Lock()
	from := m.state
	m.generation++
	if ok {
		m.session = &session
		m.state = AuthStateAuthenticated
	} else {
		m.session = nil
		m.state = AuthStateAnonymous
	}
	m.reason = LogoutReasonNone
	to := m.state
	m.mu.Unlock()

	m.observe(ctx, startedAt, "restore", nil, map[string]any{"state": string(to)})
	if from != to {
		m.notify(StateChange{From: from, To: to, At: m.now()})
	}
	return to
}

// AccessToken returns the bearer token for the next request, refreshing first
// when the current one has expired. Anonymous callers get an empty token.
func (m *AuthManager) AccessToken(ctx context.Context) (string, error) {
	if m == nil {
		return "", nil
	}
	m.mu.RLock()
	if m.session == nil {
		m.mu.RUnlock()
		return "", nil
	}
	token := m.session.Token
	m.mu.RUnlock()

	if !ShouldRefreshToken(ResolveTokenState(m.now(), token, m.cfg.ExpiryLeeway)) {
		return token.AccessToken, nil
	}
	session, err := m.refresh(ctx, token.AccessToken)
	if err != nil {
		return "", err
	}
	return session.Token.AccessToken, nil
}

// RefreshAfterUnauthorized refreshes unless another caller already replaced
// the stale token.
func (m *AuthManager) RefreshAfterUnauthorized(ctx context.Context, staleToken string) (string, error) {
	session, err := m.refresh(ctx, staleToken)
	if err != nil {
		return "", err
	}
	return session.Token.AccessToken, nil
}

func (m *AuthManager) State() AuthState {
	if m == nil {
		return AuthStateAnonymous
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LogoutReason reports why the last logout happened.
func (m *AuthManager) LogoutReason() LogoutReason {
	if m == nil {
		return LogoutReasonNone
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reason
}

// IsAuthenticated reports whether a session is held, including while a
// refresh or a re-login is in flight.
func (m *AuthManager) IsAuthenticated() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil
}

func (m *AuthManager) Session() (Session, bool) {
	if m == nil {
		return Session{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return Session{}, false
	}
	return m.session.clone(), true
}

func (m *AuthManager) User() (User, bool) {
	session, ok := m.Session()
	return session.User, ok
}

func (m *AuthManager) Permissions() []Permission {
	session, _ := m.Session()
	return session.Permissions
}

// HasPermission reports whether the session grants resource:action. The admin
// role implies every permission.
func (m *AuthManager) HasPermission(resource, action string) bool {
	session, ok := m.Session()
	if !ok {
		return false
	}
	if sameRole(session.User.Role, m.cfg.AdminRole) {
		return true
	}
	for _, permission := range session.Permissions {
		if permission.Resource == resource && permission.Action == action {
			return true
		}
	}
	return false
}

func (m *AuthManager) HasRole(role string) bool {
	session, ok := m.Session()
	return ok && sameRole(session.User.Role, role)
}

func (m *AuthManager) HasAnyRole(roles ...string) bool {
	session, ok := m.Session()
	if !ok {
		return false
	}
	for _, role := range roles {
		if sameRole(session.User.Role, role) {
			return true
		}
	}
	return false
}

// sameRole compares role names case-insensitively.
func sameRole(held, wanted string) bool {
	return strings.TrimSpace(wanted) != "" && strings.EqualFold(strings.TrimSpace(held), strings.TrimSpace(wanted))
}

// Subscribe registers a state change listener and returns its cancel func.
// Listeners run synchronously after the transition is committed.
func (m *AuthManager) Subscribe(listener func(StateChange)) func() {
	if m == nil || listener == nil {
		return func() {}
	}
	m.listenersMu.Lock()
	id := m.nextListenerID
	m.nextListenerID++
	m.listeners[id] = listener
	m.listenersMu.Unlock()
	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

type stateSnapshot struct {
	state      AuthState
	reason     LogoutReason
	session    *Session
	generation uint64
}

func (m *AuthManager) beginAuthenticating() stateSnapshot {
	m.mu.Lock()
	previous := stateSnapshot{state: m.state, reason: m.reason, session: m.session}
	m.state = AuthStateAuthenticating
	m.generation++
	previous.generation = m.generation
	m.mu.Unlock()
	m.notify(StateChange{From: previous.state, To: AuthStateAuthenticating, At: m.now()})
	return previous
}

func (m *AuthManager) restoreState(previous stateSnapshot) {
	m.mu.Lock()
	if m.generation != previous.generation || m.state != AuthStateAuthenticating {
		m.mu.Unlock()
		return
	}
	m.state = previous.state
	m.reason = previous.reason
	m.session = previous.session
	m.mu.Unlock()
	m.notify(StateChange{From: AuthStateAuthenticating, To: previous.state, Reason: previous.reason, At: m.now()})
}

func checkAuthPayload(payload AuthPayload) error {
	if payload.User == nil || strings.TrimSpace(payload.Token.AccessToken) == "" {
		return newTypedError(KindUnknown, "authentication response is missing the user or token", 0, false, nil, ErrMalformedResponse)
	}
	return nil
}

func (m *AuthManager) establish(ctx context.Context, payload AuthPayload) (Session, error) {
	session := Session{
		User:        *payload.User,
		Token:       resolveTokenExpiry(payload.Token, m.now(), m.cfg.DefaultTokenTTL),
		Permissions: append([]Permission(nil), payload.Permissions...),
	}

	m.mu.Lock()
	from := m.state
	m.session = &session
	m.state = AuthStateAuthenticated
	m.reason = LogoutReasonNone
	m.generation++
	generation := m.generation
	m.mu.Unlock()

	m.persist(ctx, session, generation)
	m.notify(StateChange{From: from, To: AuthStateAuthenticated, At: m.now()})
	return session.clone(), nil
}

func (m *AuthManager) logout(ctx context.Context, reason LogoutReason) {
	m.logoutGeneration(ctx, reason, 0)
}

// logoutGeneration ends the session only while it is still the one started
// at generation. Zero ends whatever session is current.
func (m *AuthManager) logoutGeneration(ctx context.Context, reason LogoutReason, generation uint64) bool {
	m.persistMu.Lock()
	m.mu.Lock()
	if generation != 0 && m.generation != generation {
		m.mu.Unlock()
		m.persistMu.Unlock()
		return false
	}
	from := m.state
	m.session = nil
	m.reason = reason
	m.generation++
	if reason == LogoutReasonNone {
		m.state = AuthStateAnonymous
	} else {
		m.state = AuthStateLoggedOut
	}
	to := m.state
	m.mu.Unlock()

	m.storage.Remove(ctx, m.cfg.SessionKey)
	m.persistMu.Unlock()

	m.notify(StateChange{From: from, To: to, Reason: reason, At: m.now()})
	return true
}

// persist writes the session unless a later login, logout or restore has
// superseded generation.
func (m *AuthManager) persist(ctx context.Context, session Session, generation uint64) {
	user := session.User
	token := session.Token
	payload, err := json.Marshal(persistedSession{
		IsAuthenticated: true,
		User:            &user,
		Token:           &token,
		Permissions:     session.Permissions,
	})
	if err != nil {
		m.logWithLevel(ctx, "error", "session encode failed", map[string]any{"error": err.Error()})
		return
	}
	value := string(payload)
	if m.secrets != nil {
		sealed, err := m.secrets.Encrypt(ctx, payload)
		if err != nil {
			m.logWithLevel(ctx, "error", "session encrypt failed", map[string]any{"error": err.Error()})
			return
		}
		value = base64.StdEncoding.EncodeToString(sealed)
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.mu.RLock()
	current := m.generation == generation && m.session != nil
	m.mu.RUnlock()
	if !current {
		m.logWithLevel(ctx, "debug", "stale session write dropped", nil)
		return
	}
	m.storage.Set(ctx, m.cfg.SessionKey, value)
}

func (m *AuthManager) readPersisted(ctx context.Context) (Session, bool) {
	value, ok := m.storage.Get(ctx, m.cfg.SessionKey)
	if !ok || strings.TrimSpace(value) == "" {
		return Session{}, false
	}
	discard := func(reason string, err error) (Session, bool) {
		fields := map[string]any{"reason": reason}
		if err != nil {
			fields["error"] = err.Error()
		}
		m.logWithLevel(ctx, "warn", "persisted session discarded", fields)
		m.storage.Remove(ctx, m.cfg.SessionKey)
		return Session{}, false
	}

	payload := []byte(value)
	if m.secrets != nil {
		sealed, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return discard("decode", err)
		}
		payload, err = m.secrets.Decrypt(ctx, sealed)
		if err != nil {
			return discard("decrypt", err)
		}
	}
	var persisted persistedSession
	if err := json.Unmarshal(payload, &persisted); err != nil {
		return discard("corrupt", err)
	}
	if !persisted.IsAuthenticated || persisted.User == nil || persisted.Token == nil ||
		strings.TrimSpace(persisted.Token.AccessToken) == "" {
		return discard("incomplete", nil)
	}
	if persisted.Token.ExpiresAt.IsZero() || !persisted.Token.ExpiresAt.After(m.now()) {
		return discard("expired", nil)
	}
	return Session{
		User:        *persisted.User,
		Token:       *persisted.Token,
		Permissions: persisted.Permissions,
	}, true
}

func (m *AuthManager) notify(change StateChange) {
	if change.From == change.To {
		return
	}
	m.listenersMu.RLock()
	listeners := make([]func(StateChange), 0, len(m.listeners))
	for _, listener := range m.listeners {
		listeners = append(listeners, listener)
	}
	m.listenersMu.RUnlock()
	for _, listener := range listeners {
		listener(change)
	}
}

func (m *AuthManager) observe(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	observeOperation(ctx, m.logger, m.metricsRecorder, m.now().Sub(startedAt), "auth."+operation, err, fields)
}

func (m *AuthManager) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	logWithLevel(ctx, m.logger, level, message, fields)
}
