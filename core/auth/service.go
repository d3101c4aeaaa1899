package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"incidentdesk/config"
	"incidentdesk/core/audit"
	"incidentdesk/core/rbac"
	"incidentdesk/core/store"
	"incidentdesk/core/utils"
	"incidentdesk/core/validation"

	"github.com/gofrs/uuid/v5"
)

type RegisterInput struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Department string `json:"department"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProfileInput struct {
	FirstName  *string `json:"firstName"`
	LastName   *string `json:"lastName"`
	Department *string `json:"department"`
}

type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type Service struct {
	users     store.UsersStore
	sessions  *SessionManager
	tokens    *TokenManager
	hasher    *PasswordHasher
	audit     *audit.Recorder
	logger    *utils.Logger
	maxFailed int
	now       func() time.Time
}

func NewService(cfg *config.AppConfig, users store.UsersStore, sessions *SessionManager, tokens *TokenManager, hasher *PasswordHasher, recorder *audit.Recorder, logger *utils.Logger) *Service {
	return &Service{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		hasher:    hasher,
		audit:     recorder,
		logger:    logger,
		maxFailed: cfg.EffectiveMaxFailedLogins(),
		now:       utils.NowUTC,
	}
}

func (s *Service) Hasher() *PasswordHasher { return s.hasher }

func (s *Service) Register(ctx context.Context, in RegisterInput) (*store.User, *Tokens, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = utils.NormalizeEmail(in.Email)
	var v validation.Collector
	if v.Required("username", in.Username) {
		v.Alphanum("username", in.Username)
		v.Length("username", in.Username, 3, 50)
	}
	if v.Required("email", in.Email) {
		v.Email("email", in.Email)
	}
	if v.Required("password", in.Password) {
		v.Length("password", in.Password, 8, 128)
	}
	validateProfile(&v, &in.FirstName, &in.LastName, &in.Department)
	if err := v.Err(); err != nil {
		return nil, nil, err
	}
	exists, err := s.users.ExistsByEmailOrUsername(ctx, in.Email, in.Username)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, ErrDuplicateIdentity
	}
	hash, salt, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, nil, err
	}
	req := audit.RequestFrom(ctx)
	now := s.now()
	u := &store.User{
		ID:           uuid.Must(uuid.NewV4()).String(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Salt:         salt,
		Role:         rbac.RoleUser,
		Status:       store.UserStatusActive,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Department:   in.Department,
		LastLogin:    &now,
		LastLoginIP:  req.IP,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nil, ErrDuplicateIdentity
		}
		return nil, nil, err
	}
	tokens, err := s.issue(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionLoginSuccess, PerformedBy: u.ID, UserRole: u.Role,
		TargetType: audit.TargetUser, TargetID: u.ID,
		Description: "user registered", Metadata: map[string]any{"event": "register"},
	})
	return u, tokens, nil
}

func (s *Service) Login(ctx context.Context, in LoginInput) (*store.User, *Tokens, error) {
	email := utils.NormalizeEmail(in.Email)
	var v validation.Collector
	if v.Required("email", email) {
		v.Email("email", email)
	}
	v.Required("password", in.Password)
	if err := v.Err(); err != nil {
		return nil, nil, err
	}
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		s.loginFailed(ctx, nil, email, "unknown email")
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if u.Status != store.UserStatusActive {
		s.loginFailed(ctx, u, email, "account "+u.Status)
		return nil, nil, ErrAccountBlocked
	}
	ok, err := s.hasher.Verify(in.Password, u.PasswordHash, u.Salt)
	if err != nil {
		s.logger.Warnf("password verify user=%s: %v", u.ID, err)
	}
	now := s.now()
	if !ok {
		u.FailedLoginAttempts++
		locked := u.FailedLoginAttempts >= s.maxFailed
		if locked {
			u.Status = store.UserStatusBlocked
		}
		u.UpdatedAt = now
		if err := s.users.Update(ctx, u); err != nil {
			return nil, nil, err
		}
		if locked {
			s.loginFailed(ctx, u, email, "account locked after repeated failures")
			return nil, nil, ErrAccountLocked
		}
		s.loginFailed(ctx, u, email, "wrong password")
		return nil, nil, ErrInvalidCredentials
	}
	req := audit.RequestFrom(ctx)
	u.FailedLoginAttempts = 0
	u.LastLogin = &now
	u.LastLoginIP = req.IP
	u.UpdatedAt = now
	if err := s.users.Update(ctx, u); err != nil {
		return nil, nil, err
	}
	tokens, err := s.issue(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionLoginSuccess, PerformedBy: u.ID, UserRole: u.Role,
		TargetType: audit.TargetUser, TargetID: u.ID, Description: "user logged in",
	})
	return u, tokens, nil
}

func (s *Service) loginFailed(ctx context.Context, u *store.User, email, reason string) {
	e := audit.Entry{
		Action:       audit.ActionLoginFailed,
		TargetType:   audit.TargetUser,
		Status:       audit.StatusFailed,
		ErrorMessage: reason,
		Description:  "failed login for " + email,
		Metadata:     map[string]any{"email": email},
	}
	if u != nil {
		e.PerformedBy, e.UserRole, e.TargetID = u.ID, u.Role, u.ID
		e.Metadata["failedLoginAttempts"] = u.FailedLoginAttempts
	}
	s.audit.Record(ctx, e)
}

func (s *Service) issue(ctx context.Context, u *store.User) (*Tokens, error) {
	req := audit.RequestFrom(ctx)
	_, refresh, err := s.sessions.Create(ctx, u, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.IssueAccess(u)
	if err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.tokens.AccessTTL() / time.Second)}, nil
}

// Refresh issues a new access token; the refresh token stays the same.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	sess, err := s.sessions.Validate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}
	if u.Status != store.UserStatusActive {
		return nil, ErrInvalidRefreshToken
	}
	access, err := s.tokens.IssueAccess(u)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionTokenRefreshed, PerformedBy: u.ID, UserRole: u.Role,
		TargetType: audit.TargetUser, TargetID: u.ID, Metadata: map[string]any{"sessionId": sess.ID},
	})
	return &Tokens{AccessToken: access, RefreshToken: strings.TrimSpace(refreshToken), ExpiresIn: int64(s.tokens.AccessTTL() / time.Second)}, nil
}

// Logout invalidates the session behind refreshToken when it belongs to p.
// Unknown tokens are ignored so logout is idempotent.
func (s *Service) Logout(ctx context.Context, p *Principal, refreshToken string) error {
	meta := map[string]any{}
	if strings.TrimSpace(refreshToken) != "" {
		if id, _, ok := splitRefreshToken(refreshToken); ok {
			if sess, err := s.sessions.lookup(ctx, refreshToken); err == nil && sess.UserID == p.UserID {
				if _, err := s.sessions.Revoke(ctx, refreshToken); err != nil {
					return err
				}
				meta["sessionId"] = id
			} else if err != nil && !errors.Is(err, ErrInvalidRefreshToken) {
				return err
			}
		}
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionLogout, PerformedBy: p.UserID, UserRole: p.Role,
		TargetType: audit.TargetUser, TargetID: p.UserID, Metadata: meta,
	})
	return nil
}

// Sessions lists the caller's active sessions.
func (s *Service) Sessions(ctx context.Context, p *Principal) ([]store.Session, error) {
	sessions, err := s.sessions.ListActive(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	return sessions, nil
}

// ChangePassword invalidates every session of the user and opens a new one
// for the caller.
func (s *Service) ChangePassword(ctx context.Context, p *Principal, current, next string) (*Tokens, error) {
	var v validation.Collector
	v.Required("currentPassword", current)
	if v.Required("newPassword", next) {
		v.Length("newPassword", next, 8, 128)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	ok, err := s.hasher.Verify(current, u.PasswordHash, u.Salt)
	if err != nil {
		s.logger.Warnf("password verify user=%s: %v", u.ID, err)
	}
	if !ok {
		return nil, ErrPasswordMismatch
	}
	if err := s.setPassword(ctx, u, next); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionPasswordChanged, PerformedBy: u.ID, UserRole: u.Role,
		TargetType: audit.TargetUser, TargetID: u.ID, Description: "password changed",
	})
	return s.issue(ctx, u)
}

func (s *Service) setPassword(ctx context.Context, u *store.User, password string) error {
	hash, salt, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	now := s.now()
	u.PasswordHash, u.Salt = hash, salt
	u.PasswordChangedAt = &now
	u.UpdatedAt = now
	if err := s.users.Update(ctx, u); err != nil {
		return err
	}
	n, err := s.sessions.RevokeAll(ctx, u.ID)
	if err != nil {
		return err
	}
	s.logger.Printf("sessions revoked user=%s count=%d", u.ID, n)
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, p *Principal, in ProfileInput) (*store.User, error) {
	u, err := s.users.Get(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	before := map[string]any{"firstName": u.FirstName, "lastName": u.LastName, "department": u.Department}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Department != nil {
		u.Department = strings.TrimSpace(*in.Department)
	}
	var v validation.Collector
	validateProfile(&v, &u.FirstName, &u.LastName, &u.Department)
	if err := v.Err(); err != nil {
		return nil, err
	}
	u.UpdatedAt = s.now()
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionUserUpdated, PerformedBy: u.ID, UserRole: u.Role,
		TargetType: audit.TargetUser, TargetID: u.ID, Description: "profile updated",
		Before: before, After: map[string]any{"firstName": u.FirstName, "lastName": u.LastName, "department": u.Department},
	})
	return u, nil
}

// ForgotPassword returns a reset token for a known email and "" otherwise;
// callers answer success either way.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = utils.NormalizeEmail(email)
	var v validation.Collector
	if v.Required("email", email) {
		v.Email("email", email)
	}
	if err := v.Err(); err != nil {
		return "", err
	}
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	token, err := s.tokens.IssueReset(u)
	if err != nil {
		return "", err
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionPasswordResetRequest, PerformedBy: u.ID, UserRole: u.Role,
		TargetType: audit.TargetUser, TargetID: u.ID,
	})
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	claims, err := s.tokens.Parse(token, TokenTypeReset)
	if err != nil {
		return err
	}
	var v validation.Collector
	if v.Required("password", password) {
		v.Length("password", password, 8, 128)
	}
	if err := v.Err(); err != nil {
		return err
	}
	u, err := s.users.Get(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return ErrTokenInvalid
	}
	if err != nil {
		return err
	}
	if passwordChangedSince(claims, u) {
		return ErrTokenInvalid
	}
	if err := s.setPassword(ctx, u, password); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionPasswordChanged, PerformedBy: u.ID, UserRole: u.Role,
		TargetType: audit.TargetUser, TargetID: u.ID, Description: "password reset",
		Metadata: map[string]any{"via": "reset"},
	})
	return nil
}

// Authenticate resolves an access token to the current state of its user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	claims, err := s.tokens.Parse(accessToken, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	if u.Status == store.UserStatusBlocked {
		return nil, ErrAccountBlocked
	}
	if passwordChangedSince(claims, u) {
		return nil, ErrTokenInvalid
	}
	return PrincipalOf(u), nil
}

// passwordChangedSince reports whether the password changed after the token
// was signed. The signed version is compared instead of iat, which only has
// second precision.
func passwordChangedSince(claims *Claims, u *store.User) bool {
	return claims.PasswordVersion != passwordVersion(u)
}

func validateProfile(v *validation.Collector, first, last, dept *string) {
	*first, *last, *dept = strings.TrimSpace(*first), strings.TrimSpace(*last), strings.TrimSpace(*dept)
	if *first != "" {
		v.Length("firstName", *first, 2, 50)
	}
	if *last != "" {
		v.Length("lastName", *last, 2, 50)
	}
	v.Length("department", *dept, 0, 100)
}
