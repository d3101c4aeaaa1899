package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"incidentdesk/config"
	"incidentdesk/core/audit"
	"incidentdesk/core/store"
	"incidentdesk/core/store/storetest"
	"incidentdesk/core/utils"
	"incidentdesk/core/validation"
)

var fastParams = Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type fixture struct {
	svc      *Service
	users    store.UsersStore
	sessions store.SessionsStore
	audits   store.AuditStore
	tokens   *TokenManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storetest.NewDB(t)
	logger := utils.NewLogger()
	cfg := &config.AppConfig{}
	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	audits := store.NewAuditStore(db)
	tokens := NewTokenManager("test-secret", "incidentdesk", 15*time.Minute, time.Hour)
	svc := NewService(cfg, users, NewSessionManager(sessions, 7*24*time.Hour, logger), tokens,
		NewPasswordHasher("pepper", fastParams), audit.NewRecorder(audits, logger), logger)
	return &fixture{svc: svc, users: users, sessions: sessions, audits: audits, tokens: tokens}
}

func (f *fixture) register(t *testing.T, username string) (*store.User, *Tokens) {
	t.Helper()
	u, tok, err := f.svc.Register(context.Background(), RegisterInput{Username: username, Email: username + "@example.com", Password: "Password123"})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return u, tok
}

func (f *fixture) countAudit(t *testing.T, action string) int {
	t.Helper()
	_, total, err := f.audits.List(context.Background(), store.AuditFilter{Action: action})
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	return total
}

func TestPasswordHasherRoundTrip(t *testing.T) {
	h := NewPasswordHasher("pepper", fastParams)
	hash, salt, err := h.Hash("Password123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if ok, err := h.Verify("Password123", hash, salt); err != nil || !ok {
		t.Fatalf("expected match, got %v %v", ok, err)
	}
	if ok, _ := h.Verify("password123", hash, salt); ok {
		t.Fatalf("expected mismatch for different password")
	}
	other := NewPasswordHasher("other-pepper", fastParams)
	if ok, _ := other.Verify("Password123", hash, salt); ok {
		t.Fatalf("pepper must be part of the key")
	}
	if _, err := h.Verify("x", "not-a-hash", salt); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected invalid hash, got %v", err)
	}
}

func TestRegisterRejectsDuplicateIdentity(t *testing.T) {
	f := newFixture(t)
	u, tok := f.register(t, "alice")
	if u.Role != "user" || tok.AccessToken == "" || tok.RefreshToken == "" {
		t.Fatalf("unexpected registration result %+v %+v", u, tok)
	}
	cases := []RegisterInput{
		{Username: "alice", Email: "other@example.com", Password: "Password123"},
		{Username: "alice2", Email: "ALICE@example.com", Password: "Password123"},
	}
	for _, in := range cases {
		if _, _, err := f.svc.Register(context.Background(), in); !errors.Is(err, ErrDuplicateIdentity) {
			t.Fatalf("expected duplicate identity for %+v, got %v", in, err)
		}
	}
	_, total, err := f.users.List(context.Background(), store.UserFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected exactly one account, got %d", total)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Register(context.Background(), RegisterInput{Username: "a!", Email: "nope", Password: "short"})
	var verr validation.Errors
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	if len(verr) < 4 {
		t.Fatalf("expected username, email and password messages, got %v", verr)
	}
}

func TestLoginLocksAfterFiveFailures(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	ctx := audit.WithRequest(context.Background(), audit.RequestInfo{IP: "198.51.100.4"})
	for i := 1; i <= 4; i++ {
		_, _, err := f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong-password"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, err)
		}
	}
	_, _, err := f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong-password"})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lock on 5th failure, got %v", err)
	}
	_, _, err = f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "Password123"})
	if !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("expected blocked even with right password, got %v", err)
	}
	u, err := f.users.FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if u.Status != store.UserStatusBlocked || u.FailedLoginAttempts != 5 {
		t.Fatalf("expected blocked with 5 failures, got %s/%d", u.Status, u.FailedLoginAttempts)
	}
	if n := f.countAudit(t, audit.ActionLoginFailed); n != 6 {
		t.Fatalf("expected one login_failed record per attempt (6), got %d", n)
	}
}

func TestLoginSuccessResetsCounter(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	ctx := audit.WithRequest(context.Background(), audit.RequestInfo{IP: "198.51.100.4"})
	if _, _, err := f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "bad-password"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	u, tok, err := f.svc.Login(ctx, LoginInput{Email: "Alice@Example.com", Password: "Password123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.FailedLoginAttempts != 0 || u.LastLoginIP != "198.51.100.4" || tok.ExpiresIn != 900 {
		t.Fatalf("unexpected login result %+v %+v", u, tok)
	}
	if _, _, err := f.svc.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "Password123"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
	p, err := f.svc.Authenticate(context.Background(), tok.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.UserID != u.ID || p.Role != "user" {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestRefreshReusesTokenAndChecksSession(t *testing.T) {
	f := newFixture(t)
	_, tok := f.register(t, "alice")
	next, err := f.svc.Refresh(context.Background(), tok.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken != tok.RefreshToken || next.AccessToken == "" {
		t.Fatalf("expected same refresh token and a new access token, got %+v", next)
	}
	id, _, _ := splitRefreshToken(tok.RefreshToken)
	for _, bad := range []string{"", "garbage", id + ".wrong-secret", "missing.secret"} {
		if _, err := f.svc.Refresh(context.Background(), bad); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("refresh %q: expected invalid refresh token, got %v", bad, err)
		}
	}
	if n := f.countAudit(t, audit.ActionTokenRefreshed); n != 1 {
		t.Fatalf("expected 1 token_refreshed record, got %d", n)
	}
}

func TestLogoutInvalidatesOnlyThatSession(t *testing.T) {
	f := newFixture(t)
	u, first := f.register(t, "alice")
	_, second, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "Password123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := f.svc.Logout(context.Background(), PrincipalOf(u), first.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected logged out session to fail, got %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), second.RefreshToken); err != nil {
		t.Fatalf("expected other session alive, got %v", err)
	}
	if err := f.svc.Logout(context.Background(), PrincipalOf(u), "unknown.token"); err != nil {
		t.Fatalf("logout with unknown token must succeed, got %v", err)
	}
}

func TestSessionsListsActiveOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, first := f.register(t, "alice")
	if _, _, err := f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "Password123"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	other, _ := f.register(t, "bob")

	got, err := f.svc.Sessions(ctx, PrincipalOf(u))
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(got))
	}
	for _, sess := range got {
		if sess.UserID != u.ID || !sess.IsValid {
			t.Fatalf("unexpected session %+v", sess)
		}
	}
	if err := f.svc.Logout(ctx, PrincipalOf(u), first.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	id, _, _ := splitRefreshToken(first.RefreshToken)
	got, err = f.svc.Sessions(ctx, PrincipalOf(u))
	if err != nil || len(got) != 1 || got[0].ID == id {
		t.Fatalf("expected only the remaining session, got %+v %v", got, err)
	}
	if _, err := f.svc.ChangePassword(ctx, PrincipalOf(other), "Password123", "NewPassword456"); err != nil {
		t.Fatalf("change: %v", err)
	}
	got, err = f.svc.Sessions(ctx, PrincipalOf(other))
	if err != nil || len(got) != 1 {
		t.Fatalf("expected only the post-change session, got %d %v", len(got), err)
	}
}

func TestChangePasswordInvalidatesAllSessions(t *testing.T) {
	f := newFixture(t)
	u, first := f.register(t, "alice")
	_, second, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "Password123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := f.svc.ChangePassword(context.Background(), PrincipalOf(u), "nope-nope", "NewPassword456"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	fresh, err := f.svc.ChangePassword(context.Background(), PrincipalOf(u), "Password123", "NewPassword456")
	if err != nil {
		t.Fatalf("change password: %v", err)
	}
	for _, tok := range []*Tokens{first, second} {
		if _, err := f.svc.Refresh(context.Background(), tok.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("expected pre-change refresh token to fail, got %v", err)
		}
	}
	if _, err := f.svc.Refresh(context.Background(), fresh.RefreshToken); err != nil {
		t.Fatalf("expected new session to work, got %v", err)
	}
	if _, _, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "NewPassword456"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if n := f.countAudit(t, audit.ActionPasswordChanged); n != 1 {
		t.Fatalf("expected 1 password_changed record, got %d", n)
	}
}

func TestAuthenticateRejectsStaleAndExpiredTokens(t *testing.T) {
	f := newFixture(t)
	u, _ := f.register(t, "alice")

	past := NewTokenManager("test-secret", "incidentdesk", 15*time.Minute, time.Hour)
	past.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := past.IssueAccess(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.svc.Authenticate(context.Background(), expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	forged := NewTokenManager("other-secret", "incidentdesk", 15*time.Minute, time.Hour)
	bad, _ := forged.IssueAccess(u)
	if _, err := f.svc.Authenticate(context.Background(), bad); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid for forged token, got %v", err)
	}
	reset, _ := f.tokens.IssueReset(u)
	if _, err := f.svc.Authenticate(context.Background(), reset); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("reset token must not authenticate, got %v", err)
	}

	earlier := NewTokenManager("test-secret", "incidentdesk", time.Hour, time.Hour)
	earlier.now = func() time.Time { return time.Now().Add(-5 * time.Minute) }
	stale, _ := earlier.IssueAccess(u)
	if _, err := f.svc.ChangePassword(context.Background(), PrincipalOf(u), "Password123", "NewPassword456"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := f.svc.Authenticate(context.Background(), stale); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected token issued before password change to fail, got %v", err)
	}

	u, err = f.users.Get(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	u.Status = store.UserStatusBlocked
	if err := f.users.Update(context.Background(), u); err != nil {
		t.Fatalf("block: %v", err)
	}
	live, _ := f.tokens.IssueAccess(u)
	if _, err := f.svc.Authenticate(context.Background(), live); !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("expected blocked, got %v", err)
	}
}

func TestTokenFromSameSecondAsPasswordChangeIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, _ := f.register(t, "alice")

	at := time.Now().UTC().Truncate(time.Second)
	f.tokens.now = func() time.Time { return at.Add(100 * time.Millisecond) }
	early, err := f.tokens.IssueAccess(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	f.svc.now = func() time.Time { return at.Add(700 * time.Millisecond) }
	fresh, err := f.svc.ChangePassword(ctx, PrincipalOf(u), "Password123", "NewPassword456")
	if err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, early); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected token from the same second to fail, got %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, fresh.AccessToken); err != nil {
		t.Fatalf("expected the token issued by the change to work, got %v", err)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newFixture(t)
	_, tok := f.register(t, "alice")
	token, err := f.svc.ForgotPassword(context.Background(), "ghost@example.com")
	if err != nil || token != "" {
		t.Fatalf("unknown email must not error or issue a token, got %q %v", token, err)
	}
	token, err = f.svc.ForgotPassword(context.Background(), "alice@example.com")
	if err != nil || token == "" {
		t.Fatalf("expected reset token, got %q %v", token, err)
	}
	if err := f.svc.ResetPassword(context.Background(), "bogus", "NewPassword456"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if err := f.svc.ResetPassword(context.Background(), token, "NewPassword456"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), tok.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected sessions revoked by reset, got %v", err)
	}
	if _, _, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "NewPassword456"}); err != nil {
		t.Fatalf("login after reset: %v", err)
	}
	if n := f.countAudit(t, audit.ActionPasswordResetRequest); n != 1 {
		t.Fatalf("expected 1 reset request record, got %d", n)
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	u, _ := f.register(t, "alice")
	first, dept := "Alice", "Security"
	got, err := f.svc.UpdateProfile(context.Background(), PrincipalOf(u), ProfileInput{FirstName: &first, Department: &dept})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.FirstName != "Alice" || got.Department != "Security" {
		t.Fatalf("unexpected profile %+v", got)
	}
	short := "A"
	_, err = f.svc.UpdateProfile(context.Background(), PrincipalOf(u), ProfileInput{LastName: &short})
	var verr validation.Errors
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
