// Package users implements superadmin account management.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"incidentdesk/core/audit"
	"incidentdesk/core/auth"
	"incidentdesk/core/notify"
	"incidentdesk/core/rbac"
	"incidentdesk/core/store"
	"incidentdesk/core/utils"
	"incidentdesk/core/validation"

	"github.com/gofrs/uuid/v5"
)

var (
	ErrForbidden  = errors.New("access denied")
	ErrSelfAction = errors.New("cannot perform this action on your own account")
)

type CreateInput struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Department string `json:"department"`
}

type UpdateInput struct {
	Email      *string `json:"email"`
	FirstName  *string `json:"firstName"`
	LastName   *string `json:"lastName"`
	Department *string `json:"department"`
}

type ListQuery struct {
	Role   string
	Status string
	Search string
	Page   int
	Limit  int
}

type Service struct {
	users    store.UsersStore
	sessions *auth.SessionManager
	hasher   *auth.PasswordHasher
	policy   *rbac.Policy
	audit    *audit.Recorder
	notify   notify.Publisher
	logger   *utils.Logger
	now      func() time.Time
}

func NewService(users store.UsersStore, sessions *auth.SessionManager, hasher *auth.PasswordHasher, policy *rbac.Policy, recorder *audit.Recorder, publisher notify.Publisher, logger *utils.Logger) *Service {
	return &Service{users: users, sessions: sessions, hasher: hasher, policy: policy, audit: recorder, notify: publisher, logger: logger, now: utils.NowUTC}
}

func (s *Service) authorize(actor *auth.Principal) error {
	if actor == nil || !s.policy.Allowed(actor.Role, rbac.PermUsersManage) {
		return ErrForbidden
	}
	return nil
}

func (s *Service) List(ctx context.Context, actor *auth.Principal, q ListQuery) ([]store.User, store.Pagination, error) {
	if err := s.authorize(actor); err != nil {
		return nil, store.Pagination{}, err
	}
	var v validation.Collector
	if q.Role != "" {
		v.OneOf("role", q.Role, rbac.AllRoles())
	}
	if q.Status != "" {
		v.OneOf("status", q.Status, []string{store.UserStatusActive, store.UserStatusBlocked, store.UserStatusPending})
	}
	if err := v.Err(); err != nil {
		return nil, store.Pagination{}, err
	}
	page, limit, offset := store.Page(q.Page, q.Limit, 10, 100)
	items, total, err := s.users.List(ctx, store.UserFilter{Role: q.Role, Status: q.Status, Search: q.Search, Limit: limit, Offset: offset})
	if err != nil {
		return nil, store.Pagination{}, err
	}
	return items, store.NewPagination(page, limit, total), nil
}

func (s *Service) Get(ctx context.Context, actor *auth.Principal, id string) (*store.User, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	return s.users.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, actor *auth.Principal, in CreateInput) (*store.User, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = utils.NormalizeEmail(in.Email)
	if in.Role == "" {
		in.Role = rbac.RoleUser
	}
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
	v.OneOf("role", in.Role, rbac.AllRoles())
	in.FirstName, in.LastName, in.Department = profile(&v, in.FirstName, in.LastName, in.Department)
	if err := v.Err(); err != nil {
		return nil, err
	}
	exists, err := s.users.ExistsByEmailOrUsername(ctx, in.Email, in.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, auth.ErrDuplicateIdentity
	}
	hash, salt, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	createdBy := actor.UserID
	u := &store.User{
		ID:           uuid.Must(uuid.NewV4()).String(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Salt:         salt,
		Role:         in.Role,
		Status:       store.UserStatusActive,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Department:   in.Department,
		CreatedBy:    &createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, auth.ErrDuplicateIdentity
		}
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionUserCreated, PerformedBy: actor.UserID, UserRole: actor.Role,
		TargetType: audit.TargetUser, TargetID: u.ID, After: snapshot(u),
		Description: "user created: " + u.Username,
	})
	return u, nil
}

func (s *Service) Update(ctx context.Context, actor *auth.Principal, id string, in UpdateInput) (*store.User, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := snapshot(u)
	var v validation.Collector
	if in.Email != nil {
		email := utils.NormalizeEmail(*in.Email)
		v.Email("email", email)
		if email != u.Email {
			other, err := s.users.FindByEmail(ctx, email)
			if err == nil && other.ID != u.ID {
				return nil, auth.ErrDuplicateIdentity
			}
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
		u.Email = email
	}
	first, last, dept := u.FirstName, u.LastName, u.Department
	if in.FirstName != nil {
		first = *in.FirstName
	}
	if in.LastName != nil {
		last = *in.LastName
	}
	if in.Department != nil {
		dept = *in.Department
	}
	u.FirstName, u.LastName, u.Department = profile(&v, first, last, dept)
	if err := v.Err(); err != nil {
		return nil, err
	}
	u.UpdatedAt = s.now()
	if err := s.users.Update(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, auth.ErrDuplicateIdentity
		}
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionUserUpdated, PerformedBy: actor.UserID, UserRole: actor.Role,
		TargetType: audit.TargetUser, TargetID: u.ID, Before: before, After: snapshot(u),
		Description: "user updated: " + u.Username,
	})
	return u, nil
}

func (s *Service) Delete(ctx context.Context, actor *auth.Principal, id string) error {
	if err := s.authorize(actor); err != nil {
		return err
	}
	if id == actor.UserID {
		return ErrSelfAction
	}
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionUserDeleted, PerformedBy: actor.UserID, UserRole: actor.Role,
		TargetType: audit.TargetUser, TargetID: id, Before: snapshot(u),
		Description: "user deleted: " + u.Username,
	})
	return nil
}

func (s *Service) ChangeRole(ctx context.Context, actor *auth.Principal, id, role string) (*store.User, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	var v validation.Collector
	if v.Required("role", role) {
		v.OneOf("role", role, rbac.AllRoles())
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	if id == actor.UserID {
		return nil, ErrSelfAction
	}
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := u.Role
	if prev == role {
		return u, nil
	}
	u.Role = role
	u.UpdatedAt = s.now()
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionUserRoleChanged, PerformedBy: actor.UserID, UserRole: actor.Role,
		TargetType: audit.TargetUser, TargetID: u.ID,
		Before: map[string]any{"role": prev}, After: map[string]any{"role": role},
		Description: "role changed from " + prev + " to " + role,
	})
	s.notify.Publish(ctx, notify.UserChannel(u.ID), notify.EventUserRoleChanged, map[string]any{
		"userId": u.ID, "oldRole": prev, "newRole": role,
		"message": "Your role has been changed to " + role,
	})
	return u, nil
}

// Block also revokes every session of the user.
func (s *Service) Block(ctx context.Context, actor *auth.Principal, id, reason string) (*store.User, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	if id == actor.UserID {
		return nil, ErrSelfAction
	}
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Status = store.UserStatusBlocked
	u.UpdatedAt = s.now()
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	if _, err := s.sessions.RevokeAll(ctx, u.ID); err != nil {
		s.logger.Errorf("revoke sessions for blocked user %s: %v", u.ID, err)
	}
	meta := map[string]any{}
	if reason = strings.TrimSpace(reason); reason != "" {
		meta["reason"] = reason
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionUserBlocked, PerformedBy: actor.UserID, UserRole: actor.Role,
		TargetType: audit.TargetUser, TargetID: u.ID, Metadata: meta,
		Description: "user blocked: " + u.Username,
	})
	return u, nil
}

func (s *Service) Unblock(ctx context.Context, actor *auth.Principal, id string) (*store.User, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Status = store.UserStatusActive
	u.FailedLoginAttempts = 0
	u.UpdatedAt = s.now()
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionUserUnblocked, PerformedBy: actor.UserID, UserRole: actor.Role,
		TargetType: audit.TargetUser, TargetID: u.ID,
		Description: "user unblocked: " + u.Username,
	})
	return u, nil
}

func profile(v *validation.Collector, first, last, dept string) (string, string, string) {
	first, last, dept = strings.TrimSpace(first), strings.TrimSpace(last), strings.TrimSpace(dept)
	if first != "" {
		v.Length("firstName", first, 2, 50)
	}
	if last != "" {
		v.Length("lastName", last, 2, 50)
	}
	v.Length("department", dept, 0, 100)
	return first, last, dept
}

func snapshot(u *store.User) map[string]any {
	return map[string]any{
		"username":   u.Username,
		"email":      u.Email,
		"role":       u.Role,
		"status":     u.Status,
		"firstName":  u.FirstName,
		"lastName":   u.LastName,
		"department": u.Department,
	}
}
