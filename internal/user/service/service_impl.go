package service

import (
	"context"
	"errors"
	"net/mail"
	"slices"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	associationdomain "github.com/smallbiznis/caseline/internal/association/domain"
	auditdomain "github.com/smallbiznis/caseline/internal/audit/domain"
	"github.com/smallbiznis/caseline/internal/auth/password"
	"github.com/smallbiznis/caseline/internal/authorization"
	"github.com/smallbiznis/caseline/internal/clock"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/internal/scope"
	subscriptiondomain "github.com/smallbiznis/caseline/internal/subscription/domain"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const minPasswordLength = 8

var languages = []string{"en", "es", "fr"}

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         userdomain.Repository
	Associations associationdomain.Repository
	Authz        authorization.Service
	Subs         subscriptiondomain.Service
	AuditSvc     auditdomain.Service
	Notifier     notificationdomain.Dispatcher
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         userdomain.Repository
	associations associationdomain.Repository
	authz        authorization.Service
	subs         subscriptiondomain.Service
	auditSvc     auditdomain.Service
	notifier     notificationdomain.Dispatcher
}

func NewService(p ServiceParam) userdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("user.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		associations: p.Associations,
		authz:        p.Authz,
		subs:         p.Subs,
		auditSvc:     p.AuditSvc,
		notifier:     p.Notifier,
	}
}

func (s *Service) Create(ctx context.Context, req userdomain.CreateUserRequest) (*userdomain.User, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}

	email, verr := validateIdentity(req.Email, req.FirstName, req.LastName)
	if req.Password != "" && len(req.Password) < minPasswordLength {
		verr.Add("password", "min_length", "Ensure this field has at least 8 characters")
	}
	if req.Language != "" && !slices.Contains(languages, req.Language) {
		verr.Add("language", "", "Unsupported language")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	privileged := req.IsSuperuser || req.IsPlatformAdmin
	var account *userdomain.AccountInfo
	if privileged {
		if !p.IsSuperuser {
			return nil, authorization.ErrForbidden
		}
		if req.Language == "" {
			return nil, apperr.Invalid("language", "This field is required")
		}
	} else {
		if req.AccountID == nil || *req.AccountID == 0 {
			return nil, apperr.Invalid("account", "This field is required")
		}
		if err := s.authz.Check(ctx, p, authorization.ActionUserCreate, authorization.AccountTarget(*req.AccountID)); err != nil {
			return nil, err
		}
		if !p.IsSuperuser && !p.IsPlatformAdmin && *req.AccountID != p.AccountID {
			return nil, authorization.ErrForbidden
		}
		account, err = s.repo.Account(ctx, s.db, *req.AccountID)
		if err != nil {
			return nil, err
		}
	}

	groups, err := s.checkGroups(ctx, p, 0, account, req.Groups)
	if err != nil {
		return nil, err
	}

	if account != nil {
		if err := s.checkSeat(ctx, account.ID); err != nil {
			return nil, err
		}
	}

	if _, err := s.repo.FindByEmail(ctx, s.db, email); err == nil {
		return nil, userdomain.ErrEmailTaken
	} else if !errors.Is(err, userdomain.ErrUserNotFound) {
		return nil, err
	}

	raw := req.Password
	if raw == "" {
		raw = uuid.NewString()
	}
	hash, err := password.Hash(raw)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &userdomain.User{
		ID:              s.genID.Generate(),
		Email:           email,
		FirstName:       strings.TrimSpace(req.FirstName),
		LastName:        strings.TrimSpace(req.LastName),
		UserType:        principal.UserTypeUser,
		IsSuperuser:     req.IsSuperuser,
		IsPlatformAdmin: req.IsPlatformAdmin,
		IsActive:        true,
		PasswordHash:    &hash,
		Phone1:          strings.TrimSpace(req.Phone1),
		Language:        req.Language,
		Timezone:        req.Timezone,
		City:            req.City,
		State:           req.State,
		Country:         req.Country,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if account != nil {
		accountID := account.ID
		user.AccountID = &accountID
		user.Language = account.Language
	}
	user.Slug = userSlug(user)

	if err := s.repo.Insert(ctx, s.db, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, userdomain.ErrEmailTaken
		}
		return nil, err
	}

	if len(groups) > 0 {
		if err := s.authz.SetUserGroups(ctx, user.ID, groups); err != nil {
			return nil, err
		}
	}
	user.Groups = groups

	s.notify(ctx, notificationdomain.Event{
		Action:     "User Created",
		ToUserID:   user.ID,
		FromUserID: userRef(p),
		Context:    map[string]any{"email": user.Email, "name": user.FullName()},
	})
	s.audit(ctx, user, "user.created", map[string]any{"groups": groups})
	return user, nil
}

func (s *Service) Get(ctx context.Context, slugValue string) (*userdomain.User, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindBySlug(ctx, s.db, slugValue)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionUserView, userTarget(user)); err != nil {
		return nil, err
	}
	if err := s.withGroups(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) List(ctx context.Context, req userdomain.ListUserRequest) (userdomain.ListUserResponse, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return userdomain.ListUserResponse{}, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionUserList, nil); err != nil {
		return userdomain.ListUserResponse{}, err
	}
	codes, err := s.authz.Resolve(ctx, p, nil)
	if err != nil {
		return userdomain.ListUserResponse{}, err
	}

	page := req.Pagination.Normalize()
	scoped := scope.Apply(s.db.WithContext(ctx).Model(&userdomain.User{}), p, codes, scope.Users)
	items, total, err := s.repo.List(ctx, scoped, userdomain.ListFilter{
		AccountID: req.AccountID,
		UserType:  req.UserType,
		Search:    req.Search,
		IsActive:  req.IsActive,
		Offset:    (page.Page - 1) * page.PageSize,
		Limit:     page.PageSize,
	})
	if err != nil {
		return userdomain.ListUserResponse{}, err
	}
	return userdomain.ListUserResponse{
		PageInfo: page.Info(total),
		Users:    items,
	}, nil
}

func (s *Service) Update(ctx context.Context, slugValue string, req userdomain.UpdateUserRequest) (*userdomain.User, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindBySlug(ctx, s.db, slugValue)
	if err != nil {
		return nil, err
	}
	// Users may always edit their own profile fields.
	if p.UserID != user.ID {
		if err := s.authz.Check(ctx, p, authorization.ActionUserEdit, userTarget(user)); err != nil {
			return nil, err
		}
	}

	verr := &apperr.ValidationError{}
	fields := map[string]any{}
	setText := func(column string, value *string, required bool) {
		if value == nil {
			return
		}
		trimmed := strings.TrimSpace(*value)
		if required && trimmed == "" {
			verr.Add(column, "required", "This field may not be blank")
			return
		}
		fields[column] = trimmed
	}
	setText("first_name", req.FirstName, true)
	setText("last_name", req.LastName, true)
	setText("phone1", req.Phone1, false)
	setText("timezone", req.Timezone, false)
	setText("city", req.City, false)
	setText("state", req.State, false)
	setText("country", req.Country, false)
	if req.Language != nil {
		if !slices.Contains(languages, *req.Language) {
			verr.Add("language", "", "Unsupported language")
		} else {
			fields["language"] = *req.Language
		}
	}
	if req.IsActive != nil {
		if p.UserID == user.ID {
			verr.Add("is_active", "", "You cannot change your own active state")
		} else {
			fields["is_active"] = *req.IsActive
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	var groups []string
	if req.Groups != nil {
		if p.UserID == user.ID && !p.IsSuperuser {
			return nil, authorization.ErrForbidden
		}
		account, err := s.accountOf(ctx, user)
		if err != nil {
			return nil, err
		}
		groups, err = s.checkGroups(ctx, p, user.ID, account, *req.Groups)
		if err != nil {
			return nil, err
		}
	}

	if len(fields) > 0 {
		fields["updated_at"] = s.clock.Now()
		if err := s.repo.UpdateFields(ctx, s.db, user.ID, fields); err != nil {
			return nil, err
		}
	}
	if req.Groups != nil {
		if err := s.authz.SetUserGroups(ctx, user.ID, groups); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.FindByID(ctx, s.db, user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.withGroups(ctx, updated); err != nil {
		return nil, err
	}
	s.audit(ctx, updated, "user.updated", map[string]any{"fields": keys(fields), "groups_changed": req.Groups != nil})
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, slugValue string) error {
	p, err := principal.Require(ctx)
	if err != nil {
		return err
	}
	user, err := s.repo.FindBySlug(ctx, s.db, slugValue)
	if err != nil {
		return err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionUserDelete, userTarget(user)); err != nil {
		return err
	}
	if user.ID == p.UserID {
		return apperr.Conflict("You cannot delete your own user")
	}
	if err := s.repo.UpdateFields(ctx, s.db, user.ID, map[string]any{
		"is_active":  false,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return err
	}
	s.audit(ctx, user, "user.deactivated", nil)
	return nil
}

func (s *Service) SetGroups(ctx context.Context, slugValue string, groups []string) (*userdomain.User, error) {
	return s.Update(ctx, slugValue, userdomain.UpdateUserRequest{Groups: &groups})
}

func (s *Service) Me(ctx context.Context) (*userdomain.User, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, s.db, p.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.withGroups(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) ChangePassword(ctx context.Context, req userdomain.ChangePasswordRequest) error {
	p, err := principal.Require(ctx)
	if err != nil {
		return err
	}
	user, err := s.repo.FindByID(ctx, s.db, p.UserID)
	if err != nil {
		return err
	}
	if user.PasswordHash == nil || !password.Verify(req.CurrentPassword, *user.PasswordHash) {
		return apperr.Invalid("current_password", "Invalid password")
	}
	if len(req.NewPassword) < minPasswordLength {
		return apperr.Invalid("new_password", "Ensure this field has at least 8 characters")
	}
	hash, err := password.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateFields(ctx, s.db, user.ID, map[string]any{
		"password_hash": hash,
		"updated_at":    s.clock.Now(),
	}); err != nil {
		return err
	}
	s.audit(ctx, user, "user.password_changed", nil)
	return nil
}

func (s *Service) CreateSystemContact(ctx context.Context, tx *gorm.DB, req userdomain.CreateContactRequest) (*userdomain.User, error) {
	email, verr := validateIdentity(req.Email, req.FirstName, req.LastName)
	if req.AccountID == 0 {
		verr.Add("account", "required", "This field is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if tx == nil {
		tx = s.db
	}

	if _, err := s.repo.FindByEmail(ctx, tx, email); err == nil {
		return nil, userdomain.ErrEmailTaken
	} else if !errors.Is(err, userdomain.ErrUserNotFound) {
		return nil, err
	}

	account, err := s.repo.Account(ctx, tx, req.AccountID)
	if err != nil {
		return nil, err
	}
	hash, err := password.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	contact := &userdomain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		UserType:     principal.UserTypeContact,
		IsActive:     true,
		PasswordHash: &hash,
		Phone1:       strings.TrimSpace(req.Phone1),
		Language:     account.Language,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	contact.Slug = userSlug(contact)
	if err := s.repo.Insert(ctx, tx, contact); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, userdomain.ErrEmailTaken
		}
		return nil, err
	}

	err = s.associations.InsertContact(ctx, tx, &associationdomain.ContactAssociation{
		ID:            s.genID.Generate(),
		ContactUserID: contact.ID,
		AccountID:     account.ID,
		Accepted:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, err
	}
	return contact, nil
}

func (s *Service) AddGroup(ctx context.Context, userID snowflake.ID, group string) error {
	current, err := s.authz.GroupsOf(ctx, userID)
	if err != nil {
		return err
	}
	if slices.Contains(current, group) {
		return nil
	}
	return s.authz.SetUserGroups(ctx, userID, append(current, group))
}

func (s *Service) GroupsOf(ctx context.Context, userID snowflake.ID) ([]string, error) {
	return s.authz.GroupsOf(ctx, userID)
}

func (s *Service) AccountAdmin(ctx context.Context, accountID snowflake.ID) (*userdomain.User, error) {
	id, err := s.authz.AccountAdmin(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) UsersOfAccounts(ctx context.Context, accountIDs []snowflake.ID) ([]*userdomain.User, error) {
	return s.repo.ListByAccounts(ctx, s.db, accountIDs)
}

func (s *Service) FindByIDs(ctx context.Context, ids []snowflake.ID) ([]*userdomain.User, error) {
	return s.repo.ListByIDs(ctx, s.db, ids)
}

func (s *Service) Principal(ctx context.Context, userID snowflake.ID) (principal.Principal, error) {
	user, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return principal.Principal{}, err
	}
	if !user.IsActive {
		return principal.Principal{}, userdomain.ErrInactiveUser
	}

	p := principal.Principal{
		UserID:          user.ID,
		UserType:        user.UserType,
		IsSuperuser:     user.IsSuperuser,
		IsPlatformAdmin: user.IsPlatformAdmin,
	}
	if user.AccountID != nil {
		p.AccountID = *user.AccountID
		account, err := s.repo.Account(ctx, s.db, *user.AccountID)
		if err != nil {
			return principal.Principal{}, err
		}
		if account.ParentID != nil {
			p.ParentAccountID = *account.ParentID
		}
	}
	return p, nil
}

// checkGroups validates requested groups against the known ones. Account
// Admin is superuser only and unique per account.
func (s *Service) checkGroups(ctx context.Context, p principal.Principal, userID snowflake.ID, account *userdomain.AccountInfo, groups []string) ([]string, error) {
	if len(groups) == 0 {
		return []string{}, nil
	}
	known, err := s.authz.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(known))
	for _, g := range known {
		names = append(names, g.Name)
	}

	out := make([]string, 0, len(groups))
	for _, group := range groups {
		group = strings.TrimSpace(group)
		if !slices.Contains(names, group) {
			return nil, apperr.Invalid("groups", "Object with name="+group+" does not exist.")
		}
		if slices.Contains(out, group) {
			continue
		}
		out = append(out, group)
	}

	if !slices.Contains(out, authorization.GroupAccountAdmin) {
		return out, nil
	}
	if !p.IsSuperuser {
		return nil, userdomain.ErrAdminGroupForbidden
	}
	if account == nil {
		return out, nil
	}
	admin, err := s.authz.AccountAdmin(ctx, account.ID)
	switch {
	case errors.Is(err, authorization.ErrNoAccountAdmin):
		return out, nil
	case err != nil:
		return nil, err
	case admin != userID:
		return nil, userdomain.ErrAccountAdminExists
	}
	return out, nil
}

// checkSeat fails when the account has no current subscription or all of
// its seats are taken.
func (s *Service) checkSeat(ctx context.Context, accountID snowflake.ID) error {
	limit, err := s.subs.MaxUsers(ctx, accountID)
	if err != nil {
		return err
	}
	used, err := s.repo.CountByAccount(ctx, s.db, accountID)
	if err != nil {
		return err
	}
	if used >= int64(limit) {
		return userdomain.ErrUserLimitReached
	}
	return nil
}

func (s *Service) accountOf(ctx context.Context, user *userdomain.User) (*userdomain.AccountInfo, error) {
	if user.AccountID == nil {
		return nil, nil
	}
	return s.repo.Account(ctx, s.db, *user.AccountID)
}

func (s *Service) withGroups(ctx context.Context, user *userdomain.User) error {
	groups, err := s.authz.GroupsOf(ctx, user.ID)
	if err != nil {
		return err
	}
	user.Groups = groups
	return nil
}

func (s *Service) notify(ctx context.Context, events ...notificationdomain.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, events...)
}

func (s *Service) audit(ctx context.Context, user *userdomain.User, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := user.ID.String()
	if err := s.auditSvc.AuditLog(ctx, user.AccountID, "", nil, action, "user", &targetID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func validateIdentity(rawEmail, firstName, lastName string) (string, *apperr.ValidationError) {
	verr := &apperr.ValidationError{}
	email := strings.ToLower(strings.TrimSpace(rawEmail))
	if email == "" {
		verr.Add("email", "required", "This field is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		verr.Add("email", "", "Enter a valid email address")
	}
	if strings.TrimSpace(firstName) == "" {
		verr.Add("first_name", "required", "This field is required")
	}
	if strings.TrimSpace(lastName) == "" {
		verr.Add("last_name", "required", "This field is required")
	}
	return email, verr
}

func userSlug(u *userdomain.User) string {
	base := slug.Make(u.FirstName + " " + u.LastName)
	if base == "" {
		base = "user"
	}
	return base + "-" + strings.ToLower(u.ID.Base36())
}

func userTarget(u *userdomain.User) *authorization.Target {
	var accountID snowflake.ID
	if u.AccountID != nil {
		accountID = *u.AccountID
	}
	return authorization.UserTarget(u.ID, accountID)
}

func userRef(p principal.Principal) *snowflake.ID {
	if p.UserID == 0 {
		return nil
	}
	id := p.UserID
	return &id
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if k == "updated_at" {
			continue
		}
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
