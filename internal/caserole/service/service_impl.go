package service

import (
	"context"
	"slices"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/caseline/internal/audit/domain"
	"github.com/smallbiznis/caseline/internal/authorization"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
	"github.com/smallbiznis/caseline/internal/clock"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     caseroledomain.Repository
	Users    userdomain.Repository
	Authz    authorization.Service
	AuditSvc auditdomain.Service           `optional:"true"`
	Notifier notificationdomain.Dispatcher `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     caseroledomain.Repository
	users    userdomain.Repository
	authz    authorization.Service
	auditSvc auditdomain.Service
	notifier notificationdomain.Dispatcher
}

func NewService(p ServiceParam) caseroledomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("caserole.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		users:    p.Users,
		authz:    p.Authz,
		auditSvc: p.AuditSvc,
		notifier: p.Notifier,
	}
}

func (s *Service) EnsureDefaults(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		for _, name := range caseroledomain.DefaultRoles {
			role, err := s.repo.EnsureRole(ctx, tx, &caseroledomain.DefaultRole{
				ID:        s.genID.Generate(),
				Name:      name,
				Slug:      slug.Make(name),
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
			for _, code := range caseroledomain.DefaultRoleCodes[name] {
				perm, err := s.repo.EnsurePermission(ctx, tx, &caseroledomain.CasePermission{
					ID:   s.genID.Generate(),
					Code: string(code),
				})
				if err != nil {
					return err
				}
				err = s.repo.LinkPermission(ctx, tx, &caseroledomain.CaseRolePermission{
					ID:            s.genID.Generate(),
					DefaultRoleID: role.ID,
					PermissionID:  perm.ID,
				})
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Service) Roles(ctx context.Context) ([]*caseroledomain.DefaultRole, error) {
	return s.repo.ListRoles(ctx, s.db)
}

func (s *Service) Reconcile(ctx context.Context, tx *gorm.DB, ref caseroledomain.CaseRef, desired caseroledomain.Assignment) (*caseroledomain.Result, error) {
	result := &caseroledomain.Result{Case: ref}
	if len(desired) == 0 {
		return result, nil
	}

	roles, err := s.roleIndex(ctx, tx)
	if err != nil {
		return nil, err
	}
	verr := &apperr.ValidationError{}
	for name := range desired {
		if _, ok := roles[name]; !ok {
			verr.Add("roles."+name, "unknown", "Unknown case role")
		}
	}
	if users := compact(desired[caseroledomain.RoleParent]); len(users) > 1 {
		verr.Add("roles."+caseroledomain.RoleParent, "invalid", "A case can have only one parent")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListByCase(ctx, tx, ref.ID)
	if err != nil {
		return nil, err
	}
	held := make(map[snowflake.ID][]snowflake.ID)
	for _, row := range existing {
		held[row.DefaultRoleID] = append(held[row.DefaultRoleID], row.UserID)
	}

	type addition struct {
		role   *caseroledomain.DefaultRole
		userID snowflake.ID
	}
	var additions []addition
	for _, name := range caseroledomain.DefaultRoles {
		submitted, ok := desired[name]
		if !ok {
			continue
		}
		role := roles[name]
		submitted = compact(submitted)
		current := held[role.ID]
		for _, userID := range current {
			if slices.Contains(submitted, userID) {
				continue
			}
			if err := s.repo.Delete(ctx, tx, ref.ID, role.ID, userID); err != nil {
				return nil, err
			}
			result.Unassigned = append(result.Unassigned, caseroledomain.Change{Role: name, UserID: userID})
		}
		for _, userID := range submitted {
			if !slices.Contains(current, userID) {
				additions = append(additions, addition{role: role, userID: userID})
			}
		}
	}

	if len(additions) > 0 {
		ids := make([]snowflake.ID, 0, len(additions))
		for _, a := range additions {
			ids = append(ids, a.userID)
		}
		found, err := s.users.ListByIDs(ctx, tx, compact(ids))
		if err != nil {
			return nil, err
		}
		byID := make(map[snowflake.ID]*userdomain.User, len(found))
		for _, u := range found {
			byID[u.ID] = u
		}

		now := s.clock.Now()
		rows := make([]*caseroledomain.CaseRole, 0, len(additions))
		for _, a := range additions {
			field := "roles." + a.role.Name
			u, ok := byID[a.userID]
			if !ok {
				verr.Add(field, "not_found", "User does not exist")
				continue
			}
			if msg := s.eligible(ctx, a.role.Name, u, ref); msg != "" {
				verr.Add(field, "invalid", msg)
				continue
			}
			rows = append(rows, &caseroledomain.CaseRole{
				ID:            s.genID.Generate(),
				CaseID:        ref.ID,
				DefaultRoleID: a.role.ID,
				UserID:        u.ID,
				CreatedAt:     now,
			})
			result.Assigned = append(result.Assigned, caseroledomain.Change{Role: a.role.Name, UserID: u.ID})
		}
		if err := verr.OrNil(); err != nil {
			return nil, err
		}
		if err := s.repo.Insert(ctx, tx, rows); err != nil {
			return nil, err
		}
	}

	if parents, ok := desired[caseroledomain.RoleParent]; ok {
		var parent *snowflake.ID
		if ids := compact(parents); len(ids) == 1 {
			parent = &ids[0]
		}
		if err := s.repo.SetParentUser(ctx, tx, ref.ID, parent); err != nil {
			return nil, err
		}
		result.ParentUserID = parent
	}
	return result, nil
}

// eligible returns why u cannot hold role on the case, or "".
func (s *Service) eligible(ctx context.Context, role string, u *userdomain.User, ref caseroledomain.CaseRef) string {
	if !u.IsActive {
		return "User is inactive"
	}
	groups, err := s.authz.GroupsOf(ctx, u.ID)
	if err != nil {
		s.log.Warn("group lookup failed", zap.String("user_id", u.ID.String()), zap.Error(err))
		return "User groups could not be resolved"
	}
	if slices.Contains(groups, authorization.GroupBiomedicalUser) {
		return "Biomedical users can not hold case roles"
	}

	switch role {
	case caseroledomain.RoleCaseManager:
		if u.AccountID == nil {
			return "account is required"
		}
		if *u.AccountID != ref.AccountID {
			return "User's and case account must be same"
		}
		if u.UserType != principal.UserTypeUser {
			return "Only users can be case managers"
		}
	case caseroledomain.RoleScorer, caseroledomain.RoleInterpretingPhysician:
		if u.UserType != principal.UserTypeUser {
			return "Only users can hold this role"
		}
	case caseroledomain.RoleParent:
		if !u.IsContact() {
			return "Parent must be a contact"
		}
	}
	return ""
}

func (s *Service) Publish(ctx context.Context, result *caseroledomain.Result) {
	if result.Empty() {
		return
	}

	for _, change := range result.Assigned {
		if change.Role != caseroledomain.RoleParent {
			continue
		}
		if err := s.addGroup(ctx, change.UserID, authorization.GroupParent); err != nil {
			s.log.Warn("failed to grant parent group",
				zap.String("case_id", result.Case.ID.String()),
				zap.String("user_id", change.UserID.String()),
				zap.Error(err),
			)
		}
	}

	base, from := s.notificationContext(ctx, result.Case)
	events := make([]notificationdomain.Event, 0, len(result.Unassigned)+len(result.Assigned))
	for _, change := range result.Unassigned {
		events = append(events, event("Case Role Unassigned", change, from, base, nil))
	}
	for _, change := range result.Assigned {
		events = append(events, event("Case Role Assigned", change, from, base, map[string]any{
			"link":         result.Case.Slug,
			"context_data": map[string]any{"link_name": result.Case.CaseNo, "case_slug": result.Case.Slug},
		}))
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, events...)
	}

	s.log.Info("case roles reconciled",
		zap.String("case_id", result.Case.ID.String()),
		zap.Int("assigned", len(result.Assigned)),
		zap.Int("unassigned", len(result.Unassigned)),
	)
	if s.auditSvc != nil {
		caseID := result.Case.ID.String()
		accountID := result.Case.AccountID
		err := s.auditSvc.AuditLog(ctx, &accountID, "", nil, "case_role.updated", "case", &caseID, map[string]any{
			"assigned":   result.Assigned,
			"unassigned": result.Unassigned,
		})
		if err != nil {
			s.log.Warn("audit log failed", zap.String("action", "case_role.updated"), zap.Error(err))
		}
	}
}

func event(action string, change caseroledomain.Change, from *snowflake.ID, base, extra map[string]any) notificationdomain.Event {
	data := make(map[string]any, len(base)+len(extra)+1)
	for k, v := range base {
		data[k] = v
	}
	for k, v := range extra {
		data[k] = v
	}
	data["role_name"] = change.Role
	return notificationdomain.Event{
		Action:     action,
		ToUserID:   change.UserID,
		FromUserID: from,
		Context:    data,
	}
}

// notificationContext carries the acting user as the case manager, the way
// role changes are announced.
func (s *Service) notificationContext(ctx context.Context, ref caseroledomain.CaseRef) (map[string]any, *snowflake.ID) {
	data := map[string]any{
		"case_number":               ref.CaseNo,
		"case_manager":              "",
		"case_manager_phone_number": "",
	}
	p, ok := principal.FromContext(ctx)
	if !ok || p.UserID == 0 {
		return data, nil
	}
	id := p.UserID
	if u, err := s.users.FindByID(ctx, s.db, p.UserID); err == nil {
		data["case_manager"] = u.FullName()
		data["case_manager_phone_number"] = u.Phone1
	}
	return data, &id
}

func (s *Service) Retrieve(ctx context.Context, ref caseroledomain.CaseRef) (*caseroledomain.CaseRoles, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionCaseRoleView, authorization.CaseTarget(ref.ID, ref.AccountID)); err != nil {
		return nil, err
	}
	return s.load(ctx, ref)
}

func (s *Service) Update(ctx context.Context, ref caseroledomain.CaseRef, desired caseroledomain.Assignment) (*caseroledomain.CaseRoles, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionCaseRoleEdit, authorization.CaseTarget(ref.ID, ref.AccountID)); err != nil {
		return nil, err
	}

	var result *caseroledomain.Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.Reconcile(ctx, tx, ref, desired)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Publish(ctx, result)
	return s.load(ctx, ref)
}

func (s *Service) Holders(ctx context.Context, caseID snowflake.ID, roles []string) ([]snowflake.ID, error) {
	index, err := s.roleIndex(ctx, s.db)
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(roles))
	for _, name := range roles {
		if role, ok := index[name]; ok {
			ids = append(ids, role.ID)
		}
	}
	return s.repo.HoldersOf(ctx, s.db, caseID, ids)
}

func (s *Service) load(ctx context.Context, ref caseroledomain.CaseRef) (*caseroledomain.CaseRoles, error) {
	rows, err := s.repo.ListByCase(ctx, s.db, ref.ID)
	if err != nil {
		return nil, err
	}
	roles, err := s.repo.ListRoles(ctx, s.db)
	if err != nil {
		return nil, err
	}
	names := make(map[snowflake.ID]string, len(roles))
	for _, role := range roles {
		names[role.ID] = role.Name
	}

	ids := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	users, err := s.users.ListByIDs(ctx, s.db, compact(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]*userdomain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := &caseroledomain.CaseRoles{Roles: make(map[string][]caseroledomain.Member)}
	for _, name := range caseroledomain.DefaultRoles {
		if name != caseroledomain.RoleParent {
			out.Roles[name] = []caseroledomain.Member{}
		}
	}
	for _, row := range rows {
		u, ok := byID[row.UserID]
		if !ok {
			continue
		}
		member := caseroledomain.Member{ID: u.ID, Slug: u.Slug, Name: u.FullName()}
		name := names[row.DefaultRoleID]
		if name == caseroledomain.RoleParent {
			out.Parent = &member
			continue
		}
		out.Roles[name] = append(out.Roles[name], member)
	}
	return out, nil
}

func (s *Service) roleIndex(ctx context.Context, db *gorm.DB) (map[string]*caseroledomain.DefaultRole, error) {
	roles, err := s.repo.ListRoles(ctx, db)
	if err != nil {
		return nil, err
	}
	index := make(map[string]*caseroledomain.DefaultRole, len(roles))
	for _, role := range roles {
		index[role.Name] = role
	}
	if len(index) == 0 {
		return nil, caseroledomain.ErrRoleNotFound
	}
	return index, nil
}

func (s *Service) addGroup(ctx context.Context, userID snowflake.ID, group string) error {
	current, err := s.authz.GroupsOf(ctx, userID)
	if err != nil {
		return err
	}
	if slices.Contains(current, group) {
		return nil
	}
	return s.authz.SetUserGroups(ctx, userID, append(current, group))
}

// compact drops duplicates and zero ids, keeping first-seen order.
func compact(ids []snowflake.ID) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
