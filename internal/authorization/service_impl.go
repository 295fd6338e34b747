package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/caseline/internal/audit/domain"
	"github.com/smallbiznis/caseline/internal/cache"
	"github.com/smallbiznis/caseline/internal/principal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	userPrefix  = "user:"
	groupPrefix = "group:"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Cache    cache.PermissionCache `optional:"true"`
	AuditSvc auditdomain.Service   `optional:"true"`
}

type ServiceImpl struct {
	db        *gorm.DB
	log       *zap.Logger
	enforcer  *casbin.SyncedEnforcer
	cache     cache.PermissionCache
	auditSvc  auditdomain.Service
	relations RelationChecker

	reloadMu sync.Mutex
	loaded   atomic.Int64
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	s := &ServiceImpl{
		db:        p.DB,
		log:       p.Log.Named("authorization.service"),
		enforcer:  p.Enforcer,
		cache:     p.Cache,
		auditSvc:  p.AuditSvc,
		relations: NewRelationChecker(p.DB),
	}
	if s.cache != nil {
		if version, err := s.cache.Version(context.Background()); err == nil {
			s.loaded.Store(version)
		}
	}
	return s
}

func (s *ServiceImpl) Resolve(ctx context.Context, p principal.Principal, target *Target) (CodeSet, error) {
	if p.IsSuperuser {
		return AllCodes(), nil
	}
	if p.UserID == 0 {
		return NewCodeSet(), nil
	}

	codes, err := s.groupCodes(ctx, p.UserID)
	if err != nil {
		return CodeSet{}, err
	}
	set := NewCodeSet(codes...)

	if target != nil && target.Kind == KindCase && target.ID != 0 {
		roleCodes, err := s.caseRoleCodes(ctx, target.ID, p.UserID)
		if err != nil {
			return CodeSet{}, err
		}
		set = set.Union(NewCodeSet(roleCodes...))
	}
	return set, nil
}

func (s *ServiceImpl) Check(ctx context.Context, p principal.Principal, action Action, target *Target) error {
	rule, ok := RuleFor(action)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	if p.IsSuperuser {
		return nil
	}
	if rule.PlatformAdmin && p.IsPlatformAdmin {
		return nil
	}

	codes, err := s.Resolve(ctx, p, target)
	if err != nil {
		return err
	}
	allowed, err := s.evaluate(ctx, p, rule, codes, target)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, p, action, target)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) evaluate(ctx context.Context, p principal.Principal, rule Rule, codes CodeSet, target *Target) (bool, error) {
	for _, grant := range rule.Grants {
		if !codes.Has(grant.Code) {
			continue
		}
		if target == nil {
			return true, nil
		}
		holds, err := s.relations.Holds(ctx, p, grant.Relation, *target)
		if err != nil {
			return false, err
		}
		if holds {
			return true, nil
		}
	}
	return false, nil
}

func (s *ServiceImpl) ListGroups(ctx context.Context) ([]Group, error) {
	policies, err := s.enforcer.GetPolicy()
	if err != nil {
		return nil, err
	}
	groupings, err := s.enforcer.GetGroupingPolicy()
	if err != nil {
		return nil, err
	}

	byName := map[string]*Group{}
	for _, name := range DefaultGroups {
		byName[name] = &Group{Name: name}
	}
	for _, rule := range policies {
		if len(rule) < 2 || !strings.HasPrefix(rule[0], groupPrefix) {
			continue
		}
		name := strings.TrimPrefix(rule[0], groupPrefix)
		if byName[name] == nil {
			byName[name] = &Group{Name: name}
		}
		byName[name].Permissions++
	}
	for _, rule := range groupings {
		if len(rule) < 2 || !strings.HasPrefix(rule[1], groupPrefix) {
			continue
		}
		name := strings.TrimPrefix(rule[1], groupPrefix)
		if byName[name] == nil {
			byName[name] = &Group{Name: name}
		}
		byName[name].Members++
	}

	out := make([]Group, 0, len(byName))
	for _, group := range byName {
		out = append(out, *group)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *ServiceImpl) GroupPermissions(ctx context.Context, group string) ([]Code, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return nil, ErrInvalidGroup
	}
	exists, err := s.groupExists(group)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUnknownGroup
	}

	rules, err := s.enforcer.GetFilteredPolicy(0, groupSubject(group))
	if err != nil {
		return nil, err
	}
	codes := make([]Code, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 2 {
			continue
		}
		codes = append(codes, Code(rule[1]))
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes, nil
}

// SetGroupPermissions replaces the codes of group, creating the group when new.
func (s *ServiceImpl) SetGroupPermissions(ctx context.Context, group string, codes []Code) error {
	group = strings.TrimSpace(group)
	if group == "" {
		return ErrInvalidGroup
	}

	seen := map[Code]struct{}{}
	rules := make([][]string, 0, len(codes))
	for _, code := range codes {
		if !Known(code) {
			return fmt.Errorf("%w: %s", ErrUnknownCode, code)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		rules = append(rules, []string{groupSubject(group), string(code)})
	}

	if _, err := s.enforcer.RemoveFilteredPolicy(0, groupSubject(group)); err != nil {
		return err
	}
	if len(rules) > 0 {
		if _, err := s.enforcer.AddPolicies(rules); err != nil {
			return err
		}
	}
	s.bumpVersion(ctx)

	s.log.Info("group permissions updated", zap.String("group", group), zap.Int("codes", len(rules)))
	if s.auditSvc != nil {
		actorType, actorID := actorOf(ctx)
		targetID := group
		if err := s.auditSvc.AuditLog(ctx, nil, actorType, actorID, "authorization.group_permissions_updated", "group", &targetID, map[string]any{
			"codes": len(rules),
		}); err != nil {
			s.log.Warn("audit log failed", zap.String("action", "authorization.group_permissions_updated"), zap.Error(err))
		}
	}
	return nil
}

func (s *ServiceImpl) GroupsOf(ctx context.Context, userID snowflake.ID) ([]string, error) {
	if userID == 0 {
		return nil, ErrInvalidUser
	}
	rules, err := s.enforcer.GetFilteredGroupingPolicy(0, userSubject(userID))
	if err != nil {
		return nil, err
	}
	groups := make([]string, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 2 {
			continue
		}
		groups = append(groups, strings.TrimPrefix(rule[1], groupPrefix))
	}
	sort.Strings(groups)
	return groups, nil
}

// SetUserGroups replaces the group memberships of a user.
func (s *ServiceImpl) SetUserGroups(ctx context.Context, userID snowflake.ID, groups []string) error {
	if userID == 0 {
		return ErrInvalidUser
	}

	wanted := make([]string, 0, len(groups))
	seen := map[string]struct{}{}
	for _, group := range groups {
		group = strings.TrimSpace(group)
		if group == "" {
			return ErrInvalidGroup
		}
		if _, dup := seen[group]; dup {
			continue
		}
		exists, err := s.groupExists(group)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrUnknownGroup, group)
		}
		seen[group] = struct{}{}
		wanted = append(wanted, group)
	}

	subject := userSubject(userID)
	if _, err := s.enforcer.RemoveFilteredGroupingPolicy(0, subject); err != nil {
		return err
	}
	for _, group := range wanted {
		if _, err := s.enforcer.AddGroupingPolicy(subject, groupSubject(group)); err != nil {
			return err
		}
	}
	s.bumpVersion(ctx)
	return nil
}

func (s *ServiceImpl) UsersInGroup(ctx context.Context, group string) ([]snowflake.ID, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return nil, ErrInvalidGroup
	}
	rules, err := s.enforcer.GetFilteredGroupingPolicy(1, groupSubject(group))
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 2 || !strings.HasPrefix(rule[0], userPrefix) {
			continue
		}
		id, err := snowflake.ParseString(strings.TrimPrefix(rule[0], userPrefix))
		if err != nil || id == 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *ServiceImpl) AccountAdmin(ctx context.Context, accountID snowflake.ID) (snowflake.ID, error) {
	if accountID == 0 {
		return 0, ErrNoAccountAdmin
	}
	admins, err := s.UsersInGroup(ctx, GroupAccountAdmin)
	if err != nil {
		return 0, err
	}
	if len(admins) == 0 {
		return 0, ErrNoAccountAdmin
	}

	var ids []snowflake.ID
	err = s.db.WithContext(ctx).Raw(
		`SELECT id FROM users WHERE account_id = ? AND id IN ? ORDER BY id LIMIT 1`,
		accountID, admins,
	).Scan(&ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrNoAccountAdmin
	}
	return ids[0], nil
}

func (s *ServiceImpl) groupCodes(ctx context.Context, userID snowflake.ID) ([]Code, error) {
	version := s.syncPolicy(ctx)
	key := userID.String()

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, version, key)
		if err != nil {
			s.log.Warn("permission cache read failed", zap.Error(err))
		} else if ok {
			return toCodes(cached), nil
		}
	}

	perms, err := s.enforcer.GetImplicitPermissionsForUser(userSubject(userID))
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	raw := make([]string, 0, len(perms))
	for _, rule := range perms {
		if len(rule) < 2 {
			continue
		}
		if _, dup := seen[rule[1]]; dup {
			continue
		}
		seen[rule[1]] = struct{}{}
		raw = append(raw, rule[1])
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, version, key, raw); err != nil {
			s.log.Warn("permission cache write failed", zap.Error(err))
		}
	}
	return toCodes(raw), nil
}

func (s *ServiceImpl) caseRoleCodes(ctx context.Context, caseID, userID snowflake.ID) ([]Code, error) {
	var raw []string
	err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT cp.code
		 FROM case_roles cr
		 JOIN case_role_permissions crp ON crp.case_default_role_id = cr.case_default_role_id
		 JOIN case_permissions cp ON cp.id = crp.case_permission_id
		 WHERE cr.case_id = ? AND cr.user_id = ?`,
		caseID, userID,
	).Scan(&raw).Error
	if err != nil {
		return nil, err
	}
	return toCodes(raw), nil
}

// syncPolicy reloads the enforcer when another instance changed policies.
func (s *ServiceImpl) syncPolicy(ctx context.Context) int64 {
	if s.cache == nil {
		return 0
	}
	version, err := s.cache.Version(ctx)
	if err != nil {
		s.log.Warn("permission version read failed", zap.Error(err))
		return s.loaded.Load()
	}
	if version == s.loaded.Load() {
		return version
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	if version == s.loaded.Load() {
		return version
	}
	if err := s.enforcer.LoadPolicy(); err != nil {
		s.log.Warn("policy reload failed", zap.Int64("version", version), zap.Error(err))
		return version
	}
	s.loaded.Store(version)
	s.log.Info("policy reloaded", zap.Int64("version", version))
	return version
}

func (s *ServiceImpl) bumpVersion(ctx context.Context) {
	if s.cache == nil {
		return
	}
	version, err := s.cache.BumpVersion(ctx)
	if err != nil {
		s.log.Warn("permission version bump failed", zap.Error(err))
		return
	}
	s.loaded.Store(version)
}

func (s *ServiceImpl) groupExists(group string) (bool, error) {
	for _, name := range DefaultGroups {
		if name == group {
			return true, nil
		}
	}
	rules, err := s.enforcer.GetFilteredPolicy(0, groupSubject(group))
	if err != nil {
		return false, err
	}
	return len(rules) > 0, nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, p principal.Principal, action Action, target *Target) {
	s.log.Debug("authorization denied",
		zap.String("action", string(action)),
		zap.String("user_id", p.UserID.String()),
	)
	if s.auditSvc == nil {
		return
	}
	var accountID *snowflake.ID
	if p.HasAccount() {
		id := p.AccountID
		accountID = &id
	}
	actorID := p.UserID.String()
	targetType := "capability"
	var targetID *string
	if target != nil {
		targetType = string(target.Kind)
		id := target.ID.String()
		targetID = &id
	}
	if err := s.auditSvc.AuditLog(ctx, accountID, "user", &actorID, "authorization.denied", targetType, targetID, map[string]any{
		"action": string(action),
	}); err != nil {
		s.log.Warn("audit log failed", zap.String("action", "authorization.denied"), zap.Error(err))
	}
}

func actorOf(ctx context.Context) (string, *string) {
	p, ok := principal.FromContext(ctx)
	if !ok || p.UserID == 0 {
		return "system", nil
	}
	id := p.UserID.String()
	return "user", &id
}

func userSubject(id snowflake.ID) string {
	return userPrefix + id.String()
}

func groupSubject(name string) string {
	return groupPrefix + name
}

func toCodes(raw []string) []Code {
	out := make([]Code, 0, len(raw))
	for _, code := range raw {
		out = append(out, Code(code))
	}
	return out
}

// seedPolicies grants the default codes to default groups that have none yet.
func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	for _, group := range DefaultGroups {
		existing, err := enforcer.GetFilteredPolicy(0, groupSubject(group))
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}
		codes := defaultGroupCodes[group]
		if len(codes) == 0 {
			continue
		}
		rules := make([][]string, 0, len(codes))
		for _, code := range codes {
			rules = append(rules, []string{groupSubject(group), string(code)})
		}
		if _, err := enforcer.AddPolicies(rules); err != nil {
			return err
		}
	}
	return nil
}

var defaultGroupCodes = map[string][]Code{
	GroupAccountAdmin: {
		AccountViewOwn, AccountListSubsidiary, AccountListHQ, AccountListAssociated,
		AccountViewDetailOwn, AccountViewDetailSubsidiary, AccountViewDetailAssociated, AccountViewDetailHQ,
		AccountViewDetailOwnSub, AccountViewDetailSubsidiarySub, AccountEditOwn,
		AccountAssociate, AccountInviteAssociate, ListSubsidiaryAccounts, ListAssociatedAccounts,
		UserViewOwnUser, UserCreate, UserInvite,
		UserListAccount, UserListSubsidiary, UserListAssociated, UserListHQ, UserListContacts, UserListAssociatedContacts,
		UserViewDetailAccount, UserViewDetailSubsidiary, UserViewDetailAssociated, UserViewDetailHQ,
		UserViewDetailContact, UserViewDetailAssociatedContact,
		UserEditAccount, UserEditSubsidiary, UserDeleteAccount, UserDeleteSubsidiary,
		DeviceListAccount, DeviceListSubsidiary, DeviceListHQ, DeviceListAssociated,
		DeviceViewDetailAccount, DeviceViewDetailSubsidiary, DeviceViewDetailHQ, DeviceViewDetailAssociated,
		DeviceEditAccount, DeviceEditSubsidiary,
		DeviceViewRecordAccount, DeviceViewRecordSubsidiary, DeviceEditRecordAccount, DeviceEditRecordSubsidiary,
		CaseCreate, CaseListAccount, CaseListSubsidiary, CaseDetailAccount, CaseDetailSubsidiary,
		CaseEditAccount, CaseEditSubsidiary,
		CaseRoleAccount, CaseRoleSubsidiary, CaseRoleEditAccount, CaseRoleEditSubsidiary,
		CaseNoteAccount, CaseNoteSubsidiary, CaseInterpretationAccount, CaseInterpretationSubsidiary,
		CaseMatrixAccount, CaseMatrixSubsidiary, CaseMatrixEditAccount, CaseMatrixEditSubsidiary,
		CasePatientEditAccount, CaseParentEditAccount,
	},
	GroupAccountUser: {
		AccountViewOwn, AccountViewDetailOwn, AccountRequestAssociate,
		UserViewOwnUser, UserListAccount, UserViewDetailAccount,
		DeviceListAccount, DeviceViewDetailAccount,
		CaseListAssigned, CaseDetailAssigned, CaseNoteAssigned, CaseInterpretationAssigned,
	},
	GroupCaseManager: {
		AccountViewOwn, AccountViewDetailOwn,
		UserViewOwnUser, UserListAccount, UserViewDetailAccount, UserListContacts, UserViewDetailContact,
		DeviceListAccount, DeviceViewDetailAccount,
		CaseCreate, CaseListAccount, CaseDetailAccount, CaseEditAccount,
		CaseRoleAccount, CaseRoleEditAccount, CaseNoteAccount, CaseNoteEditAccount,
		CaseInterpretationAccount, CaseMatrixAccount, CaseMatrixEditAccount,
		CasePatientEditAccount, CaseParentEditAccount,
	},
	GroupScorer: {
		AccountViewOwn, UserViewOwnUser,
		CaseListAssigned, CaseDetailAssigned, CaseNoteAssigned, CaseNoteEditAssigned,
		CaseInterpretationAssigned, CaseInterpretationCreateAssigned,
	},
	GroupPhysician: {
		AccountViewOwn, UserViewOwnUser,
		CaseListAssigned, CaseDetailAssigned, CaseNoteAssigned, CaseNoteEditAssigned,
		CaseInterpretationAssigned, CaseInterpretationCreateAssigned, CaseInterpretationEditAssigned,
	},
	GroupBiomedicalUser: {
		AccountViewOwn, UserViewOwnUser,
		DeviceListAccount, DeviceListSubsidiary, DeviceViewDetailAccount, DeviceViewDetailSubsidiary,
		DeviceEditAccount, DeviceEditSubsidiary, DeviceViewRecordAccount, DeviceEditRecordAccount,
	},
	GroupParent: {
		UserViewOwnUser, CaseListAssigned, CaseDetailAssigned,
	},
	GroupContact: {
		UserViewOwnUser,
	},
}
