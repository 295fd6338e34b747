package service

import (
	"cmp"
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	accountdomain "github.com/smallbiznis/caseline/internal/account/domain"
	associationdomain "github.com/smallbiznis/caseline/internal/association/domain"
	auditdomain "github.com/smallbiznis/caseline/internal/audit/domain"
	"github.com/smallbiznis/caseline/internal/authorization"
	"github.com/smallbiznis/caseline/internal/clock"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/internal/scope"
	subscriptiondomain "github.com/smallbiznis/caseline/internal/subscription/domain"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/dates"
	"github.com/smallbiznis/caseline/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxAccountNumber = 12

var (
	languages   = []string{"en", "es", "fr"}
	domainRegex = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z0-9][a-z0-9-]{0,61}[a-z0-9]$`)
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         accountdomain.Repository
	Associations associationdomain.Repository
	SubRepo      subscriptiondomain.Repository
	Subs         subscriptiondomain.Service
	Users        userdomain.Service
	Authz        authorization.Service
	AuditSvc     auditdomain.Service
	Notifier     notificationdomain.Dispatcher
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         accountdomain.Repository
	associations associationdomain.Repository
	subRepo      subscriptiondomain.Repository
	subs         subscriptiondomain.Service
	users        userdomain.Service
	authz        authorization.Service
	auditSvc     auditdomain.Service
	notifier     notificationdomain.Dispatcher
}

func NewService(p ServiceParam) accountdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("account.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		associations: p.Associations,
		subRepo:      p.SubRepo,
		subs:         p.Subs,
		users:        p.Users,
		authz:        p.Authz,
		auditSvc:     p.AuditSvc,
		notifier:     p.Notifier,
	}
}

func (s *Service) Create(ctx context.Context, req accountdomain.CreateAccountRequest) (*accountdomain.Account, error) {
	if _, err := s.caller(ctx, authorization.ActionAccountCreate, nil); err != nil {
		return nil, err
	}
	return s.Provision(ctx, req)
}

func (s *Service) Provision(ctx context.Context, req accountdomain.CreateAccountRequest) (*accountdomain.Account, error) {
	account, sub, err := s.buildAccount(req)
	if err != nil {
		return nil, err
	}
	parentNumber := strings.TrimSpace(req.ParentAccountNumber)
	if parentNumber == account.AccountNumber && account.Type == accountdomain.TypeHQSub {
		parentNumber = ""
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.FindByNumber(ctx, tx, account.AccountNumber); err == nil {
			return accountdomain.ErrAccountNumberTaken
		} else if !errors.Is(err, accountdomain.ErrAccountNotFound) {
			return err
		}

		if parentNumber != "" {
			parent, err := s.repo.FindByNumber(ctx, tx, parentNumber)
			if errors.Is(err, accountdomain.ErrAccountNotFound) {
				return apperr.Invalid("parent_account_number", "Parent account does not exist")
			}
			if err != nil {
				return err
			}
			account.ParentID = &parent.ID
			if parent.Type == accountdomain.TypeSub {
				if err := s.repo.UpdateFields(ctx, tx, parent.ID, map[string]any{
					"type":       accountdomain.TypeHQSub,
					"updated_at": account.CreatedAt,
				}); err != nil {
					return err
				}
			}
		}
		if err := checkParentChain(account); err != nil {
			return err
		}

		if err := s.repo.Insert(ctx, tx, account); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return accountdomain.ErrAccountNumberTaken
			}
			return err
		}
		if err := s.rebuildAncestors(ctx, tx, account); err != nil {
			return err
		}
		if sub != nil {
			sub.AccountID = account.ID
			return s.subRepo.Insert(ctx, tx, sub)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("account created",
		zap.String("account_id", account.ID.String()),
		zap.String("account_number", account.AccountNumber),
		zap.String("type", string(account.Type)),
	)
	s.audit(ctx, account, "account.created", map[string]any{"account_number": account.AccountNumber})
	return account, nil
}

func (s *Service) Get(ctx context.Context, slugValue string) (*accountdomain.AccountDetail, error) {
	account, err := s.load(ctx, slugValue, authorization.ActionAccountView)
	if err != nil {
		return nil, err
	}

	detail := &accountdomain.AccountDetail{Account: account}
	if !account.IsRoot() {
		parent, err := s.repo.FindByID(ctx, s.db, *account.ParentID)
		if err != nil {
			return nil, err
		}
		detail.ParentAccountNumber = &parent.AccountNumber
	}
	admin, err := s.users.AccountAdmin(ctx, account.ID)
	if err == nil {
		detail.Admin = &accountdomain.AdminRef{ID: admin.ID, Name: admin.FullName(), Email: admin.Email}
	} else if !errors.Is(err, authorization.ErrNoAccountAdmin) {
		return nil, err
	}
	detail.Subsidiaries, err = s.repo.Children(ctx, s.db, account.ID)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Service) List(ctx context.Context, req accountdomain.ListAccountRequest) (accountdomain.ListAccountResponse, error) {
	p, err := s.caller(ctx, authorization.ActionAccountList, nil)
	if err != nil {
		return accountdomain.ListAccountResponse{}, err
	}
	codes, err := s.authz.Resolve(ctx, p, nil)
	if err != nil {
		return accountdomain.ListAccountResponse{}, err
	}

	page := req.Pagination.Normalize()
	scoped := scope.Apply(s.db.WithContext(ctx).Model(&accountdomain.Account{}), p, codes, scope.Accounts)
	items, total, err := s.repo.List(ctx, scoped, accountdomain.ListFilter{
		Type:     req.Type,
		Search:   req.Search,
		IsActive: req.IsActive,
		ParentID: req.ParentID,
		Offset:   (page.Page - 1) * page.PageSize,
		Limit:    page.PageSize,
	})
	if err != nil {
		return accountdomain.ListAccountResponse{}, err
	}
	return accountdomain.ListAccountResponse{
		PageInfo: page.Info(total),
		Accounts: items,
	}, nil
}

func (s *Service) Update(ctx context.Context, slugValue string, req accountdomain.UpdateAccountRequest) (*accountdomain.Account, error) {
	account, err := s.load(ctx, slugValue, authorization.ActionAccountEdit)
	if err != nil {
		return nil, err
	}

	verr := &apperr.ValidationError{}
	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			verr.Add("name", "required", "This field may not be blank")
		}
		fields["name"] = name
	}
	if req.Language != nil {
		if !slices.Contains(languages, *req.Language) {
			verr.Add("language", "unsupported", "Language must be one of en, es, fr")
		}
		fields["language"] = *req.Language
	}
	text := []struct {
		column string
		value  *string
		max    int
	}{
		{"phone1", req.Phone1, 15},
		{"phone1_ext", req.Phone1Ext, 6},
		{"phone2", req.Phone2, 15},
		{"phone2_ext", req.Phone2Ext, 6},
		{"city", req.City, 255},
		{"state", req.State, 255},
		{"country", req.Country, 255},
		{"zipcode", req.Zipcode, 11},
		{"address1", req.Address1, 512},
		{"address2", req.Address2, 512},
		{"address3", req.Address3, 512},
	}
	for _, f := range text {
		if f.value == nil {
			continue
		}
		value := strings.TrimSpace(*f.value)
		if len(value) > f.max {
			verr.Add(f.column, "max_length", "Ensure this field has no more characters than allowed")
		}
		fields[f.column] = value
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return account, nil
	}

	fields["updated_at"] = s.clock.Now()
	if err := s.repo.UpdateFields(ctx, s.db, account.ID, fields); err != nil {
		return nil, err
	}
	s.audit(ctx, account, "account.updated", map[string]any{"fields": len(fields) - 1})
	return s.repo.FindByID(ctx, s.db, account.ID)
}

// Delete removes an unused account. Inactive subscriptions go with it.
func (s *Service) Delete(ctx context.Context, slugValue string) error {
	account, err := s.load(ctx, slugValue, authorization.ActionAccountDelete)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refs, err := s.repo.References(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		if what := inUse(refs); what != "" {
			return apperr.Conflict("Account can not be deleted because one or more %s exist.", what)
		}
		if err := s.subRepo.DeleteInactive(ctx, tx, account.ID); err != nil {
			return err
		}
		if err := s.associations.DeleteAccountAll(ctx, tx, account.ID); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, account.ID)
	})
	if err != nil {
		return err
	}

	s.log.Info("account deleted", zap.String("account_id", account.ID.String()))
	s.audit(ctx, account, "account.deleted", map[string]any{"account_number": account.AccountNumber})
	return nil
}

// Acquire moves acquired under acquiring, reclassifies both and rebuilds
// the ancestor chain of acquired and everything below it.
func (s *Service) Acquire(ctx context.Context, req accountdomain.AcquireRequest) (*accountdomain.Account, error) {
	if _, err := s.caller(ctx, authorization.ActionAccountAcquire, nil); err != nil {
		return nil, err
	}

	var acquired, acquiring *accountdomain.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if acquired, err = s.repo.FindBySlug(ctx, tx, req.Acquired); err != nil {
			return err
		}
		if acquiring, err = s.repo.FindBySlug(ctx, tx, req.Acquiring); err != nil {
			return err
		}
		if acquired.ID == acquiring.ID {
			return accountdomain.ErrAcquireSelf
		}
		above, err := s.repo.AncestorIDs(ctx, tx, acquiring.ID)
		if err != nil {
			return err
		}
		if slices.Contains(above, acquired.ID) {
			return accountdomain.ErrAcquireDescendant
		}
		descendants, err := s.repo.Descendants(ctx, tx, acquired.ID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		var formerParent *snowflake.ID
		if !acquired.IsRoot() && *acquired.ParentID != acquiring.ID {
			formerParent = acquired.ParentID
		}

		acquiring.Type = acquiringType(acquiring)
		if err := s.repo.UpdateFields(ctx, tx, acquiring.ID, map[string]any{
			"type":       acquiring.Type,
			"updated_at": now,
		}); err != nil {
			return err
		}

		acquired.ParentID = &acquiring.ID
		acquired.Type = accountdomain.TypeSub
		if len(descendants) > 0 {
			acquired.Type = accountdomain.TypeHQSub
		}
		if err := s.repo.UpdateFields(ctx, tx, acquired.ID, map[string]any{
			"parent_id":  acquiring.ID,
			"type":       acquired.Type,
			"updated_at": now,
		}); err != nil {
			return err
		}

		if err := s.rebuildAncestors(ctx, tx, acquired); err != nil {
			return err
		}
		for _, d := range descendants {
			if err := s.rebuildAncestors(ctx, tx, d); err != nil {
				return err
			}
		}

		if formerParent != nil {
			return s.demoteIfChildless(ctx, tx, *formerParent)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("account acquired",
		zap.String("acquired_id", acquired.ID.String()),
		zap.String("acquiring_id", acquiring.ID.String()),
	)
	s.audit(ctx, acquired, "account.acquired", map[string]any{"acquiring_account": acquiring.AccountNumber})

	data := map[string]any{
		"acquired_account":  acquired.Name,
		"acquiring_account": acquiring.Name,
	}
	s.notifyAdmin(ctx, acquired.ID, "Account Acquisition - Acquirer", data)
	s.notifyAdmin(ctx, acquiring.ID, "Account Acquisition - Acquiring", data)
	return acquired, nil
}

func (s *Service) AcquiringCandidates(ctx context.Context, slugValue string) ([]*accountdomain.Account, error) {
	account, err := s.load(ctx, slugValue, authorization.ActionAccountAcquire)
	if err != nil {
		return nil, err
	}
	return s.repo.Candidates(ctx, s.db, account.ID)
}

func (s *Service) Subsidiaries(ctx context.Context, slugValue string) ([]*accountdomain.Account, error) {
	account, err := s.load(ctx, slugValue, authorization.ActionAccountSubsidiaries)
	if err != nil {
		return nil, err
	}
	return s.repo.Children(ctx, s.db, account.ID)
}

// SetActive activates or deactivates the account and/or its subsidiaries.
// Activation needs a current subscription for every account it touches and
// an account admin.
func (s *Service) SetActive(ctx context.Context, slugValue string, req accountdomain.SetActiveRequest) (*accountdomain.Account, error) {
	account, err := s.load(ctx, slugValue, authorization.ActionAccountActivate)
	if err != nil {
		return nil, err
	}

	admin, err := s.authz.AccountAdmin(ctx, account.ID)
	if err != nil && !errors.Is(err, authorization.ErrNoAccountAdmin) {
		return nil, err
	}
	hasAdmin := err == nil

	var current *subscriptiondomain.UserSubscription
	if req.IsActive {
		current, err = s.subs.Current(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		if !hasAdmin {
			return nil, accountdomain.ErrNoAccountAdmin
		}
	}

	var below []*accountdomain.Account
	if req.IsSubsidiaries {
		below, err = s.repo.Descendants(ctx, s.db, account.ID)
		if err != nil {
			return nil, err
		}
	}

	ids := make([]snowflake.ID, 0, len(below)+1)
	if req.IsHQ {
		ids = append(ids, account.ID)
	}
	if req.IsActive && len(below) > 0 {
		belowIDs := make([]snowflake.ID, 0, len(below))
		for _, a := range below {
			belowIDs = append(belowIDs, a.ID)
		}
		subs, err := s.subs.CurrentMany(ctx, belowIDs)
		if err != nil {
			return nil, err
		}
		var missing []string
		for _, a := range below {
			if subs[a.ID] == nil {
				missing = append(missing, a.AccountNumber)
			}
		}
		if len(missing) > 0 {
			return nil, apperr.Conflict(
				"One or more subsidiary does not have subscriptions and cannot be activated. Following accounts are '%s'.",
				strings.Join(missing, ", "),
			)
		}
	}
	for _, a := range below {
		ids = append(ids, a.ID)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.SetActive(ctx, tx, ids, req.IsActive)
	})
	if err != nil {
		return nil, err
	}

	action, auditAction := "Account Deactivation", "account.deactivated"
	data := map[string]any{"account_number": account.AccountNumber, "account_name": account.Name}
	if req.IsActive {
		action, auditAction = "Account Activation", "account.activated"
		data["number_of_users"] = current.NumOfUsers
		data["subscription_end_date"] = dates.Format(current.EndDate)
	}
	s.log.Info("account activation changed",
		zap.String("account_id", account.ID.String()),
		zap.Bool("is_active", req.IsActive),
		zap.Int("accounts", len(ids)),
	)
	s.audit(ctx, account, auditAction, map[string]any{"accounts": len(ids)})
	if hasAdmin {
		s.notify(ctx, notificationdomain.Event{Action: action, ToUserID: admin, FromUserID: actorRef(ctx), Context: data})
	}
	return s.repo.FindByID(ctx, s.db, account.ID)
}

// SetDomain sets the email domain once. An empty domain leaves it unchanged.
func (s *Service) SetDomain(ctx context.Context, slugValue string, domain string) (*accountdomain.Account, error) {
	account, err := s.load(ctx, slugValue, authorization.ActionAccountSetDomain)
	if err != nil {
		return nil, err
	}
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return account, nil
	}
	if !domainRegex.MatchString(domain) {
		return nil, accountdomain.ErrInvalidDomain
	}
	if account.Domain != nil && *account.Domain != "" {
		return nil, accountdomain.ErrDomainExists
	}
	if err := s.repo.UpdateFields(ctx, s.db, account.ID, map[string]any{
		"domain":     domain,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return nil, err
	}
	account.Domain = &domain
	return account, nil
}

func (s *Service) Subscription(ctx context.Context, slugValue string) (subscriptiondomain.Summary, error) {
	account, err := s.load(ctx, slugValue, authorization.ActionAccountViewSubscription)
	if err != nil {
		return subscriptiondomain.Summary{}, err
	}
	return s.subs.Summary(ctx, account.ID)
}

func (s *Service) Admin(ctx context.Context, accountID snowflake.ID) (*userdomain.User, error) {
	admin, err := s.users.AccountAdmin(ctx, accountID)
	if errors.Is(err, authorization.ErrNoAccountAdmin) {
		return nil, accountdomain.ErrNoAccountAdmin
	}
	return admin, err
}

func (s *Service) WalkAncestors(ctx context.Context, account *accountdomain.Account) ([]*accountdomain.Account, error) {
	return s.walk(ctx, s.db, account)
}

func (s *Service) FindByNumber(ctx context.Context, number string) (*accountdomain.Account, error) {
	return s.repo.FindByNumber(ctx, s.db, number)
}

// CaseUsers is the union of the users of the account, its subsidiaries,
// its HQ and its accepted associated accounts, plus its accepted contacts.
func (s *Service) CaseUsers(ctx context.Context, slugValue string) ([]*userdomain.User, error) {
	account, err := s.load(ctx, slugValue, authorization.ActionAccountCaseUsers)
	if err != nil {
		return nil, err
	}

	accountIDs := []snowflake.ID{account.ID}
	below, err := s.repo.Descendants(ctx, s.db, account.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range below {
		accountIDs = append(accountIDs, a.ID)
	}
	if !account.IsRoot() {
		accountIDs = append(accountIDs, *account.ParentID)
	}
	associated, err := s.associations.AssociatedAccountIDs(ctx, s.db, account.ID)
	if err != nil {
		return nil, err
	}
	accountIDs = append(accountIDs, associated...)
	slices.Sort(accountIDs)
	accountIDs = slices.Compact(accountIDs)

	users, err := s.users.UsersOfAccounts(ctx, accountIDs)
	if err != nil {
		return nil, err
	}

	accepted := true
	contacts, err := s.associations.ListContact(ctx, s.db, associationdomain.ContactFilter{
		AccountID: account.ID,
		Accepted:  &accepted,
	})
	if err != nil {
		return nil, err
	}
	if len(contacts) > 0 {
		ids := make([]snowflake.ID, 0, len(contacts))
		for _, c := range contacts {
			ids = append(ids, c.ContactUserID)
		}
		contactUsers, err := s.users.FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		users = append(users, contactUsers...)
	}

	seen := make(map[snowflake.ID]bool, len(users))
	out := make([]*userdomain.User, 0, len(users))
	for _, u := range users {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b *userdomain.User) int {
		if c := strings.Compare(a.LastName, b.LastName); c != 0 {
			return c
		}
		if c := strings.Compare(a.FirstName, b.FirstName); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// load finds the account by slug and checks action against it.
func (s *Service) load(ctx context.Context, slugValue string, action authorization.Action) (*accountdomain.Account, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.FindBySlug(ctx, s.db, slugValue)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, action, authorization.AccountTarget(account.ID)); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Service) caller(ctx context.Context, action authorization.Action, target *authorization.Target) (principal.Principal, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return principal.Principal{}, err
	}
	if err := s.authz.Check(ctx, p, action, target); err != nil {
		return principal.Principal{}, err
	}
	return p, nil
}

// walk follows parent links. A link back to any account already on the
// path is a cycle.
func (s *Service) walk(ctx context.Context, tx *gorm.DB, account *accountdomain.Account) ([]*accountdomain.Account, error) {
	visited := map[snowflake.ID]bool{account.ID: true}
	var chain []*accountdomain.Account
	current := account
	for !current.IsRoot() {
		parentID := *current.ParentID
		if visited[parentID] {
			return nil, accountdomain.ErrAncestorCycle
		}
		parent, err := s.repo.FindByID(ctx, tx, parentID)
		if err != nil {
			return nil, err
		}
		visited[parentID] = true
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}

// rebuildAncestors recomputes the parents cache and closure rows of account
// from its parent links.
func (s *Service) rebuildAncestors(ctx context.Context, tx *gorm.DB, account *accountdomain.Account) error {
	chain, err := s.walk(ctx, tx, account)
	if err != nil {
		return err
	}
	parents := datatypes.JSONSlice[string]{}
	rows := make([]accountdomain.Ancestor, 0, len(chain))
	for i, a := range chain {
		parents = append(parents, a.AccountNumber)
		rows = append(rows, accountdomain.Ancestor{AccountID: account.ID, AncestorID: a.ID, Depth: i + 1})
	}
	account.Parents = parents
	if err := s.repo.UpdateFields(ctx, tx, account.ID, map[string]any{"parents": parents}); err != nil {
		return err
	}
	return s.repo.ReplaceAncestors(ctx, tx, account.ID, rows)
}

// demoteIfChildless turns a former parent that lost its last subsidiary
// back into a plain subsidiary.
func (s *Service) demoteIfChildless(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	parent, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return err
	}
	if parent.Type != accountdomain.TypeHQSub || parent.IsRoot() {
		return nil
	}
	children, err := s.repo.Children(ctx, tx, id)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return nil
	}
	return s.repo.UpdateFields(ctx, tx, id, map[string]any{
		"type":       accountdomain.TypeSub,
		"updated_at": s.clock.Now(),
	})
}

func (s *Service) buildAccount(req accountdomain.CreateAccountRequest) (*accountdomain.Account, *subscriptiondomain.UserSubscription, error) {
	verr := &apperr.ValidationError{}
	number := strings.TrimSpace(req.AccountNumber)
	switch {
	case number == "":
		verr.Add("account_number", "required", "This field is required")
	case len(number) > maxAccountNumber:
		verr.Add("account_number", "max_length", "Account number must be at most 12 characters")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		verr.Add("name", "required", "This field is required")
	}
	accountType := req.Type
	if accountType == "" {
		accountType = accountdomain.TypeHQ
	}
	if !accountType.Valid() {
		verr.Add("type", "invalid_choice", "Type must be one of hq, sub, hq_sub")
	}
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = "en"
	}
	if !slices.Contains(languages, language) {
		verr.Add("language", "unsupported", "Language must be one of en, es, fr")
	}
	var domain *string
	if d := strings.ToLower(strings.TrimSpace(req.Domain)); d != "" {
		if !domainRegex.MatchString(d) {
			verr.Add("domain", "", "Unable to parse domain, might not be valid")
		}
		domain = &d
	}

	now := s.clock.Now()
	var sub *subscriptiondomain.UserSubscription
	if req.Subscription != nil {
		start, startErr := dates.Parse(req.Subscription.StartDate)
		end, endErr := dates.Parse(req.Subscription.EndDate)
		switch {
		case startErr != nil:
			verr.Add("user_start_date", "", "Enter a valid date")
		case endErr != nil:
			verr.Add("user_end_date", "", "Enter a valid date")
		case !end.After(start):
			verr.Add("user_end_date", "", "End date should be greater than start date")
		}
		users := 0
		if req.Subscription.NumOfUsers != nil {
			users = *req.Subscription.NumOfUsers
		}
		if users < 0 {
			verr.Add("num_of_users", "", "Ensure this value is greater than or equal to 0")
		}
		sub = &subscriptiondomain.UserSubscription{
			ID:         s.genID.Generate(),
			StartDate:  start,
			EndDate:    end,
			NumOfUsers: users,
			IsActive:   true,
			CreatedAt:  now,
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, nil, err
	}

	account := &accountdomain.Account{
		ID:            s.genID.Generate(),
		AccountNumber: number,
		Slug:          accountSlug(name, number),
		Name:          name,
		Type:          accountType,
		Parents:       datatypes.JSONSlice[string]{},
		Domain:        domain,
		Language:      language,
		Phone1:        strings.TrimSpace(req.Phone1),
		Phone1Ext:     strings.TrimSpace(req.Phone1Ext),
		Phone2:        strings.TrimSpace(req.Phone2),
		Phone2Ext:     strings.TrimSpace(req.Phone2Ext),
		City:          strings.TrimSpace(req.City),
		State:         strings.TrimSpace(req.State),
		Country:       strings.TrimSpace(req.Country),
		Zipcode:       strings.TrimSpace(req.Zipcode),
		Address1:      strings.TrimSpace(req.Address1),
		Address2:      strings.TrimSpace(req.Address2),
		Address3:      strings.TrimSpace(req.Address3),
		IsActive:      sub != nil,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return account, sub, nil
}

func (s *Service) notifyAdmin(ctx context.Context, accountID snowflake.ID, action string, data map[string]any) {
	admin, err := s.authz.AccountAdmin(ctx, accountID)
	if err != nil {
		if !errors.Is(err, authorization.ErrNoAccountAdmin) {
			s.log.Warn("account admin lookup failed", zap.String("account_id", accountID.String()), zap.Error(err))
		}
		return
	}
	s.notify(ctx, notificationdomain.Event{Action: action, ToUserID: admin, FromUserID: actorRef(ctx), Context: data})
}

func (s *Service) notify(ctx context.Context, events ...notificationdomain.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, events...)
}

func (s *Service) audit(ctx context.Context, account *accountdomain.Account, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := account.ID.String()
	accountID := account.ID
	if err := s.auditSvc.AuditLog(ctx, &accountID, "", nil, action, "account", &targetID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

// acquiringType is the type of an account after it gains a subsidiary.
func acquiringType(a *accountdomain.Account) accountdomain.Type {
	switch a.Type {
	case accountdomain.TypeSub:
		return accountdomain.TypeHQSub
	case accountdomain.TypeHQSub:
		if a.IsRoot() {
			return accountdomain.TypeHQ
		}
	}
	return a.Type
}

// checkParentChain enforces that only hq_sub and sub accounts have parents
// and that a sub always has one.
func checkParentChain(a *accountdomain.Account) error {
	switch a.Type {
	case accountdomain.TypeHQ:
		if !a.IsRoot() {
			return apperr.Invalid("type", "A headquarters account cannot have a parent account")
		}
	case accountdomain.TypeSub:
		if a.IsRoot() {
			return apperr.Invalid("parent_account_number", "A subsidiary account requires a parent account")
		}
	}
	return nil
}

func inUse(r accountdomain.References) string {
	switch {
	case r.Users > 0:
		return "users"
	case r.Devices > 0:
		return "devices"
	case r.Cases > 0:
		return "cases"
	case r.Subsidiaries > 0:
		return "subsidiary accounts"
	case r.ActiveSubscriptions > 0:
		return "active subscriptions"
	}
	return ""
}

func accountSlug(name, number string) string {
	base := slug.Make(name)
	if base == "" {
		base = "account"
	}
	return base + "-" + slug.Make(number)
}

func actorRef(ctx context.Context) *snowflake.ID {
	p, ok := principal.FromContext(ctx)
	if !ok || p.UserID == 0 {
		return nil
	}
	id := p.UserID
	return &id
}
