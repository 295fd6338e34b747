package service

import (
	"context"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/caseline/internal/audit/domain"
	"github.com/smallbiznis/caseline/internal/authorization"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
	casedomain "github.com/smallbiznis/caseline/internal/cases/domain"
	"github.com/smallbiznis/caseline/internal/clock"
	notedomain "github.com/smallbiznis/caseline/internal/note/domain"
	matrixdomain "github.com/smallbiznis/caseline/internal/notificationmatrix/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/internal/scope"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxSubject = 255

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     notedomain.Repository
	CaseRepo casedomain.Repository
	Cases    casedomain.Service
	Roles    caseroledomain.Repository
	Authz    authorization.Service
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     notedomain.Repository
	caseRepo casedomain.Repository
	cases    casedomain.Service
	roles    caseroledomain.Repository
	authz    authorization.Service
	auditSvc auditdomain.Service
}

func NewService(p ServiceParam) notedomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("note.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		caseRepo: p.CaseRepo,
		cases:    p.Cases,
		roles:    p.Roles,
		authz:    p.Authz,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, caseNo string, req notedomain.CreateNoteRequest) (*notedomain.ProviderNote, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.caseRepo.FindBySlug(ctx, s.db, caseNo)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionCaseNoteWrite, authorization.CaseTarget(c.ID, c.AccountID)); err != nil {
		return nil, err
	}
	if c.IsArchived {
		return nil, casedomain.ErrCaseArchived
	}

	subject := strings.TrimSpace(req.Subject)
	content := strings.TrimSpace(req.Content)
	verr := &apperr.ValidationError{}
	switch {
	case subject == "":
		verr.Add("subject", "required", "This field is required")
	case utf8.RuneCountInString(subject) > maxSubject:
		verr.Add("subject", "max_length", "Ensure this field has no more than 255 characters")
	}
	if content == "" {
		verr.Add("content", "required", "This field is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	held, err := s.heldRoles(ctx, c.ID, p.UserID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	note := &notedomain.ProviderNote{
		ID:               id,
		Slug:             slug.Make(c.CaseNo + "-" + subject + "-" + id.String()),
		CaseID:           c.ID,
		UserID:           p.UserID,
		Subject:          subject,
		Content:          content,
		DefaultCaseRoles: datatypes.JSONSlice[string](held),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, note); err != nil {
		return nil, err
	}

	s.log.Info("case note added", zap.String("case_no", c.CaseNo), zap.String("slug", note.Slug))
	if s.auditSvc != nil {
		targetID := note.ID.String()
		accountID := c.AccountID
		if err := s.auditSvc.AuditLog(ctx, &accountID, "", nil, "case_note.created", "provider_note", &targetID, map[string]any{
			"case_no": c.CaseNo,
		}); err != nil {
			s.log.Warn("audit log failed", zap.Error(err))
		}
	}
	s.cases.Notify(ctx, c, matrixdomain.TypeCaseNoteAdded, map[string]any{"subject": subject})
	return note, nil
}

func (s *Service) ListByCase(ctx context.Context, caseNo string, page pagination.Pagination) (notedomain.ListNoteResponse, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return notedomain.ListNoteResponse{}, err
	}
	c, err := s.caseRepo.FindBySlug(ctx, s.db, caseNo)
	if err != nil {
		return notedomain.ListNoteResponse{}, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionCaseNoteView, authorization.CaseTarget(c.ID, c.AccountID)); err != nil {
		return notedomain.ListNoteResponse{}, err
	}

	page = page.Normalize()
	items, total, err := s.repo.List(ctx, s.db, notedomain.ListFilter{
		CaseID: &c.ID,
		Offset: (page.Page - 1) * page.PageSize,
		Limit:  page.PageSize,
	})
	if err != nil {
		return notedomain.ListNoteResponse{}, err
	}
	return notedomain.ListNoteResponse{PageInfo: page.Info(total), Notes: items}, nil
}

func (s *Service) List(ctx context.Context, req notedomain.ListNoteRequest) (notedomain.ListNoteResponse, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return notedomain.ListNoteResponse{}, err
	}
	codes, err := s.authz.Resolve(ctx, p, nil)
	if err != nil {
		return notedomain.ListNoteResponse{}, err
	}

	page := req.Pagination.Normalize()
	filter := notedomain.ListFilter{
		Offset: (page.Page - 1) * page.PageSize,
		Limit:  page.PageSize,
	}
	if req.Case != "" {
		c, err := s.caseRepo.FindBySlug(ctx, s.db, req.Case)
		if err != nil {
			return notedomain.ListNoteResponse{}, err
		}
		filter.CaseID = &c.ID
	}

	scoped := scope.Apply(s.db.WithContext(ctx).Model(&notedomain.ProviderNote{}), p, codes, scope.CaseNotes)
	items, total, err := s.repo.List(ctx, scoped, filter)
	if err != nil {
		return notedomain.ListNoteResponse{}, err
	}
	return notedomain.ListNoteResponse{PageInfo: page.Info(total), Notes: items}, nil
}

func (s *Service) Get(ctx context.Context, slug string) (*notedomain.ProviderNote, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	note, err := s.repo.FindBySlug(ctx, s.db, slug)
	if err != nil {
		return nil, err
	}
	c, err := s.caseRepo.FindByID(ctx, s.db, note.CaseID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionCaseNoteView, authorization.CaseTarget(c.ID, c.AccountID)); err != nil {
		return nil, err
	}
	return note, nil
}

// heldRoles returns the names of the roles userID holds on the case, in
// display order.
func (s *Service) heldRoles(ctx context.Context, caseID, userID snowflake.ID) ([]string, error) {
	defaults, err := s.roles.ListRoles(ctx, s.db)
	if err != nil {
		return nil, err
	}
	assigned, err := s.roles.ListByCase(ctx, s.db, caseID)
	if err != nil {
		return nil, err
	}
	mine := make(map[snowflake.ID]bool)
	for _, r := range assigned {
		if r.UserID == userID {
			mine[r.DefaultRoleID] = true
		}
	}
	out := make([]string, 0, len(mine))
	for _, r := range defaults {
		if mine[r.ID] {
			out = append(out, r.Name)
		}
	}
	slices.SortStableFunc(out, func(a, b string) int {
		return slices.Index(caseroledomain.DefaultRoles, a) - slices.Index(caseroledomain.DefaultRoles, b)
	})
	return out, nil
}
