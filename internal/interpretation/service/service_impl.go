package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/caseline/internal/audit/domain"
	"github.com/smallbiznis/caseline/internal/authorization"
	casedomain "github.com/smallbiznis/caseline/internal/cases/domain"
	"github.com/smallbiznis/caseline/internal/clock"
	interpretationdomain "github.com/smallbiznis/caseline/internal/interpretation/domain"
	matrixdomain "github.com/smallbiznis/caseline/internal/notificationmatrix/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/dates"
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
	Repo     interpretationdomain.Repository
	CaseRepo casedomain.Repository
	Cases    casedomain.Service
	Authz    authorization.Service
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     interpretationdomain.Repository
	caseRepo casedomain.Repository
	cases    casedomain.Service
	authz    authorization.Service
	auditSvc auditdomain.Service
}

func NewService(p ServiceParam) interpretationdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("interpretation.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		caseRepo: p.CaseRepo,
		cases:    p.Cases,
		authz:    p.Authz,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, caseNo string, req interpretationdomain.CreateInterpretationRequest) (*interpretationdomain.Interpretation, error) {
	c, p, err := s.loadCase(ctx, caseNo, authorization.ActionInterpretationCreate)
	if err != nil {
		return nil, err
	}
	if c.IsArchived {
		return nil, casedomain.ErrCaseArchived
	}

	from, to, err := parseWindow(req.DateFrom, req.DateTo)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	createdBy := p.UserID
	item := &interpretationdomain.Interpretation{
		ID:        s.genID.Generate(),
		Slug:      fmt.Sprintf("%s-%s-%s", c.CaseNo, dates.Format(from), dates.Format(to)),
		CaseID:    c.ID,
		DateFrom:  from,
		DateTo:    to,
		Comments:  strings.TrimSpace(req.Comments),
		CreatedBy: &createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.LockCase(ctx, tx, c.ID); err != nil {
			return err
		}
		existing, err := s.repo.ListByCase(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if interpretationdomain.Overlaps(e.DateFrom, e.DateTo, from, to) {
				return interpretationdomain.ErrOverlap
			}
		}
		events, err := s.repo.CountEvents(ctx, tx, c.ID, from, to)
		if err != nil {
			return err
		}
		item.NoOfEvents = int(events)
		if err := s.repo.Insert(ctx, tx, item); err != nil {
			return err
		}
		_, err = s.repo.MarkInterpreted(ctx, tx, c.ID, from, to)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("interpretation created",
		zap.String("case_no", c.CaseNo),
		zap.String("slug", item.Slug),
		zap.Int("events", item.NoOfEvents),
	)
	s.audit(ctx, c, item, "interpretation.created")
	s.cases.Notify(ctx, c, matrixdomain.TypeInterpretationCreated, windowData(item))
	return item, nil
}

func (s *Service) List(ctx context.Context, caseNo string) ([]*interpretationdomain.Interpretation, error) {
	c, _, err := s.loadCase(ctx, caseNo, authorization.ActionInterpretationView)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByCase(ctx, s.db, c.ID)
}

func (s *Service) Get(ctx context.Context, slug string) (*interpretationdomain.Interpretation, error) {
	item, _, err := s.load(ctx, slug, authorization.ActionInterpretationView)
	return item, err
}

func (s *Service) Approve(ctx context.Context, slug string) (*interpretationdomain.Interpretation, error) {
	item, c, err := s.load(ctx, slug, authorization.ActionInterpretationApprove)
	if err != nil {
		return nil, err
	}
	if item.IsApproved {
		return nil, interpretationdomain.ErrAlreadyApproved
	}
	p, _ := principal.FromContext(ctx)

	now := s.clock.Now()
	ok, err := s.repo.Approve(ctx, s.db, item.ID, p.UserID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, interpretationdomain.ErrAlreadyApproved
	}
	approvedBy := p.UserID
	item.IsApproved = true
	item.ApprovedBy = &approvedBy
	item.ApprovedAt = &now
	item.UpdatedAt = now

	s.log.Info("interpretation approved", zap.String("slug", item.Slug))
	s.audit(ctx, c, item, "interpretation.approved")
	s.cases.Notify(ctx, c, matrixdomain.TypeInterpretationApproved, windowData(item))
	return item, nil
}

func (s *Service) Summary(ctx context.Context, caseNo, from, to string) (interpretationdomain.Summary, error) {
	c, _, err := s.loadCase(ctx, caseNo, authorization.ActionInterpretationView)
	if err != nil {
		return interpretationdomain.Summary{}, err
	}
	out := interpretationdomain.Summary{CaseNo: c.CaseNo}

	if strings.TrimSpace(from) == "" && strings.TrimSpace(to) == "" {
		first, last, err := s.repo.PendingRange(ctx, s.db, c.ID)
		if err != nil {
			return out, err
		}
		if first == nil {
			return out, nil
		}
		from, to = dates.Format(*first), dates.Format(*last)
	}

	start, end, err := parseWindow(from, to)
	if err != nil {
		return out, err
	}
	n, err := s.repo.CountEvents(ctx, s.db, c.ID, start, end)
	if err != nil {
		return out, err
	}
	out.DateFrom, out.DateTo, out.NoOfEvents = dates.Format(start), dates.Format(end), n
	return out, nil
}

func (s *Service) loadCase(ctx context.Context, caseNo string, action authorization.Action) (*casedomain.Case, principal.Principal, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, p, err
	}
	c, err := s.caseRepo.FindBySlug(ctx, s.db, caseNo)
	if err != nil {
		return nil, p, err
	}
	if err := s.authz.Check(ctx, p, action, authorization.CaseTarget(c.ID, c.AccountID)); err != nil {
		return nil, p, err
	}
	return c, p, nil
}

func (s *Service) load(ctx context.Context, slug string, action authorization.Action) (*interpretationdomain.Interpretation, *casedomain.Case, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, nil, err
	}
	item, err := s.repo.FindBySlug(ctx, s.db, slug)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.caseRepo.FindByID(ctx, s.db, item.CaseID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authz.Check(ctx, p, action, authorization.CaseTarget(c.ID, c.AccountID)); err != nil {
		return nil, nil, err
	}
	return item, c, nil
}

func (s *Service) audit(ctx context.Context, c *casedomain.Case, item *interpretationdomain.Interpretation, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := item.ID.String()
	accountID := c.AccountID
	metadata := map[string]any{
		"case_no":   c.CaseNo,
		"date_from": dates.Format(item.DateFrom),
		"date_to":   dates.Format(item.DateTo),
	}
	if err := s.auditSvc.AuditLog(ctx, &accountID, "", nil, action, "interpretation", &targetID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

// parseWindow parses an inclusive day range.
func parseWindow(from, to string) (time.Time, time.Time, error) {
	verr := &apperr.ValidationError{}
	start, err := dates.Parse(from)
	if err != nil {
		verr.Add("date_from", "invalid", "Enter a valid date")
	}
	end, err := dates.Parse(to)
	if err != nil {
		verr.Add("date_to", "invalid", "Enter a valid date")
	}
	if err := verr.OrNil(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, apperr.Invalid("date_to", "date_to must not be before date_from")
	}
	return start, end, nil
}

func windowData(item *interpretationdomain.Interpretation) map[string]any {
	return map[string]any{
		"date_from": dates.Format(item.DateFrom),
		"date_to":   dates.Format(item.DateTo),
	}
}
