package service

import (
	"context"
	"sort"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/caseline/internal/authorization"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
	"github.com/smallbiznis/caseline/internal/clock"
	matrixdomain "github.com/smallbiznis/caseline/internal/notificationmatrix/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  matrixdomain.Repository
	Roles caseroledomain.Repository
	Authz authorization.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  matrixdomain.Repository
	roles caseroledomain.Repository
	authz authorization.Service
}

func NewService(p ServiceParam) matrixdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("notificationmatrix.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		roles: p.Roles,
		authz: p.Authz,
	}
}

func (s *Service) EnsureDefaults(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roles, err := s.roles.ListRoles(ctx, tx)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, name := range matrixdomain.DefaultTypes {
			t, err := s.repo.EnsureType(ctx, tx, &matrixdomain.NotificationType{
				ID:        s.genID.Generate(),
				Name:      name,
				Slug:      slug.Make(name),
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
			for _, role := range roles {
				err := s.repo.EnsureDefault(ctx, tx, &matrixdomain.DefaultEntry{
					ID:                 s.genID.Generate(),
					DefaultRoleID:      role.ID,
					NotificationTypeID: t.ID,
					IsNotified:         matrixdomain.DefaultNotified(role.Name, t.Name),
					UpdatedAt:          now,
				})
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Service) ListDefault(ctx context.Context) ([]matrixdomain.Entry, error) {
	if _, err := principal.Require(ctx); err != nil {
		return nil, err
	}
	return s.listDefault(ctx, s.db)
}

func (s *Service) UpdateDefault(ctx context.Context, overrides []matrixdomain.Override) ([]matrixdomain.Entry, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionDefaultMatrixManage, nil); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		idx, err := s.index(ctx, tx)
		if err != nil {
			return err
		}
		pairs, err := idx.resolve(overrides)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, pair := range pairs {
			if _, err := s.repo.UpdateDefault(ctx, tx, pair.roleID, pair.typeID, pair.notified, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("default notification matrix updated", zap.Int("entries", len(overrides)))
	return s.listDefault(ctx, s.db)
}

func (s *Service) Seed(ctx context.Context, tx *gorm.DB, caseID snowflake.ID, overrides []matrixdomain.Override) error {
	idx, err := s.index(ctx, tx)
	if err != nil {
		return err
	}
	pairs, err := idx.resolve(overrides)
	if err != nil {
		return err
	}
	flags := make(map[[2]snowflake.ID]bool, len(pairs))
	for _, pair := range pairs {
		flags[[2]snowflake.ID{pair.roleID, pair.typeID}] = pair.notified
	}

	defaults, err := s.repo.ListDefault(ctx, tx)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	entries := make([]*matrixdomain.CaseEntry, 0, len(defaults))
	for _, d := range defaults {
		notified := d.IsNotified
		if v, ok := flags[[2]snowflake.ID{d.DefaultRoleID, d.NotificationTypeID}]; ok {
			notified = v
		}
		entries = append(entries, &matrixdomain.CaseEntry{
			ID:                 s.genID.Generate(),
			CaseID:             caseID,
			DefaultRoleID:      d.DefaultRoleID,
			NotificationTypeID: d.NotificationTypeID,
			IsNotified:         notified,
			UpdatedAt:          now,
		})
	}
	return s.repo.InsertCase(ctx, tx, entries)
}

func (s *Service) ListForCase(ctx context.Context, ref caseroledomain.CaseRef) ([]matrixdomain.Entry, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionCaseMatrixView, authorization.CaseTarget(ref.ID, ref.AccountID)); err != nil {
		return nil, err
	}
	return s.listCase(ctx, ref.ID)
}

func (s *Service) UpdateForCase(ctx context.Context, ref caseroledomain.CaseRef, overrides []matrixdomain.Override) ([]matrixdomain.Entry, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionCaseMatrixEdit, authorization.CaseTarget(ref.ID, ref.AccountID)); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		idx, err := s.index(ctx, tx)
		if err != nil {
			return err
		}
		pairs, err := idx.resolve(overrides)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, pair := range pairs {
			found, err := s.repo.UpdateCase(ctx, tx, ref.ID, pair.roleID, pair.typeID, pair.notified, now)
			if err != nil {
				return err
			}
			if !found {
				// Cases created before a type existed get the missing cell.
				err = s.repo.InsertCase(ctx, tx, []*matrixdomain.CaseEntry{{
					ID:                 s.genID.Generate(),
					CaseID:             ref.ID,
					DefaultRoleID:      pair.roleID,
					NotificationTypeID: pair.typeID,
					IsNotified:         pair.notified,
					UpdatedAt:          now,
				}})
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.listCase(ctx, ref.ID)
}

func (s *Service) Recipients(ctx context.Context, caseID snowflake.ID, notificationType string) ([]snowflake.ID, error) {
	return s.repo.Recipients(ctx, s.db, caseID, notificationType)
}

func (s *Service) listDefault(ctx context.Context, db *gorm.DB) ([]matrixdomain.Entry, error) {
	idx, err := s.index(ctx, db)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListDefault(ctx, db)
	if err != nil {
		return nil, err
	}
	cells := make([]pair, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, pair{row.DefaultRoleID, row.NotificationTypeID, row.IsNotified})
	}
	return idx.entries(cells), nil
}

func (s *Service) listCase(ctx context.Context, caseID snowflake.ID) ([]matrixdomain.Entry, error) {
	idx, err := s.index(ctx, s.db)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListCase(ctx, s.db, caseID)
	if err != nil {
		return nil, err
	}
	cells := make([]pair, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, pair{row.DefaultRoleID, row.NotificationTypeID, row.IsNotified})
	}
	return idx.entries(cells), nil
}

type matrixIndex struct {
	roles     map[string]*caseroledomain.DefaultRole
	types     map[string]*matrixdomain.NotificationType
	roleByID  map[snowflake.ID]*caseroledomain.DefaultRole
	typeByID  map[snowflake.ID]*matrixdomain.NotificationType
	roleOrder map[string]int
	typeOrder map[snowflake.ID]int
}

func (s *Service) index(ctx context.Context, db *gorm.DB) (*matrixIndex, error) {
	roles, err := s.roles.ListRoles(ctx, db)
	if err != nil {
		return nil, err
	}
	types, err := s.repo.ListTypes(ctx, db)
	if err != nil {
		return nil, err
	}
	idx := &matrixIndex{
		roles:     make(map[string]*caseroledomain.DefaultRole, len(roles)),
		types:     make(map[string]*matrixdomain.NotificationType, len(types)),
		roleByID:  make(map[snowflake.ID]*caseroledomain.DefaultRole, len(roles)),
		typeByID:  make(map[snowflake.ID]*matrixdomain.NotificationType, len(types)),
		roleOrder: make(map[string]int, len(caseroledomain.DefaultRoles)),
		typeOrder: make(map[snowflake.ID]int, len(types)),
	}
	for _, r := range roles {
		idx.roles[r.Slug] = r
		idx.roleByID[r.ID] = r
	}
	for i, t := range types {
		idx.types[t.Slug] = t
		idx.typeByID[t.ID] = t
		idx.typeOrder[t.ID] = i
	}
	for i, name := range caseroledomain.DefaultRoles {
		idx.roleOrder[name] = i
	}
	return idx, nil
}

type pair struct {
	roleID   snowflake.ID
	typeID   snowflake.ID
	notified bool
}

// resolve maps overrides to ids. A later override of the same cell wins.
func (idx *matrixIndex) resolve(overrides []matrixdomain.Override) ([]pair, error) {
	verr := &apperr.ValidationError{}
	out := make([]pair, 0, len(overrides))
	for i, o := range overrides {
		role, ok := idx.roles[o.Role]
		if !ok {
			verr.Add(fieldName(i, "role"), "unknown", "Unknown case role")
			continue
		}
		t, ok := idx.types[o.NotificationType]
		if !ok {
			verr.Add(fieldName(i, "notification_type"), "unknown", "Unknown notification type")
			continue
		}
		out = append(out, pair{roleID: role.ID, typeID: t.ID, notified: o.IsNotified})
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func (idx *matrixIndex) entries(cells []pair) []matrixdomain.Entry {
	out := make([]matrixdomain.Entry, 0, len(cells))
	type keyed struct {
		entry    matrixdomain.Entry
		roleRank int
		typeRank int
	}
	sorted := make([]keyed, 0, len(cells))
	for _, c := range cells {
		role, ok := idx.roleByID[c.roleID]
		if !ok {
			continue
		}
		t, ok := idx.typeByID[c.typeID]
		if !ok {
			continue
		}
		rank, known := idx.roleOrder[role.Name]
		if !known {
			rank = len(idx.roleOrder)
		}
		sorted = append(sorted, keyed{
			entry: matrixdomain.Entry{
				Role:                 role.Name,
				RoleSlug:             role.Slug,
				NotificationType:     t.Name,
				NotificationTypeSlug: t.Slug,
				IsNotified:           c.notified,
			},
			roleRank: rank,
			typeRank: idx.typeOrder[t.ID],
		})
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].roleRank != sorted[j].roleRank {
			return sorted[i].roleRank < sorted[j].roleRank
		}
		return sorted[i].typeRank < sorted[j].typeRank
	})
	for _, k := range sorted {
		out = append(out, k.entry)
	}
	return out
}

func fieldName(i int, name string) string {
	return "notification_matrix[" + strconv.Itoa(i) + "]." + name
}
