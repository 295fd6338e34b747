package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/caseline/internal/account/domain"
	auditdomain "github.com/smallbiznis/caseline/internal/audit/domain"
	"github.com/smallbiznis/caseline/internal/authorization"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
	casedomain "github.com/smallbiznis/caseline/internal/cases/domain"
	"github.com/smallbiznis/caseline/internal/clock"
	devicedomain "github.com/smallbiznis/caseline/internal/device/domain"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	matrixdomain "github.com/smallbiznis/caseline/internal/notificationmatrix/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/internal/scope"
	subscriptiondomain "github.com/smallbiznis/caseline/internal/subscription/domain"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/dates"
	"github.com/smallbiznis/caseline/pkg/db"
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
	Repo     casedomain.Repository
	Accounts accountdomain.Repository
	Devices  devicedomain.Service
	DeviceDB devicedomain.Repository
	Users    userdomain.Service
	UserDB   userdomain.Repository
	Subs     subscriptiondomain.Service
	Roles    caseroledomain.Service
	Matrix   matrixdomain.Service
	Authz    authorization.Service
	AuditSvc auditdomain.Service           `optional:"true"`
	Notifier notificationdomain.Dispatcher `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     casedomain.Repository
	accounts accountdomain.Repository
	devices  devicedomain.Service
	deviceDB devicedomain.Repository
	users    userdomain.Service
	userDB   userdomain.Repository
	subs     subscriptiondomain.Service
	roles    caseroledomain.Service
	matrix   matrixdomain.Service
	authz    authorization.Service
	auditSvc auditdomain.Service
	notifier notificationdomain.Dispatcher
}

func NewService(p ServiceParam) casedomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("cases.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		accounts: p.Accounts,
		devices:  p.Devices,
		deviceDB: p.DeviceDB,
		users:    p.Users,
		userDB:   p.UserDB,
		subs:     p.Subs,
		roles:    p.Roles,
		matrix:   p.Matrix,
		authz:    p.Authz,
		auditSvc: p.AuditSvc,
		notifier: p.Notifier,
	}
}

func (s *Service) Create(ctx context.Context, req casedomain.CreateCaseRequest) (*casedomain.CaseDetail, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}

	accountID := p.AccountID
	if account := strings.TrimSpace(req.Account); account != "" {
		found, err := s.accounts.FindBySlug(ctx, s.db, account)
		if err != nil {
			return nil, err
		}
		accountID = found.ID
	}
	if accountID == 0 {
		return nil, apperr.Invalid("account", "This field is required")
	}
	if err := s.authz.Check(ctx, p, authorization.ActionCaseCreate, authorization.AccountTarget(accountID)); err != nil {
		return nil, err
	}

	verr := &apperr.ValidationError{}
	patient := s.buildPatient(req.Patient, "patient.", verr)
	var parent *casedomain.Parent
	if req.Parent != nil {
		parent = buildParent(*req.Parent, verr)
	}
	timezone := validateTimezone(req.Timezone, verr)
	if strings.TrimSpace(req.Device) == "" {
		verr.Add("device", "required", "This field is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if _, err := s.subs.Current(ctx, accountID); err != nil {
		return nil, err
	}
	device, err := s.deviceDB.FindBySerial(ctx, s.db, req.Device)
	if errors.Is(err, devicedomain.ErrDeviceNotFound) {
		return nil, apperr.Invalid("device", "Device does not exist")
	}
	if err != nil {
		return nil, err
	}
	if device.AccountID != accountID {
		return nil, casedomain.ErrDeviceWrongAccount
	}

	desired := make(caseroledomain.Assignment, len(req.Roles)+1)
	for role, users := range req.Roles {
		desired[role] = users
	}

	var (
		c       *casedomain.Case
		contact *userdomain.User
		result  *caseroledomain.Result
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.devices.Assign(ctx, tx, device.ID); err != nil {
			return err
		}

		now := s.clock.Now()
		patient.ID = s.genID.Generate()
		patient.CreatedAt, patient.UpdatedAt = now, now
		if err := s.repo.InsertPatient(ctx, tx, patient); err != nil {
			return err
		}

		c = &casedomain.Case{
			ID:        s.genID.Generate(),
			PatientID: patient.ID,
			AccountID: accountID,
			IsConsent: req.IsConsent,
			IsActive:  true,
			Timezone:  timezone,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if p.UserID != 0 {
			createdBy := p.UserID
			c.CreatedBy = &createdBy
		}

		switch {
		case parent != nil && req.Parent.CreateContact:
			var err error
			contact, err = s.users.CreateSystemContact(ctx, tx, userdomain.CreateContactRequest{
				Email:     req.Parent.Email,
				FirstName: parent.FirstName,
				LastName:  parent.LastName,
				Phone1:    parent.Phone1,
				AccountID: accountID,
			})
			if err != nil {
				return prefixed("parent.", err)
			}
			desired[caseroledomain.RoleParent] = []snowflake.ID{contact.ID}
		case parent != nil:
			parent.ID = s.genID.Generate()
			parent.CreatedAt = now
			if err := s.repo.InsertParent(ctx, tx, parent); err != nil {
				return err
			}
			c.ParentID = &parent.ID
		}

		next, err := s.repo.NextCaseNo(ctx, tx)
		if err != nil {
			return err
		}
		c.CaseNo = fmt.Sprintf("%0*d", casedomain.CaseNoWidth, next)
		c.Slug = c.CaseNo
		if err := s.repo.Insert(ctx, tx, c); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return casedomain.ErrCaseNoTaken
			}
			return err
		}

		err = s.repo.InsertCaseDevice(ctx, tx, &casedomain.CaseDevice{
			ID:        s.genID.Generate(),
			CaseID:    c.ID,
			DeviceID:  device.ID,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}

		result, err = s.roles.Reconcile(ctx, tx, c.Ref(), desired)
		if err != nil {
			return err
		}
		if result.ParentUserID != nil {
			c.ParentUserID = result.ParentUserID
		}
		return s.matrix.Seed(ctx, tx, c.ID, req.NotificationMatrix)
	})
	if err != nil {
		return nil, err
	}

	if contact != nil {
		if err := s.users.AddGroup(ctx, contact.ID, authorization.GroupContact); err != nil {
			s.log.Warn("failed to grant contact group",
				zap.String("case_id", c.ID.String()),
				zap.String("user_id", contact.ID.String()),
				zap.Error(err),
			)
		}
	}
	s.roles.Publish(ctx, result)

	s.log.Info("case created",
		zap.String("case_id", c.ID.String()),
		zap.String("case_no", c.CaseNo),
		zap.String("account_id", accountID.String()),
		zap.String("device_id", device.ID.String()),
	)
	s.audit(ctx, c, "case.created", map[string]any{
		"case_no":       c.CaseNo,
		"serial_number": device.SerialNumber,
	})
	return s.detail(ctx, c)
}

func (s *Service) List(ctx context.Context, req casedomain.ListCaseRequest) (casedomain.ListCaseResponse, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return casedomain.ListCaseResponse{}, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionCaseList, nil); err != nil {
		return casedomain.ListCaseResponse{}, err
	}
	codes, err := s.authz.Resolve(ctx, p, nil)
	if err != nil {
		return casedomain.ListCaseResponse{}, err
	}

	filter := casedomain.ListFilter{
		IsActive:        req.IsActive,
		Search:          req.Search,
		IncludeArchived: req.IncludeArchived && p.IsSuperuser,
	}
	if req.Account != "" {
		account, err := s.accounts.FindBySlug(ctx, s.db, req.Account)
		if err != nil {
			return casedomain.ListCaseResponse{}, err
		}
		filter.AccountID = &account.ID
	}
	page := req.Pagination.Normalize()
	filter.Offset = (page.Page - 1) * page.PageSize
	filter.Limit = page.PageSize

	scoped := scope.Apply(s.db.WithContext(ctx).Model(&casedomain.Case{}), p, codes, scope.Cases)
	items, total, err := s.repo.List(ctx, scoped, filter)
	if err != nil {
		return casedomain.ListCaseResponse{}, err
	}
	if err := s.attachPatients(ctx, items); err != nil {
		return casedomain.ListCaseResponse{}, err
	}
	return casedomain.ListCaseResponse{PageInfo: page.Info(total), Cases: items}, nil
}

func (s *Service) Get(ctx context.Context, caseNo string) (*casedomain.CaseDetail, error) {
	c, err := s.load(ctx, caseNo, authorization.ActionCaseView)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, c)
}

func (s *Service) Update(ctx context.Context, caseNo string, req casedomain.UpdateCaseRequest) (*casedomain.CaseDetail, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.Lookup(ctx, caseNo)
	if err != nil {
		return nil, err
	}
	target := authorization.CaseTarget(c.ID, c.AccountID)
	if req.IsActive != nil || req.IsConsent != nil || req.Timezone != nil {
		if err := s.authz.Check(ctx, p, authorization.ActionCaseEdit, target); err != nil {
			return nil, err
		}
	}
	if req.Patient != nil {
		if err := s.authz.Check(ctx, p, authorization.ActionCasePatient, target); err != nil {
			return nil, err
		}
	}
	if c.IsArchived {
		return nil, casedomain.ErrCaseArchived
	}

	verr := &apperr.ValidationError{}
	fields := map[string]any{}
	if req.Timezone != nil {
		fields["timezone"] = validateTimezone(*req.Timezone, verr)
	}
	if req.IsConsent != nil {
		fields["is_consent"] = *req.IsConsent
	}
	var patient *casedomain.Patient
	if req.Patient != nil {
		patient = s.buildPatient(*req.Patient, "patient.", verr)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	// Only a change of is_active is announced.
	var announce string
	if req.IsActive != nil && *req.IsActive != c.IsActive {
		fields["is_active"] = *req.IsActive
		if *req.IsActive {
			fields["is_closed"] = false
			announce = matrixdomain.TypeCaseOpened
		} else {
			fields["is_closed"] = true
			announce = matrixdomain.TypeCaseClosed
		}
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if patient != nil {
			err := tx.WithContext(ctx).Model(&casedomain.Patient{}).Where("id = ?", c.PatientID).Updates(map[string]any{
				"first_name":    patient.FirstName,
				"last_name":     patient.LastName,
				"middle_name":   patient.MiddleName,
				"gender":        patient.Gender,
				"date_of_birth": patient.DateOfBirth,
				"address1":      patient.Address1,
				"address2":      patient.Address2,
				"city":          patient.City,
				"state":         patient.State,
				"country":       patient.Country,
				"zipcode":       patient.Zipcode,
				"contact_email": patient.ContactEmail,
				"updated_at":    now,
			}).Error
			if err != nil {
				return err
			}
		}
		if len(fields) == 0 {
			return nil
		}
		fields["updated_at"] = now
		return s.repo.UpdateFields(ctx, tx, c.ID, fields)
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.FindByID(ctx, s.db, c.ID)
	if err != nil {
		return nil, err
	}
	if announce != "" {
		s.Notify(ctx, updated, announce, nil)
	}
	s.audit(ctx, updated, "case.updated", map[string]any{"fields": keys(fields), "patient": patient != nil})
	return s.detail(ctx, updated)
}

func (s *Service) Close(ctx context.Context, caseNo string) (*casedomain.CaseDetail, error) {
	c, err := s.load(ctx, caseNo, authorization.ActionCaseEdit)
	if err != nil {
		return nil, err
	}
	if c.IsArchived {
		return nil, casedomain.ErrCaseArchived
	}
	if c.IsClosed && !c.IsActive {
		return nil, casedomain.ErrCaseAlreadyClosed
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := s.repo.UpdateFields(ctx, tx, c.ID, map[string]any{
			"is_active":  false,
			"is_closed":  true,
			"updated_at": now,
		})
		if err != nil {
			return err
		}
		link, err := s.repo.ActiveDevice(ctx, tx, c.ID)
		if err != nil || link == nil {
			return err
		}
		return s.devices.Release(ctx, tx, link.DeviceID, devicedomain.StatusInCheckout)
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.FindByID(ctx, s.db, c.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("case closed", zap.String("case_id", c.ID.String()), zap.String("case_no", c.CaseNo))
	s.Notify(ctx, updated, matrixdomain.TypeCaseClosed, nil)
	s.audit(ctx, updated, "case.closed", nil)
	return s.detail(ctx, updated)
}

func (s *Service) ChangeDevice(ctx context.Context, caseNo string, req casedomain.ChangeDeviceRequest) (*casedomain.CaseDetail, error) {
	c, err := s.load(ctx, caseNo, authorization.ActionCaseEdit)
	if err != nil {
		return nil, err
	}
	if c.IsArchived {
		return nil, casedomain.ErrCaseArchived
	}

	verr := &apperr.ValidationError{}
	if strings.TrimSpace(req.OldDevice) == "" {
		verr.Add("old_device", "required", "This field is required")
	}
	if strings.TrimSpace(req.NewDevice) == "" {
		verr.Add("new_device", "required", "This field is required")
	}
	if !req.OldDeviceStatus.Valid() || req.OldDeviceStatus == devicedomain.StatusAssigned {
		verr.Add("old_device_status", "invalid", "Select a valid choice")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	oldDevice, err := s.findDevice(ctx, "old_device", req.OldDevice)
	if err != nil {
		return nil, err
	}
	newDevice, err := s.findDevice(ctx, "new_device", req.NewDevice)
	if err != nil {
		return nil, err
	}
	if newDevice.AccountID != c.AccountID {
		return nil, casedomain.ErrDeviceWrongAccount
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		link, err := s.repo.ActiveDevice(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		if link == nil || link.DeviceID != oldDevice.ID {
			return casedomain.ErrDeviceNotOnCase
		}
		if err := s.devices.Assign(ctx, tx, newDevice.ID); err != nil {
			return err
		}
		if err := s.devices.Release(ctx, tx, oldDevice.ID, req.OldDeviceStatus); err != nil {
			return err
		}
		if err := s.repo.DeactivateDevice(ctx, tx, link.ID, now); err != nil {
			return err
		}
		err = s.repo.InsertCaseDevice(ctx, tx, &casedomain.CaseDevice{
			ID:        s.genID.Generate(),
			CaseID:    c.ID,
			DeviceID:  newDevice.ID,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		return s.repo.UpdateFields(ctx, tx, c.ID, map[string]any{"updated_at": now})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("case device changed",
		zap.String("case_id", c.ID.String()),
		zap.String("old_device", oldDevice.SerialNumber),
		zap.String("new_device", newDevice.SerialNumber),
		zap.String("old_device_status", string(req.OldDeviceStatus)),
	)
	s.Notify(ctx, c, matrixdomain.TypeCaseDeviceChanged, map[string]any{
		"serial_number":     newDevice.SerialNumber,
		"old_serial_number": oldDevice.SerialNumber,
	})
	s.audit(ctx, c, "case.device_changed", map[string]any{
		"old_device":        oldDevice.SerialNumber,
		"old_device_status": req.OldDeviceStatus,
		"new_device":        newDevice.SerialNumber,
	})
	return s.detail(ctx, c)
}

func (s *Service) Archive(ctx context.Context, req casedomain.ArchiveRequest) (casedomain.ArchiveResult, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return casedomain.ArchiveResult{}, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionCaseArchive, nil); err != nil {
		return casedomain.ArchiveResult{}, err
	}

	found, err := s.repo.FindBySlugs(ctx, s.db, compact(req.Cases))
	if err != nil {
		return casedomain.ArchiveResult{}, err
	}
	result := casedomain.ArchiveResult{Archived: []string{}, Skipped: missing(req.Cases, found)}
	var (
		ids     []snowflake.ID
		changed []*casedomain.Case
	)
	for _, c := range found {
		switch {
		case c.IsActive:
			result.Skipped = append(result.Skipped, c.CaseNo)
		case c.IsArchived:
			result.Archived = append(result.Archived, c.CaseNo)
		default:
			ids = append(ids, c.ID)
			changed = append(changed, c)
			result.Archived = append(result.Archived, c.CaseNo)
		}
	}
	if err := s.repo.SetArchived(ctx, s.db, ids, true, s.clock.Now()); err != nil {
		return casedomain.ArchiveResult{}, err
	}

	from, fromName := s.actor(ctx)
	for _, c := range changed {
		c.IsArchived = true
		admin, err := s.authz.AccountAdmin(ctx, c.AccountID)
		if err != nil {
			s.log.Warn("case archived without account admin",
				zap.String("case_id", c.ID.String()),
				zap.Error(err),
			)
		} else if s.notifier != nil {
			s.notifier.Notify(ctx, notificationdomain.Event{
				Action:     matrixdomain.TypeCaseArchived,
				ToUserID:   admin,
				FromUserID: from,
				Context: map[string]any{
					"case_number":    c.CaseNo,
					"from_user_name": fromName,
				},
			})
		}
		s.audit(ctx, c, "case.archived", nil)
	}
	s.log.Info("cases archived", zap.Int("archived", len(ids)), zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

func (s *Service) Unarchive(ctx context.Context, req casedomain.ArchiveRequest) (casedomain.ArchiveResult, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return casedomain.ArchiveResult{}, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionCaseArchive, nil); err != nil {
		return casedomain.ArchiveResult{}, err
	}

	found, err := s.repo.FindBySlugs(ctx, s.db, compact(req.Cases))
	if err != nil {
		return casedomain.ArchiveResult{}, err
	}
	result := casedomain.ArchiveResult{Archived: []string{}, Skipped: missing(req.Cases, found)}
	ids := make([]snowflake.ID, 0, len(found))
	for _, c := range found {
		if !c.IsArchived {
			result.Skipped = append(result.Skipped, c.CaseNo)
			continue
		}
		ids = append(ids, c.ID)
		result.Archived = append(result.Archived, c.CaseNo)
	}
	if err := s.repo.SetArchived(ctx, s.db, ids, false, s.clock.Now()); err != nil {
		return casedomain.ArchiveResult{}, err
	}
	for _, c := range found {
		if slices.Contains(ids, c.ID) {
			c.IsArchived = false
			s.audit(ctx, c, "case.unarchived", nil)
		}
	}
	return result, nil
}

func (s *Service) ListToArchive(ctx context.Context, before string) ([]*casedomain.Case, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionCaseArchive, nil); err != nil {
		return nil, err
	}
	day, err := dates.Parse(before)
	if err != nil {
		return nil, apperr.Invalid("date", "Enter a valid date")
	}
	items, err := s.repo.ListInactiveBefore(ctx, s.db, day)
	if err != nil {
		return nil, err
	}
	if err := s.attachPatients(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) Roles(ctx context.Context, caseNo string) (*caseroledomain.CaseRoles, error) {
	c, err := s.Lookup(ctx, caseNo)
	if err != nil {
		return nil, err
	}
	return s.roles.Retrieve(ctx, c.Ref())
}

func (s *Service) UpdateRoles(ctx context.Context, caseNo string, desired caseroledomain.Assignment) (*caseroledomain.CaseRoles, error) {
	c, err := s.Lookup(ctx, caseNo)
	if err != nil {
		return nil, err
	}
	if c.IsArchived {
		return nil, casedomain.ErrCaseArchived
	}
	return s.roles.Update(ctx, c.Ref(), desired)
}

func (s *Service) Matrix(ctx context.Context, caseNo string) ([]matrixdomain.Entry, error) {
	c, err := s.Lookup(ctx, caseNo)
	if err != nil {
		return nil, err
	}
	return s.matrix.ListForCase(ctx, c.Ref())
}

func (s *Service) UpdateMatrix(ctx context.Context, caseNo string, overrides []matrixdomain.Override) ([]matrixdomain.Entry, error) {
	c, err := s.Lookup(ctx, caseNo)
	if err != nil {
		return nil, err
	}
	return s.matrix.UpdateForCase(ctx, c.Ref(), overrides)
}

func (s *Service) Lookup(ctx context.Context, caseNo string) (*casedomain.Case, error) {
	return s.repo.FindBySlug(ctx, s.db, caseNo)
}

func (s *Service) Notify(ctx context.Context, c *casedomain.Case, notificationType string, data map[string]any) {
	if s.notifier == nil {
		return
	}
	recipients, err := s.matrix.Recipients(ctx, c.ID, notificationType)
	if err != nil {
		s.log.Warn("failed to resolve case recipients",
			zap.String("case_id", c.ID.String()),
			zap.String("notification_type", notificationType),
			zap.Error(err),
		)
		return
	}
	if len(recipients) == 0 {
		return
	}

	from, fromName := s.actor(ctx)
	events := make([]notificationdomain.Event, 0, len(recipients))
	for _, to := range recipients {
		payload := map[string]any{
			"case_number":    c.CaseNo,
			"from_user_name": fromName,
			"link":           c.Slug,
		}
		for k, v := range data {
			payload[k] = v
		}
		events = append(events, notificationdomain.Event{
			Action:     notificationType,
			ToUserID:   to,
			FromUserID: from,
			Context:    payload,
		})
	}
	s.notifier.Notify(ctx, events...)
}

func (s *Service) load(ctx context.Context, caseNo string, action authorization.Action) (*casedomain.Case, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.Lookup(ctx, caseNo)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, action, authorization.CaseTarget(c.ID, c.AccountID)); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) detail(ctx context.Context, c *casedomain.Case) (*casedomain.CaseDetail, error) {
	out := &casedomain.CaseDetail{Case: c}
	patient, err := s.repo.FindPatient(ctx, s.db, c.PatientID)
	if err != nil {
		return nil, err
	}
	out.Patient = patient
	if c.ParentID != nil {
		parent, err := s.repo.FindParent(ctx, s.db, *c.ParentID)
		if err != nil && !errors.Is(err, casedomain.ErrParentNotFound) {
			return nil, err
		}
		out.Parent = parent
	}
	link, err := s.repo.ActiveDevice(ctx, s.db, c.ID)
	if err != nil {
		return nil, err
	}
	if link != nil {
		device, err := s.deviceDB.FindByID(ctx, s.db, link.DeviceID)
		if err != nil && !errors.Is(err, devicedomain.ErrDeviceNotFound) {
			return nil, err
		}
		out.Device = device
	}
	return out, nil
}

func (s *Service) attachPatients(ctx context.Context, items []*casedomain.Case) error {
	ids := make([]snowflake.ID, 0, len(items))
	for _, c := range items {
		ids = append(ids, c.PatientID)
	}
	patients, err := s.repo.PatientsByIDs(ctx, s.db, ids)
	if err != nil {
		return err
	}
	byID := make(map[snowflake.ID]*casedomain.Patient, len(patients))
	for _, p := range patients {
		byID[p.ID] = p
	}
	for _, c := range items {
		c.Patient = byID[c.PatientID]
	}
	return nil
}

func (s *Service) findDevice(ctx context.Context, field, serial string) (*devicedomain.Device, error) {
	device, err := s.deviceDB.FindBySerial(ctx, s.db, serial)
	if errors.Is(err, devicedomain.ErrDeviceNotFound) {
		return nil, apperr.Invalid(field, "Device does not exist")
	}
	return device, err
}

func (s *Service) actor(ctx context.Context) (*snowflake.ID, string) {
	p, ok := principal.FromContext(ctx)
	if !ok || p.UserID == 0 {
		return nil, ""
	}
	id := p.UserID
	u, err := s.userDB.FindByID(ctx, s.db, id)
	if err != nil {
		return &id, ""
	}
	return &id, u.FullName()
}

func (s *Service) audit(ctx context.Context, c *casedomain.Case, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	caseID := c.ID.String()
	accountID := c.AccountID
	if err := s.auditSvc.AuditLog(ctx, &accountID, "", nil, action, "case", &caseID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) buildPatient(req casedomain.PatientRequest, prefix string, verr *apperr.ValidationError) *casedomain.Patient {
	patient := &casedomain.Patient{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		MiddleName:   strings.TrimSpace(req.MiddleName),
		Gender:       strings.TrimSpace(req.Gender),
		Address1:     strings.TrimSpace(req.Address1),
		Address2:     strings.TrimSpace(req.Address2),
		City:         strings.TrimSpace(req.City),
		State:        strings.TrimSpace(req.State),
		Country:      strings.TrimSpace(req.Country),
		Zipcode:      strings.TrimSpace(req.Zipcode),
		ContactEmail: strings.ToLower(strings.TrimSpace(req.ContactEmail)),
	}
	required := map[string]string{
		"first_name": patient.FirstName,
		"last_name":  patient.LastName,
		"address1":   patient.Address1,
		"zipcode":    patient.Zipcode,
	}
	for _, field := range []string{"first_name", "last_name", "address1", "zipcode"} {
		if required[field] == "" {
			verr.Add(prefix+field, "required", "This field is required")
		}
	}
	if len(patient.Zipcode) > 11 {
		verr.Add(prefix+"zipcode", "max_length", "Ensure this field has no more than 11 characters")
	}
	if !slices.Contains(casedomain.Genders, patient.Gender) {
		verr.Add(prefix+"gender", "invalid", "Select a valid choice")
	}
	dob, err := dates.Parse(req.DateOfBirth)
	switch {
	case err != nil:
		verr.Add(prefix+"date_of_birth", "invalid", "Enter a valid date")
	case dob.After(dates.Day(s.clock.Now())):
		verr.Add(prefix+"date_of_birth", "invalid", "Date of birth can not be in the future")
	default:
		patient.DateOfBirth = dob
	}
	if patient.ContactEmail != "" {
		if addr, err := mail.ParseAddress(patient.ContactEmail); err != nil || addr.Address != patient.ContactEmail {
			verr.Add(prefix+"contact_email", "invalid", "Enter a valid email address")
		}
	}
	return patient
}

func buildParent(req casedomain.ParentRequest, verr *apperr.ValidationError) *casedomain.Parent {
	parent := &casedomain.Parent{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Title:        strings.TrimSpace(req.Title),
		Relationship: strings.TrimSpace(req.Relationship),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone1:       strings.TrimSpace(req.Phone1),
		Language:     strings.TrimSpace(req.Language),
	}
	parent.Name = strings.TrimSpace(parent.FirstName + " " + parent.LastName)
	if parent.Name == "" {
		verr.Add("parent.first_name", "required", "Parent first or last name is required")
	}
	if parent.Title != "" && !slices.Contains(casedomain.ParentTitles, parent.Title) {
		verr.Add("parent.title", "invalid", "Select a valid choice")
	}
	if parent.Relationship != "" && !slices.Contains(casedomain.ParentRelationships, parent.Relationship) {
		verr.Add("parent.relationship_to_patient", "invalid", "Select a valid choice")
	}
	if req.CreateContact && parent.Email == "" {
		verr.Add("parent.email", "required", "Email is required to create a parent contact")
	}
	if parent.Language == "" {
		parent.Language = "en"
	}
	return parent
}

func validateTimezone(value string, verr *apperr.ValidationError) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "UTC"
	}
	if _, err := time.LoadLocation(value); err != nil {
		verr.Add("timezone", "invalid", "Select a valid timezone")
	}
	return value
}

// prefixed moves the field errors of a nested request under prefix.
func prefixed(prefix string, err error) error {
	verr, ok := apperr.AsValidation(err)
	if !ok {
		return err
	}
	out := &apperr.ValidationError{}
	for _, fe := range verr.Errors {
		out.Add(prefix+fe.Field, fe.Code, fe.Message)
	}
	return out
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func missing(requested []string, found []*casedomain.Case) []string {
	out := []string{}
	for _, slug := range compact(requested) {
		if !slices.ContainsFunc(found, func(c *casedomain.Case) bool { return c.Slug == slug }) {
			out = append(out, slug)
		}
	}
	return out
}

func keys(fields map[string]any) []string {
	out := make([]string, 0, len(fields))
	for k := range fields {
		if k != "updated_at" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
