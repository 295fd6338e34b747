package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	accountdomain "github.com/smallbiznis/caseline/internal/account/domain"
	"github.com/smallbiznis/caseline/internal/authorization"
	"github.com/smallbiznis/caseline/internal/clock"
	devicedomain "github.com/smallbiznis/caseline/internal/device/domain"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/internal/scope"
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
	Repo     devicedomain.Repository
	Accounts accountdomain.Repository
	Users    userdomain.Repository
	Authz    authorization.Service
	Notifier notificationdomain.Dispatcher
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     devicedomain.Repository
	accounts accountdomain.Repository
	users    userdomain.Repository
	authz    authorization.Service
	notifier notificationdomain.Dispatcher
}

func NewService(p ServiceParam) devicedomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("device.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		accounts: p.Accounts,
		users:    p.Users,
		authz:    p.Authz,
		notifier: p.Notifier,
	}
}

func (s *Service) List(ctx context.Context, req devicedomain.ListDeviceRequest) (devicedomain.ListDeviceResponse, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return devicedomain.ListDeviceResponse{}, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionDeviceList, nil); err != nil {
		return devicedomain.ListDeviceResponse{}, err
	}
	codes, err := s.authz.Resolve(ctx, p, nil)
	if err != nil {
		return devicedomain.ListDeviceResponse{}, err
	}

	filter := devicedomain.ListFilter{Status: req.Status, Search: req.Search}
	if req.Account != "" {
		account, err := s.accounts.FindBySlug(ctx, s.db, req.Account)
		if err != nil {
			return devicedomain.ListDeviceResponse{}, err
		}
		filter.AccountID = &account.ID
	}
	page := req.Pagination.Normalize()
	filter.Offset = (page.Page - 1) * page.PageSize
	filter.Limit = page.PageSize

	scoped := scope.Apply(s.db.WithContext(ctx).Model(&devicedomain.Device{}), p, codes, scope.Devices)
	items, total, err := s.repo.List(ctx, scoped, filter)
	if err != nil {
		return devicedomain.ListDeviceResponse{}, err
	}
	return devicedomain.ListDeviceResponse{PageInfo: page.Info(total), Devices: items}, nil
}

func (s *Service) Get(ctx context.Context, slugValue string) (*devicedomain.Device, error) {
	return s.load(ctx, slugValue, authorization.ActionDeviceView)
}

func (s *Service) Create(ctx context.Context, req devicedomain.CreateDeviceRequest) (*devicedomain.Device, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionDeviceCreate, nil); err != nil {
		return nil, err
	}
	return s.Provision(ctx, req)
}

func (s *Service) Provision(ctx context.Context, req devicedomain.CreateDeviceRequest) (*devicedomain.Device, error) {
	verr := &apperr.ValidationError{}
	serial := strings.TrimSpace(req.SerialNumber)
	switch {
	case serial == "":
		verr.Add("serial_number", "required", "This field is required")
	case len(serial) > devicedomain.MaxSerialNumber:
		verr.Add("serial_number", "max_length", "Serial number must be at most 10 characters")
	}
	status := req.Status
	if status == "" {
		status = devicedomain.StatusAvailable
	}
	if !status.Valid() {
		verr.Add("status", "invalid_choice", "Status must be one of Assigned, Available, Lost or Broken, In Checkout")
	}
	added := clock.Today(s.clock)
	if strings.TrimSpace(req.DateAdded) != "" {
		t, err := dates.Parse(req.DateAdded)
		if err != nil {
			verr.Add("date_added", "", "Enter a valid date")
		}
		added = t
	}
	var subStart *time.Time
	if strings.TrimSpace(req.SubStartDate) != "" {
		t, err := dates.Parse(req.SubStartDate)
		if err != nil {
			verr.Add("sub_start_date", "", "Enter a valid date")
		}
		subStart = &t
	}
	if strings.TrimSpace(req.AccountNumber) == "" {
		verr.Add("account_number", "required", "This field is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByNumber(ctx, s.db, req.AccountNumber)
	if errors.Is(err, accountdomain.ErrAccountNotFound) {
		return nil, apperr.Invalid("account_number", "Account does not exist")
	}
	if err != nil {
		return nil, err
	}

	var itemID *snowflake.ID
	if number := strings.TrimSpace(req.ItemNumber); number != "" {
		item, err := s.repo.FindItemByNumber(ctx, s.db, number)
		if errors.Is(err, devicedomain.ErrItemNotFound) {
			return nil, apperr.Invalid("item_number", "Item number does not exist")
		}
		if err != nil {
			return nil, err
		}
		itemID = &item.ID
	}

	if _, err := s.repo.FindBySerial(ctx, s.db, serial); err == nil {
		return nil, devicedomain.ErrSerialTaken
	} else if !errors.Is(err, devicedomain.ErrDeviceNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	device := &devicedomain.Device{
		ID:           s.genID.Generate(),
		SerialNumber: serial,
		Slug:         slug.Make(strings.ReplaceAll(serial, "_", "-")),
		Status:       status,
		AccountID:    account.ID,
		ItemID:       itemID,
		SubStartDate: subStart,
		IsActive:     true,
		DateAdded:    added,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, device); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, devicedomain.ErrSerialTaken
		}
		return nil, err
	}
	s.log.Info("device created",
		zap.String("device_id", device.ID.String()),
		zap.String("serial_number", device.SerialNumber),
		zap.String("account_id", account.ID.String()),
	)
	return device, nil
}

func (s *Service) Update(ctx context.Context, slugValue string, req devicedomain.UpdateDeviceRequest) (*devicedomain.Device, error) {
	device, err := s.load(ctx, slugValue, authorization.ActionDeviceEdit)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if req.ItemNumber != nil {
		if strings.TrimSpace(*req.ItemNumber) == "" {
			fields["item_id"] = nil
		} else {
			item, err := s.repo.FindItemByNumber(ctx, s.db, *req.ItemNumber)
			if errors.Is(err, devicedomain.ErrItemNotFound) {
				return nil, apperr.Invalid("item_number", "Item number does not exist")
			}
			if err != nil {
				return nil, err
			}
			fields["item_id"] = item.ID
		}
	}
	if req.SubStartDate != nil {
		if strings.TrimSpace(*req.SubStartDate) == "" {
			fields["sub_start_date"] = nil
		} else {
			t, err := dates.Parse(*req.SubStartDate)
			if err != nil {
				return nil, apperr.Invalid("sub_start_date", "Enter a valid date")
			}
			fields["sub_start_date"] = t
		}
	}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}
	if len(fields) == 0 {
		return device, nil
	}
	fields["updated_at"] = s.clock.Now()
	if err := s.repo.UpdateFields(ctx, s.db, device.ID, fields); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, s.db, device.ID)
}

// SetStatus changes the status by hand and records it in the maintenance log.
func (s *Service) SetStatus(ctx context.Context, slugValue string, req devicedomain.SetStatusRequest) (*devicedomain.MaintenanceRecord, error) {
	device, err := s.load(ctx, slugValue, authorization.ActionDeviceEdit)
	if err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, apperr.Invalid("status", "Status must be one of Assigned, Available, Lost or Broken, In Checkout")
	}
	note := strings.TrimSpace(req.Note)
	if len(note) > devicedomain.MaxMaintenanceNote {
		return nil, apperr.Invalid("note", "Ensure this field has no more than 512 characters")
	}

	now := s.clock.Now()
	record := &devicedomain.MaintenanceRecord{
		ID:        s.genID.Generate(),
		DeviceID:  device.ID,
		Status:    req.Status,
		Note:      note,
		CreatedBy: actorRef(ctx),
		CreatedAt: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateFields(ctx, tx, device.ID, map[string]any{
			"status":     req.Status,
			"updated_at": now,
		}); err != nil {
			return err
		}
		return s.repo.InsertRecord(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("device status changed",
		zap.String("device_id", device.ID.String()),
		zap.String("from", string(device.Status)),
		zap.String("to", string(req.Status)),
	)
	return record, nil
}

func (s *Service) Records(ctx context.Context, slugValue string) ([]*devicedomain.MaintenanceRecord, error) {
	device, err := s.load(ctx, slugValue, authorization.ActionDeviceViewRecord)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRecords(ctx, s.db, &device.ID)
}

func (s *Service) ListRecords(ctx context.Context) ([]*devicedomain.MaintenanceRecord, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionDeviceViewRecord, nil); err != nil {
		return nil, err
	}
	codes, err := s.authz.Resolve(ctx, p, nil)
	if err != nil {
		return nil, err
	}
	scoped := scope.Apply(s.db.WithContext(ctx).Model(&devicedomain.MaintenanceRecord{}), p, codes, scope.EquipmentRecords)
	return s.repo.ListRecords(ctx, scoped, nil)
}

// Transfer moves devices of one account to another. Every listed device
// must belong to the source account.
func (s *Service) Transfer(ctx context.Context, req devicedomain.TransferRequest) (devicedomain.TransferResult, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return devicedomain.TransferResult{}, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionDeviceTransfer, nil); err != nil {
		return devicedomain.TransferResult{}, err
	}
	if len(req.Devices) == 0 {
		return devicedomain.TransferResult{}, apperr.Invalid("devices", "At least one device is required")
	}

	from, err := s.accounts.FindBySlug(ctx, s.db, req.FromAccount)
	if err != nil {
		return devicedomain.TransferResult{}, err
	}
	to, err := s.accounts.FindBySlug(ctx, s.db, req.ToAccount)
	if err != nil {
		return devicedomain.TransferResult{}, err
	}
	if from.ID == to.ID {
		return devicedomain.TransferResult{}, devicedomain.ErrSameAccount
	}

	devices, err := s.repo.FindBySlugs(ctx, s.db, req.Devices)
	if err != nil {
		return devicedomain.TransferResult{}, err
	}
	found := make(map[string]bool, len(devices))
	ids := make([]snowflake.ID, 0, len(devices))
	serials := make([]string, 0, len(devices))
	for _, d := range devices {
		if d.AccountID != from.ID {
			continue
		}
		found[d.Slug] = true
		ids = append(ids, d.ID)
		serials = append(serials, d.SerialNumber)
	}
	var missing []string
	for _, slugValue := range req.Devices {
		if !found[slugValue] {
			missing = append(missing, slugValue)
		}
	}
	if len(missing) > 0 {
		return devicedomain.TransferResult{}, apperr.Conflict(
			"Following devices do not belong to account %s: %s", from.AccountNumber, strings.Join(missing, ", "))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.MoveToAccount(ctx, tx, ids, to.ID, s.clock.Now())
	})
	if err != nil {
		return devicedomain.TransferResult{}, err
	}

	s.log.Info("devices transferred",
		zap.String("from_account_id", from.ID.String()),
		zap.String("to_account_id", to.ID.String()),
		zap.Int("devices", len(ids)),
	)

	data := map[string]any{
		"from_account_name":     from.Name,
		"to_account_name":       to.Name,
		"device_serial_numbers": strings.Join(serials, ", "),
		"from_user_name":        s.actorName(ctx, p),
	}
	s.notifyAdmin(ctx, from.ID, "Devices Transferred From Account", data)
	s.notifyAdmin(ctx, to.ID, "Devices Transferred To Account", data)
	return devicedomain.TransferResult{SerialNumbers: serials}, nil
}

func (s *Service) ListItems(ctx context.Context) ([]*devicedomain.Item, error) {
	if _, err := principal.Require(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx, s.db)
}

func (s *Service) CreateItem(ctx context.Context, req devicedomain.CreateItemRequest) (*devicedomain.Item, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, authorization.ActionDeviceCreate, nil); err != nil {
		return nil, err
	}

	verr := &apperr.ValidationError{}
	number := strings.TrimSpace(req.ItemNumber)
	switch {
	case number == "":
		verr.Add("item_number", "required", "This field is required")
	case len(number) > devicedomain.MaxItemNumber:
		verr.Add("item_number", "max_length", "Item number must be at most 10 characters")
	}
	configuration := strings.TrimSpace(req.Configuration)
	if configuration == "" {
		verr.Add("configuration", "required", "This field is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	item := &devicedomain.Item{
		ID:            s.genID.Generate(),
		ItemNumber:    number,
		Configuration: configuration,
		Slug:          slug.Make(number),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertItem(ctx, s.db, item); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, devicedomain.ErrItemNumberTaken
		}
		return nil, err
	}
	return item, nil
}

func (s *Service) Assign(ctx context.Context, tx *gorm.DB, deviceID snowflake.ID) error {
	ok, err := s.repo.SwapStatus(ctx, tx, deviceID, devicedomain.StatusAvailable, devicedomain.StatusAssigned, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		if _, err := s.repo.FindByID(ctx, tx, deviceID); err != nil {
			return err
		}
		return devicedomain.ErrDeviceUnavailable
	}
	return nil
}

func (s *Service) Release(ctx context.Context, tx *gorm.DB, deviceID snowflake.ID, status devicedomain.Status) error {
	if !status.Valid() || status == devicedomain.StatusAssigned {
		return apperr.Invalid("status", "Device can only be released to Available, Lost or Broken, In Checkout")
	}
	ok, err := s.repo.SwapStatus(ctx, tx, deviceID, devicedomain.StatusAssigned, status, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn("released device was not assigned", zap.String("device_id", deviceID.String()))
		return s.repo.UpdateFields(ctx, tx, deviceID, map[string]any{"status": status, "updated_at": s.clock.Now()})
	}
	return nil
}

func (s *Service) load(ctx context.Context, slugValue string, action authorization.Action) (*devicedomain.Device, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	device, err := s.repo.FindBySlug(ctx, s.db, slugValue)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(ctx, p, action, authorization.DeviceTarget(device.ID, device.AccountID)); err != nil {
		return nil, err
	}
	return device, nil
}

func (s *Service) actorName(ctx context.Context, p principal.Principal) string {
	if p.UserID == 0 {
		return "System"
	}
	u, err := s.users.FindByID(ctx, s.db, p.UserID)
	if err != nil {
		return ""
	}
	return u.FullName()
}

func (s *Service) notifyAdmin(ctx context.Context, accountID snowflake.ID, action string, data map[string]any) {
	if s.notifier == nil {
		return
	}
	admin, err := s.authz.AccountAdmin(ctx, accountID)
	if err != nil {
		if !errors.Is(err, authorization.ErrNoAccountAdmin) {
			s.log.Warn("account admin lookup failed", zap.String("account_id", accountID.String()), zap.Error(err))
		}
		return
	}
	s.notifier.Notify(ctx, notificationdomain.Event{
		Action:     action,
		ToUserID:   admin,
		FromUserID: actorRef(ctx),
		Context:    data,
	})
}

func actorRef(ctx context.Context) *snowflake.ID {
	p, ok := principal.FromContext(ctx)
	if !ok || p.UserID == 0 {
		return nil
	}
	id := p.UserID
	return &id
}
