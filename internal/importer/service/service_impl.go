package service

import (
	"context"
	"io"
	"path/filepath"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	accountdomain "github.com/smallbiznis/caseline/internal/account/domain"
	auditdomain "github.com/smallbiznis/caseline/internal/audit/domain"
	"github.com/smallbiznis/caseline/internal/authorization"
	"github.com/smallbiznis/caseline/internal/clock"
	devicedomain "github.com/smallbiznis/caseline/internal/device/domain"
	importerdomain "github.com/smallbiznis/caseline/internal/importer/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      importerdomain.Repository
	Accounts  accountdomain.Service
	AccountDB accountdomain.Repository
	Devices   devicedomain.Service
	DeviceDB  devicedomain.Repository
	Authz     authorization.Service
	AuditSvc  auditdomain.Service `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      importerdomain.Repository
	accounts  accountdomain.Service
	accountDB accountdomain.Repository
	devices   devicedomain.Service
	deviceDB  devicedomain.Repository
	authz     authorization.Service
	auditSvc  auditdomain.Service
}

func NewService(p ServiceParam) importerdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("importer.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		accounts:  p.Accounts,
		accountDB: p.AccountDB,
		devices:   p.Devices,
		deviceDB:  p.DeviceDB,
		authz:     p.Authz,
		auditSvc:  p.AuditSvc,
	}
}

func (s *Service) Upload(ctx context.Context, kind importerdomain.Kind, filename string, r io.Reader) (*importerdomain.UploadDetail, error) {
	p, err := s.check(ctx, kind)
	if err != nil {
		return nil, err
	}
	rows, err := readRows(filename, r)
	if err != nil {
		return nil, err
	}

	var (
		data []map[string]any
		errs []importerdomain.RowErrors
	)
	switch kind {
	case importerdomain.KindAccount:
		data, errs, err = validateAccounts(ctx, rows, s.accountExists)
	case importerdomain.KindDevice:
		data, errs, err = validateDevices(ctx, rows, deviceLookups{
			serialExists:  s.serialExists,
			itemExists:    s.itemExists,
			accountExists: s.accountExists,
			today:         clock.Today(s.clock),
		})
	}
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	upload := &importerdomain.Upload{
		ID:        s.genID.Generate(),
		Slug:      uuid.NewString(),
		Kind:      kind,
		Filename:  filepath.Base(filename),
		CreatedAt: now,
	}
	if p.UserID != 0 {
		by := p.UserID
		upload.CreatedBy = &by
	}
	items := make([]*importerdomain.UploadItem, 0, len(data))
	for i := range data {
		items = append(items, &importerdomain.UploadItem{
			ID:        s.genID.Generate(),
			UploadID:  upload.ID,
			Row:       i + 2,
			Data:      datatypes.JSONMap(data[i]),
			Errors:    datatypes.NewJSONType(errs[i]),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	var dropped int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if dropped, err = s.repo.DeletePending(ctx, tx, kind); err != nil {
			return err
		}
		if err := s.repo.InsertUpload(ctx, tx, upload); err != nil {
			return err
		}
		return s.repo.InsertItems(ctx, tx, items)
	})
	if err != nil {
		return nil, err
	}

	invalid := 0
	for _, e := range errs {
		if !e.Empty() {
			invalid++
		}
	}
	s.log.Info("upload parsed",
		zap.String("upload", upload.Slug),
		zap.String("kind", string(kind)),
		zap.Int("rows", len(items)),
		zap.Int("invalid_rows", invalid),
		zap.Int64("dropped_pending", dropped),
	)
	s.audit(ctx, upload, "upload.created", map[string]any{"rows": len(items), "invalid_rows": invalid})
	return &importerdomain.UploadDetail{Upload: upload, Items: items}, nil
}

func (s *Service) Get(ctx context.Context, slug string) (*importerdomain.UploadDetail, error) {
	upload, err := s.load(ctx, slug)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, s.db, upload.ID)
	if err != nil {
		return nil, err
	}
	return &importerdomain.UploadDetail{Upload: upload, Items: items}, nil
}

func (s *Service) Commit(ctx context.Context, slug string) (*importerdomain.CommitResult, error) {
	upload, err := s.load(ctx, slug)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, s.db, upload.ID)
	if err != nil {
		return nil, err
	}

	pending := make([]*importerdomain.UploadItem, 0, len(items))
	for _, item := range items {
		if !item.IsImported && item.Errors.Data().Empty() {
			pending = append(pending, item)
		}
	}

	out := &importerdomain.CommitResult{Items: items}
	switch upload.Kind {
	case importerdomain.KindAccount:
		err = s.commitAccounts(ctx, pending, out)
	case importerdomain.KindDevice:
		for _, item := range pending {
			_, provisionErr := s.devices.Provision(ctx, deviceRequest(item))
			if err := s.record(ctx, item, provisionErr, out); err != nil {
				return nil, err
			}
		}
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("upload committed",
		zap.String("upload", upload.Slug),
		zap.Int("imported", out.Imported),
		zap.Int("failed", out.Failed),
	)
	s.audit(ctx, upload, "upload.committed", map[string]any{"imported": out.Imported, "failed": out.Failed})
	return out, nil
}

// commitAccounts creates parents before their subsidiaries. A row whose
// parent never appears is reported after no further progress is possible.
func (s *Service) commitAccounts(ctx context.Context, pending []*importerdomain.UploadItem, out *importerdomain.CommitResult) error {
	for len(pending) > 0 {
		var waiting []*importerdomain.UploadItem
		for _, item := range pending {
			parent := item.Field("parent_account_number")
			if parent != "" && parent != item.Field("account_number") {
				ok, err := s.accountExists(ctx, parent)
				if err != nil {
					return err
				}
				if !ok {
					waiting = append(waiting, item)
					continue
				}
			}
			_, provisionErr := s.accounts.Provision(ctx, accountRequest(item))
			if err := s.record(ctx, item, provisionErr, out); err != nil {
				return err
			}
		}
		if len(waiting) == len(pending) {
			for _, item := range waiting {
				err := apperr.Invalid("parent_account_number", "Headquarter account does not exist in database or file")
				if err := s.record(ctx, item, err, out); err != nil {
					return err
				}
			}
			return nil
		}
		pending = waiting
	}
	return nil
}

// record stores the outcome of one row. Only storage failures are returned.
func (s *Service) record(ctx context.Context, item *importerdomain.UploadItem, provisionErr error, out *importerdomain.CommitResult) error {
	if provisionErr == nil {
		item.IsImported = true
		out.Imported++
	} else {
		if !isRowError(provisionErr) {
			return provisionErr
		}
		e := item.Errors.Data()
		e.Add(importerdomain.FlagCommitFailed, rowMessage(provisionErr))
		item.Errors = datatypes.NewJSONType(e)
		out.Failed++
	}
	return s.repo.SaveItemResult(ctx, s.db, item, s.clock.Now())
}

func isRowError(err error) bool {
	if _, ok := apperr.AsValidation(err); ok {
		return true
	}
	_, ok := apperr.AsConflict(err)
	return ok
}

func rowMessage(err error) string {
	if verr, ok := apperr.AsValidation(err); ok && len(verr.Errors) > 0 {
		f := verr.Errors[0]
		if f.Field == "" {
			return f.Message
		}
		return f.Field + ": " + f.Message
	}
	return err.Error()
}

func accountRequest(item *importerdomain.UploadItem) accountdomain.CreateAccountRequest {
	req := accountdomain.CreateAccountRequest{
		AccountNumber:       item.Field("account_number"),
		Name:                item.Field("name"),
		Type:                accountdomain.Type(item.Field("type")),
		ParentAccountNumber: item.Field("parent_account_number"),
		Domain:              item.Field("domain"),
		Language:            item.Field("language"),
		Phone1:              item.Field("phone1"),
		Phone1Ext:           item.Field("phone1_ext"),
		Phone2:              item.Field("phone2"),
		Phone2Ext:           item.Field("phone2_ext"),
		City:                item.Field("city"),
		State:               item.Field("state"),
		Country:             item.Field("country"),
		Zipcode:             item.Field("zipcode"),
		Address1:            item.Field("address1"),
		Address2:            item.Field("address2"),
		Address3:            item.Field("address3"),
	}
	if start := item.Field("sub_start_date"); start != "" {
		users, _ := strconv.Atoi(item.Field("num_of_users"))
		req.Subscription = &accountdomain.SubscriptionRequest{
			StartDate:  start,
			EndDate:    item.Field("sub_end_date"),
			NumOfUsers: &users,
		}
	}
	return req
}

func deviceRequest(item *importerdomain.UploadItem) devicedomain.CreateDeviceRequest {
	return devicedomain.CreateDeviceRequest{
		SerialNumber:  item.Field("serial_number"),
		ItemNumber:    item.Field("item_number"),
		DateAdded:     item.Field("date_added"),
		Status:        devicedomain.Status(item.Field("status")),
		AccountNumber: item.Field("account_number"),
		SubStartDate:  item.Field("sub_start_date"),
	}
}

func (s *Service) check(ctx context.Context, kind importerdomain.Kind) (principal.Principal, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return p, err
	}
	action := authorization.ActionAccountUpload
	switch kind {
	case importerdomain.KindAccount:
	case importerdomain.KindDevice:
		action = authorization.ActionDeviceUpload
	default:
		return p, importerdomain.ErrUnknownKind
	}
	return p, s.authz.Check(ctx, p, action, nil)
}

func (s *Service) load(ctx context.Context, slug string) (*importerdomain.Upload, error) {
	if _, err := principal.Require(ctx); err != nil {
		return nil, err
	}
	upload, err := s.repo.FindUpload(ctx, s.db, slug)
	if err != nil {
		return nil, err
	}
	if _, err := s.check(ctx, upload.Kind); err != nil {
		return nil, err
	}
	return upload, nil
}

func (s *Service) accountExists(ctx context.Context, number string) (bool, error) {
	_, err := s.accountDB.FindByNumber(ctx, s.db, number)
	return present(err, accountdomain.ErrAccountNotFound)
}

func (s *Service) serialExists(ctx context.Context, serial string) (bool, error) {
	_, err := s.deviceDB.FindBySerial(ctx, s.db, serial)
	return present(err, devicedomain.ErrDeviceNotFound)
}

func (s *Service) itemExists(ctx context.Context, number string) (bool, error) {
	_, err := s.deviceDB.FindItemByNumber(ctx, s.db, number)
	return present(err, devicedomain.ErrItemNotFound)
}

func (s *Service) audit(ctx context.Context, upload *importerdomain.Upload, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := upload.Slug
	metadata["kind"] = string(upload.Kind)
	if err := s.auditSvc.AuditLog(ctx, nil, "", nil, action, "upload", &targetID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
