package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/caseline/internal/account/domain"
	accountrepo "github.com/smallbiznis/caseline/internal/account/repository"
	"github.com/smallbiznis/caseline/internal/authorization"
	"github.com/smallbiznis/caseline/internal/clock"
	devicedomain "github.com/smallbiznis/caseline/internal/device/domain"
	devicerepo "github.com/smallbiznis/caseline/internal/device/repository"
	deviceservice "github.com/smallbiznis/caseline/internal/device/service"
	importerdomain "github.com/smallbiznis/caseline/internal/importer/domain"
	"github.com/smallbiznis/caseline/internal/importer/repository"
	"github.com/smallbiznis/caseline/internal/principal"
	userrepo "github.com/smallbiznis/caseline/internal/user/repository"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type authzStub struct {
	authorization.Service
	deny map[authorization.Action]bool
}

func (a *authzStub) Check(_ context.Context, _ principal.Principal, action authorization.Action, _ *authorization.Target) error {
	if a.deny[action] {
		return authorization.ErrForbidden
	}
	return nil
}

// accountsStub provisions bare account rows and records the order.
type accountsStub struct {
	accountdomain.Service
	db      *gorm.DB
	mu      sync.Mutex
	created []string
	reqs    []accountdomain.CreateAccountRequest
}

func (a *accountsStub) Provision(ctx context.Context, req accountdomain.CreateAccountRequest) (*accountdomain.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if req.Name == "Rejected Clinic" {
		return nil, apperr.Invalid("name", "Name is not allowed")
	}
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	account := &accountdomain.Account{
		ID:            snowflake.ID(1000 + len(a.created)),
		AccountNumber: req.AccountNumber,
		Slug:          strings.ToLower(req.AccountNumber),
		Name:          req.Name,
		Type:          req.Type,
		Parents:       datatypes.JSONSlice[string]{},
		Language:      req.Language,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, err
	}
	a.created = append(a.created, req.AccountNumber)
	a.reqs = append(a.reqs, req)
	return account, nil
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	authz    *authzStub
	accounts *accountsStub
}

// Account N-1 and device SN1 exist; item I-100 is known.
func newFixture(t *testing.T) fixture {
	t.Helper()

	conn, err := db.NewTest(
		&accountdomain.Account{},
		&devicedomain.Device{},
		&devicedomain.Item{},
		&importerdomain.Upload{},
		&importerdomain.UploadItem{},
	)
	require.NoError(t, err)

	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	require.NoError(t, conn.Create(&accountdomain.Account{
		ID: 1, AccountNumber: "N-1", Slug: "n-1", Name: "North Clinic", Type: accountdomain.TypeHQ,
		Parents: datatypes.JSONSlice[string]{}, Language: "en", IsActive: true, CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, conn.Create(&devicedomain.Device{
		ID: 201, SerialNumber: "SN1", Slug: "sn1", Status: devicedomain.StatusAvailable, AccountID: 1,
		IsActive: true, DateAdded: now, CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, conn.Create(&devicedomain.Item{
		ID: 301, ItemNumber: "I-100", Configuration: "Standard", Slug: "i-100", CreatedAt: now, UpdatedAt: now,
	}).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)
	authz := &authzStub{deny: map[authorization.Action]bool{}}
	accounts := &accountsStub{db: conn}
	devices := deviceservice.NewService(deviceservice.ServiceParam{
		DB: conn, Log: zap.NewNop(), GenID: node, Clock: clk,
		Repo: devicerepo.Provide(), Accounts: accountrepo.Provide(), Users: userrepo.Provide(), Authz: authz,
	})

	svc := NewService(ServiceParam{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      repository.Provide(),
		Accounts:  accounts,
		AccountDB: accountrepo.Provide(),
		Devices:   devices,
		DeviceDB:  devicerepo.Provide(),
		Authz:     authz,
	})
	return fixture{svc: svc.(*Service), db: conn, authz: authz, accounts: accounts}
}

func asSuperuser() context.Context {
	return principal.WithPrincipal(context.Background(), principal.System())
}

func details(item *importerdomain.UploadItem) []string {
	return item.Errors.Data().Detail
}

const accountHeader = "account_number,account_name,country,phone1,hq_account_number,no_of_usr_subs,sub_start_date,sub_end_date,language,domain\n"

func TestAccountUploadValidatesRowsIndependently(t *testing.T) {
	f := newFixture(t)
	file := accountHeader +
		"S-2,South Annex,US,(555) 123-4567,H-1,3,01/01/2026,12/31/2026,English,\n" +
		"H-1,Harbor Health,US,,,0,,,Spanish,harbor.example\n" +
		"H-1,Harbor Copy,US,,,0,,,French,\n" +
		"N-1,North Again,US,,,0,,,English,\n" +
		"S-9,Orphan Site,US,,ZZ-404,0,,,English,\n" +
		"S-10,,Canada,(555) 123-4567,,,03/01/2026,,Klingon,not a domain\n"

	upload, err := f.svc.Upload(asSuperuser(), importerdomain.KindAccount, "accounts.csv", strings.NewReader(file))
	require.NoError(t, err)
	require.Len(t, upload.Items, 6)
	assert.NotEmpty(t, upload.Slug)

	sub := upload.Items[0]
	assert.Empty(t, details(sub))
	assert.Equal(t, 2, sub.Row)
	assert.Equal(t, "+15551234567", sub.Field("phone1"))
	assert.Equal(t, "United States", sub.Field("country"))
	assert.Equal(t, string(accountdomain.TypeSub), sub.Field("type"))
	assert.Equal(t, "2026-01-01", sub.Field("sub_start_date"))
	assert.Equal(t, "en", sub.Field("language"))

	hq := upload.Items[1]
	assert.Empty(t, details(hq))
	assert.Equal(t, string(accountdomain.TypeHQ), hq.Field("type"))
	assert.Equal(t, "es", hq.Field("language"))

	assert.Equal(t, []string{"Duplicate entry"}, details(upload.Items[2]))
	assert.Equal(t, []string{"Account with this account number already exists"}, details(upload.Items[3]))
	assert.Equal(t, []string{"Headquarter account does not exist in database or file"}, details(upload.Items[4]))

	bad := upload.Items[5].Errors.Data()
	assert.Contains(t, bad.Detail, "Account name missing")
	assert.Contains(t, bad.Detail, "Country code not provided in Phone1")
	assert.Contains(t, bad.Detail, "Unable to parse domain, might not be valid")
	assert.Contains(t, bad.Detail, "User subscription missing, enter 0 if there are none")
	assert.Contains(t, bad.Detail, "Subscription end date is missing")
	assert.Contains(t, bad.Detail, "Unable to parse language")
	assert.Contains(t, bad.Flags, importerdomain.FlagPhoneNumber)
}

func TestAccountCommitCreatesParentsFirst(t *testing.T) {
	f := newFixture(t)
	file := accountHeader +
		"S-2,South Annex,US,,H-1,3,01/01/2026,12/31/2026,English,\n" +
		"H-1,Harbor Health,US,,,0,,,English,\n" +
		"R-3,Rejected Clinic,US,,,0,,,English,\n" +
		"N-1,North Again,US,,,0,,,English,\n"
	upload, err := f.svc.Upload(asSuperuser(), importerdomain.KindAccount, "accounts.csv", strings.NewReader(file))
	require.NoError(t, err)

	res, err := f.svc.Commit(asSuperuser(), upload.Slug)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"H-1", "S-2"}, f.accounts.created)
	require.NotNil(t, f.accounts.reqs[1].Subscription)
	assert.Equal(t, 3, *f.accounts.reqs[1].Subscription.NumOfUsers)
	assert.Equal(t, "2026-12-31", f.accounts.reqs[1].Subscription.EndDate)

	detail, err := f.svc.Get(asSuperuser(), upload.Slug)
	require.NoError(t, err)
	assert.True(t, detail.Items[0].IsImported)
	assert.True(t, detail.Items[1].IsImported)
	assert.False(t, detail.Items[2].IsImported)
	assert.Equal(t, []string{"name: Name is not allowed"}, details(detail.Items[2]))
	assert.False(t, detail.Items[3].IsImported)

	again, err := f.svc.Commit(asSuperuser(), upload.Slug)
	require.NoError(t, err)
	assert.Zero(t, again.Imported)
	assert.Equal(t, []string{"H-1", "S-2"}, f.accounts.created)
}

func TestDeviceUploadAndCommit(t *testing.T) {
	f := newFixture(t)
	file := "serial_number,item_number,date_added,status,account_number,sub_start_date\n" +
		"SN100,I-100,02/14/2026,,N-1,\n" +
		"SN101,I-100,,In Checkout,N-1,14-Feb-26\n" +
		"SN100,I-100,,,N-1,\n" +
		"SN1,I-100,,,N-1,\n" +
		"SN102,I-999,yesterday,Broken,N-404,\n" +
		"SN1234567890,,,,,\n"

	upload, err := f.svc.Upload(asSuperuser(), importerdomain.KindDevice, "devices.csv", strings.NewReader(file))
	require.NoError(t, err)
	require.Len(t, upload.Items, 6)

	assert.Empty(t, details(upload.Items[0]))
	assert.Equal(t, "2026-02-14", upload.Items[0].Field("date_added"))
	assert.Equal(t, "Available", upload.Items[0].Field("status"))
	assert.Empty(t, details(upload.Items[1]))
	assert.Equal(t, "2026-01-05", upload.Items[1].Field("date_added"))
	assert.Equal(t, "2026-02-14", upload.Items[1].Field("sub_start_date"))
	assert.Equal(t, []string{"Duplicate entry"}, details(upload.Items[2]))
	assert.Equal(t, []string{"Device with this serial number already exists"}, details(upload.Items[3]))
	assert.Equal(t, []string{
		"Item number does not exist",
		"Unable to parse date added",
		"Incorrect Status",
		"Account with this account number does not exist",
	}, details(upload.Items[4]))
	assert.Equal(t, []string{
		"Serial number cannot be greater than 10 characters",
		"Item number missing",
		"Account number missing",
	}, details(upload.Items[5]))

	res, err := f.svc.Commit(asSuperuser(), upload.Slug)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)

	var created []devicedomain.Device
	require.NoError(t, f.db.Where("serial_number IN ?", []string{"SN100", "SN101"}).Order("serial_number").Find(&created).Error)
	require.Len(t, created, 2)
	assert.Equal(t, devicedomain.StatusInCheckout, created[1].Status)
	require.NotNil(t, created[1].ItemID)
	assert.Equal(t, snowflake.ID(301), *created[1].ItemID)
}

func TestUploadDropsPendingRowsOfSameKind(t *testing.T) {
	f := newFixture(t)
	first, err := f.svc.Upload(asSuperuser(), importerdomain.KindDevice, "a.csv",
		strings.NewReader("serial_number,item_number,account_number\nSN200,I-100,N-1\n"))
	require.NoError(t, err)

	_, err = f.svc.Upload(asSuperuser(), importerdomain.KindDevice, "b.csv",
		strings.NewReader("serial_number,item_number,account_number\nSN201,I-100,N-1\n"))
	require.NoError(t, err)

	detail, err := f.svc.Get(asSuperuser(), first.Slug)
	require.NoError(t, err)
	assert.Empty(t, detail.Items)
}

func TestUploadChecksPermissionAndFile(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(asSuperuser(), importerdomain.KindAccount, "a.txt", strings.NewReader("x"))
	require.ErrorIs(t, err, importerdomain.ErrUnsupportedFile)

	_, err = f.svc.Upload(asSuperuser(), "patients", "a.csv", strings.NewReader("x"))
	require.ErrorIs(t, err, importerdomain.ErrUnknownKind)

	f.authz.deny[authorization.ActionDeviceUpload] = true
	_, err = f.svc.Upload(asSuperuser(), importerdomain.KindDevice, "a.csv", strings.NewReader("serial_number\nSN1\n"))
	require.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.Upload(context.Background(), importerdomain.KindDevice, "a.csv", strings.NewReader("serial_number\nSN1\n"))
	require.ErrorIs(t, err, principal.ErrUnauthenticated)

	_, err = f.svc.Get(asSuperuser(), "missing")
	require.ErrorIs(t, err, importerdomain.ErrUploadNotFound)
}
