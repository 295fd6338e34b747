package scope

import (
	"context"
	"sort"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/internal/authorization"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Accounts: 1 (hq) -> 2 (sub) -> 3 (sub); 4 is the hq of 1; 5 is associated with 1; 6 unrelated.
func seed(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)

	for _, stmt := range []string{
		`CREATE TABLE accounts (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE account_ancestors (account_id INTEGER, ancestor_id INTEGER, depth INTEGER)`,
		`CREATE TABLE account_associations (id INTEGER PRIMARY KEY, from_account_id INTEGER, to_account_id INTEGER, accepted BOOLEAN)`,
		`CREATE TABLE contact_associations (id INTEGER PRIMARY KEY, contact_user_id INTEGER, account_id INTEGER, accepted BOOLEAN)`,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, account_id INTEGER)`,
		`CREATE TABLE devices (id INTEGER PRIMARY KEY, account_id INTEGER)`,
		`CREATE TABLE equipment_maintenance_records (id INTEGER PRIMARY KEY, device_id INTEGER)`,
		`CREATE TABLE cases (id INTEGER PRIMARY KEY, account_id INTEGER)`,
		`CREATE TABLE case_roles (id INTEGER PRIMARY KEY, case_id INTEGER, case_default_role_id INTEGER, user_id INTEGER)`,
		`CREATE TABLE case_devices (id INTEGER PRIMARY KEY, case_id INTEGER, device_id INTEGER, is_active BOOLEAN)`,
		`CREATE TABLE provider_notes (id INTEGER PRIMARY KEY, case_id INTEGER)`,

		`INSERT INTO accounts VALUES (1), (2), (3), (4), (5), (6)`,
		`INSERT INTO account_ancestors VALUES (1, 4, 1), (2, 1, 1), (2, 4, 2), (3, 2, 1), (3, 1, 2), (3, 4, 3)`,
		`INSERT INTO account_associations VALUES (1, 5, 1, true), (2, 1, 6, false)`,
		`INSERT INTO users VALUES (10, 1), (11, 1), (20, 2), (30, 3), (40, 4), (50, 5), (60, 6), (90, NULL), (91, NULL)`,
		`INSERT INTO contact_associations VALUES (1, 90, 1, true), (2, 91, 5, true)`,
		`INSERT INTO devices VALUES (100, 1), (200, 2), (400, 4), (500, 5), (600, 6)`,
		`INSERT INTO equipment_maintenance_records VALUES (1000, 100), (2000, 200), (6000, 600)`,
		`INSERT INTO cases VALUES (101, 1), (201, 2), (301, 3), (601, 6)`,
		`INSERT INTO case_roles VALUES (1, 601, 1, 10), (2, 201, 1, 11)`,
		`INSERT INTO case_devices VALUES (1, 601, 600, true)`,
		`INSERT INTO provider_notes VALUES (7001, 101), (7002, 201), (7003, 301), (7006, 601)`,
	} {
		require.NoError(t, conn.Exec(stmt).Error, stmt)
	}
	return conn
}

var user = principal.Principal{UserID: 10, AccountID: 1, ParentAccountID: 4}

func visible(t *testing.T, conn *gorm.DB, codes authorization.CodeSet, f Family) []snowflake.ID {
	t.Helper()
	ids, err := Visible(context.Background(), conn, user, codes, f)
	require.NoError(t, err)
	return ids
}

func ids(values ...int64) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(values))
	for _, v := range values {
		out = append(out, snowflake.ID(v))
	}
	return out
}

func TestAccountCandidates(t *testing.T) {
	conn := seed(t)

	assert.Equal(t, ids(1), visible(t, conn, authorization.NewCodeSet(authorization.AccountViewOwn), Accounts))
	assert.Equal(t, ids(2, 3), visible(t, conn, authorization.NewCodeSet(authorization.AccountListSubsidiary), Accounts))
	assert.Equal(t, ids(4), visible(t, conn, authorization.NewCodeSet(authorization.AccountListHQ), Accounts))
	assert.Equal(t, ids(5), visible(t, conn, authorization.NewCodeSet(authorization.AccountListAssociated), Accounts))
	assert.Equal(t, ids(1, 2, 3, 4, 5, 6), visible(t, conn, authorization.NewCodeSet(authorization.AccountListAll), Accounts))
}

func TestNoHeldCodeSeesNothing(t *testing.T) {
	conn := seed(t)

	assert.Empty(t, visible(t, conn, authorization.NewCodeSet(), Accounts))
	assert.Empty(t, visible(t, conn, authorization.NewCodeSet(authorization.CaseCreate), Cases))
}

func TestSuperuserSeesEverything(t *testing.T) {
	conn := seed(t)

	got, err := Visible(context.Background(), conn, principal.System(), authorization.AllCodes(), Devices)
	require.NoError(t, err)
	assert.Equal(t, ids(100, 200, 400, 500, 600), got)
}

// For every subset of a family's codes the visible set is the union of the
// sets visible through each code alone.
func TestVisibleIsUnionOfHeldCandidates(t *testing.T) {
	conn := seed(t)

	for _, family := range []Family{Accounts, Users, Devices, EquipmentRecords, Cases, CaseNotes} {
		codes := family.CodesOf()
		single := make(map[authorization.Code][]snowflake.ID, len(codes))
		for _, code := range codes {
			single[code] = visible(t, conn, authorization.NewCodeSet(code), family)
		}

		for mask := 0; mask < 1<<len(codes); mask++ {
			var held []authorization.Code
			union := map[snowflake.ID]struct{}{}
			for i, code := range codes {
				if mask&(1<<i) == 0 {
					continue
				}
				held = append(held, code)
				for _, id := range single[code] {
					union[id] = struct{}{}
				}
			}
			want := make([]snowflake.ID, 0, len(union))
			for id := range union {
				want = append(want, id)
			}
			sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

			got := visible(t, conn, authorization.NewCodeSet(held...), family)
			if len(want) == 0 {
				assert.Empty(t, got, "%s %v", family.Entity, held)
				continue
			}
			assert.Equal(t, want, got, "%s %v", family.Entity, held)
		}
	}
}

func TestUserCandidates(t *testing.T) {
	conn := seed(t)

	assert.Equal(t, ids(10), visible(t, conn, authorization.NewCodeSet(authorization.UserViewOwnUser), Users))
	assert.Equal(t, ids(10, 11), visible(t, conn, authorization.NewCodeSet(authorization.UserListAccount), Users))
	assert.Equal(t, ids(20, 30), visible(t, conn, authorization.NewCodeSet(authorization.UserListSubsidiary), Users))
	assert.Equal(t, ids(40), visible(t, conn, authorization.NewCodeSet(authorization.UserListHQ), Users))
	assert.Equal(t, ids(50), visible(t, conn, authorization.NewCodeSet(authorization.UserListAssociated), Users))
	assert.Equal(t, ids(90), visible(t, conn, authorization.NewCodeSet(authorization.UserListContacts), Users))
	assert.Equal(t, ids(91), visible(t, conn, authorization.NewCodeSet(authorization.UserListAssociatedContacts), Users))
}

func TestCaseAndDeviceAssignment(t *testing.T) {
	conn := seed(t)

	assert.Equal(t, ids(601), visible(t, conn, authorization.NewCodeSet(authorization.CaseListAssigned), Cases))
	assert.Equal(t, ids(201, 601), visible(t, conn, authorization.NewCodeSet(authorization.CaseListAssignedToUsers), Cases))
	assert.Equal(t, ids(600), visible(t, conn, authorization.NewCodeSet(authorization.DeviceListAssigned), Devices))
	assert.Equal(t, ids(2000), visible(t, conn, authorization.NewCodeSet(authorization.DeviceViewRecordSubsidiary), EquipmentRecords))
}

func TestApplyComposesWithOtherConditions(t *testing.T) {
	conn := seed(t)

	var got []snowflake.ID
	query := conn.Table("cases").Where("cases.id <> ?", 101)
	err := Apply(query, user, authorization.NewCodeSet(authorization.CaseListAccount, authorization.CaseListSubsidiary), Cases).
		Order("cases.id").Pluck("cases.id", &got).Error
	require.NoError(t, err)
	assert.Equal(t, ids(201, 301), got)
}

func TestCaseNotesFollowTheirCases(t *testing.T) {
	conn := seed(t)

	assert.Equal(t, ids(7001), visible(t, conn, authorization.NewCodeSet(authorization.CaseNoteAccount), CaseNotes))
	assert.Equal(t, ids(7002, 7003), visible(t, conn, authorization.NewCodeSet(authorization.CaseNoteSubsidiary), CaseNotes))
	assert.Equal(t, ids(7006), visible(t, conn, authorization.NewCodeSet(authorization.CaseNoteAssigned), CaseNotes))
	assert.Equal(t, ids(7002, 7006), visible(t, conn, authorization.NewCodeSet(authorization.CaseNoteAssignedToUsers), CaseNotes))
}
