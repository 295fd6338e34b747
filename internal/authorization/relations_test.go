package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLRelations(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	for _, stmt := range []string{
		`CREATE TABLE account_ancestors (account_id INTEGER, ancestor_id INTEGER, depth INTEGER)`,
		`CREATE TABLE account_associations (id INTEGER PRIMARY KEY, from_account_id INTEGER, to_account_id INTEGER, accepted BOOLEAN)`,
		`CREATE TABLE contact_associations (id INTEGER PRIMARY KEY, contact_user_id INTEGER, account_id INTEGER, accepted BOOLEAN)`,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, account_id INTEGER)`,
		`CREATE TABLE case_roles (id INTEGER PRIMARY KEY, case_id INTEGER, case_default_role_id INTEGER, user_id INTEGER)`,
		`CREATE TABLE case_devices (id INTEGER PRIMARY KEY, case_id INTEGER, device_id INTEGER, is_active BOOLEAN)`,

		// 1 -> 2 -> 3
		`INSERT INTO account_ancestors VALUES (2, 1, 1), (3, 2, 1), (3, 1, 2)`,
		`INSERT INTO account_associations VALUES (1, 1, 5, true), (2, 6, 1, false), (3, 5, 8, true)`,
		`INSERT INTO contact_associations VALUES (1, 900, 1, true), (2, 901, 1, false), (3, 902, 5, true)`,
		`INSERT INTO users VALUES (10, 1), (11, 1), (12, 4)`,
		`INSERT INTO case_roles VALUES (1, 100, 1, 10), (2, 101, 1, 12)`,
		`INSERT INTO case_devices VALUES (1, 100, 700, true), (2, 101, 701, false)`,
	} {
		require.NoError(t, conn.Exec(stmt).Error, stmt)
	}

	rel := NewRelationChecker(conn)
	ctx := context.Background()
	user := principal.Principal{UserID: 10, AccountID: 1}
	colleague := principal.Principal{UserID: 11, AccountID: 1}

	cases := []struct {
		name string
		p    principal.Principal
		rel  Relation
		t    Target
		want bool
	}{
		{"grandchild is subsidiary", user, RelSubsidiary, *AccountTarget(3), true},
		{"own account is not subsidiary", user, RelSubsidiary, *AccountTarget(1), false},
		{"parent is not subsidiary", principal.Principal{UserID: 1, AccountID: 3}, RelSubsidiary, *AccountTarget(1), false},
		{"accepted association", user, RelAssociated, *AccountTarget(5), true},
		{"pending association", user, RelAssociated, *AccountTarget(6), false},
		{"association is not transitive", user, RelAssociated, *AccountTarget(8), false},
		{"hq", principal.Principal{UserID: 1, AccountID: 2, ParentAccountID: 1}, RelHQ, *AccountTarget(1), true},
		{"no parent means no hq", user, RelHQ, *AccountTarget(1), false},
		{"self", user, RelSelf, *UserTarget(10, 1), true},
		{"accepted contact", user, RelContact, *UserTarget(900, 0), true},
		{"pending contact", user, RelContact, *UserTarget(901, 0), false},
		{"contact of associated account", user, RelAssociatedContact, *UserTarget(902, 0), true},
		{"assigned case", user, RelAssigned, *CaseTarget(100, 1), true},
		{"case of colleague", colleague, RelAssigned, *CaseTarget(100, 1), false},
		{"case assigned to account users", colleague, RelAssignedToUsers, *CaseTarget(100, 1), true},
		{"case assigned elsewhere", colleague, RelAssignedToUsers, *CaseTarget(101, 4), false},
		{"device on assigned case", user, RelAssigned, *DeviceTarget(700, 1), true},
		{"device released from case", principal.Principal{UserID: 12, AccountID: 4}, RelAssigned, *DeviceTarget(701, 4), false},
		{"no account holds nothing", principal.Principal{UserID: 99}, RelAssociated, *AccountTarget(5), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := rel.Holds(ctx, tc.p, tc.rel, tc.t)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
