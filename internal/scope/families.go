package scope

import (
	"github.com/smallbiznis/caseline/internal/authorization"
	"github.com/smallbiznis/caseline/internal/principal"
)

const (
	ownAccountSQL        = `SELECT id FROM accounts WHERE id = ?`
	subsidiaryAccountSQL = `SELECT account_id FROM account_ancestors WHERE ancestor_id = ?`
	associatedAccountSQL = `SELECT to_account_id FROM account_associations WHERE from_account_id = ? AND accepted = ?
		UNION
		SELECT from_account_id FROM account_associations WHERE to_account_id = ? AND accepted = ?`
)

type accountSet func(p principal.Principal) (string, []any)

func ownAccount(p principal.Principal) (string, []any) {
	if !p.HasAccount() {
		return "", nil
	}
	return ownAccountSQL, []any{p.AccountID}
}

func subsidiaryAccounts(p principal.Principal) (string, []any) {
	if !p.HasAccount() {
		return "", nil
	}
	return subsidiaryAccountSQL, []any{p.AccountID}
}

func hqAccount(p principal.Principal) (string, []any) {
	if !p.HasParentAccount() {
		return "", nil
	}
	return ownAccountSQL, []any{p.ParentAccountID}
}

func associatedAccounts(p principal.Principal) (string, []any) {
	if !p.HasAccount() {
		return "", nil
	}
	return associatedAccountSQL, []any{p.AccountID, true, p.AccountID, true}
}

// ownedBy selects ids of rows in table whose account is in set.
func ownedBy(table string, set accountSet) func(p principal.Principal) (string, []any) {
	return func(p principal.Principal) (string, []any) {
		sql, args := set(p)
		if sql == "" {
			return "", nil
		}
		return `SELECT id FROM ` + table + ` WHERE account_id IN (` + sql + `)`, args
	}
}

// recordsOf selects equipment records whose device is in set.
func recordsOf(set accountSet) func(p principal.Principal) (string, []any) {
	return func(p principal.Principal) (string, []any) {
		sql, args := set(p)
		if sql == "" {
			return "", nil
		}
		return `SELECT r.id FROM equipment_maintenance_records r
			JOIN devices d ON d.id = r.device_id
			WHERE d.account_id IN (` + sql + `)`, args
	}
}

func contactsOf(set accountSet) func(p principal.Principal) (string, []any) {
	return func(p principal.Principal) (string, []any) {
		sql, args := set(p)
		if sql == "" {
			return "", nil
		}
		return `SELECT contact_user_id FROM contact_associations
			WHERE accepted = ? AND account_id IN (` + sql + `)`, append([]any{true}, args...)
	}
}

var Accounts = Family{
	Entity: "account",
	Table:  "accounts",
	Column: "accounts.id",
	Candidates: []Candidate{
		{Name: "own", Code: authorization.AccountViewOwn, SQL: ownAccount},
		{Name: "all", Code: authorization.AccountListAll, All: true},
		{Name: "subsidiary", Code: authorization.AccountListSubsidiary, SQL: subsidiaryAccounts},
		{Name: "hq", Code: authorization.AccountListHQ, SQL: hqAccount},
		{Name: "associated", Code: authorization.AccountListAssociated, SQL: associatedAccounts},
	},
}

var Users = Family{
	Entity: "user",
	Table:  "users",
	Column: "users.id",
	Candidates: []Candidate{
		{Name: "self", Code: authorization.UserViewOwnUser, SQL: func(p principal.Principal) (string, []any) {
			if p.UserID == 0 {
				return "", nil
			}
			return `SELECT id FROM users WHERE id = ?`, []any{p.UserID}
		}},
		{Name: "own", Code: authorization.UserListAccount, SQL: ownedBy("users", ownAccount)},
		{Name: "subsidiary", Code: authorization.UserListSubsidiary, SQL: ownedBy("users", subsidiaryAccounts)},
		{Name: "associated", Code: authorization.UserListAssociated, SQL: ownedBy("users", associatedAccounts)},
		{Name: "hq", Code: authorization.UserListHQ, SQL: ownedBy("users", hqAccount)},
		{Name: "contacts", Code: authorization.UserListContacts, SQL: contactsOf(ownAccount)},
		{Name: "associated-contacts", Code: authorization.UserListAssociatedContacts, SQL: contactsOf(associatedAccounts)},
	},
}

var Devices = Family{
	Entity: "device",
	Table:  "devices",
	Column: "devices.id",
	Candidates: []Candidate{
		{Name: "own", Code: authorization.DeviceListAccount, SQL: ownedBy("devices", ownAccount)},
		{Name: "subsidiary", Code: authorization.DeviceListSubsidiary, SQL: ownedBy("devices", subsidiaryAccounts)},
		{Name: "hq", Code: authorization.DeviceListHQ, SQL: ownedBy("devices", hqAccount)},
		{Name: "associated", Code: authorization.DeviceListAssociated, SQL: ownedBy("devices", associatedAccounts)},
		{Name: "assigned", Code: authorization.DeviceListAssigned, SQL: func(p principal.Principal) (string, []any) {
			if p.UserID == 0 {
				return "", nil
			}
			return `SELECT cd.device_id FROM case_devices cd
				JOIN case_roles cr ON cr.case_id = cd.case_id
				WHERE cr.user_id = ? AND cd.is_active = ?`, []any{p.UserID, true}
		}},
	},
}

var EquipmentRecords = Family{
	Entity: "equipment_record",
	Table:  "equipment_maintenance_records",
	Column: "equipment_maintenance_records.id",
	Candidates: []Candidate{
		{Name: "own", Code: authorization.DeviceViewRecordAccount, SQL: recordsOf(ownAccount)},
		{Name: "subsidiary", Code: authorization.DeviceViewRecordSubsidiary, SQL: recordsOf(subsidiaryAccounts)},
		{Name: "hq", Code: authorization.DeviceViewRecordHQ, SQL: recordsOf(hqAccount)},
		{Name: "associated", Code: authorization.DeviceViewRecordAssociated, SQL: recordsOf(associatedAccounts)},
	},
}

var Cases = Family{
	Entity: "case",
	Table:  "cases",
	Column: "cases.id",
	Candidates: []Candidate{
		{Name: "own", Code: authorization.CaseListAccount, SQL: ownedBy("cases", ownAccount)},
		{Name: "subsidiary", Code: authorization.CaseListSubsidiary, SQL: ownedBy("cases", subsidiaryAccounts)},
		{Name: "assigned", Code: authorization.CaseListAssigned, SQL: assignedCases},
		{Name: "assigned-to-users", Code: authorization.CaseListAssignedToUsers, SQL: casesAssignedToUsers},
	},
}

// CaseNotes narrows provider notes through the cases they belong to.
var CaseNotes = Family{
	Entity: "case_note",
	Table:  "provider_notes",
	Column: "provider_notes.id",
	Candidates: []Candidate{
		{Name: "own", Code: authorization.CaseNoteAccount, SQL: notesOf(ownedBy("cases", ownAccount))},
		{Name: "subsidiary", Code: authorization.CaseNoteSubsidiary, SQL: notesOf(ownedBy("cases", subsidiaryAccounts))},
		{Name: "assigned", Code: authorization.CaseNoteAssigned, SQL: notesOf(assignedCases)},
		{Name: "assigned-to-users", Code: authorization.CaseNoteAssignedToUsers, SQL: notesOf(casesAssignedToUsers)},
	},
}

func assignedCases(p principal.Principal) (string, []any) {
	if p.UserID == 0 {
		return "", nil
	}
	return `SELECT case_id FROM case_roles WHERE user_id = ?`, []any{p.UserID}
}

func casesAssignedToUsers(p principal.Principal) (string, []any) {
	if !p.HasAccount() {
		return "", nil
	}
	return `SELECT cr.case_id FROM case_roles cr
		JOIN users u ON u.id = cr.user_id
		WHERE u.account_id = ?`, []any{p.AccountID}
}

func notesOf(cases func(p principal.Principal) (string, []any)) func(p principal.Principal) (string, []any) {
	return func(p principal.Principal) (string, []any) {
		sql, args := cases(p)
		if sql == "" {
			return "", nil
		}
		return `SELECT id FROM provider_notes WHERE case_id IN (` + sql + `)`, args
	}
}
