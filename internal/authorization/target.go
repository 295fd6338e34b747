package authorization

import "github.com/bwmarrin/snowflake"

type Kind string

const (
	KindAccount Kind = "account"
	KindUser    Kind = "user"
	KindDevice  Kind = "device"
	KindCase    Kind = "case"
)

// Target is the object an action is checked against. AccountID is the
// owning account; for accounts it equals ID.
type Target struct {
	Kind      Kind
	ID        snowflake.ID
	AccountID snowflake.ID
}

func AccountTarget(id snowflake.ID) *Target {
	return &Target{Kind: KindAccount, ID: id, AccountID: id}
}

func UserTarget(id, accountID snowflake.ID) *Target {
	return &Target{Kind: KindUser, ID: id, AccountID: accountID}
}

func DeviceTarget(id, accountID snowflake.ID) *Target {
	return &Target{Kind: KindDevice, ID: id, AccountID: accountID}
}

// CaseTarget also covers case children: roles, notes, interpretations and the notification matrix.
func CaseTarget(id, accountID snowflake.ID) *Target {
	return &Target{Kind: KindCase, ID: id, AccountID: accountID}
}
