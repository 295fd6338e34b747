package migration

import (
	accountdomain "github.com/smallbiznis/caseline/internal/account/domain"
	associationdomain "github.com/smallbiznis/caseline/internal/association/domain"
	auditdomain "github.com/smallbiznis/caseline/internal/audit/domain"
	authdomain "github.com/smallbiznis/caseline/internal/auth/domain"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
	casedomain "github.com/smallbiznis/caseline/internal/cases/domain"
	devicedomain "github.com/smallbiznis/caseline/internal/device/domain"
	importerdomain "github.com/smallbiznis/caseline/internal/importer/domain"
	interpretationdomain "github.com/smallbiznis/caseline/internal/interpretation/domain"
	notedomain "github.com/smallbiznis/caseline/internal/note/domain"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	matrixdomain "github.com/smallbiznis/caseline/internal/notificationmatrix/domain"
	subscriptiondomain "github.com/smallbiznis/caseline/internal/subscription/domain"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
)

// Models lists every persisted type in dependency order.
func Models() []any {
	return []any{
		&accountdomain.Account{},
		&accountdomain.Ancestor{},
		&associationdomain.AccountAssociation{},
		&associationdomain.ContactAssociation{},
		&subscriptiondomain.UserSubscription{},
		&subscriptiondomain.DeviceSubscription{},
		&userdomain.User{},
		&authdomain.Session{},
		&devicedomain.Item{},
		&devicedomain.Device{},
		&devicedomain.MaintenanceRecord{},
		&casedomain.Patient{},
		&casedomain.Parent{},
		&casedomain.Case{},
		&casedomain.CaseDevice{},
		&caseroledomain.DefaultRole{},
		&caseroledomain.CaseRole{},
		&caseroledomain.CasePermission{},
		&caseroledomain.CaseRolePermission{},
		&matrixdomain.NotificationType{},
		&matrixdomain.DefaultEntry{},
		&matrixdomain.CaseEntry{},
		&interpretationdomain.Interpretation{},
		&interpretationdomain.CaseEvent{},
		&notedomain.ProviderNote{},
		&importerdomain.Upload{},
		&importerdomain.UploadItem{},
		&notificationdomain.Notification{},
		&auditdomain.AuditLog{},
	}
}
