package authorization

// Action names a guarded operation.
type Action string

// Relation is how the acting user relates to a target.
type Relation string

const (
	RelAny               Relation = "any"
	RelSelf              Relation = "self"
	RelOwn               Relation = "own"
	RelSubsidiary        Relation = "subsidiary"
	RelHQ                Relation = "hq"
	RelAssociated        Relation = "associated"
	RelAssigned          Relation = "assigned"
	RelAssignedToUsers   Relation = "assigned-to-users"
	RelContact           Relation = "contact"
	RelAssociatedContact Relation = "associated-contact"
)

// Grant allows an action to holders of Code when Relation holds for the target.
type Grant struct {
	Relation Relation
	Code     Code
}

// Rule lists the grants of an action. A rule without grants is superuser only.
type Rule struct {
	Grants        []Grant
	PlatformAdmin bool
}

const (
	ActionAccountCreate           Action = "account.create"
	ActionAccountList             Action = "account.list"
	ActionAccountView             Action = "account.view"
	ActionAccountEdit             Action = "account.edit"
	ActionAccountDelete           Action = "account.delete"
	ActionAccountAcquire          Action = "account.acquire"
	ActionAccountActivate         Action = "account.activate"
	ActionAccountSetDomain        Action = "account.set_domain"
	ActionAccountViewSubscription Action = "account.view_subscription"
	ActionAccountSubsidiaries     Action = "account.subsidiaries"
	ActionAccountCaseUsers        Action = "account.case_users"
	ActionAccountAssociate        Action = "account.associate"
	ActionAccountRequestAssociate Action = "account.request_associate"
	ActionAccountListAssociated   Action = "account.list_associated"
	ActionContactAssociate        Action = "contact.associate"
	ActionAccountUpload           Action = "account.upload"

	ActionSubscriptionManage Action = "subscription.manage"

	ActionUserList   Action = "user.list"
	ActionUserView   Action = "user.view"
	ActionUserCreate Action = "user.create"
	ActionUserEdit   Action = "user.edit"
	ActionUserDelete Action = "user.delete"
	ActionUserInvite Action = "user.invite"

	ActionGroupManage Action = "group.manage"
	ActionAuditView   Action = "audit_log.view"

	ActionDeviceList       Action = "device.list"
	ActionDeviceView       Action = "device.view"
	ActionDeviceCreate     Action = "device.create"
	ActionDeviceEdit       Action = "device.edit"
	ActionDeviceTransfer   Action = "device.transfer"
	ActionDeviceViewRecord Action = "device.view_record"
	ActionDeviceEditRecord Action = "device.edit_record"
	ActionDeviceUpload     Action = "device.upload"

	ActionCaseCreate    Action = "case.create"
	ActionCaseList      Action = "case.list"
	ActionCaseView      Action = "case.view"
	ActionCaseEdit      Action = "case.edit"
	ActionCaseArchive   Action = "case.archive"
	ActionCasePatient   Action = "case.edit_patient"
	ActionCaseParent    Action = "case.edit_parent"
	ActionCaseRoleView  Action = "case_role.view"
	ActionCaseRoleEdit  Action = "case_role.edit"
	ActionCaseNoteView  Action = "case_note.view"
	ActionCaseNoteWrite Action = "case_note.write"

	ActionInterpretationView    Action = "interpretation.view"
	ActionInterpretationCreate  Action = "interpretation.create"
	ActionInterpretationApprove Action = "interpretation.approve"

	ActionCaseMatrixView      Action = "case_matrix.view"
	ActionCaseMatrixEdit      Action = "case_matrix.edit"
	ActionDefaultMatrixManage Action = "default_matrix.manage"
)

var rules = map[Action]Rule{
	ActionAccountCreate:    {},
	ActionAccountDelete:    {},
	ActionAccountAcquire:   {},
	ActionAccountActivate:  {},
	ActionAccountSetDomain: {},
	ActionAccountList: {Grants: []Grant{
		{RelAny, AccountViewOwn},
		{RelAny, AccountListAll},
		{RelAny, AccountListSubsidiary},
		{RelAny, AccountListHQ},
		{RelAny, AccountListAssociated},
	}},
	ActionAccountView: {Grants: []Grant{
		{RelOwn, AccountViewDetailOwn},
		{RelAny, AccountViewAllDetail},
		{RelSubsidiary, AccountViewDetailSubsidiary},
		{RelAssociated, AccountViewDetailAssociated},
		{RelHQ, AccountViewDetailHQ},
	}},
	ActionAccountEdit: {Grants: []Grant{{RelOwn, AccountEditOwn}}},
	ActionAccountViewSubscription: {Grants: []Grant{
		{RelOwn, AccountViewDetailOwnSub},
		{RelSubsidiary, AccountViewDetailSubsidiarySub},
	}},
	ActionAccountSubsidiaries: {Grants: []Grant{
		{RelOwn, ListSubsidiaryAccounts},
		{RelAny, AccountListAll},
	}},
	ActionAccountCaseUsers: {Grants: []Grant{
		{RelOwn, CaseCreate},
		{RelOwn, CaseRoleEditAccount},
		{RelSubsidiary, CaseRoleEditSubsidiary},
	}},
	ActionAccountAssociate:        {Grants: []Grant{{RelAny, AccountAssociate}}},
	ActionAccountRequestAssociate: {Grants: []Grant{{RelAny, AccountRequestAssociate}}},
	ActionAccountListAssociated: {Grants: []Grant{
		{RelAny, ListAssociatedAccounts},
		{RelAny, AccountAssociate},
	}},
	ActionContactAssociate: {Grants: []Grant{{RelAny, AccountInviteAssociate}}},
	ActionAccountUpload:    {Grants: []Grant{{RelAny, UploadAccount}}},

	ActionSubscriptionManage: {},
	ActionGroupManage:        {},
	ActionAuditView:          {},

	ActionUserList: {Grants: []Grant{
		{RelAny, UserViewOwnUser},
		{RelAny, UserListAccount},
		{RelAny, UserListSubsidiary},
		{RelAny, UserListAssociated},
		{RelAny, UserListHQ},
		{RelAny, UserListContacts},
		{RelAny, UserListAssociatedContacts},
	}},
	ActionUserView: {Grants: []Grant{
		{RelSelf, UserViewOwnUser},
		{RelOwn, UserViewDetailAccount},
		{RelSubsidiary, UserViewDetailSubsidiary},
		{RelAssociated, UserViewDetailAssociated},
		{RelHQ, UserViewDetailHQ},
		{RelContact, UserViewDetailContact},
		{RelAssociatedContact, UserViewDetailAssociatedContact},
	}},
	ActionUserCreate: {Grants: []Grant{{RelAny, UserCreate}}, PlatformAdmin: true},
	ActionUserEdit: {Grants: []Grant{
		{RelOwn, UserEditAccount},
		{RelSubsidiary, UserEditSubsidiary},
	}},
	ActionUserDelete: {Grants: []Grant{
		{RelOwn, UserDeleteAccount},
		{RelSubsidiary, UserDeleteSubsidiary},
	}},
	ActionUserInvite: {Grants: []Grant{{RelAny, UserInvite}}},

	ActionDeviceCreate:   {},
	ActionDeviceTransfer: {},
	ActionDeviceList: {Grants: []Grant{
		{RelAny, DeviceListAccount},
		{RelAny, DeviceListSubsidiary},
		{RelAny, DeviceListHQ},
		{RelAny, DeviceListAssociated},
		{RelAny, DeviceListAssigned},
	}},
	ActionDeviceView: {Grants: []Grant{
		{RelOwn, DeviceViewDetailAccount},
		{RelSubsidiary, DeviceViewDetailSubsidiary},
		{RelHQ, DeviceViewDetailHQ},
		{RelAssociated, DeviceViewDetailAssociated},
		{RelAssigned, DeviceViewDetailAssigned},
	}},
	ActionDeviceEdit: {Grants: []Grant{
		{RelOwn, DeviceEditAccount},
		{RelSubsidiary, DeviceEditSubsidiary},
	}},
	ActionDeviceViewRecord: {Grants: []Grant{
		{RelOwn, DeviceViewRecordAccount},
		{RelSubsidiary, DeviceViewRecordSubsidiary},
		{RelHQ, DeviceViewRecordHQ},
		{RelAssociated, DeviceViewRecordAssociated},
	}},
	ActionDeviceEditRecord: {Grants: []Grant{
		{RelOwn, DeviceEditRecordAccount},
		{RelSubsidiary, DeviceEditRecordSubsidiary},
	}},
	ActionDeviceUpload: {Grants: []Grant{{RelAny, UploadDevice}}},

	ActionCaseCreate:  {Grants: []Grant{{RelOwn, CaseCreate}}},
	ActionCaseArchive: {},
	ActionCaseList: {Grants: []Grant{
		{RelAny, CaseListAccount},
		{RelAny, CaseListSubsidiary},
		{RelAny, CaseListAssigned},
		{RelAny, CaseListAssignedToUsers},
	}},
	ActionCaseView: {Grants: []Grant{
		{RelOwn, CaseDetailAccount},
		{RelSubsidiary, CaseDetailSubsidiary},
		{RelAssigned, CaseDetailAssigned},
		{RelAssignedToUsers, CaseDetailAssignedToUsers},
	}},
	ActionCaseEdit: {Grants: []Grant{
		{RelOwn, CaseEditAccount},
		{RelSubsidiary, CaseEditSubsidiary},
		{RelAssigned, CaseEditAssigned},
	}},
	ActionCasePatient: {Grants: []Grant{
		{RelOwn, CasePatientEditAccount},
		{RelSubsidiary, CasePatientEditSubsidiary},
		{RelAssigned, CasePatientEditAssigned},
	}},
	ActionCaseParent: {Grants: []Grant{
		{RelOwn, CaseParentEditAccount},
		{RelSubsidiary, CaseParentEditSubsidiary},
		{RelAssigned, CaseParentEditAssigned},
	}},
	ActionCaseRoleView: {Grants: []Grant{
		{RelOwn, CaseRoleAccount},
		{RelSubsidiary, CaseRoleSubsidiary},
		{RelAssigned, CaseRoleAssigned},
		{RelAssignedToUsers, CaseRoleAssignedToUsers},
	}},
	ActionCaseRoleEdit: {Grants: []Grant{
		{RelOwn, CaseRoleEditAccount},
		{RelSubsidiary, CaseRoleEditSubsidiary},
		{RelAssigned, CaseRoleEditAssigned},
	}},
	ActionCaseNoteView: {Grants: []Grant{
		{RelOwn, CaseNoteAccount},
		{RelSubsidiary, CaseNoteSubsidiary},
		{RelAssigned, CaseNoteAssigned},
		{RelAssignedToUsers, CaseNoteAssignedToUsers},
	}},
	ActionCaseNoteWrite: {Grants: []Grant{
		{RelOwn, CaseNoteEditAccount},
		{RelSubsidiary, CaseNoteEditSubsidiary},
		{RelAssigned, CaseNoteEditAssigned},
	}},
	ActionInterpretationView: {Grants: []Grant{
		{RelOwn, CaseInterpretationAccount},
		{RelSubsidiary, CaseInterpretationSubsidiary},
		{RelAssigned, CaseInterpretationAssigned},
		{RelAssignedToUsers, CaseInterpretationAssignedToUsers},
	}},
	ActionInterpretationCreate: {Grants: []Grant{
		{RelOwn, CaseInterpretationCreateAccount},
		{RelSubsidiary, CaseInterpretationCreateSubsidiary},
		{RelAssigned, CaseInterpretationCreateAssigned},
	}},
	ActionInterpretationApprove: {Grants: []Grant{
		{RelOwn, CaseInterpretationEditAccount},
		{RelSubsidiary, CaseInterpretationEditSubsidiary},
		{RelAssigned, CaseInterpretationEditAssigned},
	}},
	ActionCaseMatrixView: {Grants: []Grant{
		{RelOwn, CaseMatrixAccount},
		{RelSubsidiary, CaseMatrixSubsidiary},
		{RelAssigned, CaseMatrixAssigned},
		{RelAssignedToUsers, CaseMatrixAssignedToUsers},
	}},
	ActionCaseMatrixEdit: {Grants: []Grant{
		{RelOwn, CaseMatrixEditAccount},
		{RelSubsidiary, CaseMatrixEditSubsidiary},
		{RelAssigned, CaseMatrixEditAssigned},
	}},
	ActionDefaultMatrixManage: {Grants: []Grant{{RelAny, DefaultNotificationMatrix}}},
}

// RuleFor returns the rule of action.
func RuleFor(action Action) (Rule, bool) {
	rule, ok := rules[action]
	return rule, ok
}
