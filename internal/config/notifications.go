package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// NotificationTemplate describes how one notification action is rendered.
// Subject and Body are html/template sources evaluated against the event context.
type NotificationTemplate struct {
	Action  string `mapstructure:"action"`
	Subject string `mapstructure:"subject"`
	Body    string `mapstructure:"body"`
	// Email disables mail delivery when false; the in-app record is always kept.
	Email bool `mapstructure:"email"`
}

func DefaultNotificationTemplates() []NotificationTemplate {
	t := func(action, subject, body string) NotificationTemplate {
		return NotificationTemplate{Action: action, Subject: subject, Body: body, Email: true}
	}
	return []NotificationTemplate{
		t("Account Acquisition - Acquirer", "Your account has been acquired",
			"Account {{.acquired_account}} is now a subsidiary of {{.acquiring_account}}."),
		t("Account Acquisition - Acquiring", "Account acquired",
			"Account {{.acquired_account}} has been added to {{.acquiring_account}}."),
		t("Account Activation", "Account activated",
			"Account {{.account_number}} is active for {{.number_of_users}} users until {{.subscription_end_date}}."),
		t("Account Deactivation", "Account deactivated",
			"Account {{.account_number}} has been deactivated."),
		t("Account Association Request", "Association request",
			"{{.from_account}} requested to associate with {{.to_account}}."),
		t("Account Association Request to Admin", "Association requested by a user",
			"{{.requested_by}} asked you to associate {{.from_account}} with {{.to_account}}."),
		t("Account Association Accepted", "Association accepted",
			"{{.to_account}} accepted the association request from {{.from_account}}."),
		t("Account Association Rejected", "Association rejected",
			"{{.to_account}} rejected the association request from {{.from_account}}."),
		t("Account Association Revoked", "Association request revoked",
			"{{.from_account}} revoked its association request to {{.to_account}}."),
		t("Account Associated", "Accounts associated",
			"{{.from_account}} and {{.to_account}} are now associated."),
		t("Account Dissociated", "Accounts dissociated",
			"{{.from_account}} and {{.to_account}} are no longer associated."),
		t("Contact Association Request", "Contact association request",
			"{{.account}} requested to associate with you."),
		t("Contact Association Request to Admin", "Contact association requested by a user",
			"{{.requested_by}} asked you to associate {{.contact}} with {{.account}}."),
		t("Contact Association Invite", "Invitation to associate",
			"{{.account}} invites you to associate as a contact."),
		t("Contact Association Accepted", "Contact association accepted",
			"{{.contact}} accepted the association with {{.account}}."),
		t("Contact Association Rejected", "Contact association rejected",
			"{{.contact}} rejected the association with {{.account}}."),
		t("Contact Association Revoked", "Contact association revoked",
			"{{.account}} revoked its association request."),
		t("Contact Associated", "Contact associated",
			"{{.contact}} is now associated with {{.account}}."),
		t("Contact Dissociated", "Contact dissociated",
			"{{.contact}} is no longer associated with {{.account}}."),
		t("Devices Transferred From Account", "Devices transferred",
			"{{.from_user_name}} transferred devices {{.device_serial_numbers}} from {{.from_account_name}} to {{.to_account_name}}."),
		t("Devices Transferred To Account", "Devices received",
			"Devices {{.device_serial_numbers}} were transferred to {{.to_account_name}} from {{.from_account_name}}."),
		t("Case Role Assigned", "Case role assigned",
			"{{.case_manager}} made you {{.role_name}} on case {{.case_number}}."),
		t("Case Role Unassigned", "Case role removed",
			"{{.case_manager}} removed you as {{.role_name}} on case {{.case_number}}."),
		t("Case Opened", "Case opened", "{{.from_user_name}} opened case {{.case_number}}."),
		t("Case Closed", "Case closed", "{{.from_user_name}} closed case {{.case_number}}."),
		t("Case Archived", "Case archived", "{{.from_user_name}} archived case {{.case_number}}."),
		t("Case Device Changed", "Case device changed",
			"Case {{.case_number}} now uses device {{.serial_number}} instead of {{.old_serial_number}}."),
		t("Interpretation Created", "Interpretation created",
			"{{.from_user_name}} interpreted case {{.case_number}} from {{.date_from}} to {{.date_to}}."),
		t("Interpretation Approved", "Interpretation approved",
			"{{.from_user_name}} approved the interpretation of case {{.case_number}} from {{.date_from}} to {{.date_to}}."),
		t("Case Note Added", "Case note added", "{{.from_user_name}} added a note to case {{.case_number}}."),
		t("Subscription Cancelled", "Subscription cancelled",
			"The subscription of {{.account_number}} has been cancelled."),
		t("Subscription Expired", "Subscription expired",
			"The subscription of {{.account_number}} ended on {{.end_date}}."),
		t("User Created", "Welcome", "An account was created for {{.email}}."),
	}
}

// NotificationCatalog holds the current templates and swaps them when the
// backing file changes.
type NotificationCatalog struct {
	current atomic.Value // map[string]NotificationTemplate
}

// NewNotificationCatalog loads notifications.yml, falling back to the
// compiled-in defaults, and watches the file for changes.
func NewNotificationCatalog(cfg Config, log *zap.Logger) (*NotificationCatalog, error) {
	v := viper.New()
	v.SetConfigName("notifications")
	v.SetConfigType("yml")
	if cfg.NotificationsPath != "" {
		v.AddConfigPath(cfg.NotificationsPath)
	}
	v.AddConfigPath("/etc/caseline")
	v.AddConfigPath(".")

	catalog := &NotificationCatalog{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		catalog.Store(DefaultNotificationTemplates())
		return catalog, nil
	}

	templates, err := decodeTemplates(v)
	if err != nil {
		return nil, err
	}
	catalog.Store(templates)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeTemplates(v)
		if err != nil {
			log.Warn("notification catalog reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		catalog.Store(updated)
		log.Info("notification catalog reloaded", zap.String("file", e.Name), zap.Int("templates", len(updated)))
	})

	return catalog, nil
}

// NewStaticNotificationCatalog builds a catalog that never reloads.
func NewStaticNotificationCatalog(templates []NotificationTemplate) *NotificationCatalog {
	catalog := &NotificationCatalog{}
	catalog.Store(templates)
	return catalog
}

// Store replaces the catalog contents. File entries override defaults per action.
func (c *NotificationCatalog) Store(templates []NotificationTemplate) {
	merged := make(map[string]NotificationTemplate)
	for _, tmpl := range DefaultNotificationTemplates() {
		merged[tmpl.Action] = tmpl
	}
	for _, tmpl := range templates {
		merged[strings.TrimSpace(tmpl.Action)] = tmpl
	}
	c.current.Store(merged)
}

// Lookup returns the template for action.
func (c *NotificationCatalog) Lookup(action string) (NotificationTemplate, bool) {
	templates, _ := c.current.Load().(map[string]NotificationTemplate)
	tmpl, ok := templates[strings.TrimSpace(action)]
	return tmpl, ok
}

func decodeTemplates(v *viper.Viper) ([]NotificationTemplate, error) {
	var templates []NotificationTemplate
	if err := v.UnmarshalKey("notifications", &templates); err != nil {
		return nil, err
	}
	for i, tmpl := range templates {
		if strings.TrimSpace(tmpl.Action) == "" {
			return nil, fmt.Errorf("notifications[%d]: action is required", i)
		}
		if strings.TrimSpace(tmpl.Subject) == "" {
			return nil, fmt.Errorf("notifications[%d]: subject is required", i)
		}
	}
	return templates, nil
}
