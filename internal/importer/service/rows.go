package service

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	accountdomain "github.com/smallbiznis/caseline/internal/account/domain"
	devicedomain "github.com/smallbiznis/caseline/internal/device/domain"
	importerdomain "github.com/smallbiznis/caseline/internal/importer/domain"
	"github.com/smallbiznis/caseline/pkg/dates"
)

const (
	maxAccountNumber = 12
	maxAccountName   = 255
	maxPhone         = 23
	maxSerial        = 10
	maxItemNumber    = 10

	unitedStates = "United States"
)

var (
	phoneRegex  = regexp.MustCompile(`^([0-9]{0,3})\s?\(([0-9]{3})\)\s([0-9]{3})-([0-9]{4})\s?x?\s?([0-9]{0,6})$`)
	domainRegex = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z0-9][a-z0-9-]{0,61}[a-z0-9]$`)

	languageCodes = map[string]string{
		"english": "en", "en": "en",
		"spanish": "es", "es": "es",
		"french": "fr", "fr": "fr",
	}
	countryNames = map[string]string{
		"us": unitedStates, "usa": unitedStates, "united states": unitedStates,
		"ca": "Canada", "can": "Canada",
		"mx": "Mexico", "mex": "Mexico",
	}

	// cellLayouts adds the spreadsheet default short date to the upload layouts.
	cellLayouts = append(slices.Clone(dates.UploadLayouts), dates.ISO, "02-Jan-2006", "01-02-06")
)

func parseCell(value string) (time.Time, error) {
	return dates.Parse(value, cellLayouts...)
}

type accountLookup func(ctx context.Context, number string) (bool, error)

// validateAccounts checks every account row against the database and the
// rest of the file.
func validateAccounts(ctx context.Context, rows []row, exists accountLookup) ([]map[string]any, []importerdomain.RowErrors, error) {
	inFile := make(map[string]bool, len(rows))
	isHQ := make(map[string]bool)
	for _, r := range rows {
		inFile[r.get("account_number")] = true
		if hq := r.get("hq_account_number"); hq != "" {
			isHQ[hq] = true
		}
	}

	seen := make(map[string]bool, len(rows))
	data := make([]map[string]any, 0, len(rows))
	errs := make([]importerdomain.RowErrors, 0, len(rows))
	for _, r := range rows {
		var e importerdomain.RowErrors
		d := map[string]any{}

		number := r.get("account_number")
		if number == "" {
			e.Add(importerdomain.FlagDataMissing, "Account number missing")
		} else {
			found, err := exists(ctx, number)
			if err != nil {
				return nil, nil, err
			}
			if found {
				e.Add(importerdomain.FlagAlreadyExists, "Account with this account number already exists")
			}
			if seen[number] {
				e.Add(importerdomain.FlagDuplicate, "Duplicate entry")
			}
			seen[number] = true
			if len(number) > maxAccountNumber {
				e.Add(importerdomain.FlagDataMissing, "Account Number cannot be more than 12 characters")
			}
		}
		d["account_number"] = number

		name := r.get("account_name")
		switch {
		case name == "":
			e.Add(importerdomain.FlagDataMissing, "Account name missing")
		case len(name) > maxAccountName:
			e.Add(importerdomain.FlagDataMissing, "Account name length greater than 255")
		}
		d["name"] = name

		country := r.get("country")
		if full, ok := countryNames[strings.ToLower(country)]; ok {
			country = full
		}
		d["country"] = country
		for _, key := range []string{"city", "state", "zipcode", "address1", "address2", "address3"} {
			d[key] = r.get(key)
		}

		for i, key := range []string{"phone1", "phone2"} {
			phone, ext, msg := parsePhone(r.get(key), country, i+1)
			if msg != "" {
				e.Add(importerdomain.FlagPhoneNumber, msg)
			}
			d[key] = phone
			d[key+"_ext"] = ext
		}

		domain := strings.ToLower(r.get("domain"))
		if domain != "" && !domainRegex.MatchString(domain) {
			e.Add(importerdomain.FlagDomain, "Unable to parse domain, might not be valid")
		}
		d["domain"] = domain

		hq := r.get("hq_account_number")
		accountType := accountdomain.TypeHQ
		if hq != "" && hq != number {
			accountType = accountdomain.TypeSub
			if isHQ[number] {
				accountType = accountdomain.TypeHQSub
			}
			found, err := exists(ctx, hq)
			if err != nil {
				return nil, nil, err
			}
			if !found && !inFile[hq] {
				e.Add(importerdomain.FlagHQDoesNotExist, "Headquarter account does not exist in database or file")
			}
		}
		d["type"] = string(accountType)
		d["parent_account_number"] = hq

		users := r.get("no_of_usr_subs")
		if users == "" {
			e.Add(importerdomain.FlagDataMissing, "User subscription missing, enter 0 if there are none")
		} else if n, err := strconv.Atoi(users); err != nil || n < 0 {
			e.Add(importerdomain.FlagDataMissing, "Unable to parse user subscription")
		}
		d["num_of_users"] = users

		start, end := r.get("sub_start_date"), r.get("sub_end_date")
		var startAt, endAt time.Time
		if start != "" {
			t, err := parseCell(start)
			if err != nil {
				e.Add(importerdomain.FlagDataMissing, "Unable to parse subscription start date")
			}
			startAt, start = t, dates.Format(t)
		}
		if end != "" {
			t, err := parseCell(end)
			if err != nil {
				e.Add(importerdomain.FlagDataMissing, "Unable to parse subscription end date")
			}
			endAt, end = t, dates.Format(t)
		}
		switch {
		case start == "" && end != "":
			e.Add(importerdomain.FlagDataMissing, "Subscription start date is missing")
		case start != "" && end == "":
			e.Add(importerdomain.FlagDataMissing, "Subscription end date is missing")
		case start != "" && !startAt.IsZero() && !endAt.IsZero() && !endAt.After(startAt):
			e.Add(importerdomain.FlagDataMissing, "Subscription end date should be greater than start date")
		}
		d["sub_start_date"], d["sub_end_date"] = start, end

		language := r.get("language")
		if language == "" {
			e.Add(importerdomain.FlagDataMissing, "Language missing")
		} else if code, ok := languageCodes[strings.ToLower(language)]; ok {
			language = code
		} else {
			e.Add(importerdomain.FlagDataMissing, "Unable to parse language")
		}
		d["language"] = language

		data = append(data, d)
		errs = append(errs, e)
	}
	return data, errs, nil
}

// parsePhone normalizes "1 (555) 123-4567 x12" to "+15551234567" and "12".
// Without a country code only United States numbers default to +1.
func parsePhone(value, country string, n int) (string, string, string) {
	if value == "" {
		return "", "", ""
	}
	label := "phone" + strconv.Itoa(n)
	if len(value) > maxPhone {
		return value[:maxPhone], "", "Could not parse " + label
	}
	m := phoneRegex.FindStringSubmatch(value)
	if m == nil {
		return value, "", "Could not parse " + label
	}
	code, digits, ext := m[1], m[2]+m[3]+m[4], m[5]
	if code == "" {
		if country != unitedStates {
			return value, ext, "Country code not provided in Phone" + strconv.Itoa(n)
		}
		code = "1"
	}
	return "+" + code + digits, ext, ""
}

// deviceLookups are the existence checks device rows need.
type deviceLookups struct {
	serialExists  func(ctx context.Context, serial string) (bool, error)
	itemExists    func(ctx context.Context, number string) (bool, error)
	accountExists accountLookup
	today         time.Time
}

func validateDevices(ctx context.Context, rows []row, look deviceLookups) ([]map[string]any, []importerdomain.RowErrors, error) {
	seen := make(map[string]bool, len(rows))
	data := make([]map[string]any, 0, len(rows))
	errs := make([]importerdomain.RowErrors, 0, len(rows))
	for _, r := range rows {
		var e importerdomain.RowErrors
		d := map[string]any{}

		serial := r.get("serial_number")
		if serial == "" {
			e.Add(importerdomain.FlagDataMissing, "Serial number missing")
		} else {
			found, err := look.serialExists(ctx, serial)
			if err != nil {
				return nil, nil, err
			}
			switch {
			case found:
				e.Add(importerdomain.FlagAlreadyExists, "Device with this serial number already exists")
			case seen[serial]:
				e.Add(importerdomain.FlagDuplicate, "Duplicate entry")
			case len(serial) > maxSerial:
				e.Add(importerdomain.FlagDataMissing, "Serial number cannot be greater than 10 characters")
			default:
				seen[serial] = true
			}
		}
		d["serial_number"] = serial

		item := r.get("item_number")
		if item == "" {
			e.Add(importerdomain.FlagDataMissing, "Item number missing")
		} else if len(item) > maxItemNumber {
			e.Add(importerdomain.FlagDataMissing, "Item number cannot be greater than 10 characters")
		} else {
			found, err := look.itemExists(ctx, item)
			if err != nil {
				return nil, nil, err
			}
			if !found {
				e.Add(importerdomain.FlagNotFound, "Item number does not exist")
			}
		}
		d["item_number"] = item

		added := dates.Format(look.today)
		if v := r.get("date_added"); v != "" {
			t, err := parseCell(v)
			if err != nil {
				e.Add(importerdomain.FlagDataMissing, "Unable to parse date added")
				added = ""
			} else {
				added = dates.Format(t)
			}
		}
		d["date_added"] = added

		status := devicedomain.Status(r.get("status"))
		if status == "" {
			status = devicedomain.StatusAvailable
		}
		if !status.Valid() {
			e.Add(importerdomain.FlagDataMissing, "Incorrect Status")
		}
		d["status"] = string(status)

		account := r.get("account_number")
		if account == "" {
			e.Add(importerdomain.FlagDataMissing, "Account number missing")
		} else {
			found, err := look.accountExists(ctx, account)
			if err != nil {
				return nil, nil, err
			}
			if !found {
				e.Add(importerdomain.FlagNotFound, "Account with this account number does not exist")
			}
		}
		d["account_number"] = account

		subStart := ""
		if v := r.get("sub_start_date"); v != "" {
			t, err := parseCell(v)
			if err != nil {
				e.Add(importerdomain.FlagDataMissing, "Unable to parse subscription start date")
			} else {
				subStart = dates.Format(t)
			}
		}
		d["sub_start_date"] = subStart

		data = append(data, d)
		errs = append(errs, e)
	}
	return data, errs, nil
}

// present turns a not-found error into false.
func present(err, notFound error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, notFound):
		return false, nil
	default:
		return false, err
	}
}
