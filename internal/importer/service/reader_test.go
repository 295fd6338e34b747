package service

import (
	"bytes"
	"strings"
	"testing"

	importerdomain "github.com/smallbiznis/caseline/internal/importer/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSVNormalizesHeaderAndSkipsBlankRows(t *testing.T) {
	file := "Serial Number, Item Number ,status\nSN1, I-1 ,Available\n,,\nSN2,I-2\n"

	rows, err := readRows("devices.CSV", strings.NewReader(file))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, row{"serial_number": "SN1", "item_number": "I-1", "status": "Available"}, rows[0])
	assert.Equal(t, "I-2", rows[1].get("item_number"))
	assert.Equal(t, "", rows[1].get("status"))
}

func TestReadXLSXUsesFirstSheet(t *testing.T) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]any{"serial_number", "account_number"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]any{"SN7", "N-1"}))
	require.NoError(t, book.SetSheetRow(sheet, "A3", &[]any{"SN8", "N-2"}))
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)

	rows, err := readRows("devices.xlsx", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "SN8", rows[1].get("serial_number"))
	assert.Equal(t, "N-2", rows[1].get("account_number"))
}

func TestReadRowsRejectsUnsupportedAndEmptyFiles(t *testing.T) {
	_, err := readRows("devices.xls", strings.NewReader("x"))
	assert.ErrorIs(t, err, importerdomain.ErrUnsupportedFile)

	_, err = readRows("devices.csv", strings.NewReader("serial_number\n"))
	assert.ErrorIs(t, err, importerdomain.ErrEmptyFile)

	_, err = readRows("devices.xlsx", strings.NewReader("not a workbook"))
	assert.ErrorIs(t, err, importerdomain.ErrUnsupportedFile)
}

func TestParsePhone(t *testing.T) {
	cases := []struct {
		value, country string
		phone, ext     string
		failed         bool
	}{
		{"(555) 123-4567", unitedStates, "+15551234567", "", false},
		{"44 (207) 123-4567 x12", "United Kingdom", "+442071234567", "12", false},
		{"(555) 123-4567", "Canada", "(555) 123-4567", "", true},
		{"555-1234", unitedStates, "555-1234", "", true},
		{"", unitedStates, "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			phone, ext, msg := parsePhone(tc.value, tc.country, 1)
			assert.Equal(t, tc.phone, phone)
			assert.Equal(t, tc.ext, ext)
			assert.Equal(t, tc.failed, msg != "")
		})
	}
}
