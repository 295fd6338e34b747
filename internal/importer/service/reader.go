package service

import (
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"

	importerdomain "github.com/smallbiznis/caseline/internal/importer/domain"
	"github.com/xuri/excelize/v2"
)

// row maps a normalized header to the trimmed cell value.
type row map[string]string

func (r row) get(key string) string { return r[key] }

// readRows returns the data rows of a .csv file or of the first sheet of an
// .xlsx workbook. The first row is the header.
func readRows(filename string, r io.Reader) ([]row, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		records, err = readCSV(r)
	case ".xlsx":
		records, err = readXLSX(r)
	default:
		return nil, importerdomain.ErrUnsupportedFile
	}
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, importerdomain.ErrEmptyFile
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
	}
	out := make([]row, 0, len(records)-1)
	for _, rec := range records[1:] {
		r := make(row, len(header))
		blank := true
		for i, key := range header {
			if key == "" || i >= len(rec) {
				continue
			}
			v := strings.TrimSpace(rec[i])
			if v != "" {
				blank = false
			}
			r[key] = v
		}
		if !blank {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, importerdomain.ErrEmptyFile
	}
	return out, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return nil, importerdomain.ErrUnsupportedFile
	}
	return records, err
}

func readXLSX(r io.Reader) ([][]string, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, importerdomain.ErrUnsupportedFile
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, importerdomain.ErrEmptyFile
	}
	return book.GetRows(sheets[0])
}
