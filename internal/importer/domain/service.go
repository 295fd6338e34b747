package domain

import (
	"context"
	"errors"
	"io"

	"github.com/smallbiznis/caseline/pkg/apperr"
)

type UploadDetail struct {
	*Upload
	Items []*UploadItem `json:"items"`
}

type CommitResult struct {
	Imported int           `json:"imported"`
	Failed   int           `json:"failed"`
	Items    []*UploadItem `json:"items"`
}

type Service interface {
	// Upload parses a .csv or .xlsx file and stores one item per data row.
	// Rows are validated independently; the upload never fails on row errors.
	Upload(ctx context.Context, kind Kind, filename string, r io.Reader) (*UploadDetail, error)
	Get(ctx context.Context, slug string) (*UploadDetail, error)
	// Commit creates the records of error-free rows not yet imported.
	Commit(ctx context.Context, slug string) (*CommitResult, error)
}

var (
	ErrUploadNotFound = errors.New("upload_not_found")

	ErrUnsupportedFile = apperr.Invalid("upload", "Invalid file type")
	ErrEmptyFile       = apperr.Invalid("upload", "The file has no data rows")
	ErrUnknownKind     = apperr.Invalid("kind", "Upload kind must be account or device")
)
