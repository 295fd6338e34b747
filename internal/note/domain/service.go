package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/caseline/pkg/db/pagination"
)

type CreateNoteRequest struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

type ListNoteRequest struct {
	pagination.Pagination
	Case string `form:"case"`
}

type ListNoteResponse struct {
	pagination.PageInfo
	Notes []*ProviderNote `json:"notes"`
}

type Service interface {
	Create(ctx context.Context, caseNo string, req CreateNoteRequest) (*ProviderNote, error)
	ListByCase(ctx context.Context, caseNo string, page pagination.Pagination) (ListNoteResponse, error)
	// List returns the notes of every case the caller may see.
	List(ctx context.Context, req ListNoteRequest) (ListNoteResponse, error)
	Get(ctx context.Context, slug string) (*ProviderNote, error)
}

var ErrNoteNotFound = errors.New("note_not_found")
