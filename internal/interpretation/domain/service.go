package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/caseline/pkg/apperr"
)

type CreateInterpretationRequest struct {
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
	Comments string `json:"interpretation_comments"`
}

// Summary previews an interpretation window of a case.
type Summary struct {
	CaseNo     string `json:"case_no"`
	DateFrom   string `json:"date_from,omitempty"`
	DateTo     string `json:"date_to,omitempty"`
	NoOfEvents int64  `json:"num_of_events"`
}

type Service interface {
	Create(ctx context.Context, caseNo string, req CreateInterpretationRequest) (*Interpretation, error)
	List(ctx context.Context, caseNo string) ([]*Interpretation, error)
	Get(ctx context.Context, slug string) (*Interpretation, error)
	Approve(ctx context.Context, slug string) (*Interpretation, error)
	// Summary defaults an empty window to the span of uninterpreted events.
	Summary(ctx context.Context, caseNo, from, to string) (Summary, error)
}

var (
	ErrInterpretationNotFound = errors.New("interpretation_not_found")

	ErrOverlap         = apperr.Conflict("Can't create interpretation as dates are overlapping with other interpretation of this case")
	ErrAlreadyApproved = apperr.Conflict("Interpretation is already approved")
)
