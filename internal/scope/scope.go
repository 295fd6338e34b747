// Package scope narrows list queries to the rows a principal may see.
//
// Every held permission code of a family contributes one candidate id set;
// the visible set is their union. Holding none of the codes yields nothing.
package scope

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/internal/authorization"
	"github.com/smallbiznis/caseline/internal/principal"
	"gorm.io/gorm"
)

// Candidate is one named candidate set.
type Candidate struct {
	Name string
	Code authorization.Code
	// All marks codes that lift the filter entirely.
	All bool
	// SQL returns a query selecting candidate ids; empty means no candidates.
	SQL func(p principal.Principal) (string, []any)
}

// Family groups the candidate sets of one entity.
type Family struct {
	Entity     string
	Table      string
	Column     string
	Candidates []Candidate
}

// Apply restricts query to ids visible through the codes p holds.
func Apply(query *gorm.DB, p principal.Principal, codes authorization.CodeSet, f Family) *gorm.DB {
	if p.IsSuperuser || codes.IsAll() {
		return query
	}

	parts := make([]string, 0, len(f.Candidates))
	args := make([]any, 0, len(f.Candidates))
	for _, cand := range f.Candidates {
		if !codes.Has(cand.Code) {
			continue
		}
		if cand.All {
			return query
		}
		sql, vars := cand.SQL(p)
		if sql == "" {
			continue
		}
		parts = append(parts, f.Column+" IN (?)")
		args = append(args, query.Session(&gorm.Session{NewDB: true}).Raw(sql, vars...))
	}
	if len(parts) == 0 {
		return query.Where("1 = 0")
	}
	return query.Where("("+strings.Join(parts, " OR ")+")", args...)
}

// Visible returns the visible ids of a family.
func Visible(ctx context.Context, db *gorm.DB, p principal.Principal, codes authorization.CodeSet, f Family) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	query := db.WithContext(ctx).Table(f.Table)
	err := Apply(query, p, codes, f).Order(f.Column).Pluck(f.Column, &ids).Error
	return ids, err
}

// CodesOf lists the codes of a family.
func (f Family) CodesOf() []authorization.Code {
	out := make([]authorization.Code, 0, len(f.Candidates))
	for _, cand := range f.Candidates {
		out = append(out, cand.Code)
	}
	return out
}
