package authorization

import (
	"context"

	"github.com/smallbiznis/caseline/internal/principal"
	"gorm.io/gorm"
)

// RelationChecker decides whether a relation holds between a principal and a target.
type RelationChecker interface {
	Holds(ctx context.Context, p principal.Principal, rel Relation, target Target) (bool, error)
}

type sqlRelations struct {
	db *gorm.DB
}

// NewRelationChecker evaluates relations against the account, association and case role tables.
func NewRelationChecker(db *gorm.DB) RelationChecker {
	return &sqlRelations{db: db}
}

func (r *sqlRelations) Holds(ctx context.Context, p principal.Principal, rel Relation, t Target) (bool, error) {
	switch rel {
	case RelAny:
		return true, nil
	case RelSelf:
		return t.Kind == KindUser && t.ID == p.UserID, nil
	case RelOwn:
		return p.HasAccount() && t.AccountID == p.AccountID, nil
	case RelHQ:
		return p.HasParentAccount() && t.AccountID == p.ParentAccountID, nil
	}

	if !p.HasAccount() {
		return false, nil
	}

	switch rel {
	case RelSubsidiary:
		if t.AccountID == 0 || t.AccountID == p.AccountID {
			return false, nil
		}
		return r.exists(ctx,
			`SELECT COUNT(*) FROM account_ancestors WHERE account_id = ? AND ancestor_id = ?`,
			t.AccountID, p.AccountID)
	case RelAssociated:
		if t.AccountID == 0 || t.AccountID == p.AccountID {
			return false, nil
		}
		return r.exists(ctx,
			`SELECT COUNT(*) FROM account_associations
			 WHERE accepted = ?
			   AND ((from_account_id = ? AND to_account_id = ?) OR (from_account_id = ? AND to_account_id = ?))`,
			true, p.AccountID, t.AccountID, t.AccountID, p.AccountID)
	case RelAssigned:
		return r.assigned(ctx, p, t)
	case RelAssignedToUsers:
		return r.assignedToUsers(ctx, p, t)
	case RelContact:
		if t.Kind != KindUser {
			return false, nil
		}
		return r.exists(ctx,
			`SELECT COUNT(*) FROM contact_associations
			 WHERE contact_user_id = ? AND account_id = ? AND accepted = ?`,
			t.ID, p.AccountID, true)
	case RelAssociatedContact:
		if t.Kind != KindUser {
			return false, nil
		}
		return r.exists(ctx,
			`SELECT COUNT(*) FROM contact_associations
			 WHERE contact_user_id = ? AND accepted = ?
			   AND account_id IN (
			     SELECT to_account_id FROM account_associations WHERE from_account_id = ? AND accepted = ?
			     UNION
			     SELECT from_account_id FROM account_associations WHERE to_account_id = ? AND accepted = ?
			   )`,
			t.ID, true, p.AccountID, true, p.AccountID, true)
	}
	return false, nil
}

func (r *sqlRelations) assigned(ctx context.Context, p principal.Principal, t Target) (bool, error) {
	switch t.Kind {
	case KindCase:
		return r.exists(ctx,
			`SELECT COUNT(*) FROM case_roles WHERE case_id = ? AND user_id = ?`,
			t.ID, p.UserID)
	case KindDevice:
		return r.exists(ctx,
			`SELECT COUNT(*) FROM case_devices cd
			 JOIN case_roles cr ON cr.case_id = cd.case_id
			 WHERE cd.device_id = ? AND cd.is_active = ? AND cr.user_id = ?`,
			t.ID, true, p.UserID)
	}
	return false, nil
}

func (r *sqlRelations) assignedToUsers(ctx context.Context, p principal.Principal, t Target) (bool, error) {
	switch t.Kind {
	case KindCase:
		return r.exists(ctx,
			`SELECT COUNT(*) FROM case_roles cr
			 JOIN users u ON u.id = cr.user_id
			 WHERE cr.case_id = ? AND u.account_id = ?`,
			t.ID, p.AccountID)
	case KindDevice:
		return r.exists(ctx,
			`SELECT COUNT(*) FROM case_devices cd
			 JOIN case_roles cr ON cr.case_id = cd.case_id
			 JOIN users u ON u.id = cr.user_id
			 WHERE cd.device_id = ? AND cd.is_active = ? AND u.account_id = ?`,
			t.ID, true, p.AccountID)
	}
	return false, nil
}

func (r *sqlRelations) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
