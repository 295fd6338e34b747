package authorization

import (
	"errors"

	"github.com/smallbiznis/caseline/pkg/apperr"
)

var (
	ErrForbidden      = apperr.ErrForbidden
	ErrUnknownAction  = errors.New("unknown_action")
	ErrUnknownCode    = errors.New("unknown_permission_code")
	ErrUnknownGroup   = errors.New("unknown_group")
	ErrInvalidGroup   = errors.New("invalid_group")
	ErrInvalidUser    = errors.New("invalid_user")
	ErrNoAccountAdmin = errors.New("account_admin_not_found")
)
