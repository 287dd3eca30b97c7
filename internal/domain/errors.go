package domain

import "errors"

var (
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidTitle      = errors.New("invalid title")
	ErrInvalidPosition   = errors.New("invalid position")
	ErrInvalidSpan       = errors.New("invalid span")
	ErrInvalidSize       = errors.New("invalid widget size")
	ErrInvalidColumns    = errors.New("invalid column count")
	ErrInvalidDashboard  = errors.New("invalid dashboard id")
	ErrBoundsViolation   = errors.New("position out of bounds")
	ErrCollision         = errors.New("position collides with another item")
	ErrMissingItem       = errors.New("item not found in layout")
	ErrDuplicateItem     = errors.New("duplicate item id")
	ErrInvalidLayoutJSON = errors.New("invalid layout payload")
)
