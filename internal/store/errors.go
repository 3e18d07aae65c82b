package store

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")
	ErrInvalidParent  = errors.New("parent item does not belong to the checklist set")
)
