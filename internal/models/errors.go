package models

import "errors"

// Store errors returned by every record store implementation.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)
