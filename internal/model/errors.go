package model

import "github.com/rotisserie/eris"

var (
	// ErrIntegrity marks a malformed or cyclic zone hierarchy.
	ErrIntegrity = eris.New("integrity error")

	// ErrNotFound marks a query naming an unknown zone.
	ErrNotFound = eris.New("not found")

	// ErrInvalidFilter marks a rejected query filter such as an inverted year range.
	ErrInvalidFilter = eris.New("invalid filter")
)
