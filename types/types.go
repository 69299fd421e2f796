package types

import (
	"errors"

	sq "github.com/Masterminds/squirrel"
)

var sdb sq.StatementBuilderType

func init() {
	sdb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// ErrNotFound is returned when the requested object does not exist
var ErrNotFound = errors.New("not found")
