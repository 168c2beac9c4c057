package storer

import (
	"context"
	"errors"
	"os"
	"strings"
)

// New creates a storer based on the `uri` string: "stdout", "stderr" or
// empty for JSON logging, "mysql://..." for a shared database,
// "sqlite:/path/to/archive.db" for a local archive.
func New(ctx context.Context, uri, cert string, createTables bool) (Storer, error) {
	switch {
	case uri == "", strings.EqualFold(uri, "stdout"):
		return NewLogStorer(os.Stdout), nil
	case strings.EqualFold(uri, "stderr"):
		return NewLogStorer(os.Stderr), nil
	case strings.HasPrefix(uri, "mysql:"):
		return NewMySQLStorer(ctx, uri, cert, createTables)
	case strings.HasPrefix(uri, "sqlite:"):
		return NewSQLiteStorer(ctx, strings.TrimPrefix(uri, "sqlite:"))
	default:
		return nil, errors.New("unsupported storer uri format")
	}
}
