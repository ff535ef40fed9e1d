package repositories

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrConflict is returned when an insert collides with a unique column such
// as a workspace slug or a repository hook id.
var ErrConflict = errors.New("resource already exists")

func mapWriteError(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
