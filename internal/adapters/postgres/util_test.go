package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"gorm.io/gorm"
)

type sqlStateError struct{ code string }

func (e sqlStateError) Error() string    { return "pg error " + e.code }
func (e sqlStateError) SQLState() string { return e.code }

func TestStorageErrorMarksConnectionFailures(t *testing.T) {
	t.Parallel()
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	cases := []error{
		driver.ErrBadConn,
		fmt.Errorf("query: %w", dial),
		sqlStateError{code: "08006"},
		sqlStateError{code: "57P01"},
		sqlStateError{code: "53300"},
		errors.New("failed to connect to `host=db user=m91`: server error"),
	}
	for _, err := range cases {
		got := storageError(err)
		assert.ErrorIs(t, got, domain.ErrStorageUnavailable, err.Error())
	}
}

func TestStorageErrorLeavesOtherErrorsAlone(t *testing.T) {
	t.Parallel()
	cases := []error{
		domain.ErrLicenseNotFound,
		domain.ErrConflict,
		gorm.ErrRecordNotFound,
		sqlStateError{code: "23505"},
		context.Canceled,
		fmt.Errorf("scan: %w", context.DeadlineExceeded),
	}
	for _, err := range cases {
		assert.Equal(t, err, storageError(err), err.Error())
	}
	assert.NoError(t, storageError(nil))

	already := fmt.Errorf("%w: pool closed", domain.ErrStorageUnavailable)
	assert.Equal(t, already, storageError(already))
}
