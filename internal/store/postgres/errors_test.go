package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/store"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), store.ErrUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: pgerrcode.AdminShutdown}, store.ErrUnavailable},
		{"too many connections", &pgconn.PgError{Code: pgerrcode.TooManyConnections}, store.ErrUnavailable},
		{"duplicate session", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "sessions_pkey"}, store.ErrSessionAlreadyExists},
		{"duplicate email", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "idx_principals_email"}, store.ErrPrincipalAlreadyExists},
		{"duplicate slug", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "tenants_slug_key"}, store.ErrTenantAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapPostgresError(tt.err)
			if tt.want == nil {
				require.NoError(t, got)
				return
			}
			require.ErrorIs(t, got, tt.want)
		})
	}
}

func TestMapPostgresError_unavailableIsRetryableKind(t *testing.T) {
	err := mapPostgresError(&pgconn.PgError{Code: pgerrcode.CannotConnectNow})
	require.Equal(t, autherr.KindUnavailable, autherr.KindOf(err))
}

func TestMapPostgresError_passesThroughUnknown(t *testing.T) {
	plain := errors.New("plain")
	require.Equal(t, plain, mapPostgresError(plain))
}

func TestIsRetryable(t *testing.T) {
	require.True(t, isRetryable(fmt.Errorf("tx: %w", &pgconn.PgError{Code: pgerrcode.SerializationFailure})))
	require.True(t, isRetryable(&pgconn.PgError{Code: pgerrcode.DeadlockDetected}))
	require.False(t, isRetryable(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	require.False(t, isRetryable(errors.New("other")))
}
