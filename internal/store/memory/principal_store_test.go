package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

func TestPrincipalStore_emailIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	st := NewPrincipalStore()

	p := &models.Principal{
		PrincipalID:  uuid.Must(uuid.NewV7()),
		Kind:         models.PrincipalKindStaff,
		Email:        "Owner@Example.com",
		PasswordHash: []byte("hash"),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, st.Create(ctx, p))

	got, err := st.GetByEmail(ctx, "owner@example.COM")
	require.NoError(t, err)
	require.Equal(t, p.PrincipalID, got.PrincipalID)

	dup := *p
	dup.PrincipalID = uuid.Must(uuid.NewV7())
	dup.Email = "OWNER@example.com"
	require.ErrorIs(t, st.Create(ctx, &dup), store.ErrPrincipalAlreadyExists)
}

func TestPrincipalStore_UpdatePassword(t *testing.T) {
	ctx := context.Background()
	st := NewPrincipalStore()
	id := uuid.Must(uuid.NewV7())

	require.ErrorIs(t, st.UpdatePassword(ctx, id, []byte("x")), store.ErrPrincipalNotFound)

	require.NoError(t, st.Create(ctx, &models.Principal{PrincipalID: id, Email: "a@b.c", PasswordHash: []byte("old")}))
	require.NoError(t, st.UpdatePassword(ctx, id, []byte("new")))

	got, err := st.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), got.PasswordHash)
}
