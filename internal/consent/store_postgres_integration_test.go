//go:build integration

package consent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "vitaex/pkg/domain"
	"vitaex/pkg/platform/sentinel"
	"vitaex/pkg/testutil/containers"
)

func TestPostgresStore_SaveAndEffective(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	defer pc.Close(t)

	store := NewPostgresStore(pc.Pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	subject := id.SubjectID("subj-pg-1")

	require.NoError(t, store.Save(ctx, Grant{
		SubjectID: subject,
		Purpose:   id.PurposeDataProcessing,
		Scope:     id.NewScope(id.CategoryWearables, id.CategoryLabs),
		GrantedAt: now,
	}))

	grant, err := store.Effective(ctx, subject, id.PurposeDataProcessing, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, subject, grant.SubjectID)
	assert.True(t, grant.Scope.Contains(id.NewScope(id.CategoryWearables, id.CategoryLabs)))
	assert.True(t, grant.GrantedAt.Equal(now))

	_, err = store.Effective(ctx, subject, id.PurposePersonalization, now.Add(time.Second))
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresStore_SaveSupersedesPriorGrant(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	defer pc.Close(t)

	store := NewPostgresStore(pc.Pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	subject := id.SubjectID("subj-pg-2")

	require.NoError(t, store.Save(ctx, Grant{
		SubjectID: subject,
		Purpose:   id.PurposeDataProcessing,
		Scope:     id.NewScope(id.CategoryWearables, id.CategoryLabs),
		GrantedAt: now,
	}))
	require.NoError(t, store.Save(ctx, Grant{
		SubjectID: subject,
		Purpose:   id.PurposeDataProcessing,
		Scope:     id.NewScope(id.CategoryWearables),
		GrantedAt: now.Add(time.Minute),
	}))

	// Only the regrant is effective; the original survives in the ledger
	// with its superseded_at stamped.
	grant, err := store.Effective(ctx, subject, id.PurposeDataProcessing, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, grant.Scope.Contains(id.NewScope(id.CategoryLabs)))

	grants, err := store.ListBySubject(ctx, subject)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.True(t, grants[0].GrantedAt.After(grants[1].GrantedAt))
	assert.Nil(t, grants[0].SupersededAt)
	assert.NotNil(t, grants[1].SupersededAt)
}

func TestPostgresStore_RevokeEndsTheGrant(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	defer pc.Close(t)

	store := NewPostgresStore(pc.Pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	subject := id.SubjectID("subj-pg-3")

	require.NoError(t, store.Save(ctx, Grant{
		SubjectID: subject,
		Purpose:   id.PurposeDataProcessing,
		Scope:     id.NewScope(id.CategoryWearables),
		GrantedAt: now,
	}))

	require.NoError(t, store.Revoke(ctx, subject, id.PurposeDataProcessing, now.Add(time.Second)))

	_, err := store.Effective(ctx, subject, id.PurposeDataProcessing, now.Add(2*time.Second))
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	// A second revoke finds no live grant.
	err = store.Revoke(ctx, subject, id.PurposeDataProcessing, now.Add(3*time.Second))
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresStore_ExpiredGrantIsNotEffective(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	defer pc.Close(t)

	store := NewPostgresStore(pc.Pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	subject := id.SubjectID("subj-pg-4")

	require.NoError(t, store.Save(ctx, Grant{
		SubjectID: subject,
		Purpose:   id.PurposeDataProcessing,
		Scope:     id.NewScope(id.CategoryWearables),
		GrantedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}))

	_, err := store.Effective(ctx, subject, id.PurposeDataProcessing, now.Add(30*time.Minute))
	require.NoError(t, err)

	_, err = store.Effective(ctx, subject, id.PurposeDataProcessing, now.Add(2*time.Hour))
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}
