package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-queries/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-queries/pkg/models"
)

func alwaysTrue(context.Context, *models.Query, *models.User) (bool, error)  { return true, nil }
func alwaysFalse(context.Context, *models.Query, *models.User) (bool, error) { return false, nil }

func persistedQuery(name string, creator uuid.UUID) *models.Query {
	return &models.Query{
		ID:        uuid.New(),
		Name:      name,
		Statement: "SELECT 1",
		CreatorID: &creator,
	}
}

func TestEvaluator_Viewable(t *testing.T) {
	ctx := context.Background()
	user := &models.User{UserID: uuid.New()}
	q := persistedQuery("report", uuid.New())

	t.Run("default allows", func(t *testing.T) {
		ok, err := NewEvaluator(nil).Viewable(ctx, q, user)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("view policy is authoritative", func(t *testing.T) {
		ok, err := NewEvaluator(Funcs{View: alwaysFalse}).Viewable(ctx, q, user)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("anonymous user", func(t *testing.T) {
		ok, err := NewEvaluator(nil).Viewable(ctx, q, nil)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestEvaluator_Editable_LockedQuery(t *testing.T) {
	ctx := context.Background()
	creator := uuid.New()
	q := persistedQuery("#locked report", creator)

	owner := &models.User{UserID: creator}
	other := &models.User{UserID: uuid.New()}

	providers := map[string]Provider{
		"no policy":           nil,
		"view policy true":    Funcs{View: alwaysTrue},
		"view and edit true":  Funcs{View: alwaysTrue, Edit: alwaysTrue},
		"permissive provider": Permissive{},
	}

	for name, provider := range providers {
		t.Run(name, func(t *testing.T) {
			e := NewEvaluator(provider)

			ok, err := e.Editable(ctx, q, owner)
			require.NoError(t, err)
			assert.True(t, ok, "creator may edit a locked query")

			ok, err = e.Editable(ctx, q, other)
			require.NoError(t, err)
			assert.False(t, ok, "lock cannot be bypassed by policy")

			ok, err = e.Editable(ctx, q, nil)
			require.NoError(t, err)
			assert.False(t, ok, "anonymous actor cannot edit a locked query")
		})
	}
}

func TestEvaluator_Editable_StarSentinel(t *testing.T) {
	q := persistedQuery("*system", uuid.New())

	ok, err := NewEvaluator(nil).Editable(context.Background(), q, &models.User{UserID: uuid.New()})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluator_Editable_UnsavedQuery(t *testing.T) {
	ctx := context.Background()
	user := &models.User{UserID: uuid.New()}

	for _, name := range []string{"", "#draft", "*draft", "draft"} {
		t.Run(name, func(t *testing.T) {
			q := &models.Query{Name: name, Statement: "SELECT 1"}
			ok, err := NewEvaluator(nil).Editable(ctx, q, user)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestEvaluator_Editable_EmptyName(t *testing.T) {
	ctx := context.Background()
	creator := uuid.New()
	q := persistedQuery("", creator)

	assert.False(t, q.IsLocked())

	ok, err := NewEvaluator(nil).Editable(ctx, q, &models.User{UserID: creator})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewEvaluator(nil).Editable(ctx, q, &models.User{UserID: uuid.New()})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluator_Editable_RequiresViewable(t *testing.T) {
	creator := uuid.New()
	q := persistedQuery("#mine", creator)

	ok, err := NewEvaluator(Funcs{View: alwaysFalse}).Editable(context.Background(), q, &models.User{UserID: creator})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluator_Editable_EditPolicyVetoes(t *testing.T) {
	q := persistedQuery("open report", uuid.New())
	user := &models.User{UserID: uuid.New()}

	ok, err := NewEvaluator(nil).Editable(context.Background(), q, user)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewEvaluator(Funcs{Edit: alwaysFalse}).Editable(context.Background(), q, user)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluator_Editable_ShortCircuits(t *testing.T) {
	q := persistedQuery("#locked", uuid.New())
	calls := 0
	counting := func(context.Context, *models.Query, *models.User) (bool, error) {
		calls++
		return true, nil
	}

	ok, err := NewEvaluator(Funcs{View: counting, Edit: counting}).Editable(context.Background(), q, &models.User{UserID: uuid.New()})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, calls, "policies are not consulted once the ownership rule rejects")
}

func TestEvaluator_PolicyErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("policy backend unavailable")
	failing := func(context.Context, *models.Query, *models.User) (bool, error) { return true, boom }
	q := persistedQuery("report", uuid.New())
	user := &models.User{UserID: uuid.New()}

	_, err := NewEvaluator(Funcs{View: failing}).Viewable(ctx, q, user)
	var policyErr *apperrors.PolicyEvaluationError
	require.ErrorAs(t, err, &policyErr)
	assert.Equal(t, "view", policyErr.Policy)
	assert.ErrorIs(t, err, boom)

	ok, err := NewEvaluator(Funcs{Edit: failing}).Editable(ctx, q, user)
	require.ErrorAs(t, err, &policyErr)
	assert.Equal(t, "edit", policyErr.Policy)
	assert.False(t, ok)
}

func TestEvaluator_Permissions(t *testing.T) {
	ctx := context.Background()
	creator := uuid.New()
	q := persistedQuery("#locked", creator)

	perms, err := NewEvaluator(nil).Permissions(ctx, q, &models.User{UserID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, Permissions{Viewable: true, Editable: false, Locked: true}, perms)

	perms, err = NewEvaluator(nil).Permissions(ctx, q, &models.User{UserID: creator})
	require.NoError(t, err)
	assert.Equal(t, Permissions{Viewable: true, Editable: true, Locked: true}, perms)

	perms, err = NewEvaluator(Funcs{View: alwaysFalse}).Permissions(ctx, q, &models.User{UserID: creator})
	require.NoError(t, err)
	assert.Equal(t, Permissions{Locked: true}, perms)
}
