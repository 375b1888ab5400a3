package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithClaims(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}}
	ctx := WithClaims(context.Background(), claims, "raw-token")

	got, ok := GetClaims(ctx)
	require.True(t, ok)
	assert.Same(t, claims, got)

	token, ok := GetToken(ctx)
	require.True(t, ok)
	assert.Equal(t, "raw-token", token)
}

func TestGetClaims_Missing(t *testing.T) {
	claims, ok := GetClaims(context.Background())
	assert.False(t, ok)
	assert.Nil(t, claims)

	_, ok = GetToken(context.Background())
	assert.False(t, ok)
}

func TestClaims_ProjectUUID(t *testing.T) {
	projectID := uuid.New()

	got, err := (&Claims{ProjectID: projectID.String()}).ProjectUUID()
	require.NoError(t, err)
	assert.Equal(t, projectID, got)

	_, err = (&Claims{}).ProjectUUID()
	assert.ErrorIs(t, err, ErrMissingProjectID)

	_, err = (&Claims{ProjectID: "not-a-uuid"}).ProjectUUID()
	assert.Error(t, err)
}
