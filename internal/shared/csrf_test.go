package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFEnsureAndVerify(t *testing.T) {
	sm, _, _ := newTestManager(t)
	csrf := NewCSRFManager("csrf-secret")
	sess := sm.newSession()
	ctx := context.Background()

	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, csrf.VerifyToken(ctx, sess, token))
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, "forged"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, nil, token), ErrCSRFTokenMissing)
}

func TestCSRFEnsureRequiresSession(t *testing.T) {
	_, err := NewCSRFManager("s").EnsureToken(context.Background(), nil)
	assert.Error(t, err)
}

func TestCSRFTokenBoundToSessionID(t *testing.T) {
	sm, _, _ := newTestManager(t)
	csrf := NewCSRFManager("csrf-secret")
	sess := sm.newSession()
	ctx := context.Background()

	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)

	sess.ID = "rotated"
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, token), ErrCSRFTokenMismatch)

	fresh, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.NotEqual(t, token, fresh)
	assert.NoError(t, csrf.VerifyToken(ctx, sess, fresh))
}
