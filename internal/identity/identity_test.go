package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func testHash(t *testing.T, passphrase string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthenticateOwner(t *testing.T) {
	auth, err := NewAuthenticator(testHash(t, "waaagh"), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.True(t, auth.OwnerConfigured())

	p, err := auth.Authenticate("Ulrike", "waaagh")
	require.NoError(t, err)
	assert.True(t, p.IsPrivileged())
	assert.Equal(t, "Ulrike", p.DisplayName())
	assert.NotEmpty(t, p.ParticipantID())

	p, err = auth.Authenticate("", "waaagh")
	require.NoError(t, err)
	assert.Equal(t, DefaultOwnerName, p.Name)

	_, err = auth.Authenticate("Ulrike", "wrong")
	assert.ErrorIs(t, err, ErrInvalidPassphrase)
}

func TestAuthenticateViewer(t *testing.T) {
	auth, err := NewAuthenticator(testHash(t, "waaagh"), zaptest.NewLogger(t))
	require.NoError(t, err)

	a, err := auth.Authenticate("  Ada ", "")
	require.NoError(t, err)
	assert.False(t, a.Privileged)
	assert.Equal(t, "Ada", a.Name)

	b, err := auth.Authenticate("Ada", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID, "every connection gets a fresh ID")

	_, err = auth.Authenticate("   ", "")
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = auth.Authenticate(strings.Repeat("x", maxNameLength+1), "")
	assert.ErrorIs(t, err, ErrNameTooLong)
}

func TestNoOwnerConfigured(t *testing.T) {
	auth, err := NewAuthenticator("", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, auth.OwnerConfigured())

	_, err = auth.Authenticate("GM", "anything")
	assert.ErrorIs(t, err, ErrInvalidPassphrase)

	p, err := auth.Authenticate("Ada", "")
	require.NoError(t, err)
	assert.False(t, p.Privileged)
}

func TestNewAuthenticatorRejectsBadHash(t *testing.T) {
	_, err := NewAuthenticator("plaintext-secret", nil)
	assert.Error(t, err)
}

func TestHashPassphrase(t *testing.T) {
	_, err := HashPassphrase("")
	assert.Error(t, err)

	hash, err := HashPassphrase("waaagh")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("waaagh")))
}
