package ticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "ticketeer/pkg/domain-errors"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer("test-key", time.Hour)

	token, err := issuer.Issue("tkt-123")
	require.NoError(t, err)

	subject, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "tkt-123", subject)
}

func TestVerifyRejectsExpired(t *testing.T) {
	now := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	issuer := NewIssuer("test-key", time.Hour, WithClock(func() time.Time { return now }))

	token, err := issuer.Issue("tkt-123")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = issuer.Verify(token)
	assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	token, err := NewIssuer("key-one", time.Hour).Issue("tkt-123")
	require.NoError(t, err)

	_, err = NewIssuer("key-two", time.Hour).Verify(token)
	assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer := NewIssuer("test-key", time.Hour)
	for _, token := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		_, err := issuer.Verify(token)
		assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err), token)
	}
}

func TestIssueRequiresTicketToken(t *testing.T) {
	_, err := NewIssuer("test-key", time.Hour).Issue("")
	assert.Equal(t, dErrors.CodeInvalidInput, dErrors.CodeOf(err))
}
