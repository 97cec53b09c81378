package ftpd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleUSERSetsWaitPassState(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	h := newTestHandler(t, a, u, fs, "/home/bob")
	h.c.state = stateConnected

	h.do(func() error { return h.c.handleUSER("bob") })
	assert.Equal(t, "331 User bob OK. Password required", h.readLine(t))
	require.NoError(t, h.wait(t))
	assert.Equal(t, stateWaitPass, h.c.state)
}

func TestHandlePASSSuccessAuthenticates(t *testing.T) {
	a, _, _ := newMemFsUser(t, "elr")

	h := newTestHandlerForAuth(t, a)
	h.c.username = "bob"

	h.do(func() error { return h.c.handlePASS("secret") })
	assert.Equal(t, "230 Password ok, continue", h.readLine(t))
	require.NoError(t, h.wait(t))
	require.NotNil(t, h.c.user)
	assert.Equal(t, "bob", h.c.user.Name)
	assert.Equal(t, stateAuthenticated, h.c.state)
}

func TestHandlePASSFailureWritesNothingSynchronously(t *testing.T) {
	a := NewAuthorizer(NewScheduler())
	a.AuthFailedDelay = 0 // test wants the scheduled failure to fire promptly

	_, err := a.AddUser("bob", "secret", "/home/bob", "elr", "", "")
	require.NoError(t, err)

	h := newTestHandlerForAuth(t, a)
	h.c.username = "bob"

	h.do(func() error { return h.c.handlePASS("wrong") })

	// handlePASS itself must not answer on failure: the delayed callback
	// (deliverDelayedAuthFailure) owns the 530 + disconnect.
	require.NoError(t, h.wait(t))
	assert.Nil(t, h.c.user)
}

func TestHandleREINResetsSession(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	h := newTestHandler(t, a, u, fs, "/home/bob")
	h.c.SetPath("/docs")

	h.do(func() error { return h.c.handleREIN("") })
	assert.Equal(t, "220 Ready for a new user", h.readLine(t))
	require.NoError(t, h.wait(t))

	assert.Nil(t, h.c.user)
	assert.Nil(t, h.c.fs)
	assert.Equal(t, "/", h.c.Path())
	assert.Equal(t, stateConnected, h.c.state)
}

// newTestHandlerForAuth builds a handler with no pre-assigned user/fs, for
// exercising USER/PASS themselves.
func newTestHandlerForAuth(t *testing.T, a *Authorizer) *testHandler {
	t.Helper()

	return newTestHandler(t, a, nil, nil, "")
}
