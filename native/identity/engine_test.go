package identity_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"taskmarket/native/identity"
	"taskmarket/storage"
)

func newTestEngine() *identity.Engine {
	e := identity.NewEngine()
	e.SetState(storage.NewIdentityStore())
	return e
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestRegisterAgentAssignsSequentialIDs(t *testing.T) {
	e := newTestEngine()
	owner := addr(1)

	first, err := e.RegisterAgent(owner, "ipfs://first")
	require.NoError(t, err)
	second, err := e.RegisterAgent(owner, "ipfs://second")
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	require.NotZero(t, second.ID)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, owner, first.Owner)
}

func TestSetAgentURIRequiresAuthorization(t *testing.T) {
	e := newTestEngine()
	owner := addr(1)
	stranger := addr(2)

	agent, err := e.RegisterAgent(owner, "ipfs://original")
	require.NoError(t, err)

	err = e.SetAgentURI(stranger, agent.ID, "ipfs://hijacked")
	require.ErrorIs(t, err, identity.ErrNotAuthorized)

	require.NoError(t, e.SetAgentURI(owner, agent.ID, "ipfs://updated"))
	got, err := e.GetAgent(agent.ID)
	require.NoError(t, err)
	require.Equal(t, "ipfs://updated", got.URI)
}

func TestApproveAndOperatorAuthorization(t *testing.T) {
	e := newTestEngine()
	owner := addr(1)
	approved := addr(2)
	operator := addr(3)

	agent, err := e.RegisterAgent(owner, "ipfs://agent")
	require.NoError(t, err)

	require.NoError(t, e.Approve(owner, agent.ID, approved))
	ok, err := e.IsAuthorized(agent.ID, approved)
	require.NoError(t, err)
	require.True(t, ok, "expected approved address to be authorized")

	require.NoError(t, e.SetApprovalForAll(owner, operator, true))
	ok, err = e.IsAuthorized(agent.ID, operator)
	require.NoError(t, err)
	require.True(t, ok, "expected operator to be authorized")

	stranger := addr(4)
	ok, err = e.IsAuthorized(agent.ID, stranger)
	require.NoError(t, err)
	require.False(t, ok, "expected stranger to be unauthorized")
}

func TestTransferAgentClearsApproval(t *testing.T) {
	e := newTestEngine()
	owner := addr(1)
	approved := addr(2)
	newOwner := addr(3)

	agent, err := e.RegisterAgent(owner, "ipfs://agent")
	require.NoError(t, err)
	require.NoError(t, e.Approve(owner, agent.ID, approved))
	require.NoError(t, e.TransferAgent(owner, agent.ID, newOwner))

	ownerOf, err := e.OwnerOf(agent.ID)
	require.NoError(t, err)
	require.Equal(t, newOwner, ownerOf)

	got, err := e.GetApproved(agent.ID)
	require.NoError(t, err)
	require.Equal(t, [20]byte{}, got, "expected approval to be cleared after transfer")

	// The previous owner no longer controls the agent.
	err = e.SetAgentURI(owner, agent.ID, "ipfs://blocked")
	require.ErrorIs(t, err, identity.ErrNotAuthorized)
}

func TestGetAgentUnknownID(t *testing.T) {
	e := newTestEngine()
	_, err := e.GetAgent(999)
	require.ErrorIs(t, err, identity.ErrUnknownAgent)
}
