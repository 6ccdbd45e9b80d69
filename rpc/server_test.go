package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"taskmarket/app"
	"taskmarket/rpc/middleware"
)

func itoa(v uint64) string { return strconv.FormatUint(v, 10) }

func bigFromInt(v int64) *big.Int { return big.NewInt(v) }

func mustMarshalReader(t *testing.T, body any) io.Reader {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

// testEnv wires a real app.Module behind a real chi router, grounded on the
// teacher's rpc/http_test.go newTestEnv harness: handlers are driven through
// the router rather than called directly, and the caller address is
// injected straight into the request context to stand in for a verified
// bearer token, since these tests exercise dispatch and status mapping
// rather than the JWT layer itself.
type testEnv struct {
	t      *testing.T
	module *app.Module
	server *Server
	router http.Handler
}

func testAddr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	admin := testAddr(0xA0)
	marketSelf := testAddr(0xFF)
	disputeSelf := testAddr(0xD1)

	m := app.New(admin, marketSelf, disputeSelf)
	require.NoError(t, m.RegisterDisputeModule(admin))

	s := NewServer(Config{Module: m})
	return &testEnv{t: t, module: m, server: s, router: s.Router()}
}

func (e *testEnv) do(method, path string, caller [20]byte, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	ctx := context.WithValue(req.Context(), middleware.ContextKeyCaller, encodeAddr(caller))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestHandleHealthzHasNoAuthRequirement(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeInto(t, rec, &body)
	require.Equal(t, "ok", body["status"])
}

func TestHandleRegisterAgentAndGetAgent(t *testing.T) {
	env := newTestEnv(t)
	owner := testAddr(1)

	rec := env.do(http.MethodPost, "/v1/agents", owner, registerAgentRequest{URI: "ipfs://agent"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created agentView
	decodeInto(t, rec, &created)
	require.NotZero(t, created.ID)
	require.Equal(t, encodeAddr(owner), created.Owner)

	getRec := env.do(http.MethodGet, "/v1/agents/"+itoa(created.ID), [20]byte{}, nil)
	require.Equal(t, http.StatusOK, getRec.Code)
	var fetched agentView
	decodeInto(t, getRec, &fetched)
	require.Equal(t, created.ID, fetched.ID)
}

func TestHandleSetAgentURIRejectsStranger(t *testing.T) {
	env := newTestEnv(t)
	owner := testAddr(1)
	stranger := testAddr(2)

	rec := env.do(http.MethodPost, "/v1/agents", owner, registerAgentRequest{URI: "ipfs://agent"})
	var created agentView
	decodeInto(t, rec, &created)

	rec = env.do(http.MethodPatch, "/v1/agents/"+itoa(created.ID)+"/uri", stranger, setAgentURIRequest{URI: "ipfs://hijacked"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	var body errorBody
	decodeInto(t, rec, &body)
	require.NotEmpty(t, body.Error)
}

func TestHandleGetAgentUnknownReturnsConflictStatus(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/v1/agents/999", [20]byte{}, nil)
	require.Equal(t, http.StatusConflict, rec.Code, "unknown-agent is a state-taxonomy error, mapped to 409")
}

func TestHandleCreateListingAndPostTaskHappyPath(t *testing.T) {
	env := newTestEnv(t)
	seller := testAddr(1)
	buyer := testAddr(2)

	agentRec := env.do(http.MethodPost, "/v1/agents", seller, registerAgentRequest{URI: "ipfs://agent"})
	var agent agentView
	decodeInto(t, agentRec, &agent)

	listingBody := createListingRequest{
		AgentID: agent.ID,
		URI:     "ipfs://listing",
		Pricing: pricingRequest{
			PaymentToken: "NHB",
			BasePrice:    "100",
			UnitPrice:    "10",
			MinUnits:     1,
			MaxUnits:     10,
		},
		Policy: policyRequest{
			ChallengeWindowSec: 3600,
			DeliveryWindowSec:  7200,
		},
	}
	listingRec := env.do(http.MethodPost, "/v1/listings", seller, listingBody)
	require.Equal(t, http.StatusCreated, listingRec.Code)
	var createdListing listingView
	decodeInto(t, listingRec, &createdListing)
	require.True(t, createdListing.Active)

	env.module.Tokens.Mint("NHB", buyer, bigFromInt(1_000))

	taskRec := env.do(http.MethodPost, "/v1/tasks", buyer, postTaskRequest{
		ListingID:     createdListing.ID,
		TaskURI:       "ipfs://task",
		ProposedUnits: 1,
	})
	require.Equal(t, http.StatusCreated, taskRec.Code)
	var createdTask taskView
	decodeInto(t, taskRec, &createdTask)
	require.Equal(t, "OPEN", createdTask.Status)
	require.Equal(t, encodeAddr(buyer), createdTask.Buyer)

	getRec := env.do(http.MethodGet, "/v1/tasks/"+itoa(createdTask.ID), [20]byte{}, nil)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestIdempotencyReplaysCachedResponseForRepeatedKey(t *testing.T) {
	env := newTestEnv(t)
	owner := testAddr(3)

	req := httptest.NewRequest(http.MethodPost, "/v1/agents", mustMarshalReader(t, registerAgentRequest{URI: "ipfs://agent"}))
	req.Header.Set("Idempotency-Key", "retry-1")
	ctx := context.WithValue(req.Context(), middleware.ContextKeyCaller, encodeAddr(owner))
	first := httptest.NewRecorder()
	env.router.ServeHTTP(first, req.WithContext(ctx))
	require.Equal(t, http.StatusCreated, first.Code)
	var firstAgent agentView
	decodeInto(t, first, &firstAgent)

	req2 := httptest.NewRequest(http.MethodPost, "/v1/agents", mustMarshalReader(t, registerAgentRequest{URI: "ipfs://agent"}))
	req2.Header.Set("Idempotency-Key", "retry-1")
	ctx2 := context.WithValue(req2.Context(), middleware.ContextKeyCaller, encodeAddr(owner))
	second := httptest.NewRecorder()
	env.router.ServeHTTP(second, req2.WithContext(ctx2))
	require.Equal(t, "true", second.Header().Get("Idempotency-Replayed"))
	var secondAgent agentView
	decodeInto(t, second, &secondAgent)
	require.Equal(t, firstAgent.ID, secondAgent.ID, "replay must not register a second agent")
}
