package http

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licbind/internal/account"
	"licbind/internal/chain"
	"licbind/internal/config"
	"licbind/internal/events"
	"licbind/internal/issuance"
	"licbind/internal/ledger"
	"licbind/internal/registry"
	"licbind/internal/services"
	"licbind/internal/store"
	v1 "licbind/pkg/contracts/api/v1"
	"licbind/pkg/contracts/domain"
)

const (
	testChainID    = 1
	testAdminToken = "test-admin-token"
)

var collectionAddr = chain.MustParseAddress("0x00000000000000000000000000000000000000aa")

type testServer struct {
	router http.Handler
	svc    services.RegistryService
	ledger *ledger.Ledger
	binder *account.Binder
	owner  *ledger.Keypair
	hub    *events.Hub
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Admin.Token = testAdminToken
	cfg.Server.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	l := ledger.NewLedger()
	binder, err := account.NewBinder(account.Params{
		Registry:       chain.MustParseAddress("0x0000000000000000000000000000000000000101"),
		ProxyTemplate:  chain.MustParseAddress("0x0000000000000000000000000000000000000102"),
		Implementation: chain.MustParseAddress("0x0000000000000000000000000000000000000103"),
		Executor:       chain.MustParseAddress("0x0000000000000000000000000000000000000104"),
		Salt:           "licbind.account.v1",
		ChainID:        testChainID,
	}, l, l, l, l)
	require.NoError(t, err)

	owner, err := l.CreateKeypair()
	require.NoError(t, err)

	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.SetMetadataBase(context.Background(), cfg.Registry.MetadataBase))

	hub := events.NewHub(nil)
	hub.Start()
	t.Cleanup(hub.Stop)
	bus := events.NewBus(hub, nil)

	reg := registry.NewRegistry(st, chain.MustParseAddress("0x0000000000000000000000000000000000000e01"), testChainID, bus)
	allowlist := issuance.NewAllowlistStrategy(st, reg, binder, bus, nil)
	offers := issuance.NewOfferStrategy(st, reg, binder, bus, nil)
	open := issuance.NewOpenStrategy(st, reg, binder, l, bus, nil)

	svc := services.NewRegistryService(reg, binder, allowlist, offers, open, nil)
	router := NewRouter(RouterDeps{
		Config:  cfg,
		Service: svc,
		Hub:     hub,
	})

	return &testServer{
		router: router,
		svc:    svc,
		ledger: l,
		binder: binder,
		owner:  owner,
		hub:    hub,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func asAdmin(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func (ts *testServer) ownedAsset(id uint64) domain.AssetRef {
	a := domain.NewAssetRef(collectionAddr, id, testChainID)
	ts.ledger.SetOwner(a, ts.owner.Address)
	return a
}

func assetReq(id string) v1.AssetRefRequest {
	return v1.AssetRefRequest{
		Contract: collectionAddr.String(),
		AssetID:  id,
		ChainID:  testChainID,
	}
}

func termsReq() v1.LicenseTermsRequest {
	return v1.LicenseTermsRequest{
		DurationSeconds: 86400,
		TermsURI:        "https://terms.local/v1",
		Commercial:      true,
	}
}

func domainTerms(req v1.LicenseTermsRequest) domain.LicenseTerms {
	return domain.LicenseTerms{
		Duration:    time.Duration(req.DurationSeconds) * time.Second,
		TermsURI:    req.TermsURI,
		Commercial:  req.Commercial,
		Derivatives: req.Derivatives,
		Attribution: req.Attribution,
	}
}

func (ts *testServer) signAcceptance(asset domain.AssetRef, req v1.LicenseTermsRequest) string {
	payload := issuance.AcceptancePayload(asset, domainTerms(req))
	sig := ts.owner.Sign(ts.binder.SigningDigest(asset, payload))
	return "0x" + hex.EncodeToString(sig)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health v1.HealthResponse
	decode(t, rec, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.NotEmpty(t, health.Version)
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/registry/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status v1.RegistryStatusResponse
	decode(t, rec, &status)
	assert.Equal(t, uint64(0), status.TotalSupply)
	assert.Equal(t, uint64(testChainID), status.ChainID)
	assert.False(t, status.OpenMintEnabled)
}

func TestCreateAccountEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.ownedAsset(1)

	body := v1.AccountCreateRequest{
		Asset:  assetReq("1"),
		Caller: ts.owner.Address.String(),
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/registry/accounts", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp v1.AccountResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Deployed)
	assert.True(t, resp.Created)
	assert.NotEmpty(t, resp.Account)

	// Repeated creation conflicts.
	rec = ts.do(t, http.MethodPost, "/api/v1/registry/accounts", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "json")
}

func TestCreateAccountNotOwner(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.ownedAsset(1)

	rec := ts.do(t, http.MethodPost, "/api/v1/registry/accounts", v1.AccountCreateRequest{
		Asset:  assetReq("2"),
		Caller: ts.owner.Address.String(),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeriveAccountEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	asset := ts.ownedAsset(9)

	rec := ts.do(t, http.MethodPost, "/api/v1/registry/accounts/derive", assetReq("9"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp v1.AccountResponse
	decode(t, rec, &resp)
	assert.False(t, resp.Deployed)
	assert.Equal(t, ts.binder.DeriveAddress(asset).String(), resp.Account)
}

func TestAllowlistMintOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	asset := ts.ownedAsset(7)

	tree := issuance.NewMerkleTree([]chain.Hash{issuance.LeafHash(asset)})
	rec := ts.do(t, http.MethodPut, "/api/v1/admin/allowlist/root",
		v1.SetRootRequest{Root: tree.Root().String()}, asAdmin)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	terms := termsReq()
	body := v1.AllowlistMintRequest{
		Asset:     assetReq("7"),
		Signature: ts.signAcceptance(asset, terms),
		Terms:     terms,
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/registry/mint/allowlist", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp v1.TokenResponse
	decode(t, rec, &resp)
	assert.Equal(t, uint64(1), resp.TokenID)
	assert.Equal(t, "allowlist", resp.Scope)

	// The slot is consumed.
	rec = ts.do(t, http.MethodPost, "/api/v1/registry/mint/allowlist", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Token and terms are readable afterwards.
	rec = ts.do(t, http.MethodGet, "/api/v1/registry/tokens/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/registry/tokens/1/terms", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got v1.TermsResponse
	decode(t, rec, &got)
	assert.Equal(t, uint64(86400), got.DurationSeconds)
}

func TestOfferLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	asset := ts.ownedAsset(42)

	rec := ts.do(t, http.MethodPost, "/api/v1/admin/offers", v1.OfferCreateRequest{
		Asset:      assetReq("42"),
		Expiration: time.Now().Add(time.Hour),
	}, asAdmin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var offer v1.OfferResponse
	decode(t, rec, &offer)

	offerID, err := chain.ParseHash(offer.ID)
	require.NoError(t, err)

	terms := termsReq()
	payload := issuance.OfferAcceptancePayload(offerID, asset, domainTerms(terms))
	sig := ts.owner.Sign(ts.binder.SigningDigest(asset, payload))

	// The declared asset must match the offer's.
	rec = ts.do(t, http.MethodPost, "/api/v1/registry/mint/offer", v1.OfferMintRequest{
		OfferID:   offer.ID,
		Asset:     assetReq("43"),
		Signature: "0x" + hex.EncodeToString(sig),
		Terms:     terms,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/registry/mint/offer", v1.OfferMintRequest{
		OfferID:   offer.ID,
		Asset:     assetReq("42"),
		Signature: "0x" + hex.EncodeToString(sig),
		Terms:     terms,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Offer state is publicly readable.
	rec = ts.do(t, http.MethodGet, "/api/v1/registry/offers/"+offer.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got v1.OfferResponse
	decode(t, rec, &got)
	assert.True(t, got.Minted)
	assert.False(t, got.Valid)

	// Revoking a consumed offer conflicts.
	rec = ts.do(t, http.MethodDelete, "/api/v1/admin/offers/"+offer.ID, nil, asAdmin)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOpenMintOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	asset := ts.ownedAsset(5)

	terms := termsReq()
	body := v1.OpenMintRequest{
		Asset:     assetReq("5"),
		Caller:    ts.owner.Address.String(),
		Signature: ts.signAcceptance(asset, terms),
		Terms:     terms,
	}

	// Disabled by default.
	rec := ts.do(t, http.MethodPost, "/api/v1/registry/mint/open", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/admin/open", v1.OpenToggleRequest{Enabled: true}, asAdmin)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/registry/mint/open", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp v1.TokenResponse
	decode(t, rec, &resp)
	assert.Equal(t, "open", resp.Scope)
}

func TestUnknownTokenReturns404(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/registry/tokens/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var problem map[string]interface{}
	decode(t, rec, &problem)
	assert.Equal(t, "/errors/registry/unknown-token", problem["type"])
	assert.NotEmpty(t, problem["trace_id"])
}

func TestBadTokenIDReturns400(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/registry/tokens/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMalformedBodyReturns400(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/registry/accounts", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAuthRequired(t *testing.T) {
	ts := newTestServer(t, nil)
	body := v1.OpenToggleRequest{Enabled: true}

	rec := ts.do(t, http.MethodPut, "/api/v1/admin/open", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/admin/open", body, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer wrong-token")
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminSurfaceDisabledWithoutToken(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Admin.Token = ""
	})

	rec := ts.do(t, http.MethodPut, "/api/v1/admin/open", v1.OpenToggleRequest{Enabled: true}, asAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTraceIDHeader(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	rec = ts.do(t, http.MethodGet, "/healthz", nil, func(req *http.Request) {
		req.Header.Set("X-Trace-ID", "trace-abc")
	})
	assert.Equal(t, "trace-abc", rec.Header().Get("X-Trace-ID"))
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0, Burst: 1}
	})

	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestEventStreamOverWebSocket(t *testing.T) {
	ts := newTestServer(t, nil)

	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "stream:connected")
}

func TestValidationProblemShape(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/registry/accounts", v1.AccountCreateRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem map[string]interface{}
	decode(t, rec, &problem)
	assert.Equal(t, "/errors/validation", problem["type"])
	assert.Equal(t, float64(http.StatusBadRequest), problem["status"])
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/registry/mint/allowlist", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
