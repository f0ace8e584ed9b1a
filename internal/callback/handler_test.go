package callback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/adbridge-lab/adbridge/internal/signature"
	"github.com/adbridge-lab/adbridge/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const (
	testPrivateKey = "supersecret"
	// md5("123123" + "eventId" + "userId" + "10" + "supersecret")
	testSignature = "9a9232cf5155cb0226cc1cb777cd926f"
)

type fakeDirectory struct {
	mu      sync.Mutex
	clients map[string]*storage.Client
	lookups int
}

func (f *fakeDirectory) Lookup(_ context.Context, clientID string) (*storage.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	c, ok := f.clients[clientID]
	if !ok {
		return nil, storage.ErrClientNotFound
	}
	return c, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	recorded map[string]storage.RewardEvent
	records  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{recorded: make(map[string]storage.RewardEvent)}
}

func (f *fakeLedger) Exists(_ context.Context, clientID, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.recorded[clientID+"/"+eventID]
	return ok, nil
}

func (f *fakeLedger) Record(_ context.Context, evt storage.RewardEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records++
	f.recorded[evt.ClientID+"/"+evt.EventID] = evt
	return nil
}

type fakeForwarder struct {
	mu       sync.Mutex
	forwards []string // "<url>?<query>"
}

func (f *fakeForwarder) Forward(_ context.Context, callbackURL, query string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwards = append(f.forwards, callbackURL+"?"+query)
	return nil
}

type fixture struct {
	router    *gin.Engine
	directory *fakeDirectory
	ledger    *fakeLedger
	forwarder *fakeForwarder
}

func newFixture(t *testing.T, client *storage.Client, opts Options) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	directory := &fakeDirectory{clients: map[string]*storage.Client{}}
	if client != nil {
		directory.clients[client.ClientID] = client
	}
	ledger := newFakeLedger()
	forwarder := &fakeForwarder{}

	if opts.PrivateKey == "" {
		opts.PrivateKey = testPrivateKey
	}
	svc := NewService(directory, ledger, forwarder, opts)

	r := gin.New()
	svc.RegisterRoutes(r)

	return &fixture{router: r, directory: directory, ledger: ledger, forwarder: forwarder}
}

func (f *fixture) get(query string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/callback?"+query, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

const validQuery = "custom_clientId=clientId&eventId=eventId&rewards=10&signature=" +
	testSignature + "&timestamp=123123&userId=userId"

func TestCallbackHandler_Success(t *testing.T) {
	f := newFixture(t, &storage.Client{
		ClientID:    "clientId",
		CallbackURL: "http://publisher.example.com/reward",
	}, Options{})

	resp := f.get(validQuery, nil)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "eventId:OK", resp.Body.String())

	require.Equal(t, 1, f.ledger.records)
	recorded := f.ledger.recorded["clientId/eventId"]
	require.Equal(t, storage.RewardEvent{
		ClientID:  "clientId",
		EventID:   "eventId",
		Rewards:   "10",
		Timestamp: "123123",
		UserID:    "userId",
	}, recorded)

	require.Len(t, f.forwarder.forwards, 1)
	require.Equal(t,
		"http://publisher.example.com/reward?eventId=eventId&rewards=10&timestamp=123123&userId=userId&success=true",
		f.forwarder.forwards[0])
}

func TestCallbackHandler_SignedForwardWhenClientHasSecret(t *testing.T) {
	f := newFixture(t, &storage.Client{
		ClientID:        "clientId",
		CallbackURL:     "http://publisher.example.com/reward",
		SignatureSecret: "clientKey",
	}, Options{})

	resp := f.get(validQuery, nil)
	require.Equal(t, "eventId:OK", resp.Body.String())

	want := signature.SignResponse("clientId", "eventId", "userId", "123123", "clientKey")
	require.Len(t, f.forwarder.forwards, 1)
	require.Contains(t, f.forwarder.forwards[0], "signature="+want)
	require.NotContains(t, f.forwarder.forwards[0], "success=")
}

func TestCallbackHandler_DuplicateShortCircuits(t *testing.T) {
	f := newFixture(t, &storage.Client{
		ClientID:    "clientId",
		CallbackURL: "http://publisher.example.com/reward",
	}, Options{})

	first := f.get(validQuery, nil)
	second := f.get(validQuery, nil)

	// Both calls acknowledge identically; only the first records and forwards.
	require.Equal(t, "eventId:OK", first.Body.String())
	require.Equal(t, "eventId:OK", second.Body.String())
	require.Equal(t, 1, f.ledger.records)
	require.Len(t, f.forwarder.forwards, 1)
	require.Contains(t, f.forwarder.forwards[0], "success=true")
}

func TestCallbackHandler_MissingClient(t *testing.T) {
	f := newFixture(t, nil, Options{})

	resp := f.get(validQuery, nil)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "eventId:OK", resp.Body.String())
	require.Equal(t, 0, f.ledger.records)
	require.Empty(t, f.forwarder.forwards)
}

func TestCallbackHandler_BadSignature(t *testing.T) {
	f := newFixture(t, &storage.Client{
		ClientID:    "clientId",
		CallbackURL: "http://publisher.example.com/reward",
	}, Options{})

	query := strings.Replace(validQuery, testSignature, "wrong", 1)
	resp := f.get(query, nil)

	require.Equal(t, "eventId:OK", resp.Body.String())
	require.Equal(t, 0, f.ledger.records)
	require.Empty(t, f.forwarder.forwards)
}

func TestCallbackHandler_IPAllowList(t *testing.T) {
	opts := Options{
		EnforceIPAllowList: true,
		AllowedIPs:         []string{"79.125.5.179"},
	}

	t.Run("allowed network egress", func(t *testing.T) {
		f := newFixture(t, &storage.Client{ClientID: "clientId"}, opts)

		resp := f.get(validQuery, map[string]string{"X-Forwarded-For": "79.125.5.179, 10.0.0.1"})
		require.Equal(t, "eventId:OK", resp.Body.String())
		require.Equal(t, 1, f.ledger.records)
	})

	t.Run("disallowed address stops before client lookup", func(t *testing.T) {
		f := newFixture(t, &storage.Client{ClientID: "clientId"}, opts)

		resp := f.get(validQuery, map[string]string{"X-Forwarded-For": "1.2.3.4"})
		require.Equal(t, "eventId:OK", resp.Body.String())
		require.Equal(t, 0, f.directory.lookups)
		require.Equal(t, 0, f.ledger.records)
	})

	t.Run("first hop of the chain decides", func(t *testing.T) {
		f := newFixture(t, &storage.Client{ClientID: "clientId"}, opts)

		resp := f.get(validQuery, map[string]string{"X-Forwarded-For": " 1.2.3.4 , 79.125.5.179"})
		require.Equal(t, "eventId:OK", resp.Body.String())
		require.Equal(t, 0, f.directory.lookups)
	})
}

func TestCallbackHandler_CustomParamsPassthrough(t *testing.T) {
	f := newFixture(t, &storage.Client{
		ClientID:    "clientId",
		CallbackURL: "http://publisher.example.com/reward",
	}, Options{})

	// custom_ params interleaved with standard ones; order and casing must
	// survive into the forward, after the protocol fields.
	query := "custom_Zeta=1&" + validQuery + "&custom_alpha=two%20words&country=DE"
	resp := f.get(query, nil)
	require.Equal(t, "eventId:OK", resp.Body.String())

	require.Len(t, f.forwarder.forwards, 1)
	forward := f.forwarder.forwards[0]
	require.True(t, strings.HasSuffix(forward,
		"success=true&custom_Zeta=1&custom_alpha=two+words"),
		"forward was %q", forward)
	require.NotContains(t, forward, "country")
	require.NotContains(t, forward, "custom_clientId")
}

func TestCallbackHandler_NoForwardWithoutCallbackURL(t *testing.T) {
	f := newFixture(t, &storage.Client{ClientID: "clientId"}, Options{})

	resp := f.get(validQuery, nil)
	require.Equal(t, "eventId:OK", resp.Body.String())
	require.Equal(t, 1, f.ledger.records)
	require.Empty(t, f.forwarder.forwards)
}

func TestCallbackHandler_MissingEnvelopeFields(t *testing.T) {
	f := newFixture(t, &storage.Client{ClientID: "clientId"}, Options{})

	resp := f.get("custom_clientId=clientId&eventId=eventId", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "eventId:OK", resp.Body.String())
	require.Equal(t, 0, f.ledger.records)
}

func TestCallbackHandler_AppKeyAsClientIdentifier(t *testing.T) {
	f := newFixture(t, &storage.Client{ClientID: "app-42"}, Options{})

	// The newer protocol generation sends appKey instead of custom_clientId.
	valid := "appKey=app-42&eventId=eventId&rewards=10&signature=" + testSignature +
		"&timestamp=123123&userId=userId"
	resp := f.get(valid, nil)
	require.Equal(t, "eventId:OK", resp.Body.String())
	require.Equal(t, 1, f.ledger.records)
	require.Equal(t, "app-42", f.ledger.recorded["app-42/eventId"].ClientID)
}
