package httptransport_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ecotrace/internal/counter"
	"ecotrace/internal/device"
	"ecotrace/internal/events"
	"ecotrace/internal/ledger"
	"ecotrace/internal/projection"
	"ecotrace/internal/recycling"
	"ecotrace/internal/registry"
	"ecotrace/internal/token"
	httptransport "ecotrace/internal/transport/http"
)

type fixture struct {
	server *httptest.Server
	bus    *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	alloc := counter.NewMemoryAllocator()
	sim := ledger.NewSimulator(alloc, ledger.NewMemoryLog())
	bridge := projection.New(projection.NewMemoryApplyLog(), sim, alloc, logger, nil)
	bus := events.NewBus(logger, nil)

	regSvc := registry.NewService(registry.NewMemoryStore(), sim, bridge, bus, logger, nil, time.Second)
	devStore := device.NewMemoryStore()
	devSvc := device.NewService(devStore, regSvc, sim, bridge, bus, logger, nil, time.Second)
	recSvc := recycling.NewService(recycling.NewMemoryStore(), devStore, regSvc, sim, bridge, bus, logger, nil, time.Second)
	tokens := token.NewService("test-signing-key", "ecotrace-test")

	router := httptransport.NewRouter(httptransport.Deps{
		Registry:  regSvc,
		Devices:   devSvc,
		Recycling: recSvc,
		Tokens:    tokens,
		Events:    bus,
		Logger:    logger,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &fixture{server: server, bus: bus}
}

// do sends a JSON request and decodes the JSON response into out (when out is
// non-nil), returning the status code.
func (f *fixture) do(t *testing.T, method, path, bearer string, body, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

type authResponse struct {
	Token        string                `json:"token"`
	Registration registry.Registration `json:"registration"`
	TxHash       string                `json:"txHash"`
	BlockNumber  int64                 `json:"blockNumber"`
}

// register registers a wallet with a role and returns its bearer token.
func (f *fixture) register(t *testing.T, wallet, role string) string {
	t.Helper()
	var res authResponse
	status := f.do(t, http.MethodPost, "/api/auth/register", "",
		map[string]string{"walletAddress": wallet, "role": role}, &res)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, res.Token)
	return res.Token
}
