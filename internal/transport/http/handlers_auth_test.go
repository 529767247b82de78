package httptransport_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecotrace/internal/registry"
)

func TestAuthRegister(t *testing.T) {
	f := newFixture(t)

	var res authResponse
	status := f.do(t, http.MethodPost, "/api/auth/register", "",
		map[string]string{"walletAddress": "0xABCD", "role": "manufacturer"}, &res)

	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "0xabcd", res.Registration.WalletAddress)
	assert.Equal(t, []registry.Role{registry.RoleManufacturer}, res.Registration.Roles)
	assert.True(t, strings.HasPrefix(res.TxHash, "0x"))
	assert.NotZero(t, res.BlockNumber)
}

func TestAuthRegister_InvalidRole(t *testing.T) {
	f := newFixture(t)

	var errRes map[string]string
	status := f.do(t, http.MethodPost, "/api/auth/register", "",
		map[string]string{"walletAddress": "0xabcd", "role": "admin"}, &errRes)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", errRes["error"])
}

func TestAuthLogin(t *testing.T) {
	f := newFixture(t)
	f.register(t, "0xabcd", "consumer")

	var res authResponse
	status := f.do(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"walletAddress": "0xABCD"}, &res)

	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "0xabcd", res.Registration.WalletAddress)
}

func TestAuthLogin_UnknownWallet(t *testing.T) {
	f := newFixture(t)

	status := f.do(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"walletAddress": "0xnobody"}, nil)

	assert.Equal(t, http.StatusNotFound, status)
}

func TestAuthMe(t *testing.T) {
	f := newFixture(t)
	tok := f.register(t, "0xabcd", "recycler")

	var reg registry.Registration
	status := f.do(t, http.MethodGet, "/api/auth/me", tok, nil, &reg)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0xabcd", reg.WalletAddress)
	assert.Equal(t, []registry.Role{registry.RoleRecycler}, reg.Roles)
}

func TestAuthMe_RequiresToken(t *testing.T) {
	f := newFixture(t)

	status := f.do(t, http.MethodGet, "/api/auth/me", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status = f.do(t, http.MethodGet, "/api/auth/me", "not-a-token", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}
