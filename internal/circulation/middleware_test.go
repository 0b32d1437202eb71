// internal/circulation/middleware_test.go
package circulation_test

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"
	"golang.org/x/time/rate"

	"circulib/internal/circulation"
)

const jwtSecret = "test-secret"

func signedToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return signed
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestActingUserFromBearerToken(t *testing.T) {
	// Mount with the middleware in front, the way main wires it.
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)
	router := circulation.ActingUser(jwtSecret)(circulation.NewHandler(svc).Routes(nil))
	authed := httptest.NewServer(router)
	t.Cleanup(authed.Close)

	req, err := http.NewRequest(http.MethodPost, authed.URL+"/loans/request", strings.NewReader(`{
		"document_pid": "D1",
		"patron_pid": "42",
		"transaction_location_pid": "L1",
		"delivery": {"method": "PICKUP"}
	}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "librarian-7"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	out := decodeLoan(t, resp)
	assert.Equal(t, "librarian-7", out.Loan.TransactionUserPID)
}

func TestActingUserIgnoresInvalidToken(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)
	router := circulation.ActingUser(jwtSecret)(circulation.NewHandler(svc).Routes(nil))
	authed := httptest.NewServer(router)
	t.Cleanup(authed.Close)

	req, err := http.NewRequest(http.MethodPost, authed.URL+"/loans/request", strings.NewReader(`{
		"document_pid": "D1",
		"patron_pid": "42",
		"transaction_location_pid": "L1",
		"delivery": {"method": "PICKUP"}
	}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Falls back to the patron as acting user.
	out := decodeLoan(t, resp)
	assert.Equal(t, "42", out.Loan.TransactionUserPID)
}

func stationCredentials(key string) (hash, salt string) {
	rawSalt := []byte("0123456789abcdef")
	rawHash := argon2.IDKey([]byte(key), rawSalt, 1, 64*1024, 4, 32)
	return base64.StdEncoding.EncodeToString(rawHash), base64.StdEncoding.EncodeToString(rawSalt)
}

func TestStationAuthAcceptsValidKey(t *testing.T) {
	hash, salt := stationCredentials("station-key")
	mw := circulation.StationAuth(hash, salt, rate.NewLimiter(rate.Inf, 0))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/loans/self-checkout", nil)
	req.Header.Set("X-Station-Key", "station-key")
	mw(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStationAuthRejectsWrongOrMissingKey(t *testing.T) {
	hash, salt := stationCredentials("station-key")
	mw := circulation.StationAuth(hash, salt, rate.NewLimiter(rate.Inf, 0))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/loans/self-checkout", nil)
	req.Header.Set("X-Station-Key", "wrong")
	mw(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/loans/self-checkout", nil)
	mw(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStationAuthDisabledWithoutConfiguredHash(t *testing.T) {
	mw := circulation.StationAuth("", "", rate.NewLimiter(rate.Inf, 0))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/loans/self-checkout", nil)
	mw(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStationAuthRateLimits(t *testing.T) {
	hash, salt := stationCredentials("station-key")
	// One request allowed, then empty bucket.
	mw := circulation.StationAuth(hash, salt, rate.NewLimiter(rate.Every(time.Hour), 1))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/loans/self-checkout", nil)
	req.Header.Set("X-Station-Key", "station-key")
	mw(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/loans/self-checkout", nil)
	req.Header.Set("X-Station-Key", "station-key")
	mw(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
