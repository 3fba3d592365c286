package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"credit-mint-engine/config"
	"credit-mint-engine/internal/core/ports"
	"credit-mint-engine/internal/core/ports/mocks"
	"credit-mint-engine/internal/service"
	"credit-mint-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-signing-secret"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func freezeTime(t *testing.T) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return fixedNow }
	t.Cleanup(func() { timeNow = prev })
}

type signedDeps struct {
	store *mocks.MockNonceStore
	repo  *mocks.MockNonceRepository
}

func signedRouter(t *testing.T, cfg config.SigningConfig) (*gin.Engine, *signedDeps) {
	ctrl := gomock.NewController(t)
	d := &signedDeps{
		store: mocks.NewMockNonceStore(ctrl),
		repo:  mocks.NewMockNonceRepository(ctrl),
	}
	r := gin.New()
	r.POST("/signed",
		SignedRequestAuth(cfg, service.NewHMACSignatureService(), d.store, d.repo, zerolog.Nop()),
		func(c *gin.Context) {
			body, _ := io.ReadAll(c.Request.Body)
			ts, _ := c.Get(CtxRequestTimestamp)
			c.JSON(http.StatusOK, gin.H{
				"body":   string(body),
				"caller": c.GetString(CtxCaller),
				"nonce":  c.GetString(CtxNonce),
				"ts":     ts.(time.Time).UnixMilli(),
			})
		})
	return r, d
}

func signingConfig() config.SigningConfig {
	return config.SigningConfig{Secret: testSecret, MaxSkew: 120 * time.Second}
}

func signedRequest(body string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/signed", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ErrorKind
}

func TestSignedRequestAuth_Success(t *testing.T) {
	freezeTime(t)
	r, d := signedRouter(t, signingConfig())
	body := `{"mintId":"report-reward-00000001"}`
	headers := service.SignRequest(testSecret, "rewards-svc", "nonce-0000000000000001", []byte(body), fixedNow)

	d.store.EXPECT().CheckAndSet(gomock.Any(), "signed", "nonce-0000000000000001", 240*time.Second).Return(true, nil)
	d.repo.EXPECT().Claim(gomock.Any(), "nonce-0000000000000001", "rewards-svc").Return(true, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(body, headers))

	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, body, got["body"], "body is restored for the handler")
	assert.Equal(t, "rewards-svc", got["caller"])
	assert.Equal(t, float64(fixedNow.UnixMilli()), got["ts"])
}

func TestSignedRequestAuth_SecondsTimestamp(t *testing.T) {
	freezeTime(t)
	r, d := signedRouter(t, signingConfig())
	body := `{}`
	sig := service.NewHMACSignatureService()
	ts := strconv.FormatInt(fixedNow.Add(-30*time.Second).Unix(), 10)
	nonce := "nonce-0000000000000002"

	d.store.EXPECT().CheckAndSet(gomock.Any(), "signed", nonce, gomock.Any()).Return(true, nil)
	d.repo.EXPECT().Claim(gomock.Any(), nonce, "").Return(true, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(body, map[string]string{
		service.HeaderTimestamp: ts,
		service.HeaderNonce:     nonce,
		service.HeaderSignature: sig.Sign(testSecret, sig.CanonicalPayload(ts, nonce, []byte(body))),
	}))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSignedRequestAuth_Rejections(t *testing.T) {
	freezeTime(t)
	body := `{"amount":5}`
	valid := func() map[string]string {
		return service.SignRequest(testSecret, "rewards-svc", "nonce-0000000000000003", []byte(body), fixedNow)
	}

	tests := []struct {
		name     string
		cfg      func(*config.SigningConfig)
		headers  func() map[string]string
		body     string
		wantCode int
		wantKind string
	}{
		{
			name:     "missing secret",
			cfg:      func(c *config.SigningConfig) { c.Secret = "" },
			headers:  valid,
			wantCode: http.StatusInternalServerError,
			wantKind: "SERVER_MISCONFIGURED",
		},
		{
			name:     "missing headers",
			headers:  func() map[string]string { return map[string]string{} },
			wantCode: http.StatusUnauthorized,
			wantKind: "UNAUTHORIZED",
		},
		{
			name: "short nonce",
			headers: func() map[string]string {
				h := valid()
				h[service.HeaderNonce] = "abc"
				return h
			},
			wantCode: http.StatusUnauthorized,
			wantKind: "UNAUTHORIZED",
		},
		{
			name: "stale timestamp",
			headers: func() map[string]string {
				return service.SignRequest(testSecret, "rewards-svc", "nonce-0000000000000003", []byte(body), fixedNow.Add(-5*time.Minute))
			},
			wantCode: http.StatusUnauthorized,
			wantKind: "UNAUTHORIZED",
		},
		{
			name:     "tampered body",
			headers:  valid,
			body:     `{"amount":500}`,
			wantCode: http.StatusUnauthorized,
			wantKind: "UNAUTHORIZED",
		},
		{
			name:     "caller not allowed",
			cfg:      func(c *config.SigningConfig) { c.AllowedCallers = []string{"ops"} },
			headers:  valid,
			wantCode: http.StatusUnauthorized,
			wantKind: "UNAUTHORIZED",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := signingConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			r, _ := signedRouter(t, cfg)
			sent := body
			if tt.body != "" {
				sent = tt.body
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, signedRequest(sent, tt.headers()))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantKind, errorKind(t, w))
		})
	}
}

func TestSignedRequestAuth_ReplayInRedis(t *testing.T) {
	freezeTime(t)
	r, d := signedRouter(t, signingConfig())
	headers := service.SignRequest(testSecret, "", "nonce-0000000000000004", []byte(`{}`), fixedNow)

	d.store.EXPECT().CheckAndSet(gomock.Any(), "signed", "nonce-0000000000000004", gomock.Any()).Return(false, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(`{}`, headers))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "REPLAY_DETECTED", errorKind(t, w))
}

func TestSignedRequestAuth_RedisDownFallsBackToDatabase(t *testing.T) {
	freezeTime(t)
	r, d := signedRouter(t, signingConfig())
	headers := service.SignRequest(testSecret, "", "nonce-0000000000000005", []byte(`{}`), fixedNow)

	d.store.EXPECT().CheckAndSet(gomock.Any(), "signed", "nonce-0000000000000005", gomock.Any()).Return(false, errors.New("redis down"))
	d.repo.EXPECT().Claim(gomock.Any(), "nonce-0000000000000005", "").Return(false, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(`{}`, headers))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "REPLAY_DETECTED", errorKind(t, w))
}

func TestSignedRequestAuth_NonceRepoError(t *testing.T) {
	freezeTime(t)
	r, d := signedRouter(t, signingConfig())
	headers := service.SignRequest(testSecret, "", "nonce-0000000000000006", []byte(`{}`), fixedNow)

	d.store.EXPECT().CheckAndSet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
	d.repo.EXPECT().Claim(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("db down"))
	d.store.EXPECT().Release(gomock.Any(), "signed", "nonce-0000000000000006").Return(nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(`{}`, headers))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSignedRequestAuth_RetryAcceptedAfterNonceRepoError(t *testing.T) {
	freezeTime(t)
	r, d := signedRouter(t, signingConfig())
	nonce := "nonce-0000000000000007"
	headers := service.SignRequest(testSecret, "", nonce, []byte(`{}`), fixedNow)

	gomock.InOrder(
		d.store.EXPECT().CheckAndSet(gomock.Any(), "signed", nonce, gomock.Any()).Return(true, nil),
		d.repo.EXPECT().Claim(gomock.Any(), nonce, "").Return(false, errors.New("db down")),
		d.store.EXPECT().Release(gomock.Any(), "signed", nonce).Return(nil),
		d.store.EXPECT().CheckAndSet(gomock.Any(), "signed", nonce, gomock.Any()).Return(true, nil),
		d.repo.EXPECT().Claim(gomock.Any(), nonce, "").Return(true, nil),
	)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(`{}`, headers))
	require.Equal(t, http.StatusInternalServerError, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(`{}`, headers))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSignedRequestAuth_NoReleaseWhenRedisWasDown(t *testing.T) {
	freezeTime(t)
	r, d := signedRouter(t, signingConfig())
	headers := service.SignRequest(testSecret, "", "nonce-0000000000000008", []byte(`{}`), fixedNow)

	d.store.EXPECT().CheckAndSet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("redis down"))
	d.repo.EXPECT().Claim(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("db down"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(`{}`, headers))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// --- Owner auth ---

type stubTokens struct{ owner string }

func (s stubTokens) Generate(string) (string, time.Time, error) { return "", time.Time{}, nil }

func (s stubTokens) Validate(token string) (*ports.TokenClaims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &ports.TokenClaims{OwnerID: s.owner}, nil
}

func ownerRouter(tokens ports.TokenService) *gin.Engine {
	r := gin.New()
	r.GET("/owners/:ownerId", OwnerAuth(tokens), func(c *gin.Context) {
		if err := RequireOwner(c, c.Param("ownerId")); err != nil {
			response.Error(c, err)
			return
		}
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestOwnerAuth(t *testing.T) {
	tests := []struct {
		name     string
		tokens   ports.TokenService
		path     string
		header   string
		wantCode int
	}{
		{"disabled", nil, "/owners/u1", "", http.StatusOK},
		{"missing header", stubTokens{owner: "u1"}, "/owners/u1", "", http.StatusUnauthorized},
		{"invalid token", stubTokens{owner: "u1"}, "/owners/u1", "Bearer nope", http.StatusUnauthorized},
		{"matching owner", stubTokens{owner: "u1"}, "/owners/u1", "Bearer good", http.StatusOK},
		{"other owner", stubTokens{owner: "u1"}, "/owners/u2", "Bearer good", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			ownerRouter(tt.tokens).ServeHTTP(w, req)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

// --- Request ID, recovery ---

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) { response.Error(c, context.Canceled) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "req-abc")
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-abc", w.Header().Get(HeaderRequestID))
	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-abc", resp.RequestID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)
}

func TestRecovery_PanicRecovered(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zerolog.Nop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL", errorKind(t, w))
}
