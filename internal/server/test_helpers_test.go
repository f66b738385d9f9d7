package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dividis/backend/internal/auth"
	"github.com/dividis/backend/internal/database"
	"github.com/dividis/backend/internal/declarations"
	"github.com/dividis/backend/internal/docstore"
	"github.com/dividis/backend/internal/docstore/docstoretest"
	"github.com/dividis/backend/internal/metrics"
	"github.com/dividis/backend/internal/optimistic"
	"github.com/dividis/backend/internal/session"
	"github.com/dividis/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const testSigningSecret = "test-signing-secret"

type stubVerifier struct {
	claims auth.FirebaseClaims
	err    error
}

func (s stubVerifier) Verify(_ context.Context, _ string) (auth.FirebaseClaims, error) {
	return s.claims, s.err
}

type stubBackendTokenManager struct {
	validateErr error
}

func (s stubBackendTokenManager) IssueBackendToken(context.Context, string) (string, int64, error) {
	return "", 0, errors.New("not implemented")
}

func (s stubBackendTokenManager) ValidateToken(string) (string, error) {
	return "", s.validateErr
}

type apiFixture struct {
	handler      http.Handler
	issuer       *auth.TokenIssuer
	users        *users.Service
	declarations *declarations.Store
	sessions     *session.Manager
	client       *docstoretest.FaultyClient
	realtime     *RealtimeDispatcher
	metrics      *metrics.Registry
}

func newAPIFixture(t *testing.T, verifier IDTokenVerifier) apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "api.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	documents, err := docstore.NewService(docstore.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build docstore: %v", err)
	}
	client := docstoretest.NewFaultyClient(documents)
	registry := metrics.NewRegistry()

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build user service: %v", err)
	}
	sharing, err := declarations.NewSharingService(declarations.SharingServiceConfig{Client: client})
	if err != nil {
		t.Fatalf("failed to build sharing service: %v", err)
	}
	repository, err := declarations.NewRepository(declarations.RepositoryConfig{Client: client})
	if err != nil {
		t.Fatalf("failed to build repository: %v", err)
	}
	sessions, err := session.NewManager(session.ManagerConfig{
		Client:                client,
		Sharing:               sharing,
		ExperiencePerSentence: 10,
		SeedDefaults:          true,
	})
	if err != nil {
		t.Fatalf("failed to build session manager: %v", err)
	}
	realtime := NewRealtimeDispatcher(registry)
	store, err := declarations.NewStore(declarations.StoreConfig{
		Repository: repository,
		Sharing:    sharing,
		Journey:    sessions,
		Owners:     userService,
		Publisher:  realtime,
		Runner:     optimistic.NewRunner(optimistic.RunnerConfig{Recorder: registry}),
	})
	if err != nil {
		t.Fatalf("failed to build declaration store: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        "dividis-auth",
		Audience:      "dividis-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}
	if verifier == nil {
		verifier = stubVerifier{err: errors.New("no verifier configured")}
	}

	handler, err := NewHTTPHandler(Dependencies{
		Verifier:          verifier,
		TokenManager:      issuer,
		Users:             userService,
		Declarations:      store,
		Sessions:          sessions,
		Sharing:           sharing,
		Realtime:          realtime,
		Metrics:           registry,
		HeartbeatInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return apiFixture{
		handler:      handler,
		issuer:       issuer,
		users:        userService,
		declarations: store,
		sessions:     sessions,
		client:       client,
		realtime:     realtime,
		metrics:      registry,
	}
}

// signIn records an identity for userID and returns a backend token for it.
func (f apiFixture) signIn(t *testing.T, userID string) string {
	t.Helper()
	if _, err := f.users.ResolveUser(context.Background(), auth.FirebaseClaims{Subject: userID, Email: userID + "@example.com"}); err != nil {
		t.Fatalf("failed to resolve user %s: %v", userID, err)
	}
	token, _, err := f.issuer.IssueBackendToken(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (f apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return value
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, recorder.Code, recorder.Body.String())
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
