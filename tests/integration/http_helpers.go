package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/gradegate/internal/auth"
	"github.com/BradenHooton/gradegate/internal/database"
	"github.com/BradenHooton/gradegate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/gradegate/internal/middleware"
	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/BradenHooton/gradegate/internal/repositories"
	"github.com/BradenHooton/gradegate/internal/routes"
	"github.com/BradenHooton/gradegate/internal/services"
	pkghttp "github.com/BradenHooton/gradegate/pkg/http"
	pkglogger "github.com/BradenHooton/gradegate/pkg/logger"
)

// SentVerification is a captured verification token delivery
type SentVerification struct {
	Identifier string
	Token      string
	ExpiresAt  time.Time
}

// CapturingNotifier records verification tokens for test assertions
type CapturingNotifier struct {
	mu   sync.Mutex
	Sent []SentVerification
}

func (n *CapturingNotifier) SendVerification(ctx context.Context, identifier, token string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, SentVerification{Identifier: identifier, Token: token, ExpiresAt: expiresAt})
	return nil
}

// Last returns the most recent delivery
func (n *CapturingNotifier) Last() *SentVerification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Sent) == 0 {
		return nil
	}
	return &n.Sent[len(n.Sent)-1]
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Redis    *miniredis.Miniredis
	Notifier *CapturingNotifier
	Accounts *repositories.AccountRepository
	Attempts *repositories.LoginAttemptRepository

	client *redis.Client
}

// NewTestServer wires the full application over a real database and an in-process Redis
func NewTestServer(db *database.DB, gateConfig services.LoginGateConfig) *TestServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := auth.SystemClock{}

	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	accountRepo := repositories.NewAccountRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	notifier := &CapturingNotifier{}

	auditService := services.NewAuditService(attemptRepo, pkglogger.NewAuditLogger(logger, "test"))
	tokenManager := auth.NewTokenManager("integration-secret-32-characters-long", time.Hour, 24*time.Hour, clock)
	sessionService := services.NewSessionService(tokenManager, repositories.NewSessionRegistry(client), clock, logger)
	accountState := services.NewAccountStateService(accountRepo, models.LockPolicy{Threshold: 5, Duration: 15 * time.Minute}, clock, logger)
	accountService := services.NewAccountService(accountRepo, accountState, tokenManager, sessionService, notifier, auditService, logger)
	accountService.SetHashCost(bcrypt.MinCost)

	gate := services.NewLoginGate(services.LoginGateDeps{
		RateLimiter: services.NewRateLimitService(repositories.NewRateLimitRepository(db), clock, logger),
		Stuffing:    services.NewStuffingDetector(attemptRepo, clock, logger),
		Accounts:    accountState,
		Verifier:    services.NewBcryptVerifier(accountRepo),
		Sessions:    sessionService,
		Recorder:    auditService,
		Equalizer:   auth.NewTimingEqualizer(auth.TimingConfig{Floor: 20 * time.Millisecond}, clock),
		Clock:       clock,
	}, gateConfig, logger)

	ipConfig := pkghttp.NewIPConfig([]string{"127.0.0.0/8", "::1/128"})
	authHandler := handlers.NewAuthHandler(gate, accountService, sessionService, ipConfig, logger)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"database": db.HealthCheck,
		"redis":    func(ctx context.Context) error { return client.Ping(ctx).Err() },
	})

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)

	rateLimit := middlewareCustom.DefaultAuthRateLimit(ipConfig)
	rateLimit.RequestsPerMinute = 1000
	routes.RegisterRoutes(r, authHandler, healthHandler, sessionService, rateLimit, logger)

	return &TestServer{
		Server:   httptest.NewServer(r),
		DB:       db,
		Redis:    mr,
		Notifier: notifier,
		Accounts: accountRepo,
		Attempts: attemptRepo,
		client:   client,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.client != nil {
		_ = ts.client.Close()
	}
	if ts.Redis != nil {
		ts.Redis.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with a session token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{"Authorization": "Bearer " + accessToken})
}

// Login posts credentials from the given client IP
func (ts *TestServer) Login(identifier, password, clientIP string) (*http.Response, error) {
	return ts.Request("POST", "/auth/login",
		map[string]string{"identifier": identifier, "password": password},
		map[string]string{"X-Forwarded-For": clientIP},
	)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorMessage extracts error message from error response
func GetErrorMessage(resp *http.Response) (string, error) {
	var errResp pkghttp.ErrorResponse
	if err := ParseJSONResponse(resp, &errResp); err != nil {
		return "", err
	}
	return errResp.Message, nil
}
