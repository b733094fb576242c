package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/gradegate/internal/auth"
	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/BradenHooton/gradegate/internal/services"
	pkghttp "github.com/BradenHooton/gradegate/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext adds session claims to request context for testing authenticated endpoints
func WithSessionContext(req *http.Request, accountID, identifier string) *http.Request {
	claims := &models.TokenClaims{
		Type:       models.TokenTypeSession,
		AccountID:  accountID,
		Identifier: identifier,
	}
	claims.ID = "jti-" + accountID
	ctx := context.WithValue(req.Context(), auth.SessionContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockLoginGate implements LoginGate for testing
type MockLoginGate struct {
	AttemptLoginFunc func(ctx context.Context, req services.LoginRequest) models.LoginResult
	LastRequest      services.LoginRequest
}

func (m *MockLoginGate) AttemptLogin(ctx context.Context, req services.LoginRequest) models.LoginResult {
	m.LastRequest = req
	if m.AttemptLoginFunc != nil {
		return m.AttemptLoginFunc(ctx, req)
	}
	return models.LoginResult{Message: models.GenericLoginFailureMessage}
}

// MockAccountManager implements AccountManager for testing
type MockAccountManager struct {
	RegisterFunc       func(ctx context.Context, rawIdentifier, password string) error
	VerifyEmailFunc    func(ctx context.Context, token string) error
	ChangePasswordFunc func(ctx context.Context, accountID, currentPassword, newPassword string) error
}

func (m *MockAccountManager) Register(ctx context.Context, rawIdentifier, password string) error {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, rawIdentifier, password)
	}
	return nil
}

func (m *MockAccountManager) VerifyEmail(ctx context.Context, token string) error {
	if m.VerifyEmailFunc != nil {
		return m.VerifyEmailFunc(ctx, token)
	}
	return nil
}

func (m *MockAccountManager) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, accountID, currentPassword, newPassword)
	}
	return nil
}

// MockSessionManager implements SessionManager for testing
type MockSessionManager struct {
	TerminateFunc    func(ctx context.Context, claims *models.TokenClaims) error
	TerminateAllFunc func(ctx context.Context, accountID string) error
	ActiveCountFunc  func(ctx context.Context, accountID string) (int64, error)
}

func (m *MockSessionManager) Terminate(ctx context.Context, claims *models.TokenClaims) error {
	if m.TerminateFunc != nil {
		return m.TerminateFunc(ctx, claims)
	}
	return nil
}

func (m *MockSessionManager) TerminateAll(ctx context.Context, accountID string) error {
	if m.TerminateAllFunc != nil {
		return m.TerminateAllFunc(ctx, accountID)
	}
	return nil
}

func (m *MockSessionManager) ActiveCount(ctx context.Context, accountID string) (int64, error) {
	if m.ActiveCountFunc != nil {
		return m.ActiveCountFunc(ctx, accountID)
	}
	return 1, nil
}
