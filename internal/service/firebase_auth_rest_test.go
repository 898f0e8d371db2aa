package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	path string
	key  string
	body map[string]any
}

func newIdentityToolkitServer(t *testing.T, handler func(path string, body map[string]any) (int, any)) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	requests := &[]recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*requests = append(*requests, recordedRequest{path: r.URL.Path, key: r.URL.Query().Get("key"), body: body})
		status, resp := handler(r.URL.Path, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, requests
}

func errorBody(message string) map[string]any {
	return map[string]any{"error": map[string]any{"code": 400, "message": message}}
}

func TestFirebaseAuthRestClient_SignIn(t *testing.T) {
	srv, requests := newIdentityToolkitServer(t, func(path string, body map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"idToken":      "id-token",
			"refreshToken": "refresh-token",
			"localId":      "uid-1",
			"email":        body["email"],
			"registered":   true,
		}
	})
	client := NewFirebaseAuthRestClient("api-key", "project").WithBaseURLs(srv.URL+"/", srv.URL)

	resp, err := client.SignInWithEmailAndPassword(context.Background(), "a@example.com", "secret1")
	require.NoError(t, err)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "uid-1", resp.LocalId)
	assert.Equal(t, "id-token", resp.IdToken)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "/accounts:signInWithPassword", req.path)
	assert.Equal(t, "api-key", req.key)
	assert.Equal(t, "a@example.com", req.body["email"])
	assert.Equal(t, true, req.body["returnSecureToken"])
}

func TestFirebaseAuthRestClient_Endpoints(t *testing.T) {
	srv, requests := newIdentityToolkitServer(t, func(path string, body map[string]any) (int, any) {
		return http.StatusOK, map[string]any{}
	})
	client := NewFirebaseAuthRestClient("k", "p").WithBaseURLs(srv.URL, srv.URL+"/securetoken")
	ctx := context.Background()

	_, err := client.SignUpWithEmailAndPassword(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	_, err = client.SendEmailVerification(ctx, "id-token")
	require.NoError(t, err)
	_, err = client.RefreshIdToken(ctx, "refresh-token")
	require.NoError(t, err)

	require.Len(t, *requests, 3)
	assert.Equal(t, "/accounts:signUp", (*requests)[0].path)
	assert.Equal(t, "/accounts:sendOobCode", (*requests)[1].path)
	assert.Equal(t, "VERIFY_EMAIL", (*requests)[1].body["requestType"])
	assert.Equal(t, "id-token", (*requests)[1].body["idToken"])
	assert.Equal(t, "/securetoken/token", (*requests)[2].path)
	assert.Equal(t, "refresh_token", (*requests)[2].body["grant_type"])
}

func TestFirebaseAuthRestClient_ErrorResponse(t *testing.T) {
	srv, _ := newIdentityToolkitServer(t, func(path string, body map[string]any) (int, any) {
		return http.StatusBadRequest, errorBody("WEAK_PASSWORD : Password should be at least 6 characters")
	})
	client := NewFirebaseAuthRestClient("k", "p").WithBaseURLs(srv.URL, "")

	resp, err := client.SignUpWithEmailAndPassword(context.Background(), "a@example.com", "123")
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "WEAK_PASSWORD", resp.Error.Reason())

	perr := resp.Error.ProviderError()
	assert.Equal(t, domain.CodeWeakPassword, perr.Code)
	assert.Equal(t, domain.CodeWeakPassword, domain.CodeOf(perr))
}

func TestCodeForReason(t *testing.T) {
	tests := map[string]domain.ErrorCode{
		"EMAIL_EXISTS":                domain.CodeEmailInUse,
		"INVALID_EMAIL":               domain.CodeInvalidEmail,
		"INVALID_LOGIN_CREDENTIALS":   domain.CodeInvalidCredential,
		"EMAIL_NOT_FOUND":             domain.CodeInvalidCredential,
		"USER_DISABLED":               domain.CodeUserDisabled,
		"TOO_MANY_ATTEMPTS_TRY_LATER": domain.CodeTooManyRequests,
		"SOMETHING_NEW":               domain.CodeInternal,
	}
	for reason, want := range tests {
		t.Run(reason, func(t *testing.T) {
			assert.Equal(t, want, codeForReason(reason))
		})
	}
}

func TestFirebaseAuthRestClient_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewFirebaseAuthRestClient("k", "p").WithBaseURLs(srv.URL, srv.URL)

	_, err := client.SignInWithEmailAndPassword(context.Background(), "a@example.com", "secret1")
	assert.ErrorContains(t, err, "error sending request")
}
