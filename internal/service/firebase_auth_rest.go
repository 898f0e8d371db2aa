package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
)

const (
	DefaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultSecureTokenURL     = "https://securetoken.googleapis.com/v1"
)

type FirebaseAuthRestClient struct {
	apiKey             string
	projectId          string
	identityToolkitURL string
	secureTokenURL     string
	httpClient         *http.Client
}

func NewFirebaseAuthRestClient(apiKey string, projectId string) *FirebaseAuthRestClient {
	return &FirebaseAuthRestClient{
		apiKey:             apiKey,
		projectId:          projectId,
		identityToolkitURL: DefaultIdentityToolkitURL,
		secureTokenURL:     DefaultSecureTokenURL,
		httpClient: &http.Client{
			Timeout: time.Second * 100,
		},
	}
}

// WithBaseURLs points the client at other endpoints, e.g. the auth emulator.
// Empty values keep the current endpoint.
func (f *FirebaseAuthRestClient) WithBaseURLs(identityToolkitURL string, secureTokenURL string) *FirebaseAuthRestClient {
	if identityToolkitURL != "" {
		f.identityToolkitURL = strings.TrimSuffix(identityToolkitURL, "/")
	}
	if secureTokenURL != "" {
		f.secureTokenURL = strings.TrimSuffix(secureTokenURL, "/")
	}
	return f
}

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("Google Identity Toolkit returned error: %v %v", e.Message, e.Code)
}

// Reason is the bare error identifier, e.g. EMAIL_EXISTS.
func (e *ErrorResponse) Reason() string {
	reason, _, _ := strings.Cut(e.Message, " : ")
	return strings.TrimSpace(reason)
}

// ProviderError converts the response into the domain's vocabulary.
func (e *ErrorResponse) ProviderError() *domain.ProviderError {
	return &domain.ProviderError{Code: codeForReason(e.Reason()), Message: e.Message}
}

func codeForReason(reason string) domain.ErrorCode {
	switch reason {
	case "EMAIL_EXISTS":
		return domain.CodeEmailInUse
	case "WEAK_PASSWORD":
		return domain.CodeWeakPassword
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return domain.CodeInvalidEmail
	case "INVALID_LOGIN_CREDENTIALS", "INVALID_PASSWORD", "EMAIL_NOT_FOUND", "MISSING_PASSWORD":
		return domain.CodeInvalidCredential
	case "USER_DISABLED":
		return domain.CodeUserDisabled
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return domain.CodeTooManyRequests
	case "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN", "INVALID_ID_TOKEN", "USER_NOT_FOUND":
		return domain.CodeInvalidCredential
	}
	return domain.CodeInternal
}

type IdTokenResponse struct {
	IdToken      string         `json:"idToken"`
	Email        string         `json:"email"`
	RefreshToken string         `json:"refreshToken"`
	ExpiresIn    string         `json:"expiresIn"`
	LocalId      string         `json:"localId"`
	Registered   bool           `json:"registered"`
	Error        *ErrorResponse `json:"error"`
}

func (f *FirebaseAuthRestClient) SignUpWithEmailAndPassword(ctx context.Context, email string, password string) (IdTokenResponse, error) {
	body := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}
	response := IdTokenResponse{}
	err := f.post(ctx, f.identityToolkitURL+"/accounts:signUp", body, &response)
	return response, err
}

func (f *FirebaseAuthRestClient) SignInWithEmailAndPassword(ctx context.Context, email string, password string) (IdTokenResponse, error) {
	body := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}
	response := IdTokenResponse{}
	err := f.post(ctx, f.identityToolkitURL+"/accounts:signInWithPassword", body, &response)
	return response, err
}

type OobCodeResponse struct {
	Email string         `json:"email"`
	Error *ErrorResponse `json:"error"`
}

// SendEmailVerification asks the provider to mail a verification link to the
// owner of idToken.
func (f *FirebaseAuthRestClient) SendEmailVerification(ctx context.Context, idToken string) (OobCodeResponse, error) {
	body := map[string]any{
		"requestType": "VERIFY_EMAIL",
		"idToken":     idToken,
	}
	response := OobCodeResponse{}
	err := f.post(ctx, f.identityToolkitURL+"/accounts:sendOobCode", body, &response)
	return response, err
}

type RefreshTokenResponse struct {
	IdToken      string         `json:"id_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresIn    string         `json:"expires_in"`
	UserId       string         `json:"user_id"`
	Error        *ErrorResponse `json:"error"`
}

// RefreshIdToken exchanges a refresh token for a new ID token.
func (f *FirebaseAuthRestClient) RefreshIdToken(ctx context.Context, refreshToken string) (RefreshTokenResponse, error) {
	body := map[string]any{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}
	response := RefreshTokenResponse{}
	err := f.post(ctx, f.secureTokenURL+"/token", body, &response)
	return response, err
}

func (f *FirebaseAuthRestClient) post(ctx context.Context, endpoint string, body any, response any) error {
	url := endpoint + "?key=" + f.apiKey
	bodyJson, err := json.Marshal(body)
	if err != nil {
		return err
	}
	bodyReader := bytes.NewReader(bodyJson)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bodyReader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()
	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}
	err = json.Unmarshal(respBytes, response)
	if err != nil {
		return fmt.Errorf("error decoding response (status %v): %w", resp.StatusCode, err)
	}
	return nil
}
