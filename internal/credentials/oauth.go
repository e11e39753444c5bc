package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OAuthProvider obtains access tokens via the OAuth 2.0 client_credentials
// grant. Every Issue call performs a token request.
type OAuthProvider struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	httpClient *http.Client
	nowFunc    func() time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func NewOAuthProvider(tokenURL, clientID, clientSecret string, scopes []string) *OAuthProvider {
	return &OAuthProvider{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		nowFunc:      time.Now,
	}
}

func (a *OAuthProvider) Issue(ctx context.Context, scope Scope) (Credential, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {a.ClientID},
		"client_secret": {a.ClientSecret},
	}
	if len(a.Scopes) > 0 {
		data.Set("scope", strings.Join(a.Scopes, " "))
	}
	if scope.ConnectorID != "" {
		data.Set("resource", scope.ConnectorID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return Credential{}, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Credential{}, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return Credential{}, fmt.Errorf("parsing token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return Credential{}, fmt.Errorf("token response missing access_token")
	}

	cred := Credential{Token: tokenResp.AccessToken}
	if tokenResp.ExpiresIn > 0 {
		cred.ExpiresAt = a.nowFunc().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}
	return cred, nil
}
