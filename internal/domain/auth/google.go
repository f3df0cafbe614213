package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

const defaultUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleProfile is the subset of the userinfo payload the deck keeps.
type GoogleProfile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleVerifier resolves a Google OAuth access token to the profile it
// belongs to via the userinfo endpoint. The URL is configurable so tests
// can point it at a local server.
type GoogleVerifier struct {
	client      *http.Client
	userinfoURL string
}

// NewGoogleVerifier builds a verifier against the given userinfo endpoint.
func NewGoogleVerifier(userinfoURL string) *GoogleVerifier {
	if userinfoURL == "" {
		userinfoURL = defaultUserinfoURL
	}
	return &GoogleVerifier{
		client:      &http.Client{Timeout: 10 * time.Second},
		userinfoURL: userinfoURL,
	}
}

// Fetch exchanges the access token for the Google profile.
func (v *GoogleVerifier) Fetch(ctx context.Context, accessToken string) (GoogleProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userinfoURL, nil)
	if err != nil {
		return GoogleProfile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := v.client.Do(req)
	if err != nil {
		return GoogleProfile{}, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return GoogleProfile{}, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return GoogleProfile{}, err
	}
	var profile GoogleProfile
	if err := sonic.Unmarshal(body, &profile); err != nil {
		return GoogleProfile{}, fmt.Errorf("userinfo decode failed: %w", err)
	}
	if profile.Email == "" {
		return GoogleProfile{}, fmt.Errorf("userinfo payload missing email")
	}
	return profile, nil
}
