package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"

	"timesheet/internal/domain"
)

// OAuthConfig holds the endpoints of the identity provider. Login uses the
// device code flow, so no redirect URL is needed.
type OAuthConfig struct {
	ClientID      string
	DeviceAuthURL string
	TokenURL      string
	UserInfoURL   string
	Scopes        []string
}

// OAuth signs the user in with the device code flow and keeps the token and
// the resolved identity under dir.
type OAuth struct {
	cfg         *oauth2.Config
	userInfoURL string
	dir         string
	log         *slog.Logger

	mu   sync.Mutex
	user *domain.User
}

// NewOAuth creates the provider. dir is usually DataDir/auth.
func NewOAuth(c OAuthConfig, dir string, log *slog.Logger) *OAuth {
	return &OAuth{
		cfg: &oauth2.Config{
			ClientID: c.ClientID,
			Scopes:   c.Scopes,
			Endpoint: oauth2.Endpoint{
				DeviceAuthURL: c.DeviceAuthURL,
				TokenURL:      c.TokenURL,
				AuthStyle:     oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: c.UserInfoURL,
		dir:         dir,
		log:         log,
	}
}

func (o *OAuth) tokenPath() string    { return filepath.Join(o.dir, "token.json") }
func (o *OAuth) identityPath() string { return filepath.Join(o.dir, "identity.json") }

// Login runs the device code flow, printing the verification instructions to
// w, and stores the token and identity.
func (o *OAuth) Login(ctx context.Context, w io.Writer) (*domain.User, error) {
	resp, err := o.cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device auth request failed: %w", err)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "To sign in, use a web browser to open the page:")
	fmt.Fprintf(w, "  %s\n", resp.VerificationURI)
	fmt.Fprintf(w, "Enter the code: %s\n", resp.UserCode)
	fmt.Fprintln(w)

	tok, err := o.cfg.DeviceAccessToken(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("device authentication failed: %w", err)
	}
	if err := writeJSON(o.tokenPath(), tok); err != nil {
		return nil, err
	}
	// A previous identity belongs to whoever signed in before.
	_ = os.Remove(o.identityPath())
	o.mu.Lock()
	o.user = nil
	o.mu.Unlock()

	return o.CurrentUser(ctx)
}

// CurrentUser implements ports.AuthProvider. Without a stored token nobody is
// signed in and (nil, nil) is returned.
func (o *OAuth) CurrentUser(ctx context.Context) (*domain.User, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.user != nil {
		u := *o.user
		return &u, nil
	}

	var tok oauth2.Token
	ok, err := readJSON(o.tokenPath(), &tok)
	if err != nil || !ok {
		return nil, err
	}

	var cached domain.User
	if ok, err := readJSON(o.identityPath(), &cached); err == nil && ok && cached.UID != "" {
		o.user = &cached
		u := cached
		return &u, nil
	}

	fresh, err := o.cfg.TokenSource(ctx, &tok).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed (run login again): %w", err)
	}
	if fresh.AccessToken != tok.AccessToken {
		if err := writeJSON(o.tokenPath(), fresh); err != nil {
			o.log.Warn("could not save refreshed token", slog.String("error", err.Error()))
		}
	}

	user, err := o.fetchUserInfo(ctx, fresh)
	if err != nil {
		return nil, err
	}
	if err := writeJSON(o.identityPath(), user); err != nil {
		o.log.Warn("could not cache identity", slog.String("error", err.Error()))
	}
	o.user = user
	o.log.Info("signed in", slog.String("uid", user.UID), slog.String("email", user.Email))
	u := *user
	return &u, nil
}

// Logout forgets the token and identity. Logging out twice is not an error.
func (o *OAuth) Logout() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.user = nil
	for _, p := range []string{o.tokenPath(), o.identityPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

func (o *OAuth) fetchUserInfo(ctx context.Context, tok *oauth2.Token) (*domain.User, error) {
	if o.userInfoURL == "" {
		return nil, errors.New("oauth: userinfo URL is not configured")
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo: status %d: %s", resp.StatusCode, body)
	}
	var info struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding userinfo: %w", err)
	}
	if info.Sub == "" {
		return nil, errors.New("userinfo: response has no subject")
	}
	return &domain.User{UID: info.Sub, Email: info.Email}, nil
}
