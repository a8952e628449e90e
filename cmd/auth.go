package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/qsync/internal/services"
	"github.com/desertthunder/qsync/internal/shared"
)

// AuthSpotify runs the OAuth2 authorization-code flow: opens the consent
// page in a browser, captures the code on a local callback listener, and
// persists the exchanged token.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client id and secret must be set in the config", shared.ErrMissingCredentials)
	}

	oauthConfig := services.SpotifyOAuthConfig(creds)
	state, err := randomState()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cmd.String("listen"))
	if err != nil {
		return fmt.Errorf("failed to listen for the OAuth callback: %w", err)
	}
	defer listener.Close()

	type callbackResult struct {
		code string
		err  error
	}
	results := make(chan callbackResult, 1)

	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		query := req.URL.Query()
		if query.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			results <- callbackResult{err: fmt.Errorf("%w: OAuth state mismatch", shared.ErrAuthFailed)}
			return
		}
		if errMsg := query.Get("error"); errMsg != "" {
			http.Error(w, "authorization denied", http.StatusBadRequest)
			results <- callbackResult{err: fmt.Errorf("%w: %s", shared.ErrAuthFailed, errMsg)}
			return
		}
		fmt.Fprintln(w, "Authentication complete. You can close this tab.")
		results <- callbackResult{code: query.Get("code")}
	})}
	go server.Serve(listener)
	defer server.Close()

	authURL := oauthConfig.AuthCodeURL(state)
	r.logger.Info("opening browser for spotify consent")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warn("could not open browser", "error", err)
		r.writePlain("Open this URL to authorize:\n%s\n", authURL)
	}

	var result callbackResult
	select {
	case result = <-results:
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("%w: timed out waiting for the OAuth callback", shared.ErrAuthFailed)
	case <-ctx.Done():
		return ctx.Err()
	}
	if result.err != nil {
		return result.err
	}

	token, err := oauthConfig.Exchange(ctx, result.code)
	if err != nil {
		return fmt.Errorf("%w: code exchange failed: %v", shared.ErrAuthFailed, err)
	}

	tokenPath := r.tokenPath()
	if err := services.SaveSpotifyToken(tokenPath, token); err != nil {
		return err
	}

	r.logger.Info("spotify token saved", "path", tokenPath)
	return r.writePlain("✓ Spotify authentication complete\n")
}

// AuthQobuz extracts session credentials from a cURL command copied out of
// an authenticated Qobuz web-player session.
func (r *Runner) AuthQobuz(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	curlFile := cmd.String("curl-file")
	if curlFile == "" {
		return fmt.Errorf("%w: --curl-file must be provided", shared.ErrMissingArgument)
	}

	headers, err := shared.ParseCurlFile(curlFile)
	if err != nil {
		return fmt.Errorf("failed to parse cURL file: %w", err)
	}

	token, err := headers.ExtractUserAuthToken()
	if err != nil {
		return err
	}
	appID := headers.ExtractAppID()

	r.writePlain("✓ Qobuz session credentials extracted\n\n")
	r.writePlain("Add these to your config.toml:\n\n")
	r.writePlain("[credentials.qobuz]\n")
	r.writePlain("user_auth_token = %q\n", token)
	if appID != "" {
		r.writePlain("app_id = %q\n", appID)
	} else {
		r.writePlain("app_id = \"<copy the X-App-Id header from the same request>\"\n")
	}

	return nil
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
