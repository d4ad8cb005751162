// Package main provides the Spotify authentication tool for the spotify
// preview source.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/beatdeck/internal/infra/logger"
)

var (
	app          = kingpin.New("beatdeck-auth", "Spotify authentication tool for beatdeck")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
	timeout      = app.Flag("timeout", "How long to wait for authorization").Default("5m").Duration()
	envFile      = app.Flag("env-file", "Write SPOTIFY_REFRESH_TOKEN into this .env file").String()
)

// authResult is delivered by the callback handler.
type authResult struct {
	token *oauth2.Token
	err   error
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse flags
	kingpin.MustParse(app.Parse(os.Args[1:]))

	closer, err := logger.Init(logger.Config{Output: "stderr", Level: "info"})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	if err := run(); err != nil {
		zlog.Error().Msgf("Authorization failed: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

func run() error {
	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", *port)
	state := uuid.NewString()

	// Preview lookups only need to read the catalog.
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(redirectURI),
		spotifyauth.WithClientID(*clientID),
		spotifyauth.WithClientSecret(*clientSecret),
		spotifyauth.WithScopes(spotifyauth.ScopeUserReadPrivate),
	)

	results := make(chan authResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", callbackHandler(auth, state, results))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			results <- authResult{err: errors.Wrap(err, "failed to start callback server")}
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			zlog.Warn().Msgf("Failed to shutdown callback server: %v", err)
		}
	}()

	fmt.Println("Please visit the following URL to authorize beatdeck:")
	fmt.Println("")
	fmt.Println(auth.AuthURL(state))
	fmt.Println("")
	fmt.Println("Waiting for authorization...")

	var res authResult
	select {
	case res = <-results:
	case <-time.After(*timeout):
		return errors.Newf("no authorization received within %v", *timeout)
	}
	if res.err != nil {
		return res.err
	}

	fmt.Println("")
	fmt.Println("=== Authorization Successful ===")
	fmt.Println("")
	fmt.Println("Refresh Token:")
	fmt.Println(res.token.RefreshToken)
	fmt.Println("")

	if *envFile != "" {
		if err := writeEnv(*envFile, res.token.RefreshToken); err != nil {
			return err
		}
		fmt.Printf("Saved SPOTIFY_REFRESH_TOKEN to %s\n", *envFile)
		return nil
	}

	fmt.Println("Add this to your config.yaml:")
	fmt.Println("")
	fmt.Println("preview:")
	fmt.Println("  source: spotify")
	fmt.Println("spotify:")
	fmt.Printf("  refresh_token: \"%s\"\n", res.token.RefreshToken)
	fmt.Println("")
	fmt.Println("Or set as environment variable:")
	fmt.Printf("export SPOTIFY_REFRESH_TOKEN=\"%s\"\n", res.token.RefreshToken)
	return nil
}

// writeEnv merges the refresh token into an existing .env file.
func writeEnv(path, refreshToken string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to read %s", path)
		}
		env = map[string]string{}
	}
	env["SPOTIFY_REFRESH_TOKEN"] = refreshToken
	if err := godotenv.Write(env, path); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func callbackHandler(auth *spotifyauth.Authenticator, state string, results chan<- authResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st := r.FormValue("state"); st != state {
			http.Error(w, "State mismatch", http.StatusForbidden)
			zlog.Warn().Msgf("State mismatch: got=%s", st)
			return
		}

		token, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusForbidden)
			zlog.Error().Msgf("Failed to get token: %v", err)
			return
		}

		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>beatdeck - Authorization Complete</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 20vh;">
    <h1>Authorization Complete</h1>
    <p>You can close this window and return to the terminal.</p>
</body>
</html>
`)

		select {
		case results <- authResult{token: token}:
		default:
		}
	}
}
