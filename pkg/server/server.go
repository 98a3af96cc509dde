package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raterudder/esplus/pkg/esplus"
	"github.com/raterudder/esplus/pkg/log"
	"github.com/raterudder/esplus/pkg/storage"
	"github.com/raterudder/esplus/pkg/updater"
)

type contextKey string

const emailContextKey contextKey = "email"

// tokenVerifier validates an ID token and returns the email it was issued
// to.
type tokenVerifier func(ctx context.Context, rawIDToken string) (string, error)

// BranchLister lists the branches available for login.
type BranchLister interface {
	Branches(ctx context.Context) ([]esplus.Branch, error)
}

// Server exposes the entities and actions of every config entry over HTTP.
type Server struct {
	manager  *updater.Manager
	storage  storage.Store
	branches BranchLister

	listenAddr string
	httpServer *http.Server

	updateEmails  []string
	oidcVerifiers map[string]tokenVerifier
	bypassAuth    bool
	serverName    string
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(m *updater.Manager, s storage.Store, b BranchLister) *Server {
	srv := &Server{
		manager:    m,
		storage:    s,
		branches:   b,
		serverName: "esplus",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	updateAudience := lflag.String("update-audience", "", "audience of the Google ID tokens allowed to call actions")
	updateEmails := lflag.String("update-email", "", "comma-delimited list of ID token emails allowed to call actions")
	bypassAuth := lflag.Bool("bypass-auth", false, "Allow actions without an ID token")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.bypassAuth = *bypassAuth
		if *updateEmails != "" {
			for _, email := range strings.Split(*updateEmails, ",") {
				if email = strings.TrimSpace(email); email != "" {
					srv.updateEmails = append(srv.updateEmails, email)
				}
			}
		}
		if *updateAudience != "" {
			provider, err := oidc.NewProvider(context.Background(), "https://accounts.google.com")
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
				os.Exit(1)
			}
			srv.oidcVerifiers = map[string]tokenVerifier{
				"google": oidcEmailVerifier(provider.Verifier(&oidc.Config{ClientID: *updateAudience})),
			}
		}
		if !srv.bypassAuth && (len(srv.oidcVerifiers) == 0 || len(srv.updateEmails) == 0) {
			log.Ctx(context.Background()).Warn("no update-audience or update-email configured, actions are disabled")
		}
	})

	return srv
}

func oidcEmailVerifier(v *oidc.IDTokenVerifier) tokenVerifier {
	return func(ctx context.Context, rawIDToken string) (string, error) {
		idToken, err := v.Verify(ctx, rawIDToken)
		if err != nil {
			return "", err
		}
		var claims struct {
			Email         string `json:"email"`
			EmailVerified bool   `json:"email_verified"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return "", err
		}
		if !claims.EmailVerified {
			return "", errors.New("email not verified")
		}
		return claims.Email, nil
	}
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/entities", s.handleListEntities)
	apiMux.HandleFunc("GET /api/entities/{uniqueID}", s.handleGetEntity)
	apiMux.HandleFunc("GET /api/events", s.handleListEvents)
	apiMux.HandleFunc("GET /api/branches", s.handleListBranches)
	apiMux.HandleFunc("GET /api/entries", s.handleListEntries)
	apiMux.HandleFunc("POST /api/update", s.requireAuth(s.handleUpdate))
	apiMux.HandleFunc("POST /api/indications", s.requireAuth(s.handleIndications))
	apiMux.HandleFunc("POST /api/entries", s.requireAuth(s.handleCreateEntry))
	apiMux.HandleFunc("DELETE /api/entries/{id}", s.requireAuth(s.handleDeleteEntry))
	apiMux.HandleFunc("POST /api/entries/{id}/reload", s.requireAuth(s.handleReloadEntry))

	mux := http.NewServeMux()
	mux.Handle("/api/", apiMux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	writeJSONStatus(w, struct {
		Error string `json:"error"`
	}{Error: msg}, code)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	writeJSONStatus(w, v, http.StatusOK)
}

func writeJSONStatus(w http.ResponseWriter, v interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
