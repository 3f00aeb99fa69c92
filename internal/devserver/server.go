// Package devserver is an in-memory stand-in for the remote field-service API.
// It serves the same routes and envelopes the sync engine talks to, and lets
// tests inject failures and inspect what was received.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"fieldsync/backend"
	"fieldsync/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// Options configures a Server
type Options struct {
	// Secret enables HS256 bearer token checks when non-empty
	Secret string
	// TokenTTL is the lifetime of tokens issued by /api/auth/refresh
	TokenTTL time.Duration
}

// refreshAudience marks refresh tokens; they are not accepted as bearer tokens
const refreshAudience = "refresh"

type fault struct {
	remaining int
	status    int
	message   string
}

// Server holds the in-memory collections and the router serving them
type Server struct {
	mu          sync.Mutex
	collections map[string]*collection
	faults      map[string]*fault
	counts      map[string]int
	healthy     bool
	sequence    int
	secret      []byte
	tokenTTL    time.Duration

	router chi.Router
	log    *slog.Logger
}

// collection keeps records in insertion order
type collection struct {
	order   []string
	records map[string]map[string]any
}

func newCollection() *collection {
	return &collection{records: make(map[string]map[string]any)}
}

// New builds a server with empty collections
func New(opts Options) *Server {
	s := &Server{
		collections: make(map[string]*collection),
		faults:      make(map[string]*fault),
		counts:      make(map[string]int),
		healthy:     true,
		tokenTTL:    opts.TokenTTL,
		log:         utils.Component("devserver"),
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = time.Hour
	}
	if opts.Secret != "" {
		s.secret = []byte(opts.Secret)
	}
	for _, res := range resources {
		s.collections[res.listKey] = newCollection()
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler serving the API
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.countAndFault)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Post("/auth/refresh", s.refreshSession)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			for _, res := range resources {
				s.mount(r, res)
			}
			r.Put("/bill/{id}/payment", s.addPayment)
			r.Put("/bank-account/{id}/primary", s.setPrimary)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	}
}

// IssueToken signs an HS256 token for subject valid for ttl
func (s *Server) IssueToken(subject string, ttl time.Duration) (string, error) {
	return s.sign(subject, ttl, "")
}

// IssueRefreshToken signs a token accepted only by /api/auth/refresh
func (s *Server) IssueRefreshToken(subject string, ttl time.Duration) (string, error) {
	return s.sign(subject, ttl, refreshAudience)
}

func (s *Server) sign(subject string, ttl time.Duration, audience string) (string, error) {
	if s.secret == nil {
		return "", errors.New("devserver has no signing secret")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        newServerID(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// parseToken verifies an HS256 token signed with the server secret
func (s *Server) parseToken(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func isRefreshToken(claims *jwt.RegisteredClaims) bool {
	for _, aud := range claims.Audience {
		if aud == refreshAudience {
			return true
		}
	}
	return false
}

// FailNext makes the next n requests to "method path" answer with status.
// A 200 status answers with success:false instead.
func (s *Server) FailNext(method, path string, n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method+" "+path] = &fault{remaining: n, status: status, message: "injected failure"}
}

// Count returns how many requests "method path" has received
func (s *Server) Count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method+" "+path]
}

// Requests returns the total number of requests received, health probes excluded
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for key, n := range s.counts {
		if key != http.MethodGet+" /api/health" {
			total += n
		}
	}
	return total
}

// SetHealthy switches the health endpoint between 200 and 503
func (s *Server) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

// Seed stores rec in the collection named by listKey and returns its id.
// Missing _id and timestamps are filled in.
func (s *Server) Seed(listKey string, rec map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[listKey]
	if !ok {
		return "", fmt.Errorf("unknown collection %q", listKey)
	}
	rec, err := normalize(rec)
	if err != nil {
		return "", err
	}
	id, _ := rec["_id"].(string)
	if id == "" {
		id = newServerID()
		rec["_id"] = id
	}
	now := backend.Now()
	if _, ok := rec["createdAt"]; !ok {
		rec["createdAt"] = now
	}
	if _, ok := rec["updatedAt"]; !ok {
		rec["updatedAt"] = now
	}
	c.put(id, rec)
	return id, nil
}

// Patch merges fields into a stored record and bumps its updatedAt unless
// fields sets one
func (s *Server) Patch(listKey, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[listKey]
	if !ok {
		return fmt.Errorf("unknown collection %q", listKey)
	}
	rec, ok := c.records[id]
	if !ok {
		return backend.ErrNotFound
	}
	fields, err := normalize(fields)
	if err != nil {
		return err
	}
	for k, v := range fields {
		rec[k] = v
	}
	if _, ok := fields["updatedAt"]; !ok {
		rec["updatedAt"] = backend.Now()
	}
	return nil
}

// Get returns a copy of one stored record
func (s *Server) Get(listKey, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[listKey]
	if !ok {
		return nil, false
	}
	rec, ok := c.records[id]
	if !ok {
		return nil, false
	}
	out, _ := normalize(rec)
	return out, true
}

// All returns copies of every record in a collection, in insertion order
func (s *Server) All(listKey string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[listKey]
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(c.order))
	for _, id := range c.order {
		rec, _ := normalize(c.records[id])
		out = append(out, rec)
	}
	return out
}

func (c *collection) put(id string, rec map[string]any) {
	if _, exists := c.records[id]; !exists {
		c.order = append(c.order, id)
	}
	c.records[id] = rec
}

func (c *collection) remove(id string) {
	delete(c.records, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func newServerID() string {
	return strings.ToLower(ulid.Make().String())
}

// normalize deep-copies rec through JSON so stored values have decoded types
func normalize(rec map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if out == nil {
		out = make(map[string]any)
	}
	return out, nil
}

type contextKey string

const subjectKey contextKey = "subject"

func subjectFrom(ctx context.Context) string {
	if sub, ok := ctx.Value(subjectKey).(string); ok && sub != "" {
		return sub
	}
	return "devserver"
}

// authenticate validates the bearer token when a secret is configured
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret == nil {
			next.ServeHTTP(w, r)
			return
		}
		parts := strings.Split(r.Header.Get("Authorization"), " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Missing authorization header")
			return
		}
		claims, err := s.parseToken(parts[1])
		if err == nil && isRefreshToken(claims) {
			err = errors.New("refresh token used as bearer token")
		}
		if err != nil {
			s.log.Debug("token rejected", "error", err, "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// countAndFault records the request and answers injected failures
func (s *Server) countAndFault(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.counts[key]++
		f := s.faults[key]
		var status int
		var message string
		if f != nil && f.remaining > 0 {
			f.remaining--
			status, message = f.status, f.message
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	healthy := s.healthy
	s.mu.Unlock()
	if !healthy {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}

// refreshSession exchanges a refresh token for a new token pair
func (s *Server) refreshSession(w http.ResponseWriter, r *http.Request) {
	if s.secret == nil {
		writeError(w, http.StatusNotFound, "token refresh is not enabled")
		return
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}
	claims, err := s.parseToken(body.RefreshToken)
	if err != nil || !isRefreshToken(claims) {
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}

	token, err := s.IssueToken(claims.Subject, s.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	refresh, err := s.IssueRefreshToken(claims.Subject, 30*24*time.Hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token, "refreshToken": refresh})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}
