package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zalando/go-keyring"
)

func signed(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: subject, ExpiresAt: jwt.NewNumericDate(exp)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

type refreshRecorder struct {
	calls int
	next  string
	err   error
}

func (r *refreshRecorder) refresh(_ context.Context, refreshToken string) (string, string, error) {
	r.calls++
	if r.err != nil {
		return "", "", r.err
	}
	return r.next, refreshToken + "+", nil
}

func envResolver(t *testing.T, token, refresh string) *Resolver {
	t.Helper()
	clearEnv(t)
	t.Setenv(EnvToken, token)
	t.Setenv(EnvRefreshToken, refresh)
	return NewResolver("localhost", "").WithoutKeyring()
}

func TestTokenManager_Token(t *testing.T) {
	now := time.Now()
	fresh := signed(t, "u1", now.Add(time.Hour))

	tests := []struct {
		name        string
		token       string
		refreshErr  error
		wantToken   string
		wantCalls   int
		wantExpired bool
	}{
		{name: "opaque token", token: "opaque", wantToken: "opaque"},
		{name: "far from expiry", token: fresh, wantToken: fresh},
		{name: "near expiry refreshes", token: signed(t, "u1", now.Add(time.Minute)), wantToken: fresh, wantCalls: 1},
		{name: "refresh fails while still valid", token: "near", refreshErr: errors.New("down"), wantCalls: 1},
		{name: "refresh fails after expiry", token: signed(t, "u1", now.Add(-time.Minute)), refreshErr: errors.New("down"), wantCalls: 1, wantExpired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := tt.token
			if token == "near" {
				token = signed(t, "u1", now.Add(2*time.Minute))
				tt.wantToken = token
			}
			rec := &refreshRecorder{next: fresh, err: tt.refreshErr}
			m := NewTokenManager(envResolver(t, token, "r1"), rec.refresh)

			got, err := m.Token(context.Background())
			if tt.wantExpired {
				if !errors.Is(err, ErrTokenExpired) {
					t.Fatalf("Token() error = %v, want ErrTokenExpired", err)
				}
			} else if err != nil {
				t.Fatalf("Token() error = %v", err)
			} else if got != tt.wantToken {
				t.Errorf("Token() = %q, want %q", got, tt.wantToken)
			}
			if rec.calls != tt.wantCalls {
				t.Errorf("refresh calls = %d, want %d", rec.calls, tt.wantCalls)
			}
		})
	}
}

func TestTokenManager_NoCredentials(t *testing.T) {
	m := NewTokenManager(envResolver(t, "", ""), nil)
	if _, err := m.Token(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("Token() error = %v, want ErrNoCredentials", err)
	}
	if m.Source() != SourceNone {
		t.Errorf("Source() = %s, want none", m.Source())
	}
}

func TestTokenManager_ForceRefreshPersistsToKeyring(t *testing.T) {
	keyring.MockInit()
	clearEnv(t)
	if err := StoreSession("localhost", "old", "r1"); err != nil {
		t.Fatal(err)
	}
	rec := &refreshRecorder{next: "new"}
	m := NewTokenManager(NewResolver("localhost", ""), rec.refresh)

	got, err := m.ForceRefresh(context.Background())
	if err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}
	if got != "new" {
		t.Errorf("ForceRefresh() = %q, want new", got)
	}
	if stored, _ := Get("localhost", AccountAccessToken); stored != "new" {
		t.Errorf("keyring token = %q, want new", stored)
	}
	if stored, _ := Get("localhost", AccountRefreshToken); stored != "r1+" {
		t.Errorf("keyring refresh token = %q, want r1+", stored)
	}
}

func TestTokenManager_ForceRefreshRereadsSources(t *testing.T) {
	m := NewTokenManager(envResolver(t, "first", ""), nil)
	if _, err := m.Token(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := m.ForceRefresh(context.Background()); err == nil {
		t.Error("ForceRefresh() without a newer token should fail")
	}

	t.Setenv(EnvToken, "second")
	got, err := m.ForceRefresh(context.Background())
	if err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}
	if got != "second" {
		t.Errorf("ForceRefresh() = %q, want second", got)
	}
}

func TestClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signed(t, "user-7", exp)

	got, ok := ExpiresAt(token)
	if !ok || !got.Equal(exp) {
		t.Errorf("ExpiresAt() = %v, %v; want %v", got, ok, exp)
	}
	if Subject(token) != "user-7" {
		t.Errorf("Subject() = %q", Subject(token))
	}
	if _, ok := ExpiresAt("opaque"); ok {
		t.Error("opaque token has no expiry")
	}
	if IsExpired(token, time.Now()) {
		t.Error("token should not be expired yet")
	}
	if !IsExpired(token, exp) {
		t.Error("token is expired at its exp")
	}
}
