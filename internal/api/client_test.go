package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTimeoutFromEnv(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})

	t.Run("duration format", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "45s")
		if got := httpTimeoutFromEnv(); got != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", got)
		}
	})

	t.Run("integer seconds", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "25")
		if got := httpTimeoutFromEnv(); got != 25*time.Second {
			t.Fatalf("expected 25s timeout, got %v", got)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "invalid")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})
}

func TestClientKeepsSessionCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/sign-in":
			var req SignInRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username != "alice" {
				http.Error(w, "bad", http.StatusBadRequest)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "tok", Path: "/"})
			_ = json.NewEncoder(w).Encode(MeResponse{Authenticated: true, Username: "alice"})
		case "/user/me":
			if c, err := r.Cookie("session"); err != nil || c.Value != "tok" {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "sign in required", Code: "unauthorized", ErrorCode: 3001})
				return
			}
			_ = json.NewEncoder(w).Encode(MeResponse{Authenticated: true, Username: "alice"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Me(context.Background())
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized before sign-in, got %v", err)
	}
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.ErrorCode != 3001 {
		t.Fatalf("expected structured error, got %#v", err)
	}

	if _, err := client.SignIn(context.Background(), "alice", "Passw0rd"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	me, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.Username != "alice" {
		t.Fatalf("unexpected me: %+v", me)
	}
}

func TestClientUploadReturnsOutcomeForNonOKStatuses(t *testing.T) {
	tests := []struct {
		status  int
		overall string
	}{
		{http.StatusOK, "all_stored"},
		{http.StatusMultiStatus, "partial_failure"},
		{http.StatusBadRequest, "rejected"},
	}
	for _, tt := range tests {
		t.Run(tt.overall, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := r.ParseMultipartForm(1 << 20); err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				f, hdr, err := r.FormFile("product")
				if err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				data, _ := io.ReadAll(f)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(UploadResponse{
					Overall: tt.overall,
					Parts:   []PartResponse{{Slot: "product", Status: "stored", Filename: hdr.Filename, SizeBytes: int64(len(data))}},
				})
			}))
			defer srv.Close()

			resp, status, err := NewClient(srv.URL).Upload(context.Background(), []UploadFile{
				{Slot: "product", Filename: "product.xlsx", Content: strings.NewReader("abc")},
			})
			if err != nil {
				t.Fatalf("upload: %v", err)
			}
			if status != tt.status || resp.Overall != tt.overall {
				t.Fatalf("got status %d overall %q", status, resp.Overall)
			}
			if resp.Parts[0].Filename != "product.xlsx" || resp.Parts[0].SizeBytes != 3 {
				t.Fatalf("unexpected part %+v", resp.Parts[0])
			}
		})
	}
}

func TestClientUploadErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "request body too large", Code: "invalid_argument", ErrorCode: 1002})
	}))
	defer srv.Close()

	_, status, err := NewClient(srv.URL).Upload(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(err.Error(), "request body too large") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestClientSignInRateLimitedCarriesRetryAfter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"too many sign-in attempts","code":"resource_exhausted","error_code":3003}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).SignIn(context.Background(), "alice", "Secret123")
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if got := RetryAfter(err); got != 2*time.Minute {
		t.Fatalf("expected 2m retry-after, got %v", got)
	}
	if IsUnauthorized(err) {
		t.Fatal("429 must not be reported as unauthorized")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := map[string]time.Duration{
		"":                              0,
		"15":                            15 * time.Second,
		" 3 ":                           3 * time.Second,
		"-1":                            0,
		"Wed, 21 Oct 2015 07:28:00 GMT": 0,
	}
	for in, want := range tests {
		if got := parseRetryAfter(in); got != want {
			t.Fatalf("parseRetryAfter(%q) = %v, want %v", in, got, want)
		}
	}
}
