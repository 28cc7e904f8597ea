package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/teamchat/internal/session"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "missing.toml")))
	err := cmd.Execute()
	return out.String(), err
}

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Incorrect username or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer"}`))
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":7,"username":"ana","email":"ana@example.com","created_at":"2026-01-01T00:00:00"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginWhoamiLogout(t *testing.T) {
	t.Setenv(session.BaseDirEnv, t.TempDir())
	srv := fakeServer(t)
	t.Setenv("TEAMCHAT_API_URL", srv.URL)

	out, err := run(t, "secret\n", "login", "--session", "work", "-u", "ana")
	if err != nil {
		t.Fatalf("login: %v\n%s", err, out)
	}
	if !strings.Contains(out, `Logged in as ana (session "work")`) {
		t.Errorf("login output = %q", out)
	}

	out, err = run(t, "", "whoami", "--session", "work")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if strings.TrimSpace(out) != "ana (id 7)" {
		t.Errorf("whoami = %q", out)
	}

	out, err = run(t, "", "whoami", "--session", "work", "--remote")
	if err != nil {
		t.Fatalf("whoami --remote: %v", err)
	}
	if !strings.Contains(out, "ana@example.com") {
		t.Errorf("whoami --remote = %q", out)
	}

	if _, err := run(t, "", "logout", "--session", "work"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := run(t, "", "whoami", "--session", "work"); err == nil {
		t.Error("whoami after logout succeeded")
	}
}

func TestLoginRejected(t *testing.T) {
	t.Setenv(session.BaseDirEnv, t.TempDir())
	srv := fakeServer(t)
	t.Setenv("TEAMCHAT_API_URL", srv.URL)

	_, err := run(t, "wrong\n", "login", "-u", "ana")
	if err == nil || !strings.Contains(err.Error(), "Incorrect username or password") {
		t.Errorf("err = %v, want server detail", err)
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	t.Setenv(session.BaseDirEnv, t.TempDir())

	out, err := run(t, "", "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var r statusReport
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if r.Running || r.Realtime != "DOWN" || r.Session != session.DefaultSessionName {
		t.Errorf("report = %+v", r)
	}
}
