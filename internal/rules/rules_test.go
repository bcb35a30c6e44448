package rules

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func metaServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/meta.json" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"supported", http.StatusOK, `{"version":"1.4.2"}`, "rules v1.4.2"},
		{"unsupported", http.StatusOK, `{"version":"0.9.0"}`, "rules v0.9.0 (unsupported)"},
		{"not semver", http.StatusOK, `{"version":"beta"}`, "rules vbeta"},
		{"server error", http.StatusInternalServerError, `{}`, StatusOffline},
		{"garbage", http.StatusOK, `nope`, StatusOffline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := metaServer(t, tt.status, tt.body)
			c := NewClient(srv.URL+"/", nil, nil)
			if got := c.Status(context.Background()); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewClient(base, nil, nil)
	if got := c.Status(context.Background()); got != StatusOffline {
		t.Errorf("Status() = %q, want %q", got, StatusOffline)
	}
}
