package registry_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/classtide/omnitutor/pkg/kv"
	"github.com/classtide/omnitutor/pkg/registry"
)

func okEndpoint(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func newRegistry() *registry.Registry {
	return registry.New(kv.NewMemory(), nil)
}

func TestCreateRejectsEmptyName(t *testing.T) {
	r := newRegistry()
	_, err := r.Create(context.Background(), "  ", "", true, map[string]any{"url": "http://x"})
	if !errors.Is(err, registry.ErrEmptyName) {
		t.Fatalf("err = %v, want ErrEmptyName", err)
	}
}

func TestCreateRejectsMissingURL(t *testing.T) {
	r := newRegistry()
	_, err := r.Create(context.Background(), "tool", "", true, map[string]any{})
	var probeErr *registry.ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("err = %v, want ProbeError", err)
	}
	if probeErr.Reason != "缺少 url 字段" {
		t.Fatalf("reason = %q", probeErr.Reason)
	}
}

func TestCreateProbesEndpoint(t *testing.T) {
	r := newRegistry()
	entry, err := r.Create(context.Background(), "搜索工具", "联网搜索", true,
		map[string]any{"url": okEndpoint(t)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if entry.ID == "" {
		t.Fatal("no id assigned")
	}
	if entry.CreatedAt.IsZero() {
		t.Fatal("no created_at")
	}
	if entry.Name != "搜索工具" || !entry.Enabled {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestCreateRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone fishing", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	r := newRegistry()
	_, err := r.Create(context.Background(), "tool", "", true, map[string]any{"url": srv.URL})
	var probeErr *registry.ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("err = %v, want ProbeError", err)
	}
	if !strings.HasPrefix(probeErr.Reason, "HTTP 503:") {
		t.Fatalf("reason = %q", probeErr.Reason)
	}
	if !strings.Contains(probeErr.Reason, "gone fishing") {
		t.Fatalf("reason missing body excerpt: %q", probeErr.Reason)
	}
}

func TestCreateRejectsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	r := newRegistry()
	_, err := r.Create(context.Background(), "tool", "", true, map[string]any{"url": url})
	var probeErr *registry.ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("err = %v, want ProbeError", err)
	}
	if !strings.HasPrefix(probeErr.Reason, "网络异常:") {
		t.Fatalf("reason = %q", probeErr.Reason)
	}
}

func TestProbeSendsConfiguredHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	t.Cleanup(srv.Close)

	r := newRegistry()
	_, err := r.Create(context.Background(), "tool", "", true, map[string]any{
		"url":     srv.URL,
		"headers": map[string]any{"Authorization": "Bearer abc"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if gotAuth != "Bearer abc" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

func TestUpdateAndToggle(t *testing.T) {
	r := newRegistry()
	url := okEndpoint(t)
	entry, err := r.Create(context.Background(), "tool", "v1", true, map[string]any{"url": url})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := r.Update(context.Background(), entry.ID, "tool2", "v2", false, map[string]any{"url": url})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "tool2" || updated.Enabled || updated.UpdatedAt.IsZero() {
		t.Fatalf("updated = %+v", updated)
	}

	toggled, err := r.SetEnabled(context.Background(), entry.ID, true)
	if err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if !toggled.Enabled {
		t.Fatal("toggle lost")
	}

	got, err := r.Get(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Enabled || got.Name != "tool2" {
		t.Fatalf("persisted entry = %+v", got)
	}
}

func TestUnknownIDs(t *testing.T) {
	r := newRegistry()
	if _, err := r.Get(context.Background(), "nope"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("Get err = %v", err)
	}
	if err := r.Delete(context.Background(), "nope"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("Delete err = %v", err)
	}
	if _, err := r.SetEnabled(context.Background(), "nope", true); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("SetEnabled err = %v", err)
	}
	if _, err := r.Update(context.Background(), "nope", "n", "", true, nil); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("Update err = %v", err)
	}
}

func TestListOldestFirstAndDelete(t *testing.T) {
	r := newRegistry()
	url := okEndpoint(t)

	first, err := r.Create(context.Background(), "first", "", true, map[string]any{"url": url})
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second, err := r.Create(context.Background(), "second", "", true, map[string]any{"url": url})
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}

	entries, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != first.ID || entries[1].ID != second.ID {
		t.Fatalf("entries = %+v", entries)
	}

	if err := r.Delete(context.Background(), first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	entries, err = r.List(context.Background())
	if err != nil {
		t.Fatalf("List after delete: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != second.ID {
		t.Fatalf("entries after delete = %+v", entries)
	}
}
