package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestShortenFuncName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full path", "github.com/linnemanlabs/sentinel/internal/triage/pgstore.(*Store).Get", "(*Store).Get"},
		{"already short", "(*Store).Get", "Get"},
		{"empty string", "", ""},
		{"no dots", "main", "main"},
		{"no slashes", "pgindex.(*Index).Search", "(*Index).Search"},
		{"single segment", "foo.Bar", "Bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := shortenFuncName(tt.in)
			if got != tt.want {
				t.Errorf("shortenFuncName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsDataLayer(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"github.com/linnemanlabs/sentinel/internal/triage/pgstore.(*Store).Put":      true,
		"github.com/linnemanlabs/sentinel/internal/similarity/pgindex.(*Index).Seed": true,
		"github.com/linnemanlabs/sentinel/internal/postgres.NewPool":                 true,
		"github.com/linnemanlabs/sentinel/internal/triage.(*Service).runTriage":      false,
		"github.com/linnemanlabs/sentinel/internal/triageapi.(*Handler).get":         false,
	}
	for fn, want := range tests {
		if got := isDataLayer(fn); got != want {
			t.Errorf("isDataLayer(%q) = %v, want %v", fn, got, want)
		}
	}
}

func TestOperationName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tag  pgconn.CommandTag
		sql  string
		want string
	}{
		{"from tag", pgconn.NewCommandTag("INSERT 0 1"), "insert into x", "INSERT"},
		{"from sql", pgconn.CommandTag{}, "  select id from triage_results", "SELECT"},
		{"nothing", pgconn.CommandTag{}, "", "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := operationName(tt.tag, tt.sql); got != tt.want {
				t.Errorf("operationName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSourceFromContext(t *testing.T) {
	t.Parallel()

	if got := sourceFromContext(context.Background()); got != SourceBackground {
		t.Errorf("plain context source = %q, want %q", got, SourceBackground)
	}

	if got := sourceFromContext(WithSource(context.Background(), "reseed")); got != "reseed" {
		t.Errorf("explicit source = %q, want reseed", got)
	}

	if got := sourceFromContext(WithSource(context.Background(), "")); got != SourceBackground {
		t.Errorf("empty source = %q, want %q", got, SourceBackground)
	}

	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{"/api/v1/triage/{id}"}
	ctx := context.WithValue(context.Background(), chi.RouteCtxKey, rc)
	if got := sourceFromContext(ctx); got != "/api/v1/triage/{id}" {
		t.Errorf("route source = %q", got)
	}
}

func TestSetQueryObserver(t *testing.T) { //nolint:paralleltest // mutates the global observer
	defer SetQueryObserver(nil)

	var gotSource, gotOp string
	SetQueryObserver(QueryObserverFunc(func(_ context.Context, source, op, _ string, _ time.Duration) {
		gotSource, gotOp = source, op
	}))

	obs := getQueryObserver()
	if obs == nil {
		t.Fatal("expected non-nil observer after Set")
	}
	obs.ObserveQuery(context.Background(), "background", "SELECT", "ok", time.Millisecond)
	if gotSource != "background" || gotOp != "SELECT" {
		t.Errorf("observer got %q/%q", gotSource, gotOp)
	}

	SetQueryObserver(nil)
	if getQueryObserver() != nil {
		t.Error("expected nil observer after Set(nil)")
	}
}
