package x402

import (
	"errors"
	"testing"
)

func TestRouteMatcher_Match(t *testing.T) {
	routes := Routes{
		"/api/*":                  {Price: Money("$0.01"), Description: "api"},
		"/api/premium/*":          {Price: Money("$1"), Description: "premium"},
		"GET /weather/[city]":     {Price: Money("$0.001"), Description: "weather"},
		"POST /api/premium/write": {Price: Money("$2"), Description: "write"},
		"/files/report.pdf":       {Price: Money("$5"), Description: "report"},
	}
	m, err := NewRouteMatcher(routes)
	if err != nil {
		t.Fatalf("NewRouteMatcher() error = %v", err)
	}

	tests := []struct {
		name   string
		path   string
		method string
		want   string
	}{
		{"wildcard", "/api/users", "GET", "api"},
		{"longest source wins", "/api/premium/data", "GET", "premium"},
		{"verb specific beats wildcard", "/api/premium/write", "POST", "write"},
		{"verb mismatch falls back", "/api/premium/write", "GET", "premium"},
		{"param single segment", "/weather/berlin", "GET", "weather"},
		{"param rejects nested segment", "/weather/berlin/today", "GET", ""},
		{"param wrong verb", "/weather/berlin", "POST", ""},
		{"lowercase method", "/weather/paris", "get", "weather"},
		{"case insensitive path", "/API/Users", "GET", "api"},
		{"dot is literal", "/files/report.pdf", "GET", "report"},
		{"dot does not match any char", "/files/reportxpdf", "GET", ""},
		{"query stripped", "/files/report.pdf?download=1", "GET", "report"},
		{"fragment stripped", "/files/report.pdf#page=2", "GET", "report"},
		{"trailing slash trimmed", "/weather/rome/", "GET", "weather"},
		{"repeated slashes collapsed", "//weather///oslo", "GET", "weather"},
		{"backslashes normalized", `\weather\lima`, "GET", "weather"},
		{"percent decoded", "/files/report%2Epdf", "GET", "report"},
		{"invalid escape is no match", "/api/%zz", "GET", ""},
		{"ungated path", "/public/index.html", "GET", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Match(tt.path, tt.method)
			if tt.want == "" {
				if ok {
					t.Errorf("Match() = %q, want no match", got.Config.Description)
				}
				return
			}
			if !ok {
				t.Fatalf("Match() found nothing, want %q", tt.want)
			}
			if got.Config.Description != tt.want {
				t.Errorf("Match() = %q, want %q", got.Config.Description, tt.want)
			}
		})
	}
}

func TestRouteMatcher_Defaults(t *testing.T) {
	m, err := NewRouteMatcher(PriceRoutes(map[string]Price{"/paid": Money("$0.10")}))
	if err != nil {
		t.Fatalf("NewRouteMatcher() error = %v", err)
	}
	got, ok := m.Match("/paid", "DELETE")
	if !ok {
		t.Fatal("bare path should match every verb")
	}
	if got.Verb != "*" {
		t.Errorf("Verb = %q, want *", got.Verb)
	}
	if got.Config.Network != NetworkAlgorand {
		t.Errorf("Network = %q, want %q", got.Config.Network, NetworkAlgorand)
	}
	if len(m.Patterns()) != 1 {
		t.Errorf("Patterns() = %d entries, want 1", len(m.Patterns()))
	}
}

func TestRouteMatcher_InvalidPattern(t *testing.T) {
	_, err := NewRouteMatcher(Routes{"  ": {Price: Money("1")}})
	if !errors.Is(err, ErrInvalidRoute) {
		t.Errorf("error = %v, want ErrInvalidRoute", err)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/", "/", true},
		{"///", "/", true},
		{"/a/b/", "/a/b", true},
		{"/a%20b", "/a b", true},
		{"/a?x=1#y", "/a", true},
		{"/%E0%A4%A", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizePath(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("NormalizePath(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}
