package domain

import (
	"net/http"
	"net/url"
	"testing"
)

func TestManifestNormalize(t *testing.T) {
	m := Manifest{
		Version:     " v1.0.2 ",
		CachePrefix: "ball-maze",
		Scope:       "https://localhost/ball-on-a-maze",
	}
	if err := m.Normalize(); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if m.Version != "v1.0.2" {
		t.Errorf("Version = %q, want v1.0.2", m.Version)
	}
	if m.RuntimeMaxEntries != DefaultRuntimeMaxEntries {
		t.Errorf("RuntimeMaxEntries = %d, want %d", m.RuntimeMaxEntries, DefaultRuntimeMaxEntries)
	}
	if m.FallbackPage != DefaultFallbackPage {
		t.Errorf("FallbackPage = %q, want %q", m.FallbackPage, DefaultFallbackPage)
	}
	if got := m.CoreCacheName(); got != "ball-maze-v1.0.2" {
		t.Errorf("CoreCacheName() = %q", got)
	}
	if got := m.RuntimeCacheName(); got != "ball-maze-music-v1.0.2" {
		t.Errorf("RuntimeCacheName() = %q", got)
	}

	scope, _ := m.ScopeURL()
	if scope.Path != "/ball-on-a-maze/" {
		t.Errorf("ScopeURL().Path = %q, want trailing slash", scope.Path)
	}
}

func TestManifestResolve(t *testing.T) {
	m := Manifest{Version: "v1", CachePrefix: "p", Scope: "https://localhost/ball-on-a-maze/"}

	testCases := []struct {
		ref  string
		want string
	}{
		{"./", "https://localhost/ball-on-a-maze/"},
		{"./index.html", "https://localhost/ball-on-a-maze/index.html"},
		{"./ballMaze.wasm", "https://localhost/ball-on-a-maze/ballMaze.wasm"},
		{"/music/a.mp3", "https://localhost/music/a.mp3"},
		{"https://cdn.example.org/x.js", "https://cdn.example.org/x.js"},
	}

	for _, tc := range testCases {
		t.Run(tc.ref, func(t *testing.T) {
			u, err := m.Resolve(tc.ref)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if u.String() != tc.want {
				t.Errorf("Resolve(%q) = %q, want %q", tc.ref, u, tc.want)
			}
		})
	}
}

func TestSameOrigin(t *testing.T) {
	testCases := []struct {
		name string
		a, b string
		want bool
	}{
		{"Same", "https://example.test/a", "https://example.test/b", true},
		{"Default port", "https://example.test/", "https://example.test:443/", true},
		{"Host case", "https://Example.TEST/", "https://example.test/", true},
		{"Scheme differs", "https://example.test/", "http://example.test/", false},
		{"Port differs", "http://example.test/", "http://example.test:8080/", false},
		{"Host differs", "https://example.test/", "https://cdn.example.test/", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := url.Parse(tc.a)
			b, _ := url.Parse(tc.b)
			if got := SameOrigin(a, b); got != tc.want {
				t.Errorf("SameOrigin(%s, %s) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestIsRuntimePath(t *testing.T) {
	m := Manifest{
		Version:           "v1",
		CachePrefix:       "p",
		Scope:             "https://localhost/ball-on-a-maze/",
		RuntimePathPrefix: "/ball-on-a-maze/music/",
	}

	testCases := []struct {
		url  string
		want bool
	}{
		{"https://localhost/ball-on-a-maze/music/a.mp3", true},
		{"https://localhost/ball-on-a-maze/index.html", false},
		{"https://other.test/ball-on-a-maze/music/a.mp3", false},
	}
	for _, tc := range testCases {
		u, _ := url.Parse(tc.url)
		if got := m.IsRuntimePath(u); got != tc.want {
			t.Errorf("IsRuntimePath(%s) = %v, want %v", tc.url, got, tc.want)
		}
	}

	m.RuntimePathPrefix = ""
	u, _ := url.Parse("https://localhost/ball-on-a-maze/music/a.mp3")
	if m.IsRuntimePath(u) {
		t.Error("IsRuntimePath() = true with empty prefix")
	}
}

func TestResponseCacheable(t *testing.T) {
	testCases := []struct {
		name string
		resp *Response
		want bool
	}{
		{"OK basic", &Response{Status: http.StatusOK, Type: TypeBasic}, true},
		{"Created", &Response{Status: http.StatusCreated, Type: TypeBasic}, false},
		{"Not found", &Response{Status: http.StatusNotFound, Type: TypeBasic}, false},
		{"CORS", &Response{Status: http.StatusOK, Type: TypeCORS}, false},
		{"Opaque", &Response{Status: http.StatusOK, Type: TypeOpaque}, false},
		{"Redirected", &Response{Status: http.StatusOK, Type: TypeBasic, Redirected: true}, false},
		{"Nil", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.resp.Cacheable(); got != tc.want {
				t.Errorf("Cacheable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStoredResponseCopies(t *testing.T) {
	resp := &Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/html"}},
		Body:   []byte("body"),
		Type:   TypeBasic,
	}
	stored := NewStoredResponse(resp)
	resp.Body[0] = 'X'
	resp.Header.Set("Content-Type", "changed")

	out := stored.ToResponse()
	if string(out.Body) != "body" {
		t.Errorf("Body = %q, want %q", out.Body, "body")
	}
	if out.Header.Get("Content-Type") != "text/html" {
		t.Errorf("Content-Type = %q, want text/html", out.Header.Get("Content-Type"))
	}
	if !out.FromCache {
		t.Error("FromCache = false")
	}
	if key := GetKey("https://localhost/a"); key.String() != "GET https://localhost/a" {
		t.Errorf("String() = %q", key.String())
	}
}
