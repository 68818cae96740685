package cachepath

import (
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		query    string
		accept   string
		filePath string
		kind     Kind
	}{
		{
			name:     "root page",
			url:      "http://example.com/",
			accept:   "text/html",
			filePath: "tld-com/domain-example/index.html",
			kind:     KindHTML,
		},
		{
			name:     "page without extension",
			url:      "http://example.com/search",
			accept:   "text/html",
			filePath: "tld-com/domain-example/search/index.html",
			kind:     KindHTML,
		},
		{
			name:     "query parameters become suffixes",
			url:      "http://example.com/search",
			query:    "q=hello",
			accept:   "text/html",
			filePath: "tld-com/domain-example/search/index.html.q--hello",
			kind:     KindHTML,
		},
		{
			name:     "multiple query parameters keep their order",
			url:      "http://example.com/search",
			query:    "q=hello&page=2",
			accept:   "text/html",
			filePath: "tld-com/domain-example/search/index.html.q--hello.page--2",
			kind:     KindHTML,
		},
		{
			name:     "subdomains group under the domain",
			url:      "http://mail.google.com/inbox.html",
			accept:   "text/html",
			filePath: "tld-com/domain-google/domain-mail/inbox.html",
			kind:     KindHTML,
		},
		{
			name:     "image",
			url:      "http://example.com/img/logo.png",
			accept:   "text/html",
			filePath: "tld-com/domain-example/img/logo.png",
			kind:     KindImage,
		},
		{
			name:     "stylesheet",
			url:      "http://example.com/style.css",
			accept:   "text/css",
			filePath: "tld-com/domain-example/style.css",
			kind:     KindCSS,
		},
		{
			name:     "php counts as html",
			url:      "http://example.com/page.php",
			accept:   "text/html",
			filePath: "tld-com/domain-example/page.php",
			kind:     KindHTML,
		},
		{
			name:     "unknown extension is a plain file",
			url:      "http://example.com/download.zip",
			accept:   "application/zip",
			filePath: "tld-com/domain-example/download.zip",
			kind:     KindFile,
		},
		{
			name:     "non-html accept synthesizes an extension",
			url:      "http://example.com/api",
			accept:   "application/json",
			filePath: "tld-com/domain-example/api.json",
			kind:     KindFile,
		},
		{
			name:     "directory path with non-html accept",
			url:      "http://example.com/img/",
			accept:   "image/png",
			filePath: "tld-com/domain-example/img/index.png",
			kind:     KindImage,
		},
		{
			name:     "special characters are stripped",
			url:      "http://example.com/a,b;c/d.txt",
			accept:   "text/plain",
			filePath: "tld-com/domain-example/abc/d.txt",
			kind:     KindFile,
		},
		{
			name:     "archive prefix is stripped",
			url:      "https://web.archive.org/web/http://example.com/",
			accept:   "text/html",
			filePath: "tld-com/domain-example/index.html",
			kind:     KindHTML,
		},
		{
			name:     "port is dropped",
			url:      "http://example.com:8080/page.html",
			accept:   "text/html",
			filePath: "tld-com/domain-example/page.html",
			kind:     KindHTML,
		},
		{
			name:     "https",
			url:      "https://example.com/",
			accept:   "text/html",
			filePath: "tld-com/domain-example/index.html",
			kind:     KindHTML,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp, err := Resolve(tt.url, tt.query, tt.accept)
			if err != nil {
				t.Fatal(err)
			}
			if cp.FilePath != tt.filePath {
				t.Fatalf("FilePath is %s, wanted %s", cp.FilePath, tt.filePath)
			}
			if cp.Kind != tt.kind {
				t.Fatalf("Kind is %s, wanted %s", cp.Kind, tt.kind)
			}
			if cp.Dir+"/"+cp.FileName != cp.FilePath {
				t.Fatalf("Dir %s and FileName %s do not make up FilePath %s", cp.Dir, cp.FileName, cp.FilePath)
			}
		})
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	first, err := Resolve("http://example.com/search", "q=hello&lang=en", "text/html")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := Resolve("http://example.com/search", "q=hello&lang=en", "text/html")
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("Resolve returned %+v, first call returned %+v", again, first)
		}
	}
}

func TestResolveWwwEquivalence(t *testing.T) {
	bare, err := Resolve("http://example.com/x", "", "text/html")
	if err != nil {
		t.Fatal(err)
	}
	www, err := Resolve("http://www.example.com/x", "", "text/html")
	if err != nil {
		t.Fatal(err)
	}
	if bare != www {
		t.Fatalf("www resolved to %+v, bare domain to %+v", www, bare)
	}
}

func TestResolveQueryOrderMatters(t *testing.T) {
	// parameter order is part of the cache key, not canonicalized
	ab, _ := Resolve("http://example.com/s", "a=1&b=2", "text/html")
	ba, _ := Resolve("http://example.com/s", "b=2&a=1", "text/html")
	if ab.FilePath == ba.FilePath {
		t.Fatalf("Differently ordered query strings share path %s", ab.FilePath)
	}
}

func TestResolveQueryNeverShadowsBareVariant(t *testing.T) {
	bare, _ := Resolve("http://example.com/search", "", "text/html")
	withQuery, _ := Resolve("http://example.com/search", "q=hello", "text/html")
	if bare.FilePath == withQuery.FilePath {
		t.Fatalf("Query variant shares path %s with the bare variant", bare.FilePath)
	}
}

func TestResolveInvalidURL(t *testing.T) {
	for _, url := range []string{"", "example.com/x", "ftp://example.com/x", "//example.com"} {
		if _, err := Resolve(url, "", "text/html"); err != ErrInvalidURL {
			t.Fatalf("Resolve(%q) error is %v", url, err)
		}
	}
}

func TestResolveLeadingSlash(t *testing.T) {
	cp, err := Resolve("/http://example.com/", "", "text/html")
	if err != nil {
		t.Fatal(err)
	}
	if cp.FilePath != "tld-com/domain-example/index.html" {
		t.Fatalf("FilePath is %s", cp.FilePath)
	}
}
