package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-webring/internal/fetch"
)

const rssBody = `<?xml version="1.0"?><rss version="2.0"><channel>
<title>Site A</title><link>https://a.tld</link>
<item><title>p1</title><link>https://a.tld/1</link><pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate></item>
<item><title>p2</title><link>https://a.tld/2</link><pubDate>Tue, 03 Jan 2006 15:04:05 GMT</pubDate></item>
</channel></rss>`

func TestParse_RSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	f, err := Parse(context.Background(), fetch.New(fetch.Options{Timeout: 2 * time.Second}), srv.URL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Title != "Site A" || f.Items != 2 {
		t.Fatalf("feed = %+v", f)
	}
	if f.Updated.Day() != 3 {
		t.Fatalf("updated = %v", f.Updated)
	}
}

func TestParse_NotAFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>hi</body></html>"))
	}))
	defer srv.Close()
	if _, err := Parse(context.Background(), fetch.New(fetch.Options{}), srv.URL); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDiscover_CommonPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/atom.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(`<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><title>x</title></feed>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := Discover(context.Background(), fetch.New(fetch.Options{}), srv.URL)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if got != srv.URL+"/atom.xml" {
		t.Fatalf("got %q", got)
	}
}

func TestDiscover_LinkTag(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" || r.URL.RawQuery != "" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><link rel="alternate" type="application/rss+xml" href="/posts/feed.rss"></head></html>`))
	})
	mux.HandleFunc("/posts/feed.rss", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := Discover(context.Background(), fetch.New(fetch.Options{}), srv.URL)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if got != srv.URL+"/posts/feed.rss" {
		t.Fatalf("got %q", got)
	}
}
