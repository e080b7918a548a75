package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-webring/internal/config"
)

type workspace struct {
	dir      string
	settings string
	out      string
	db       string
}

func newWorkspace(t *testing.T, list string) workspace {
	t.Helper()
	dir := t.TempDir()
	w := workspace{
		dir:      dir,
		settings: filepath.Join(dir, "settings.yaml"),
		out:      filepath.Join(dir, "out"),
		db:       filepath.Join(dir, "history.db"),
	}
	settings := strings.Join([]string{
		"LIST: [" + filepath.Join(dir, "websites.json") + "]",
		"RING_NAME: testring",
		"PATH_OUTPUT: " + w.out,
		"PATH_TEMPLATES: " + filepath.Join(dir, "templates"),
		"PATH_ASSETS: " + filepath.Join(dir, "assets"),
		"SKIP_MINIFY: true",
		"LOG_LEVEL: off",
		"",
	}, "\n")
	files := map[string]string{
		"settings.yaml":           settings,
		"websites.json":           list,
		"templates/redirect.html": `<a href="{{.URL}}">{{.URL}}</a>`,
		"templates/index.html":    `<p>{{.NumberOfSites}}</p>`,
		"assets/robots.txt":       "User-agent: *",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return w
}

// addSettings 向工作区的 settings.yaml 追加配置行。
func (w workspace) addSettings(t *testing.T, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(w.settings, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(strings.Join(lines, "\n") + "\n")
	require.NoError(t, err)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const threeSites = `[{"slug":"a","url":"https://a.tld"},{"slug":"b","url":"https://b.tld"},{"slug":"c","url":"https://c.tld"}]`

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "webring version dev\n", out)
}

func TestGenerate_WritesOutputAndHistory(t *testing.T) {
	w := newWorkspace(t, threeSites)
	_, err := execute(t, "--config", w.settings, "--db", w.db)
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(w.out, "a", "next", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, `<a href="https://b.tld">https://b.tld</a>`, string(b))
	b, err = os.ReadFile(filepath.Join(w.out, "a", "previous", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "https://c.tld")
	assert.FileExists(t, filepath.Join(w.out, "index.html"))
	assert.FileExists(t, filepath.Join(w.out, "robots.txt"))
	assert.FileExists(t, filepath.Join(w.out, "testring.opml"))
	assert.FileExists(t, filepath.Join(w.out, "testring.json"))

	out, err := execute(t, "history", "--config", w.settings, "--db", w.db)
	require.NoError(t, err)
	assert.Contains(t, out, "RUN")
	assert.Contains(t, out, "\n1 ")
}

func TestGenerate_DryRunWritesNothing(t *testing.T) {
	w := newWorkspace(t, threeSites)
	out, err := execute(t, "--config", w.settings, "--dry-run", "--no-slug")
	require.NoError(t, err)
	assert.Contains(t, out, "1\thttps://a.tld\tprev=3\tnext=2\n")
	assert.NoDirExists(t, w.out)
}

func TestGenerate_InvalidList(t *testing.T) {
	w := newWorkspace(t, `[{"slug":"a","url":"https://a.tld"},{"slug":"a","url":"https://b.tld"}]`)
	_, err := execute(t, "--config", w.settings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate slug: a")

	_, err = execute(t, "--config", w.settings, "--skip-verification", "--dry-run")
	assert.NoError(t, err)
}

func TestGenerate_ListFlagOverridesConfig(t *testing.T) {
	w := newWorkspace(t, threeSites)
	other := filepath.Join(w.dir, "other.csv")
	require.NoError(t, os.WriteFile(other, []byte("slug,url\nx,https://x.tld\n"), 0o644))
	out, err := execute(t, "--config", w.settings, "--dry-run", "-l", other)
	require.NoError(t, err)
	assert.Equal(t, "x\thttps://x.tld\tprev=x\tnext=x\n", out)
}

func TestAudit_Report(t *testing.T) {
	const base = "https://ring.tld"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/good" {
			_, _ = w.Write([]byte(`<a href="` + base + `/good/next">n</a><a href="` + base + `/good/previous">p</a>`))
			return
		}
		_, _ = w.Write([]byte(`<a href="` + base + `/bad/next">n</a>`))
	}))
	defer srv.Close()

	w := newWorkspace(t, `[{"slug":"good","url":"`+srv.URL+`/good"},{"slug":"bad","url":"`+srv.URL+`/bad"}]`)
	out, err := execute(t, "audit", "--config", w.settings, "--base-url", base)
	require.NoError(t, err)
	assert.Contains(t, out, "SLUG")
	assert.Regexp(t, `good\s+\S+/good\s+pass`, out)
	assert.Regexp(t, `bad\s+\S+/bad\s+fail\s+Missing previous link\.`, out)

	_, err = execute(t, "audit", "--config", w.settings, "--base-url", base, "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 sites failed")

	_, err = execute(t, "audit", "--config", w.settings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BASE_URL")
}

func TestGenerate_BaseURLFlagSatisfiesAuditInFile(t *testing.T) {
	const base = "https://ring.tld"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<a href="` + base + `/solo/next">n</a><a href="` + base + `/solo/previous">p</a>`))
	}))
	defer srv.Close()

	w := newWorkspace(t, `[{"slug":"solo","url":"`+srv.URL+`"}]`)
	w.addSettings(t, "AUDIT: true")

	_, err := execute(t, "--config", w.settings, "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BASE_URL")

	out, err := execute(t, "--config", w.settings, "--base-url", base, "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "solo\t"+srv.URL+"\tprev=solo\tnext=solo\n", out)
}

func TestGenerate_AuditFlagFalseOverridesFile(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`<p>no ring links</p>`))
	}))
	defer srv.Close()

	w := newWorkspace(t, `[{"slug":"a","url":"`+srv.URL+`/a"},{"slug":"b","url":"`+srv.URL+`/b"}]`)
	w.addSettings(t, "AUDIT: true", "BASE_URL: https://ring.tld", "AUDIT_RETRIES_DELAY: 0")

	_, err := execute(t, "--config", w.settings, "--dry-run")
	require.Error(t, err)
	assert.Positive(t, hits.Load())

	hits.Store(0)
	out, err := execute(t, "--config", w.settings, "--dry-run", "--audit=false")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Zero(t, hits.Load())
}

func TestApplyFlags_OnlyChangedFlags(t *testing.T) {
	w := newWorkspace(t, threeSites)
	w.addSettings(t, "AUDIT: true", "BASE_URL: https://ring.tld")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", w.settings, "--audit=false", "--verbose=false"}))
	f := &flags{configPath: w.settings}
	f.audit, _ = cmd.Flags().GetBool("audit")

	cfg, err := loadConfig(w.settings)
	require.NoError(t, err)
	cfg.LogLevel = "debug"
	applyFlags(cmd, f, cfg)
	assert.False(t, cfg.Audit)
	assert.Equal(t, "info", cfg.LogLevel)

	cfg, err = loadConfig(w.settings)
	require.NoError(t, err)
	applyFlags(newRootCmd(), &flags{}, cfg)
	assert.True(t, cfg.Audit, "file value kept when the flag is absent")

	cfg = &config.Config{}
	applyFlags(newRootCmd(), &flags{forceAudit: true}, cfg)
	assert.True(t, cfg.Audit)
}

func TestHistory_PruneAndReset(t *testing.T) {
	w := newWorkspace(t, threeSites)
	_, err := execute(t, "--config", w.settings, "--db", w.db)
	require.NoError(t, err)

	out, err := execute(t, "history", "--config", w.settings, "--db", w.db, "--prune-days", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "\n1 ")

	out, err = execute(t, "history", "--config", w.settings, "--db", w.db, "--reset")
	require.NoError(t, err)
	assert.Equal(t, "history cleared\n", out)

	out, err = execute(t, "history", "--config", w.settings, "--db", w.db)
	require.NoError(t, err)
	assert.Equal(t, "no runs recorded\n", out)
}

func TestHistory_RequiresDatabase(t *testing.T) {
	w := newWorkspace(t, threeSites)
	_, err := execute(t, "history", "--config", w.settings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no history database configured")
}

func TestGenerate_Subcommand(t *testing.T) {
	w := newWorkspace(t, threeSites)
	out, err := execute(t, "generate", "--config", w.settings, "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "\n"))
	assert.Contains(t, out, "b\thttps://b.tld\tprev=a\tnext=c\n")
}
