// 包 render 负责把构建好的环写成静态站点：
// - 每个成员的 {slug}/{next}/index.html 与 {slug}/{previous}/index.html 跳转页
// - 模板目录下其余模板按相对路径渲染（首页、成员列表等）
// - {ring_name}.opml 订阅大纲与 {ring_name}.json 导出
// - 静态资源平铺复制；默认对 HTML/CSS/JS 做压缩
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	mhtml "github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"

	"go-webring/internal/config"
	"go-webring/internal/export"
	"go-webring/internal/fetch"
	"go-webring/internal/logx"
	"go-webring/internal/model"
)

// Page 为模板上下文。跳转模板额外获得 URL（目标站点地址）。
type Page struct {
	RingName        string
	RingDescription string
	RingOwner       string
	RingOwnerSite   string
	BaseURL         string

	NumberOfSites           int
	FeaturedSiteName        string
	FeaturedSiteDescription string
	FeaturedSiteURL         string
	CurrentTime             string
	OPML                    string

	TableOfSites template.HTML
	GridOfSites  template.HTML
	Sites        []model.RingEntry
	FailedSites  []model.AuditOutcome

	URL string
}

// Renderer 实现 pipeline.Renderer。
type Renderer struct {
	cfg        *config.Config
	tpl        *template.Template
	names      []string
	min        *minify.M
	feedClient *fetch.Client
	rng        *rand.Rand
	now        func() time.Time
}

// New 加载模板目录下的全部模板；跳转模板必须存在。
func New(cfg *config.Config) (*Renderer, error) {
	tpl, names, err := loadTemplates(cfg.PathTemplates)
	if err != nil {
		return nil, err
	}
	if tpl.Lookup(cfg.FilenameTemplateRedirect) == nil {
		return nil, fmt.Errorf("redirect template %s not found in %s", cfg.FilenameTemplateRedirect, cfg.PathTemplates)
	}
	r := &Renderer{
		cfg:   cfg,
		tpl:   tpl,
		names: names,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
	if !cfg.SkipMinify {
		r.min = newMinifier()
	}
	return r, nil
}

// WithFeedTitles 启用 OPML 订阅标题补全（会请求每个成员的订阅）。
func (r *Renderer) WithFeedTitles(cl *fetch.Client) *Renderer {
	r.feedClient = cl
	return r
}

// loadTemplates 递归读取目录下全部文件，以 "/" 分隔的相对路径作为模板名。
func loadTemplates(dir string) (*template.Template, []string, error) {
	root := template.New("")
	var names []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		b, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read template %s: %w", p, err)
		}
		if _, err := root.New(name).Parse(string(b)); err != nil {
			return fmt.Errorf("parse template %s: %w", name, err)
		}
		names = append(names, name)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load templates from %s: %w", dir, err)
	}
	return root, names, nil
}

func newMinifier() *minify.M {
	m := minify.New()
	m.Add("text/html", &mhtml.Minifier{KeepDocumentTags: true, KeepEndTags: true, KeepQuotes: true})
	m.AddFunc("text/css", css.Minify)
	m.AddFuncRegexp(regexp.MustCompile(`^(application|text)/(x-)?(java|ecma)script$`), js.Minify)
	return m
}

// Render 按顺序输出资源、跳转页、自定义模板、OPML 与 JSON 导出。
func (r *Renderer) Render(ctx context.Context, rg *model.Ring) error {
	if rg.Len() == 0 {
		return errors.New("render: empty ring")
	}
	for _, e := range rg.Entries {
		if !safeSlug(e.Site.Slug) {
			return fmt.Errorf("render: unsafe slug %q", e.Site.Slug)
		}
	}
	out := r.cfg.PathOutput
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", out, err)
	}
	if err := copyAssets(r.cfg.PathAssets, out); err != nil {
		return err
	}

	page := r.page(rg)
	for i, e := range rg.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir := filepath.Join(out, e.Site.Slug)
		if err := r.writeRedirect(filepath.Join(dir, r.cfg.NextURLText), page, rg.NextOf(i).URL); err != nil {
			return err
		}
		if err := r.writeRedirect(filepath.Join(dir, r.cfg.PrevURLText), page, rg.PrevOf(i).URL); err != nil {
			return err
		}
	}
	logx.Infof("已生成 %d 个站点的跳转页", rg.Len())

	for _, name := range r.names {
		if name == r.cfg.FilenameTemplateRedirect {
			continue
		}
		if err := r.writeTemplate(filepath.Join(out, filepath.FromSlash(name)), name, page); err != nil {
			return err
		}
	}

	opmlPath := filepath.Join(out, r.cfg.RingName+".opml")
	if err := writeOPML(opmlPath, r.buildOPML(ctx, rg.Entries)); err != nil {
		return err
	}
	logx.Infof("已生成 OPML：%s", opmlPath)

	jsonPath := filepath.Join(out, r.cfg.RingName+".json")
	if err := export.ToJSON(export.Build(r.cfg.RingName, r.cfg.BaseURL, rg, r.now()), jsonPath); err != nil {
		return err
	}
	logx.Infof("已导出 JSON：%s", jsonPath)
	return nil
}

// safeSlug 要求 slug 只占一级目录，不能跳出输出目录。
func safeSlug(slug string) bool {
	return slug != "" && slug != "." && !strings.Contains(slug, "..") && !strings.ContainsAny(slug, `/\`)
}

// page 预先计算所有模板共享的上下文；精选站点每次渲染随机挑选一个。
func (r *Renderer) page(rg *model.Ring) Page {
	featured := rg.Entries[r.rng.Intn(rg.Len())].Site
	return Page{
		RingName:                r.cfg.RingName,
		RingDescription:         r.cfg.RingDescription,
		RingOwner:               r.cfg.RingOwner,
		RingOwnerSite:           r.cfg.RingOwnerSite,
		BaseURL:                 r.cfg.BaseURL,
		NumberOfSites:           rg.Len(),
		FeaturedSiteName:        featured.DisplayName(),
		FeaturedSiteDescription: featured.About,
		FeaturedSiteURL:         featured.URL,
		CurrentTime:             r.now().Format("2006-01-02 15:04:05"),
		OPML:                    "./" + r.cfg.RingName + ".opml",
		TableOfSites:            TableOfSites(rg.Entries),
		GridOfSites:             GridOfSites(rg.Entries),
		Sites:                   rg.Entries,
		FailedSites:             rg.Failed,
	}
}

func (r *Renderer) writeRedirect(dir string, page Page, target string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	page.URL = target
	return r.writeTemplate(filepath.Join(dir, "index.html"), r.cfg.FilenameTemplateRedirect, page)
}

func (r *Renderer) writeTemplate(file, name string, page Page) error {
	var buf bytes.Buffer
	if err := r.tpl.ExecuteTemplate(&buf, name, page); err != nil {
		return fmt.Errorf("render template %s: %w", name, err)
	}
	content := buf.Bytes()
	if r.min != nil {
		if mt := mediaType(name); mt != "" {
			m, err := r.min.Bytes(mt, content)
			if err != nil {
				return fmt.Errorf("minify %s: %w", file, err)
			}
			content = m
		}
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", file, err)
	}
	if err := os.WriteFile(file, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	logx.Debugf("已生成文件：%s", file)
	return nil
}

// mediaType 按扩展名判断是否需要压缩；未知类型原样输出。
func mediaType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js":
		return "application/javascript"
	}
	return ""
}

// copyAssets 将资源目录下的文件平铺复制到输出目录（不递归子目录）；目录不存在时跳过。
func copyAssets(src, dst string) error {
	entries, err := os.ReadDir(src)
	if errors.Is(err, fs.ErrNotExist) {
		logx.Debugf("资源目录不存在，跳过复制：%s", src)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read assets dir %s: %w", src, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open asset %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
