package sources

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"go-webring/internal/config"
	"go-webring/internal/fetch"
	"go-webring/internal/model"
)

// ParsePage 从已有的成员列表页抽取站点（如从旧友链页迁移到本环）。
// 选择器语法：
// - 文本：".name" 或 "."（取当前项文本）
// - 属性："a@href"/"@data-url"（当前项属性）
// - 回退：使用 "||" 连接多个候选，按先后尝试
func ParsePage(ctx context.Context, cl *fetch.Client, ps config.PageSource) ([]model.Site, error) {
	if ps.Item == "" {
		return nil, fmt.Errorf("page source %s: item selector is required", ps.URL)
	}
	resp, err := cl.Get(ctx, ps.URL)
	if err != nil {
		return nil, fmt.Errorf("GET members page %s: %w", ps.URL, err)
	}
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("parse members page html: %w", err)
	}
	link := ps.Link
	if link == "" {
		link = "a@href"
	}
	var out []model.Site
	doc.Find(ps.Item).Each(func(_ int, s *goquery.Selection) {
		site := model.Site{
			Slug:  selectVal(s, ps.Slug),
			Name:  selectVal(s, ps.Name),
			About: selectVal(s, ps.About),
			Owner: selectVal(s, ps.Owner),
			URL:   absURL(ps.URL, selectVal(s, link)),
			RSS:   absURL(ps.URL, selectVal(s, ps.RSS)),
		}
		if site.URL == "" {
			return
		}
		out = append(out, site)
	})
	return out, nil
}

// selectVal 解析表达式，支持 "||" 回退。
func selectVal(scope *goquery.Selection, expr string) string {
	for _, p := range strings.Split(expr, "||") {
		if v := selectOne(scope, strings.TrimSpace(p)); v != "" {
			return v
		}
	}
	return ""
}

func selectOne(scope *goquery.Selection, expr string) string {
	switch {
	case expr == "":
		return ""
	case expr == ".":
		return strings.TrimSpace(scope.Text())
	}
	if at := strings.Index(expr, "@"); at != -1 {
		sel := strings.TrimSpace(expr[:at])
		attr := strings.TrimSpace(expr[at+1:])
		el := scope
		if sel != "" {
			el = scope.Find(sel).First()
		}
		return strings.TrimSpace(el.AttrOr(attr, ""))
	}
	return strings.TrimSpace(scope.Find(expr).First().Text())
}

// absURL 将相对链接转换为绝对 URL。
func absURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	bu, err := url.Parse(base)
	if err != nil {
		return ref
	}
	ru, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return bu.ResolveReference(ru).String()
}
