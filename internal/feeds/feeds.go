// 包 feeds 负责成员站点的订阅处理：
// - Discover：基于常见路径与 HTML <link rel=alternate> 发现订阅地址
// - Parse：使用 gofeed 解析 RSS/Atom/JSON Feed，得到标题与条目概要
package feeds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"go-webring/internal/fetch"
	"go-webring/internal/logx"
)

// Feed 为解析后的订阅概要。
type Feed struct {
	Title   string
	Link    string
	Items   int
	Updated time.Time
}

// Parse 抓取并解析订阅。
func Parse(ctx context.Context, cl *fetch.Client, feedURL string) (*Feed, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 25*time.Second)
	defer cancel()
	resp, err := cl.Get(reqCtx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("GET feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()
	f, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	out := &Feed{
		Title: strings.TrimSpace(f.Title),
		Link:  f.Link,
		Items: len(f.Items),
	}
	for _, it := range f.Items {
		for _, t := range []*time.Time{it.UpdatedParsed, it.PublishedParsed} {
			if t != nil && t.After(out.Updated) {
				out.Updated = *t
			}
		}
	}
	return out, nil
}

// candidatePaths 为常见订阅端点，按命中率排序。
var candidatePaths = []string{
	"/index.xml",
	"/feed.xml",
	"/atom.xml",
	"/rss.xml",
	"/feed",
	"/rss",
	"/feed.json",
	"/?feed=rss2",
}

// Discover 依次探测常见端点，失败后回退到解析首页 <link> 声明。
func Discover(ctx context.Context, cl *fetch.Client, site string) (string, error) {
	for _, p := range candidatePaths {
		u := joinURL(site, p)
		logx.Debugf("探测候选订阅：%s", u)
		if probe(ctx, cl, u) {
			return u, nil
		}
	}
	resp, err := cl.Get(ctx, site)
	if err != nil {
		return "", fmt.Errorf("GET site %s: %w", site, err)
	}
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var found string
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel := strings.ToLower(s.AttrOr("rel", ""))
		typ := strings.ToLower(s.AttrOr("type", ""))
		href := s.AttrOr("href", "")
		if href == "" || !strings.Contains(rel, "alternate") {
			return true
		}
		if strings.Contains(typ, "rss") || strings.Contains(typ, "atom") || strings.Contains(typ, "json") {
			found = joinURL(site, href)
			return false
		}
		return true
	})
	if found != "" && probe(ctx, cl, found) {
		logx.Debugf("从 <link> 发现订阅：%s", found)
		return found, nil
	}
	return "", fmt.Errorf("no feed discovered for %s", site)
}

// probe 根据 Content-Type 与正文开头粗略判断是否为订阅。
func probe(ctx context.Context, cl *fetch.Client, feedURL string) bool {
	prCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	resp, err := cl.Get(prCtx, feedURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	head, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	lb := bytes.ToLower(head)
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "json"):
		return bytes.Contains(lb, []byte("jsonfeed.org/version"))
	case strings.Contains(ct, "rss"), strings.Contains(ct, "atom"), strings.Contains(ct, "xml"):
		return true
	}
	return bytes.Contains(lb, []byte("<rss")) || bytes.Contains(lb, []byte("<feed")) || bytes.Contains(lb, []byte("<rdf"))
}

// joinURL 将 ref 相对 base 解析为绝对 URL。
func joinURL(base, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	u, err := url.Parse(base)
	if err != nil {
		return strings.TrimSuffix(base, "/") + ref
	}
	ru, err := url.Parse(ref)
	if err != nil {
		return strings.TrimSuffix(base, "/") + ref
	}
	return u.ResolveReference(ru).String()
}
