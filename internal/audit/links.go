package audit

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExpectedLinks 返回站点应当发布的 next/previous 链接。
func ExpectedLinks(baseURL, slug, nextText, prevText string) (next, prev string) {
	base := strings.TrimRight(baseURL, "/")
	return base + "/" + slug + "/" + nextText, base + "/" + slug + "/" + prevText
}

// Found 记录互链检测结果。
type Found struct {
	Next bool
	Prev bool
	// Via 为最后一次命中的元素类型（a/button/img），便于调试
	Via string
}

// OK 报告两条链接是否都已找到。
func (f Found) OK() bool { return f.Next && f.Prev }

// Reason 列出缺失的链接，例如 "Missing next link. Missing previous link. "。
func (f Found) Reason() string {
	var b strings.Builder
	if !f.Next {
		b.WriteString("Missing next link. ")
	}
	if !f.Prev {
		b.WriteString("Missing previous link. ")
	}
	return b.String()
}

// FindLinks 依次检查 <a href>（去尾斜杠后精确匹配）、<button onclick>、<img onclick>（子串匹配），
// 前一类已找齐时不再检查后一类。
func FindLinks(html, next, prev string) (Found, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Found{}, fmt.Errorf("parse html: %w", err)
	}
	var f Found
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimRight(s.AttrOr("href", ""), "/")
		switch href {
		case next:
			f.Next, f.Via = true, "a"
		case prev:
			f.Prev, f.Via = true, "a"
		}
	})
	for _, tag := range []string{"button", "img"} {
		if f.OK() {
			break
		}
		doc.Find(tag + "[onclick]").Each(func(_ int, s *goquery.Selection) {
			onclick := s.AttrOr("onclick", "")
			if strings.Contains(onclick, next) {
				f.Next, f.Via = true, tag
			}
			if strings.Contains(onclick, prev) {
				f.Prev, f.Via = true, tag
			}
		})
	}
	return f, nil
}
