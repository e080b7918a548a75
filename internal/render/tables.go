package render

import (
	"fmt"
	"html/template"
	"strings"

	"go-webring/internal/model"
)

// rssLink 返回 " [rss]" 链接片段，rss 为空时返回空串。
func rssLink(rss string) string {
	if rss == "" {
		return ""
	}
	return fmt.Sprintf(` <a href="%s" target="_blank">[rss]</a>`, template.HTMLEscapeString(rss))
}

// TableOfSites 生成成员表格（#、Name、URL、About、Owner）。
func TableOfSites(entries []model.RingEntry) template.HTML {
	var b strings.Builder
	b.WriteString("<table>\n<thead>\n<tr>\n")
	b.WriteString(`<th scope="col">#</th>` + "\n" + `<th scope="col">Name</th>` + "\n" + `<th scope="col">URL</th>` + "\n" +
		`<th scope="col">About</th>` + "\n" + `<th scope="col">Owner</th>` + "\n")
	b.WriteString("</tr>\n</thead>\n<tbody>\n")
	for i, e := range entries {
		s := e.Site
		u := template.HTMLEscapeString(s.URL)
		b.WriteString("<tr>\n")
		fmt.Fprintf(&b, "<td>%d</td>\n", i+1)
		fmt.Fprintf(&b, "<td>%s</td>\n", template.HTMLEscapeString(s.Slug))
		fmt.Fprintf(&b, "<td><a href=\"%s\" target=\"_blank\">%s</a>%s</td>\n", u, u, rssLink(s.RSS))
		fmt.Fprintf(&b, "<td>%s</td>\n", template.HTMLEscapeString(s.About))
		fmt.Fprintf(&b, "<td>%s</td>\n", FormatOwner(s.Owner))
		b.WriteString("</tr>\n")
	}
	b.WriteString("</tbody>\n</table>\n")
	return template.HTML(b.String())
}

// GridOfSites 生成 CSS grid 卡片布局。
func GridOfSites(entries []model.RingEntry) template.HTML {
	var b strings.Builder
	b.WriteString("<section class=\"cards\">\n")
	for _, e := range entries {
		s := e.Site
		u := template.HTMLEscapeString(s.URL)
		b.WriteString("<article class=\"card\">\n")
		fmt.Fprintf(&b, "<div class=\"card-name\">%s <span class=\"card-slug\">(%s)</span></div>\n",
			FormatOwner(s.Owner), template.HTMLEscapeString(s.Slug))
		b.WriteString("<div class=\"card-content\">\n")
		fmt.Fprintf(&b, "<div class=\"card-link\"><a href=\"%s\" target=\"_blank\">%s</a>&nbsp;%s</div>\n", u, u, rssLink(s.RSS))
		fmt.Fprintf(&b, "<div class=\"card-text\">%s</div>\n", template.HTMLEscapeString(s.About))
		b.WriteString("</div>\n</article>\n")
	}
	b.WriteString("</section>")
	return template.HTML(b.String())
}
