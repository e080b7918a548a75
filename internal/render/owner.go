package render

import (
	"fmt"
	"html/template"
	"regexp"
	"strings"
)

var (
	hyperlinkRe = regexp.MustCompile(`<a\s+[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	fediverseRe = regexp.MustCompile(`^@([^\s@]+)@([^\s@]+\.[^\s@]+)$`)
	phoneRe     = regexp.MustCompile(`^\+?\d{10,15}$`)
	smsRe       = regexp.MustCompile(`^sms:\+?\d{10,15}$`)
	schemeRe    = regexp.MustCompile(`^[a-z]+://`)
	emailRe     = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// FormatOwner 将 owner 字段按空白切分，并把可识别的联系方式转换为链接：
// 已有 <a> 原样保留；@user@host → 联邦宇宙主页；电话 → tel:；sms: → sms:；
// 带协议的 URL → 新窗口链接；邮箱 → mailto:。其余片段转义后输出。
func FormatOwner(owner string) string {
	var parts []string
	last := 0
	for _, loc := range hyperlinkRe.FindAllStringIndex(owner, -1) {
		parts = appendOwnerParts(parts, owner[last:loc[0]])
		parts = append(parts, owner[loc[0]:loc[1]])
		last = loc[1]
	}
	parts = appendOwnerParts(parts, owner[last:])
	return strings.Join(parts, " ")
}

func appendOwnerParts(parts []string, s string) []string {
	for _, p := range strings.Fields(s) {
		parts = append(parts, formatOwnerPart(p))
	}
	return parts
}

func formatOwnerPart(p string) string {
	esc := template.HTMLEscapeString(p)
	switch {
	case fediverseRe.MatchString(p):
		m := fediverseRe.FindStringSubmatch(p)
		return fmt.Sprintf(`<a href="https://%s/@%s">%s</a>`,
			template.HTMLEscapeString(m[2]), template.HTMLEscapeString(m[1]), esc)
	case phoneRe.MatchString(p):
		return fmt.Sprintf(`<a href="tel:%s">%s</a>`, esc, esc)
	case smsRe.MatchString(p):
		return fmt.Sprintf(`<a href="%s">%s</a>`, esc, esc)
	case schemeRe.MatchString(p):
		return fmt.Sprintf(`<a href="%s" target="_blank">%s</a>`, esc, esc)
	case emailRe.MatchString(p):
		return fmt.Sprintf(`<a href="mailto:%s">%s</a>`, esc, esc)
	}
	return esc
}
