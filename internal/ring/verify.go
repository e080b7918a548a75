// 包 ring 负责离线部分：成员名单校验（Verify）与环序列构建（Build）。
package ring

import (
	"errors"
	"fmt"
	"regexp"

	"go-webring/internal/model"
)

// ErrInvalidSites 为名单校验失败的哨兵错误，具体原因见包装信息。
var ErrInvalidSites = errors.New("invalid site list")

var urlPattern = regexp.MustCompile(`^(http|https)://[^\s/$.?#].[^\s]*$`)

// ValidURL 报告 raw 是否为可接受的绝对 http(s) URL。
func ValidURL(raw string) bool { return urlPattern.MatchString(raw) }

// Verify 按记录顺序检查 URL 格式、slug 唯一与 URL 唯一，遇到第一个问题即返回。
func Verify(sites []model.Site) error {
	slugs := make(map[string]struct{}, len(sites))
	urls := make(map[string]struct{}, len(sites))
	for _, s := range sites {
		if !ValidURL(s.URL) {
			return fmt.Errorf("%w: unrecognized URL format: %s - %s", ErrInvalidSites, s.URL, s.Slug)
		}
		if _, ok := slugs[s.Slug]; ok {
			return fmt.Errorf("%w: duplicate slug: %s - %s", ErrInvalidSites, s.Slug, s.Owner)
		}
		slugs[s.Slug] = struct{}{}
		if _, ok := urls[s.URL]; ok {
			return fmt.Errorf("%w: duplicate URL: %s - %s", ErrInvalidSites, s.URL, s.Owner)
		}
		urls[s.URL] = struct{}{}
	}
	return nil
}

// CheckSlugs 在 slug 推导之后复查唯一性（URL 去标点可能撞车）。
func CheckSlugs(entries []model.RingEntry) error {
	seen := make(map[string]string, len(entries))
	for _, e := range entries {
		if prev, ok := seen[e.Site.Slug]; ok {
			return fmt.Errorf("%w: duplicate slug after derivation: %s (%s, %s)", ErrInvalidSites, e.Site.Slug, prev, e.Site.URL)
		}
		seen[e.Site.Slug] = e.Site.URL
	}
	return nil
}
