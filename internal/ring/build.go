package ring

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go-webring/internal/model"
)

// Options 控制环的构建方式。
type Options struct {
	Shuffle bool
	// NumericSlugs 为 true 时按最终顺序将 slug 改写为 "1".."N"
	NumericSlugs bool
	// Rand 为洗牌使用的随机源；为空时按本次运行新建一个
	Rand *rand.Rand
}

// Build 将站点列表整理为环序列：可选洗牌 → 补全 slug → 分配 next/previous 下标。
// 输入切片不会被修改；N 为 0 时返回空序列。
func Build(sites []model.Site, opts Options) []model.RingEntry {
	list := make([]model.Site, len(sites))
	copy(list, sites)

	if opts.Shuffle && len(list) > 1 {
		rng := opts.Rand
		if rng == nil {
			rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		rng.Shuffle(len(list), func(i, j int) { list[i], list[j] = list[j], list[i] })
	}

	for i := range list {
		switch {
		case opts.NumericSlugs:
			list[i].Slug = strconv.Itoa(i + 1)
		case list[i].Slug == "":
			list[i].Slug = DeriveSlug(list[i].URL)
		}
	}

	n := len(list)
	entries := make([]model.RingEntry, n)
	for i, s := range list {
		entries[i] = model.RingEntry{
			Site:     s,
			Next:     (i + 1) % n,
			Previous: (i - 1 + n) % n,
		}
	}
	return entries
}

// DeriveSlug 去掉 URL 中所有非字母数字字符作为 slug。
func DeriveSlug(rawURL string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, rawURL)
}
