// 包 model 定义环内共享的数据模型（站点/环条目/审计结果/导出结构）。
package model

import "time"

// Site 为成员站点的原始记录；slug 与 url 共同构成自然键。
type Site struct {
	Slug  string `json:"slug" toml:"slug" yaml:"slug"`
	Name  string `json:"name,omitempty" toml:"name" yaml:"name"`
	About string `json:"about,omitempty" toml:"about" yaml:"about"`
	URL   string `json:"url" toml:"url" yaml:"url"`
	RSS   string `json:"rss,omitempty" toml:"rss" yaml:"rss"`
	Owner string `json:"owner,omitempty" toml:"owner" yaml:"owner"`
}

// DisplayName 返回站点名称，缺省时回退到 URL。
func (s Site) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.URL
}

// RingEntry 包装站点并携带同一序列内的 next/previous 下标。
type RingEntry struct {
	Site     Site `json:"site"`
	Next     int  `json:"next"`
	Previous int  `json:"previous"`
}

// Ring 为最终的环序列；Failed 记录审计未通过的站点，供渲染层展示。
type Ring struct {
	Entries []RingEntry    `json:"entries"`
	Failed  []AuditOutcome `json:"failed,omitempty"`
}

// Len 返回环内站点数。
func (r *Ring) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Entries)
}

// NextOf 返回第 i 个条目的下一个站点。
func (r *Ring) NextOf(i int) Site { return r.Entries[r.Entries[i].Next].Site }

// PrevOf 返回第 i 个条目的上一个站点。
func (r *Ring) PrevOf(i int) Site { return r.Entries[r.Entries[i].Previous].Site }

// AuditStatus 为单站审计的三态结果。
type AuditStatus string

const (
	AuditPass  AuditStatus = "pass"
	AuditFail  AuditStatus = "fail"
	AuditError AuditStatus = "error"
)

// AuditOutcome 为单站审计结果（不持久化到环中，仅用于日志/报表/历史）。
type AuditOutcome struct {
	Site      Site        `json:"site"`
	Status    AuditStatus `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}

// Passed 报告该站点是否通过审计。
func (o AuditOutcome) Passed() bool { return o.Status == AuditPass }

// Stats 为一次运行的统计信息。
type Stats struct {
	SitesTotal  int       `json:"sites_total"`
	SitesInRing int       `json:"sites_in_ring"`
	SitesFailed int       `json:"sites_failed"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Export 为 {ring_name}.json 的顶层结构。
type Export struct {
	Name    string         `json:"name"`
	BaseURL string         `json:"base_url"`
	Stats   Stats          `json:"stats"`
	Ring    []RingEntry    `json:"ring"`
	Failed  []AuditOutcome `json:"failed,omitempty"`
}

// Run 为一次运行的审计历史记录。
type Run struct {
	ID         int64          `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	SitesTotal int            `json:"sites_total"`
	RingSlugs  []string       `json:"ring_slugs"`
	Outcomes   []AuditOutcome `json:"outcomes"`
}
