// 包 audit 负责在线审计：并发抓取每个成员站点首页，
// 确认其页面包含指向本环 {base}/{slug}/{next|previous} 的互链。
// 单站失败只记录并剔除，不影响其它站点。
package audit

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"go-webring/internal/feeds"
	"go-webring/internal/fetch"
	"go-webring/internal/logx"
	"go-webring/internal/model"
)

// Settings 为审计参数。
type Settings struct {
	BaseURL  string
	NextText string
	PrevText string
	// Concurrency 为同时审计的站点上限，0 表示每个站点立即启动
	Concurrency int
	// CheckFeeds 为 true 时顺带解析通过审计站点的订阅（失败只告警）
	CheckFeeds bool
	// DiscoverFeeds 为 true 时为缺少 rss 的站点自动发现订阅
	DiscoverFeeds bool
}

// Auditor 持有共享 HTTP 客户端与审计参数；Audit 可被多次调用。
type Auditor struct {
	cl  *fetch.Client
	set Settings
	now func() time.Time
}

// New 创建 Auditor。
func New(cl *fetch.Client, s Settings) *Auditor {
	return &Auditor{cl: cl, set: s, now: time.Now}
}

// Result 为一次审计的汇总；Outcomes 按完成顺序排列。
type Result struct {
	Passed   []model.Site
	Outcomes []model.AuditOutcome
}

// Failed 返回未通过（含抓取失败）的结果。
func (r Result) Failed() []model.AuditOutcome {
	var out []model.AuditOutcome
	for _, o := range r.Outcomes {
		if !o.Passed() {
			out = append(out, o)
		}
	}
	return out
}

// Audit 为每个站点启动独立任务，在任务完成时即时记录并收集结果。
// 任务之间互不取消；ctx 仅传递给各自的请求。
func (a *Auditor) Audit(ctx context.Context, sites []model.Site) Result {
	results := make(chan model.AuditOutcome, len(sites))
	go func() {
		var g errgroup.Group
		if a.set.Concurrency > 0 {
			g.SetLimit(a.set.Concurrency)
		}
		for _, s := range sites {
			site := s
			g.Go(func() error {
				results <- a.AuditSite(ctx, site)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	var res Result
	for o := range results {
		res.Outcomes = append(res.Outcomes, o)
		switch o.Status {
		case model.AuditPass:
			res.Passed = append(res.Passed, o.Site)
		case model.AuditFail:
			logx.Warnf("站点审计未通过：%s | 原因：%s", o.Site.URL, o.Reason)
		default:
			logx.Errorf("站点审计出错：%s | 错误：%s", o.Site.URL, o.Reason)
		}
	}
	return res
}

// AuditSite 审计单个站点。site 为副本，发现的订阅地址只写入返回值。
func (a *Auditor) AuditSite(ctx context.Context, site model.Site) model.AuditOutcome {
	out := model.AuditOutcome{Site: site}
	html, err := a.cl.FetchHTML(ctx, site.URL)
	out.CheckedAt = a.now()
	if err != nil {
		out.Status = model.AuditError
		out.Reason = err.Error()
		return out
	}
	next, prev := ExpectedLinks(a.set.BaseURL, site.Slug, a.set.NextText, a.set.PrevText)
	found, err := FindLinks(html, next, prev)
	if err != nil {
		out.Status = model.AuditError
		out.Reason = err.Error()
		return out
	}
	if !found.OK() {
		out.Status = model.AuditFail
		out.Reason = found.Reason()
		return out
	}
	out.Status = model.AuditPass
	logx.Debugf("站点审计通过：%s（%s）", site.URL, found.Via)
	a.checkFeed(ctx, &out.Site)
	return out
}

// checkFeed 处理订阅发现与校验，仅影响 rss 字段与日志，不改变审计结论。
func (a *Auditor) checkFeed(ctx context.Context, site *model.Site) {
	if site.RSS == "" && a.set.DiscoverFeeds {
		u, err := feeds.Discover(ctx, a.cl, site.URL)
		if err != nil {
			logx.Debugf("[%s] 未发现订阅：%v", site.Slug, err)
			return
		}
		logx.Infof("[%s] 发现订阅：%s", site.Slug, u)
		site.RSS = u
	}
	if site.RSS == "" || !a.set.CheckFeeds {
		return
	}
	f, err := feeds.Parse(ctx, a.cl, site.RSS)
	if err != nil {
		logx.Warnf("[%s] 订阅解析失败：%v", site.Slug, err)
		return
	}
	logx.Debugf("[%s] 订阅 %q 共 %d 条", site.Slug, f.Title, f.Items)
}
