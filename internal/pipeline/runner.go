// 包 pipeline 负责主流程编排：
// 校验名单 → （可选）在线审计 → 非空检查 → 构建环 → 交给渲染层。
// 只有流程级错误（校验失败、审计后为空）会返回给调用方，单站问题在审计内部消化。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go-webring/internal/audit"
	"go-webring/internal/config"
	"go-webring/internal/logx"
	"go-webring/internal/model"
	"go-webring/internal/ring"
)

// ErrNoValidSites 表示审计（或加载）后没有剩余站点。
var ErrNoValidSites = errors.New("no valid sites passed the audit")

// Renderer 为渲染层（页面/OPML/导出）的输入契约。
type Renderer interface {
	Render(ctx context.Context, rg *model.Ring) error
}

// Recorder 保存审计历史，可选。
type Recorder interface {
	SaveRun(ctx context.Context, run model.Run) (int64, error)
}

// Runner 持有配置、审计器、渲染器与历史记录器。
type Runner struct {
	cfg    *config.Config
	audit  *audit.Auditor
	render Renderer
	record Recorder
	// rng 仅用于洗牌，每次运行播种一次
	rng *rand.Rand
}

// New 创建 Runner；render/record 可为 nil。
func New(cfg *config.Config, aud *audit.Auditor, render Renderer, record Recorder) *Runner {
	return &Runner{
		cfg:    cfg,
		audit:  aud,
		render: render,
		record: record,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand 替换洗牌随机源（测试用）。
func (r *Runner) WithRand(rng *rand.Rand) *Runner {
	r.rng = rng
	return r
}

// Run 执行一轮完整流程并返回环序列。dry-run 时在构建完成后返回，不产生任何写出。
func (r *Runner) Run(ctx context.Context, sites []model.Site) (*model.Ring, error) {
	started := time.Now()
	if !r.cfg.SkipVerify {
		logx.Infof("开始校验站点名单：共 %d 个", len(sites))
		if err := ring.Verify(sites); err != nil {
			return nil, err
		}
		logx.Infof("站点名单校验通过")
	}

	working := sites
	var outcomes, failed []model.AuditOutcome
	if r.cfg.Audit {
		if r.audit == nil {
			return nil, errors.New("audit enabled but no auditor configured")
		}
		logx.Infof("开始审计站点互链：共 %d 个", len(sites))
		res := r.audit.Audit(ctx, sites)
		outcomes = res.Outcomes
		failed = res.Failed()
		working = inInputOrder(sites, res.Passed)
		logx.Infof("审计完成：%d / %d 个站点通过", len(working), len(sites))
	}

	if len(working) == 0 {
		return nil, ErrNoValidSites
	}

	if r.cfg.Shuffle {
		logx.Infof("打乱站点顺序")
	}
	entries := ring.Build(working, ring.Options{
		Shuffle:      r.cfg.Shuffle,
		NumericSlugs: r.cfg.NoSlug,
		Rand:         r.rng,
	})
	if !r.cfg.SkipVerify {
		if err := ring.CheckSlugs(entries); err != nil {
			return nil, err
		}
	}
	rg := &model.Ring{Entries: entries, Failed: failed}

	if r.cfg.DryRun {
		logx.Infof("dry-run：已构建 %d 个站点的环，跳过写出", rg.Len())
		return rg, nil
	}

	if r.record != nil {
		run := model.Run{
			StartedAt:  started,
			FinishedAt: time.Now(),
			SitesTotal: len(sites),
			Outcomes:   outcomes,
		}
		for _, e := range entries {
			run.RingSlugs = append(run.RingSlugs, e.Site.Slug)
		}
		if id, err := r.record.SaveRun(ctx, run); err != nil {
			logx.Warnf("写入审计历史失败：%v", err)
		} else {
			logx.Debugf("审计历史已保存：run=%d", id)
		}
	}

	if r.render != nil {
		logx.Infof("开始生成环页面")
		if err := r.render.Render(ctx, rg); err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		logx.Infof("环页面生成完成")
	}
	return rg, nil
}

// inInputOrder 按原名单顺序返回通过审计的站点（审计结果为完成顺序）。
// 审计可能为站点补充 rss，因此取审计返回的副本。
func inInputOrder(input, passed []model.Site) []model.Site {
	byKey := make(map[string][]model.Site, len(passed))
	for _, s := range passed {
		k := s.Slug + "\x00" + s.URL
		byKey[k] = append(byKey[k], s)
	}
	out := make([]model.Site, 0, len(passed))
	for _, s := range input {
		k := s.Slug + "\x00" + s.URL
		if q := byKey[k]; len(q) > 0 {
			out = append(out, q[0])
			byKey[k] = q[1:]
		}
	}
	return out
}
