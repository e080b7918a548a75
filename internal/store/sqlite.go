// 包 store 提供审计历史的存储实现（SQLite），包含表迁移/写入/查询/清理等操作。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"go-webring/internal/model"
)

// ErrNoRuns 表示历史库中尚无记录。
var ErrNoRuns = errors.New("no runs recorded")

// SQLite 封装 *sql.DB，基于 modernc.org/sqlite（纯 Go 实现）。
type SQLite struct {
	db *sql.DB
}

// OpenSQLite 打开 SQLite 数据库并执行自动迁移。
func OpenSQLite(path string) (*SQLite, error) {
	// modernc sqlite 的 DSN 可直接使用文件路径，或以 'file:...' 前缀表示
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// Reset 清空历史数据表（不删除数据库文件）。
func (s *SQLite) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM outcomes`); err != nil {
		return fmt.Errorf("delete outcomes: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs`); err != nil {
		return fmt.Errorf("delete runs: %w", err)
	}
	return nil
}

// migrate 执行建表语句，保持幂等。
func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            started_at TIMESTAMP,
            finished_at TIMESTAMP,
            sites_total INTEGER,
            ring_slugs TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS outcomes (
            run_id INTEGER,
            slug TEXT,
            url TEXT,
            owner TEXT,
            status TEXT,
            reason TEXT,
            checked_at TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

// SaveRun 在一个事务内写入运行记录及其逐站结果，返回新记录 ID。
func (s *SQLite) SaveRun(ctx context.Context, run model.Run) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT INTO runs(started_at, finished_at, sites_total, ring_slugs) VALUES(?,?,?,?)`,
		nowOr(run.StartedAt), nowOr(run.FinishedAt), run.SitesTotal, strings.Join(run.RingSlugs, "\n"))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}
	for _, o := range run.Outcomes {
		if _, err := tx.ExecContext(ctx, `INSERT INTO outcomes(run_id, slug, url, owner, status, reason, checked_at) VALUES(?,?,?,?,?,?,?)`,
			id, o.Site.Slug, o.Site.URL, o.Site.Owner, string(o.Status), o.Reason, nowOr(o.CheckedAt)); err != nil {
			return 0, fmt.Errorf("insert outcome %s: %w", o.Site.URL, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}
	return id, nil
}

// ListRuns 按时间倒序返回最近 limit 次运行（不含逐站结果）；limit<=0 返回全部。
func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	q := `SELECT id, started_at, finished_at, sites_total, COALESCE(ring_slugs,'') FROM runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var out []model.Run
	for rows.Next() {
		var r model.Run
		var started, finished sql.NullTime
		var slugs string
		if err := rows.Scan(&r.ID, &started, &finished, &r.SitesTotal, &slugs); err != nil {
			return nil, fmt.Errorf("scan runs: %w", err)
		}
		if started.Valid {
			r.StartedAt = started.Time
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		if slugs != "" {
			r.RingSlugs = strings.Split(slugs, "\n")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// LastRun 返回最近一次运行及其逐站结果；库为空时返回 ErrNoRuns。
func (s *SQLite) LastRun(ctx context.Context) (model.Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return model.Run{}, err
	}
	if len(runs) == 0 {
		return model.Run{}, ErrNoRuns
	}
	run := runs[0]
	run.Outcomes, err = s.Outcomes(ctx, run.ID)
	if err != nil {
		return model.Run{}, err
	}
	return run, nil
}

// Outcomes 返回某次运行的逐站结果，按 slug 排序。
func (s *SQLite) Outcomes(ctx context.Context, runID int64) ([]model.AuditOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug, url, COALESCE(owner,''), status, COALESCE(reason,''), checked_at
        FROM outcomes WHERE run_id = ? ORDER BY slug`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()
	var out []model.AuditOutcome
	for rows.Next() {
		var o model.AuditOutcome
		var status string
		var checked sql.NullTime
		if err := rows.Scan(&o.Site.Slug, &o.Site.URL, &o.Site.Owner, &status, &o.Reason, &checked); err != nil {
			return nil, fmt.Errorf("scan outcomes: %w", err)
		}
		o.Status = model.AuditStatus(status)
		if checked.Valid {
			o.CheckedAt = checked.Time
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}

// FailureCounts 统计每个站点（按 URL）历史上未通过审计的次数，用于发现长期失联的成员。
func (s *SQLite) FailureCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url, COUNT(1) FROM outcomes WHERE status != ? GROUP BY url`, string(model.AuditPass))
	if err != nil {
		return nil, fmt.Errorf("query failure counts: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var u string
		var n int
		if err := rows.Scan(&u, &n); err != nil {
			return nil, fmt.Errorf("scan failure counts: %w", err)
		}
		out[u] = n
	}
	return out, rows.Err()
}

// CleanOldRuns 按天数阈值清理过期的运行记录及其结果。
func (s *SQLite) CleanOldRuns(ctx context.Context, days int) error {
	if days <= 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM outcomes WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`,
		time.Now().AddDate(0, 0, -days)); err != nil {
		return fmt.Errorf("clean old outcomes: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, time.Now().AddDate(0, 0, -days)); err != nil {
		return fmt.Errorf("clean old runs: %w", err)
	}
	return nil
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
