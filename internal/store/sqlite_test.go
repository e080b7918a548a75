package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-webring/internal/model"
)

func open(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func outcome(slug string, st model.AuditStatus, reason string) model.AuditOutcome {
	return model.AuditOutcome{
		Site:      model.Site{Slug: slug, URL: "https://" + slug + ".tld"},
		Status:    st,
		Reason:    reason,
		CheckedAt: time.Now(),
	}
}

func TestSQLite_SaveAndLastRun(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	_, err := s.LastRun(ctx)
	require.ErrorIs(t, err, ErrNoRuns)

	first := model.Run{
		StartedAt:  time.Now().Add(-time.Minute),
		SitesTotal: 2,
		RingSlugs:  []string{"a"},
		Outcomes:   []model.AuditOutcome{outcome("b", model.AuditFail, "Missing next link. "), outcome("a", model.AuditPass, "")},
	}
	id1, err := s.SaveRun(ctx, first)
	require.NoError(t, err)

	second := model.Run{SitesTotal: 1, RingSlugs: []string{"a", "c"}, Outcomes: []model.AuditOutcome{outcome("b", model.AuditError, "timeout")}}
	id2, err := s.SaveRun(ctx, second)
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	last, err := s.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, id2, last.ID)
	assert.Equal(t, []string{"a", "c"}, last.RingSlugs)
	require.Len(t, last.Outcomes, 1)
	assert.Equal(t, model.AuditError, last.Outcomes[0].Status)

	prev, err := s.Outcomes(ctx, id1)
	require.NoError(t, err)
	require.Len(t, prev, 2)
	assert.Equal(t, "a", prev[0].Site.Slug)
	assert.Equal(t, "Missing next link. ", prev[1].Reason)

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	counts, err := s.FailureCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["https://b.tld"])
	assert.Zero(t, counts["https://a.tld"])
}

func TestSQLite_ResetAndClean(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	_, err := s.SaveRun(ctx, model.Run{StartedAt: time.Now().AddDate(0, 0, -10), Outcomes: []model.AuditOutcome{outcome("old", model.AuditPass, "")}})
	require.NoError(t, err)
	_, err = s.SaveRun(ctx, model.Run{StartedAt: time.Now(), RingSlugs: []string{"new"}})
	require.NoError(t, err)

	require.NoError(t, s.CleanOldRuns(ctx, 3))
	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"new"}, runs[0].RingSlugs)

	require.NoError(t, s.Reset(ctx))
	runs, err = s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
