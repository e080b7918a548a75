package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-webring/internal/model"
)

func TestToJSON_WithStats(t *testing.T) {
	rg := &model.Ring{
		Entries: []model.RingEntry{
			{Site: model.Site{Slug: "a", URL: "https://a.tld"}, Next: 1, Previous: 1},
			{Site: model.Site{Slug: "b", URL: "https://b.tld"}, Next: 0, Previous: 0},
		},
		Failed: []model.AuditOutcome{{Site: model.Site{Slug: "c", URL: "https://c.tld"}, Status: model.AuditFail, Reason: "Missing next link. "}},
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := filepath.Join(t.TempDir(), "ring.json")
	require.NoError(t, ToJSON(Build("ring", "https://ring.tld", rg, now), out))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var e model.Export
	require.NoError(t, json.Unmarshal(b, &e))
	assert.Equal(t, "ring", e.Name)
	assert.Equal(t, 3, e.Stats.SitesTotal)
	assert.Equal(t, 2, e.Stats.SitesInRing)
	assert.Equal(t, 1, e.Stats.SitesFailed)
	assert.True(t, now.Equal(e.Stats.UpdatedAt))
	require.Len(t, e.Ring, 2)
	assert.Equal(t, 1, e.Ring[0].Next)
	require.Len(t, e.Failed, 1)
	assert.Equal(t, "c", e.Failed[0].Site.Slug)
}

func TestToJSON_BadPath(t *testing.T) {
	err := ToJSON(model.Export{}, filepath.Join(t.TempDir(), "missing", "x.json"))
	assert.Error(t, err)
}
