package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentHashNormalizes(t *testing.T) {
	t.Parallel()

	a := Finding{Title: "  EBS Encryption ", Body: "Enable KMS"}
	b := Finding{Title: "ebs encryption", Body: "enable kms"}
	c := Finding{Title: "ebs encryption", Body: "different"}

	assert.Equal(t, a.ContentHash(), b.ContentHash())
	assert.NotEqual(t, a.ContentHash(), c.ContentHash())
}

func TestCandidateAccessors(t *testing.T) {
	t.Parallel()

	c := Candidate{Recommendation: map[string]any{"id": "x", "service_name": "EC2"}}
	assert.Equal(t, "x", c.ID())
	assert.Equal(t, "ec2", c.Service())

	empty := Candidate{Recommendation: map[string]any{}}
	assert.Empty(t, empty.ID())
	assert.Empty(t, empty.Service())
}

func TestRunRecordTotals(t *testing.T) {
	t.Parallel()

	run := RunRecord{Sources: []SourceOutcome{
		{SourceID: "a", Fetched: 5, Novel: 2, Staged: 1},
		{SourceID: "b", Error: "boom"},
		{SourceID: "c", Fetched: 3, Novel: 1, Staged: 1},
	}}

	totals := run.Totals()
	assert.Equal(t, 2, totals.SourcesProcessed)
	assert.Equal(t, 1, totals.SourcesErrored)
	assert.Equal(t, 8, totals.Fetched)
	assert.Equal(t, 3, totals.Novel)
	assert.Equal(t, 2, totals.Staged)
}

func TestValidSourceType(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidSourceType(TypeFeed))
	assert.True(t, ValidSourceType(TypePage))
	assert.True(t, ValidSourceType(TypeRuleFile))
	assert.False(t, ValidSourceType("carrier-pigeon"))
}
