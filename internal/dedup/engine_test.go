package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckEmptyCorpus(t *testing.T) {
	t.Parallel()

	e := NewEngine(0.70)
	score, id, scenario := e.Check("EBS volumes unencrypted", "Volumes should use KMS encryption")
	assert.Zero(t, score)
	assert.Empty(t, id)
	assert.Empty(t, scenario)
}

func TestCheckNearDuplicateScoresHigh(t *testing.T) {
	t.Parallel()

	e := NewEngine(0.70)
	e.Add("rec-1", "EBS volumes are not encrypted at rest",
		"EBS volumes are not encrypted at rest. Enable default EBS encryption so all new volumes use KMS keys. Unencrypted volumes expose data at rest.")
	e.Add("rec-2", "S3 bucket allows public read access",
		"S3 bucket policy allows public read access to all objects. Enable block public access at the account level.")
	e.Add("rec-3", "RDS instance has no automated backups",
		"RDS automated backups are disabled. Set a backup retention period of at least seven days.")

	score, id, scenario := e.Check("Unencrypted EBS volumes",
		"EBS volumes are not encrypted at rest. Enable default EBS encryption so volumes use KMS keys and data at rest is protected.")

	require.Equal(t, "rec-1", id)
	assert.Equal(t, "EBS volumes are not encrypted at rest", scenario)
	assert.Greater(t, score, 0.70)
}

func TestCheckUnrelatedScoresLow(t *testing.T) {
	t.Parallel()

	e := NewEngine(0.70)
	e.Add("rec-1", "EBS volumes are not encrypted at rest",
		"EBS volumes are not encrypted at rest. Enable default EBS encryption so all new volumes use KMS keys.")
	e.Add("rec-2", "S3 bucket allows public read access",
		"S3 bucket policy allows public read access to all objects. Enable block public access.")

	score, _, _ := e.Check("Lambda function missing circuit breaker",
		"Lambda functions calling downstream APIs should implement a circuit breaker pattern to avoid cascading retries during outages.")

	assert.Less(t, score, 0.70)
}

func TestCheckDeterministic(t *testing.T) {
	t.Parallel()

	build := func() *Engine {
		e := NewEngine(0.70)
		e.Add("a", "scenario a", "IAM role grants wildcard permissions on all resources")
		e.Add("b", "scenario b", "CloudTrail logging is disabled in several regions")
		e.Add("c", "scenario c", "IAM users have long lived access keys without rotation")
		return e
	}

	title := "IAM access keys never rotated"
	body := "IAM users carry long lived access keys without any rotation policy in place"

	s1, id1, _ := build().Check(title, body)
	s2, id2, _ := build().Check(title, body)
	require.Equal(t, id1, id2)
	assert.Equal(t, s1, s2)
}

func TestAddGrowsCorpusMidRun(t *testing.T) {
	t.Parallel()

	e := NewEngine(0.70)
	e.Add("seed", "NAT gateway unused", "NAT gateway has processed no traffic for thirty days and still incurs hourly cost")

	title := "DynamoDB table overprovisioned"
	body := "DynamoDB provisioned throughput far exceeds consumed capacity, wasting cost every hour"

	score, _, _ := e.Check(title, body)
	require.Less(t, score, 0.70)

	e.Add("run:1", title, title+" "+body)
	score, id, _ := e.Check(title, body)
	assert.Equal(t, "run:1", id)
	assert.Greater(t, score, 0.70)
}

func TestScopedDocumentVisibility(t *testing.T) {
	t.Parallel()

	e := NewEngine(0.70)
	text := "EBS volumes are created without encryption enabled by default"
	e.AddScoped("run:1", "unencrypted ebs", text, "feed-a")

	// Scoped documents are invisible to other sources and to global checks.
	score, _, _ := e.CheckFrom("feed-b", text, "")
	assert.Zero(t, score)
	score, _, _ = e.Check(text, "")
	assert.Zero(t, score)

	score, id, _ := e.CheckFrom("feed-a", text, "")
	require.Equal(t, "run:1", id)
	assert.Greater(t, score, 0.99)
}

func TestCheckScoreBounded(t *testing.T) {
	t.Parallel()

	e := NewEngine(0.70)
	text := "exact same text about security group open to the world on port 22"
	e.Add("x", "sg open", text)

	score, _, _ := e.Check("", text)
	assert.LessOrEqual(t, score, 1.0)
	assert.Greater(t, score, 0.99)
}

func TestTermCountsFiltersStopWordsAndShortTokens(t *testing.T) {
	t.Parallel()

	counts := termCounts("The bucket is a bucket")
	assert.Equal(t, 2.0, counts["bucket"])
	assert.Contains(t, counts, "bucket bucket")
	assert.NotContains(t, counts, "the")
	assert.NotContains(t, counts, "is")
}
