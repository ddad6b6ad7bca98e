package parse

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbingest/internal/domain"
)

func feedSource() domain.SourceConfig {
	return domain.SourceConfig{
		ID:         "aws-blog",
		Name:       "AWS Blog",
		Type:       domain.TypeFeed,
		URL:        "https://example.com/feed",
		Categories: []string{"security"},
		Enabled:    true,
	}
}

func TestFeedParserStripsMarkup(t *testing.T) {
	t.Parallel()

	item := domain.RawItem{
		ItemID: "e1",
		Title:  "Enforce S3 encryption",
		URL:    "https://example.com/post",
		Payload: []byte(`<p>All <b>S3 buckets</b> should enable default encryption
			to protect data at rest from unauthorized access.</p><script>alert(1)</script>`),
	}

	findings, err := NewFeedParser().Parse(feedSource(), item)
	require.NoError(t, err)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, "Enforce S3 encryption", f.Title)
	assert.NotContains(t, f.Body, "<b>")
	assert.NotContains(t, f.Body, "alert")
	assert.Equal(t, []string{"security"}, f.Categories)
	assert.Equal(t, "aws-blog", f.SourceID)
}

func TestFeedParserRejectsMissingTitle(t *testing.T) {
	t.Parallel()

	_, err := NewFeedParser().Parse(feedSource(), domain.RawItem{ItemID: "e2", Payload: []byte("<p>body</p>")})
	assert.Error(t, err)
}

func TestFeedParserDropsShortBody(t *testing.T) {
	t.Parallel()

	findings, err := NewFeedParser().Parse(feedSource(), domain.RawItem{
		ItemID: "e3", Title: "Short", Payload: []byte("<p>too short</p>"),
	})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func pageSource(itemSel, titleSel, bodySel string) domain.SourceConfig {
	return domain.SourceConfig{
		ID:         "docs",
		Name:       "AWS Docs",
		Type:       domain.TypePage,
		URL:        "https://example.com/docs",
		Categories: []string{"reliability"},
		Enabled:    true,
		Parse: domain.ParseConfig{
			ItemSelector:  itemSel,
			TitleSelector: titleSel,
			BodySelector:  bodySel,
		},
	}
}

func TestPageParserStructuredSelectors(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<div class="check"><h3>RDS backups disabled</h3><p class="desc">Automated backups must be enabled on every production RDS instance.</p></div>
		<div class="check"><h3>No multi-AZ</h3><p class="desc">Production databases should run in multiple availability zones for failover.</p></div>
		<div class="check"><h3>Empty one</h3><p class="desc">x</p></div>
	</body></html>`

	src := pageSource("div.check", "h3", "p.desc")
	findings, err := NewPageParser().Parse(src, domain.RawItem{URL: src.URL, Payload: []byte(html)})
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "RDS backups disabled", findings[0].Title)
	assert.Contains(t, findings[0].Body, "Automated backups")
}

func TestPageParserHeaderSections(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<h1>Best practices</h1>
		<h2>Use least privilege IAM policies</h2>
		<p>Grant only the permissions required to perform a task. Start with AWS managed policies and refine them over time.</p>
		<h2>Enable CloudTrail</h2>
		<p>Record API activity across your accounts so security events can be investigated after the fact.</p>
	</body></html>`

	src := pageSource("", "", "")
	findings, err := NewPageParser().Parse(src, domain.RawItem{URL: src.URL, Payload: []byte(html)})
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "Use least privilege IAM policies", findings[0].Title)
	assert.Contains(t, findings[1].Body, "API activity")
	// Section body stops at the next header.
	assert.NotContains(t, findings[0].Body, "Record API activity")
}

func ruleSource() domain.SourceConfig {
	return domain.SourceConfig{
		ID:         "prowler",
		Name:       "Prowler checks",
		Type:       domain.TypeRuleFile,
		URL:        "https://github.com/example/checks",
		Categories: []string{"security"},
		Enabled:    true,
	}
}

func TestRuleFileParserPythonCheck(t *testing.T) {
	t.Parallel()

	payload := `class ec2_ebs_default_encryption(Check):
    def execute(self):
        CheckID = "ec2_ebs_default_encryption"
        Description = "Ensure EBS default encryption is enabled"
        Severity = "medium"
`
	item := domain.RawItem{
		ItemID:   "checks/ec2/ec2_ebs_default_encryption.py",
		Metadata: map[string]string{"path": "checks/ec2/ec2_ebs_default_encryption.py"},
		Payload:  []byte(payload),
	}

	findings, err := NewRuleFileParser().Parse(ruleSource(), item)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "ec2_ebs_default_encryption", findings[0].Title)
	assert.Contains(t, findings[0].Body, "EBS default encryption")
	assert.Contains(t, findings[0].Categories, "severity:medium")
}

func TestRuleFileParserSkipsInfraFiles(t *testing.T) {
	t.Parallel()

	item := domain.RawItem{
		ItemID:   "checks/__init__.py",
		Metadata: map[string]string{"path": "checks/__init__.py"},
		Payload:  []byte("# package marker"),
	}

	findings, err := NewRuleFileParser().Parse(ruleSource(), item)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestRuleFileParserYAMLRule(t *testing.T) {
	t.Parallel()

	payload := `name: s3-bucket-public-read
description: S3 buckets must not allow public read access
severity: high
`
	item := domain.RawItem{
		ItemID:   "rules/s3.yaml",
		Metadata: map[string]string{"path": "rules/s3.yaml"},
		Payload:  []byte(payload),
	}

	findings, err := NewRuleFileParser().Parse(ruleSource(), item)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "s3-bucket-public-read", findings[0].Title)
	assert.Equal(t, "S3 buckets must not allow public read access", findings[0].Body)
}

func TestRuleFileParserJSONRuleArray(t *testing.T) {
	t.Parallel()

	payload := `[
		{"name": "iam-no-wildcards", "description": "IAM policies must not use wildcard actions"},
		{"name": "no-title-skipped"},
		{"description": "skipped, no name"}
	]`
	item := domain.RawItem{
		ItemID:   "rules/iam.json",
		Metadata: map[string]string{"path": "rules/iam.json"},
		Payload:  []byte(payload),
	}

	findings, err := NewRuleFileParser().Parse(ruleSource(), item)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "iam-no-wildcards", findings[0].Title)
}

func TestCollapseWhitespace(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b c", collapseWhitespace("  a\n\tb   c  "))
}

func TestCapBodyKeepsRunesIntact(t *testing.T) {
	t.Parallel()

	short := "Bucket é public"
	assert.Equal(t, short, capBody(short))

	capped := capBody(strings.Repeat("é", maxBodyLen+10))
	assert.True(t, utf8.ValidString(capped))
	assert.Equal(t, maxBodyLen, utf8.RuneCountInString(capped))
}
