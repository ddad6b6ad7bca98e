package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbingest/internal/domain"
)

const validRegistry = `{
  "version": "1.0.0",
  "sources": [
    {
      "id": "aws-security-blog",
      "name": "AWS Security Blog",
      "type": "feed",
      "url": "https://aws.amazon.com/blogs/security/feed/",
      "categories": ["security"],
      "enabled": true
    },
    {
      "id": "well-architected",
      "name": "Well-Architected reliability pillar",
      "type": "document-page",
      "url": "https://docs.aws.amazon.com/wellarchitected/latest/reliability-pillar/welcome.html",
      "categories": ["reliability"],
      "enabled": false
    },
    {
      "id": "prowler-checks",
      "name": "Prowler AWS checks",
      "type": "repository-rule-file",
      "url": "https://github.com/prowler-cloud/prowler",
      "categories": ["security", "operations"],
      "enabled": true,
      "fetch": {"branch": "master", "path": "prowler/providers/aws", "file_pattern": "*.py"}
    }
  ]
}`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidRegistry(t *testing.T) {
	t.Parallel()

	reg, err := Load(writeRegistry(t, validRegistry))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", reg.Version)
	require.Len(t, reg.Sources, 3)
	assert.Equal(t, "master", reg.Sources[2].Fetch.Branch)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidType(t *testing.T) {
	t.Parallel()

	bad := `{"version":"1","sources":[{"id":"x","name":"X","type":"carrier-pigeon","url":"https://x","categories":["a"],"enabled":true}]}`
	_, err := Load(writeRegistry(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid type")
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	bad := `{"version":"1","sources":[
		{"id":"x","name":"X","type":"feed","url":"https://x","categories":["a"],"enabled":true},
		{"id":"x","name":"Y","type":"feed","url":"https://y","categories":["a"],"enabled":true}
	]}`
	_, err := Load(writeRegistry(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestLoadRejectsEmptyCategories(t *testing.T) {
	t.Parallel()

	bad := `{"version":"1","sources":[{"id":"x","name":"X","type":"feed","url":"https://x","categories":[],"enabled":true}]}`
	_, err := Load(writeRegistry(t, bad))
	assert.Error(t, err)
}

func TestEnabledFilters(t *testing.T) {
	t.Parallel()

	reg, err := Load(writeRegistry(t, validRegistry))
	require.NoError(t, err)

	all := reg.Enabled("", nil)
	require.Len(t, all, 2)
	// Registry order is preserved.
	assert.Equal(t, "aws-security-blog", all[0].ID)
	assert.Equal(t, "prowler-checks", all[1].ID)

	feeds := reg.Enabled(domain.TypeFeed, nil)
	require.Len(t, feeds, 1)
	assert.Equal(t, "aws-security-blog", feeds[0].ID)

	byID := reg.Enabled("", []string{"prowler-checks", "well-architected"})
	require.Len(t, byID, 1)
	assert.Equal(t, "prowler-checks", byID[0].ID)
}
