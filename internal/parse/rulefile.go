package parse

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"kbingest/internal/domain"
)

// RuleFileParser extracts check metadata from security-tool rule files
// (Python checks, YAML/JSON rule definitions).
type RuleFileParser struct{}

// NewRuleFileParser builds the repository-rule-file parser.
func NewRuleFileParser() *RuleFileParser { return &RuleFileParser{} }

func (p *RuleFileParser) Type() domain.SourceType { return domain.TypeRuleFile }

var (
	pyCheckIDRe   = regexp.MustCompile(`(?:CheckID|check_id|name)\s*=\s*["']([^"']+)["']`)
	pyDescRe      = regexp.MustCompile(`(?:Description|description|desc)\s*=\s*["']([^"']+)["']`)
	pySeverityRe  = regexp.MustCompile(`(?:Severity|severity|risk)\s*=\s*["']([^"']+)["']`)
	pyClassRe     = regexp.MustCompile(`(?s)class\s+(\w+)\s*\(.*?\):\s*"""(.*?)"""`)
	pyDocstringRe = regexp.MustCompile(`(?s)"""(.*?)"""`)

	skipFilenames = map[string]struct{}{
		"__init__": {}, "models": {}, "lib": {}, "utils": {}, "common": {},
	}
)

// Parse extracts findings from one rule file, dispatched on extension.
func (p *RuleFileParser) Parse(src domain.SourceConfig, item domain.RawItem) ([]domain.Finding, error) {
	filePath := item.Metadata["path"]
	if filePath == "" {
		filePath = item.ItemID
	}
	content := string(item.Payload)

	switch strings.ToLower(path.Ext(filePath)) {
	case ".py":
		return p.parsePython(src, item, filePath, content), nil
	case ".yaml", ".yml":
		return p.parseYAML(src, item, filePath, content)
	case ".json":
		return p.parseJSON(src, item, content)
	default:
		return p.parseGeneric(src, item, filePath, content), nil
	}
}

// parsePython mines check metadata from Prowler/ScoutSuite-style check files.
func (p *RuleFileParser) parsePython(src domain.SourceConfig, item domain.RawItem, filePath, content string) []domain.Finding {
	title := ""
	body := ""

	if m := pyCheckIDRe.FindStringSubmatch(content); m != nil {
		title = m[1]
	} else if m := pyClassRe.FindStringSubmatch(content); m != nil {
		title = m[1]
		body = strings.TrimSpace(m[2])
	} else {
		base := strings.TrimSuffix(path.Base(filePath), ".py")
		if _, skip := skipFilenames[base]; skip {
			return nil
		}
		title = strings.ReplaceAll(base, "_", " ")
	}

	if m := pyDescRe.FindStringSubmatch(content); body == "" && m != nil {
		body = m[1]
	}
	if body == "" {
		if m := pyDocstringRe.FindStringSubmatch(content); m != nil {
			body = strings.TrimSpace(m[1])
		}
	}
	if body == "" {
		body = "Security check from " + filePath
	}

	f := newFinding(src, item, title, collapseWhitespace(body))
	if m := pySeverityRe.FindStringSubmatch(content); m != nil {
		f.Categories = append(f.Categories, "severity:"+strings.ToLower(m[1]))
	}
	return []domain.Finding{f}
}

func (p *RuleFileParser) parseYAML(src domain.SourceConfig, item domain.RawItem, filePath, content string) ([]domain.Finding, error) {
	var rule map[string]any
	if err := yaml.Unmarshal([]byte(content), &rule); err != nil {
		return nil, fmt.Errorf("parse yaml rule %s: %w", filePath, err)
	}

	title := firstString(rule, "name", "title", "id")
	if title == "" {
		title = path.Base(filePath)
	}
	body := firstString(rule, "description", "desc", "message")
	if body == "" {
		body = capBody(content)
	}

	return []domain.Finding{newFinding(src, item, title, collapseWhitespace(body))}, nil
}

func (p *RuleFileParser) parseJSON(src domain.SourceConfig, item domain.RawItem, content string) ([]domain.Finding, error) {
	var parsed any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("parse json rule: %w", err)
	}

	var rules []map[string]any
	switch v := parsed.(type) {
	case []any:
		for _, elem := range v {
			if rule, ok := elem.(map[string]any); ok {
				rules = append(rules, rule)
			}
		}
	case map[string]any:
		rules = append(rules, v)
	}

	var findings []domain.Finding
	for _, rule := range rules {
		title := firstString(rule, "name", "title", "id")
		if title == "" {
			continue
		}
		body := firstString(rule, "description", "message")
		if body == "" {
			raw, _ := json.Marshal(rule)
			body = string(raw)
		}
		findings = append(findings, newFinding(src, item, title, collapseWhitespace(body)))
	}
	return findings, nil
}

func (p *RuleFileParser) parseGeneric(src domain.SourceConfig, item domain.RawItem, filePath, content string) []domain.Finding {
	return []domain.Finding{newFinding(src, item, path.Base(filePath), collapseWhitespace(content))}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
