package convert

import (
	"fmt"
	"strings"
)

func stringField(record map[string]any, key string) string {
	s, _ := record[key].(string)
	return s
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// deriveAlertCriteria infers a detection condition from the scenario text
// and risk dimension when the service omitted one.
func deriveAlertCriteria(record map[string]any) string {
	scenario := stringField(record, "scenario")
	risk := stringField(record, "risk_detail")
	lower := strings.ToLower(scenario)

	if containsAny(lower, "idle", "unused", "unattached", "orphan") {
		return "Resource has been idle or unused for an extended period"
	}
	if strings.Contains(risk, "security") {
		switch {
		case strings.Contains(lower, "encrypt"):
			return "Resource is not encrypted or uses outdated encryption"
		case strings.Contains(lower, "public"):
			return "Resource is publicly accessible when it should not be"
		case containsAny(lower, "iam", "permission"):
			return "IAM policy grants excessive permissions or violates least privilege"
		case strings.Contains(lower, "logging"):
			return "Logging or auditing is not enabled for this resource"
		}
		return "Security configuration does not meet best practices"
	}
	if strings.Contains(risk, "cost") {
		if containsAny(lower, "rightsiz", "oversiz") {
			return "Resource is consistently underutilized (CPU/memory below 40%)"
		}
		return "Resource cost could be optimized"
	}
	if strings.Contains(risk, "performance") {
		return "Performance metrics indicate optimization opportunity"
	}
	if strings.Contains(risk, "reliability") {
		if strings.Contains(lower, "backup") {
			return "Automated backups are not configured"
		}
		return "Reliability configuration does not meet best practices"
	}
	return fmt.Sprintf("Condition detected: %s", truncateRunes(scenario, 100))
}

// deriveRecommendationAction infers a remediation summary from the scenario
// text and risk dimension.
func deriveRecommendationAction(record map[string]any) string {
	risk := stringField(record, "risk_detail")
	lower := strings.ToLower(stringField(record, "scenario"))

	if containsAny(lower, "idle", "unused", "unattached", "orphan") {
		return "Review resource usage and delete if no longer needed, or investigate why it's idle"
	}
	if strings.Contains(risk, "security") {
		switch {
		case strings.Contains(lower, "encrypt"):
			return "Enable encryption using AWS KMS or service-managed keys"
		case strings.Contains(lower, "public"):
			return "Restrict public access and implement proper access controls"
		}
		return "Review and update security configuration to meet best practices"
	}
	if strings.Contains(risk, "cost") {
		return "Review resource configuration for cost optimization opportunities"
	}
	if strings.Contains(risk, "performance") {
		return "Optimize resource configuration for improved performance"
	}
	if strings.Contains(risk, "reliability") {
		return "Implement redundancy and failover mechanisms"
	}
	return "Review and update configuration following AWS best practices"
}

// deriveNumericValues infers effort_level, risk_value and action_value from
// the risk dimension, build priority and scenario keywords.
func deriveNumericValues(record map[string]any) (effort, risk, value int) {
	riskDetail := stringField(record, "risk_detail")
	if riskDetail == "" {
		riskDetail = "operations"
	}
	lower := strings.ToLower(stringField(record, "scenario"))

	effort, risk, value = 2, 2, 2

	switch {
	case strings.Contains(riskDetail, "security"):
		risk, value = 3, 3
	case strings.Contains(riskDetail, "cost"):
		risk, value = 1, 3
	case strings.Contains(riskDetail, "reliability"):
		risk, value = 3, 3
	case strings.Contains(riskDetail, "performance"):
		risk, value = 2, 2
	}

	// JSON numbers decode as float64.
	if p, ok := record["build_priority"].(float64); ok {
		switch {
		case p == 0:
			value, risk = 3, 3
		case p == 1:
			value, risk = 2, 2
		case p >= 2:
			value, risk = 1, 1
		}
	}

	if containsAny(lower, "migration", "refactor", "architecture", "redesign") {
		effort = 3
	} else if containsAny(lower, "enable", "configure", "tag", "update", "delete", "remove", "disable") {
		effort = 1
	}

	return effort, risk, value
}
