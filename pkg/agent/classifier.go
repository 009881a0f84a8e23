package agent

import (
	"regexp"
	"strings"
)

// Rule maps keywords or a pattern to a task type. Keywords match as
// lowercased substrings; Pattern, when set, is checked first.
type Rule struct {
	TaskType string
	Keywords []string
	Pattern  *regexp.Regexp
}

// Classifier resolves message content to one of an agent's task types.
// Rules are evaluated in order and the first match wins.
type Classifier struct {
	rules    []Rule
	fallback string
}

// NewClassifier builds a classifier that answers fallback when no rule
// matches.
func NewClassifier(fallback string, rules ...Rule) *Classifier {
	return &Classifier{rules: rules, fallback: fallback}
}

// Classify returns the task type for content.
func (c *Classifier) Classify(content string) string {
	lowered := strings.ToLower(content)
	for _, r := range c.rules {
		if r.Pattern != nil && r.Pattern.MatchString(content) {
			return r.TaskType
		}
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
				return r.TaskType
			}
		}
	}
	return c.fallback
}

// Entity lexicons shared by the concrete agents. Matching is first hit
// wins, so more specific terms go first.
var (
	industryLexicon = []string{
		"制造业", "金融", "互联网", "医疗", "教育", "零售", "物流", "能源", "软件", "电商",
	}
	regionLexicon = []string{
		"华东", "华北", "华南", "华中", "西南", "西北", "东北",
		"北京", "上海", "广州", "深圳", "杭州", "成都",
	}
	scaleLexicon = []string{"大型", "中型", "小型"}

	countPattern      = regexp.MustCompile(`(\d+)\s*(?:家|个|位|名)`)
	customerIDPattern = regexp.MustCompile(`(?:客户|ID|id)[：:\s]+([A-Za-z0-9][A-Za-z0-9_-]{3,})`)
)

// ExtractEntities pulls the fields agents care about out of free text:
// industry, region, scale, a requested count, and a customer id. Absent
// entities are simply missing from the map.
func ExtractEntities(content string) map[string]string {
	entities := make(map[string]string)
	for _, term := range industryLexicon {
		if strings.Contains(content, term) {
			entities["industry"] = term
			break
		}
	}
	for _, term := range regionLexicon {
		if strings.Contains(content, term) {
			entities["region"] = term
			break
		}
	}
	for _, term := range scaleLexicon {
		if strings.Contains(content, term) {
			entities["scale"] = term
			break
		}
	}
	if m := countPattern.FindStringSubmatch(content); m != nil {
		entities["count"] = m[1]
	}
	if m := customerIDPattern.FindStringSubmatch(content); m != nil {
		entities["customer_id"] = m[1]
	}
	return entities
}
