package policy

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/BaSui01/agentfed/federation"
)

// Finding 分级检测命中项
type Finding struct {
	Pattern string                    `json:"pattern"`
	Level   federation.Classification `json:"level"`
	Count   int                       `json:"count"`
}

// Classifier 内容分级检测器
type Classifier interface {
	Classify(content string) (federation.Classification, []Finding)
}

type pattern struct {
	name  string
	level federation.Classification
	re    *regexp.Regexp
}

// RegexClassifier 基于正则的分级检测
type RegexClassifier struct {
	patterns []pattern
}

// NewRegexClassifier 创建带默认规则的检测器，extra 追加自定义规则。
func NewRegexClassifier(extra map[string]federation.Classification) (*RegexClassifier, error) {
	c := &RegexClassifier{patterns: defaultPatterns()}

	names := make([]string, 0, len(extra))
	for expr := range extra {
		names = append(names, expr)
	}
	sort.Strings(names)
	for _, expr := range names {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		c.patterns = append(c.patterns, pattern{name: expr, level: extra[expr], re: re})
	}
	return c, nil
}

// ClassifierFromPatterns 由配置中的 正则 → 分级名 构建检测器。
func ClassifierFromPatterns(patterns map[string]string) (*RegexClassifier, error) {
	extra := make(map[string]federation.Classification, len(patterns))
	for expr, name := range patterns {
		level, err := federation.ParseClassification(name)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", expr, err)
		}
		extra[expr] = level
	}
	return NewRegexClassifier(extra)
}

func defaultPatterns() []pattern {
	return []pattern{
		{name: "private_key", level: federation.ClassificationRestricted, re: regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`)},
		{name: "us_ssn", level: federation.ClassificationRestricted, re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{name: "card_number", level: federation.ClassificationRestricted, re: regexp.MustCompile(`\b(?:\d[ -]?){15}\d\b`)},
		{name: "api_secret", level: federation.ClassificationConfidential, re: regexp.MustCompile(`\b(?:sk|afk|ghp|xox[bp])[-_][A-Za-z0-9_-]{16,}\b`)},
		{name: "email", level: federation.ClassificationConfidential, re: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
		{name: "confidential_marker", level: federation.ClassificationConfidential, re: regexp.MustCompile(`(?i)\b(?:confidential|do not distribute)\b`)},
		{name: "internal_marker", level: federation.ClassificationInternal, re: regexp.MustCompile(`(?i)\binternal (?:use )?only\b`)},
	}
}

// Classify 返回命中的最高分级，无命中为 public。
func (c *RegexClassifier) Classify(content string) (federation.Classification, []Finding) {
	level := federation.ClassificationPublic
	var findings []Finding
	for _, p := range c.patterns {
		n := len(p.re.FindAllStringIndex(content, -1))
		if n == 0 {
			continue
		}
		findings = append(findings, Finding{Pattern: p.name, Level: p.level, Count: n})
		level = federation.MaxClassification(level, p.level)
	}
	return level, findings
}
