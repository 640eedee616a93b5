// Package compliance 实现词法级内容合规筛查。
//
// 筛查分三个层级：
//   - Screen：非法内容（零容忍），任何模式下都拦截；
//   - ScreenAdult：一般成人内容，仅在非成人模式下拦截；
//   - ScreenExtreme：极端内容，成人模式下也会记录警告但不拦截。
//
// 词法匹配廉价、确定且可审计，但有意保持不精确——
// 它是防护栏而不是唯一的安全控制，误报/漏报在预期之内。
package compliance

import (
	"regexp"
	"strings"
)

// Result 合规检查结果，每次调用新建，不做持久化
type Result struct {
	IsCompliant  bool     `json:"is_compliant"`
	Violations   []string `json:"violations,omitempty"`    // 违规类别描述
	Warnings     []string `json:"warnings,omitempty"`      // 警告（不拦截）
	BlockedSpans []string `json:"blocked_spans,omitempty"` // 命中的原文片段
}

// rule 单条筛查规则
type rule struct {
	category string
	pattern  *regexp.Regexp
}

// 非法内容规则：无论是否成人模式均拦截。
// (a) 涉未成年人的性内容 (b) 针对儿童的暴力内容
// (c) 武器/爆炸物/毒品制造教程 (d) 人口贩卖
var illegalRules = []rule{
	{
		category: "sexual_content_involving_minors",
		pattern: regexp.MustCompile(`(?i)\b(?:child|minor|underage|preteen|loli|shota|(?:1[0-7]|[1-9])[ -]?(?:year|yr)s?[ -]?old)\b[^.\n]{0,80}\b(?:sex|sexual|nude|naked|explicit|porn|erotic)\b` +
			`|\b(?:sex|sexual|nude|naked|explicit|porn|erotic)\b[^.\n]{0,80}\b(?:child|minor|underage|preteen|loli|shota)\b`),
	},
	{
		category: "violence_targeting_children",
		pattern: regexp.MustCompile(`(?i)\b(?:torture|mutilate|kill|abuse|harm)(?:ing|e?d)?\b[^.\n]{0,60}\b(?:child|children|minor|toddler|infant)s?\b`),
	},
	{
		category: "weapons_or_drug_synthesis_instructions",
		pattern: regexp.MustCompile(`(?i)\b(?:how to|instructions?|recipe|steps?|guide)\b[^.\n]{0,60}\b(?:make|build|manufacture|synthesi[sz]e|assemble)\b[^.\n]{0,60}\b(?:bomb|explosive|pipe bomb|nerve agent|sarin|ricin|meth(?:amphetamine)?|fentanyl|ghost gun)s?\b`),
	},
	{
		category: "human_trafficking",
		pattern: regexp.MustCompile(`(?i)\b(?:human|sex|child)[ -]traffick(?:ing|ed|er)\b|\b(?:sell|buy|purchase)(?:ing)?\b[^.\n]{0,40}\b(?:a |an )?(?:person|human|woman|girl|boy)s?\b[^.\n]{0,40}\b(?:slave|slavery|bondage debt)\b`),
	},
}

// 一般成人内容规则：仅在非成人模式下拦截
var adultRules = []rule{
	{
		category: "explicit_sexual_content",
		pattern:  regexp.MustCompile(`(?i)\b(?:explicit sex|hardcore|xxx|porn(?:ographic)?|erotic[a]?|nsfw|fetish|bdsm|orgasm|masturbat(?:e|ion))\b`),
	},
	{
		category: "graphic_nudity",
		pattern:  regexp.MustCompile(`(?i)\b(?:nude|naked)\b[^.\n]{0,40}\b(?:photo|image|picture|scene|description)s?\b`),
	},
}

// 极端内容规则：成人模式下也记录警告，但不拦截
var extremeRules = []rule{
	{
		category: "non_consensual_content",
		pattern:  regexp.MustCompile(`(?i)\b(?:non[- ]?consensual|without (?:her|his|their) consent|forced (?:sex|intercourse)|rape|molest)\b`),
	},
	{
		category: "extreme_violence_content",
		pattern:  regexp.MustCompile(`(?i)\b(?:snuff|necrophilia|bestiality|gore porn|dismemberment fetish)\b`),
	},
}

// Screen 非法内容筛查（第一层级）。
// 命中任何规则即不合规，该结果不受成人模式豁免。
func Screen(text string) *Result {
	result := &Result{IsCompliant: true}
	applyBlocking(result, text, illegalRules)
	return result
}

// ScreenAdult 成人内容筛查（第二层级），仅在调用方非成人模式时使用。
func ScreenAdult(text string) *Result {
	result := &Result{IsCompliant: true}
	applyBlocking(result, text, adultRules)
	return result
}

// ScreenExtreme 极端内容筛查（第三层级），只产生警告，不改变 IsCompliant。
func ScreenExtreme(text string) *Result {
	result := &Result{IsCompliant: true}
	for _, r := range extremeRules {
		if span := r.pattern.FindString(text); span != "" {
			result.Warnings = append(result.Warnings, r.category)
			result.BlockedSpans = append(result.BlockedSpans, strings.TrimSpace(span))
		}
	}
	return result
}

func applyBlocking(result *Result, text string, rules []rule) {
	for _, r := range rules {
		if span := r.pattern.FindString(text); span != "" {
			result.IsCompliant = false
			result.Violations = append(result.Violations, r.category)
			result.BlockedSpans = append(result.BlockedSpans, strings.TrimSpace(span))
		}
	}
}
