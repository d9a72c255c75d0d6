// Package validate checks action-item quality against four criteria:
// clear task, owner, deadline, and subject-relatedness. Items failing
// any criterion are demoted to tasks by the caller.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/scribeworks/notegen/pkg/models"
)

// actionVerbs is the fixed list of verbs that mark a concrete task.
var actionVerbs = map[string]struct{}{
	"analyze": {}, "approve": {}, "assign": {}, "book": {}, "build": {},
	"buy": {}, "call": {}, "complete": {}, "configure": {}, "confirm": {},
	"contact": {}, "create": {}, "deliver": {}, "deploy": {}, "design": {},
	"document": {}, "draft": {}, "email": {}, "finalize": {}, "fix": {},
	"implement": {}, "investigate": {}, "merge": {}, "migrate": {},
	"notify": {}, "order": {}, "organize": {}, "plan": {}, "prepare": {},
	"present": {}, "publish": {}, "refactor": {}, "release": {},
	"research": {}, "review": {}, "schedule": {}, "send": {}, "set": {},
	"setup": {}, "share": {}, "sign": {}, "submit": {}, "test": {},
	"update": {}, "verify": {}, "write": {},
}

// vaguePrefixes disqualify a task description regardless of verbs.
var vaguePrefixes = []string{
	"follow up", "check", "maybe", "think about", "consider",
	"look into", "see if", "try to",
}

// leadAuxiliaries may precede the action verb ("should send", "will fix").
var leadAuxiliaries = map[string]struct{}{
	"to": {}, "should": {}, "will": {}, "must": {}, "need": {}, "can": {},
}

// acceptedOwnerLiterals are placeholder assignees that still count as an
// owner decision.
var acceptedOwnerLiterals = map[string]struct{}{
	"tbd": {}, "need assignment": {}, "to be determined": {}, "unassigned": {},
}

// acceptedDeadlineLiterals are placeholder deadlines that still count as
// a deadline decision.
var acceptedDeadlineLiterals = map[string]struct{}{
	"tbd": {}, "to be determined": {},
}

// vagueDeadlines are rejected outright.
var vagueDeadlines = map[string]struct{}{
	"soon": {}, "later": {}, "next week": {}, "next month": {},
	"asap": {}, "eventually": {}, "sometime": {}, "whenever": {},
	"when possible": {},
}

const monthPattern = `(?:january|february|march|april|may|june|july|august|september|october|november|december)`

var deadlinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),       // ISO YYYY-MM-DD
	regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`),   // MM/DD/YYYY
	regexp.MustCompile(`^\d{4}/\d{1,2}/\d{1,2}$`),   // YYYY/MM/DD
	regexp.MustCompile(`^` + monthPattern + `\s+\d{1,2},?\s+\d{4}$`), // March 15, 2025
	regexp.MustCompile(`^\d{1,2}\s+` + monthPattern + `\s+\d{4}$`),   // 15 March 2025
	regexp.MustCompile(`^(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday),\s*` + monthPattern + `\s+\d{1,2}$`), // Friday, March 15
}

// subjectRelatedThreshold is the minimum subject match score.
const subjectRelatedThreshold = 0.3

// Input is one action item to validate.
type Input struct {
	Task     string
	Assignee string
	Deadline string
	Context  string // surrounding chunk content, used for subject matching
	Subject  *models.Subject
}

// Result reports the outcome. Failures lists a human-readable summary
// per failed criterion; empty when Valid. OverrideReasoning is set only
// when the LLM assist overturned a rule-based failure.
type Result struct {
	Valid             bool
	Failures          []string
	OverrideReasoning string
}

// FailureSummary joins the failed criteria into one exclusion reason.
func (r Result) FailureSummary() string {
	return strings.Join(r.Failures, "; ")
}

// Check runs the four rule-based criteria.
func Check(in Input) Result {
	var failures []string

	if reason := checkClearTask(in.Task); reason != "" {
		failures = append(failures, reason)
	}
	if reason := checkOwner(in.Assignee); reason != "" {
		failures = append(failures, reason)
	}
	if reason := checkDeadline(in.Deadline); reason != "" {
		failures = append(failures, reason)
	}
	if reason := checkSubjectRelated(in); reason != "" {
		failures = append(failures, reason)
	}

	return Result{Valid: len(failures) == 0, Failures: failures}
}

// checkClearTask requires a concrete, actionable description.
func checkClearTask(task string) string {
	normalized := strings.ToLower(strings.TrimSpace(task))
	if len(normalized) < 5 {
		return "vague task: description too short"
	}

	for _, prefix := range vaguePrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return fmt.Sprintf("vague task: starts with %q", prefix)
		}
	}

	tokens := strings.Fields(normalized)
	if len(tokens) > 0 {
		if _, ok := actionVerbs[tokens[0]]; ok {
			return ""
		}
	}
	if len(tokens) > 1 {
		if _, aux := leadAuxiliaries[tokens[0]]; aux {
			if _, ok := actionVerbs[tokens[1]]; ok {
				return ""
			}
		}
	}
	if len(tokens) > 2 && (tokens[0] == "need" || tokens[0] == "have") && tokens[1] == "to" {
		if _, ok := actionVerbs[tokens[2]]; ok {
			return ""
		}
	}
	// Broad fallback: any action verb anywhere as a whole word.
	for _, tok := range tokens {
		if _, ok := actionVerbs[tok]; ok {
			return ""
		}
	}

	return "vague task: no action verb found"
}

// checkOwner requires an assignee or an explicit placeholder.
func checkOwner(assignee string) string {
	trimmed := strings.TrimSpace(assignee)
	if trimmed == "" {
		return "missing owner"
	}
	if _, ok := acceptedOwnerLiterals[strings.ToLower(trimmed)]; ok {
		return ""
	}
	if len(trimmed) < 2 {
		return "missing owner: name too short"
	}
	return ""
}

// checkDeadline requires a parseable date or an explicit placeholder.
func checkDeadline(deadline string) string {
	normalized := strings.ToLower(strings.TrimSpace(deadline))
	if normalized == "" {
		return "missing deadline"
	}
	if _, ok := acceptedDeadlineLiterals[normalized]; ok {
		return ""
	}
	if _, vague := vagueDeadlines[normalized]; vague {
		return fmt.Sprintf("vague deadline: %q", deadline)
	}
	for _, pattern := range deadlinePatterns {
		if pattern.MatchString(normalized) {
			return ""
		}
	}
	return fmt.Sprintf("vague deadline: %q", deadline)
}

// checkSubjectRelated scores the task against the subject. Passes when
// no subject is known yet.
func checkSubjectRelated(in Input) string {
	subj := in.Subject
	if subj == nil || subj.Title == "" {
		return ""
	}

	haystack := strings.ToLower(in.Task + " " + in.Context)
	matchCount := 0
	if subj.Title != "" && strings.Contains(haystack, strings.ToLower(subj.Title)) {
		matchCount += 3
	}
	if subj.Goal != "" && strings.Contains(haystack, strings.ToLower(subj.Goal)) {
		matchCount += 2
	}
	for _, kw := range subj.ScopeKeywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			matchCount++
		}
	}

	score := float64(matchCount) / float64(len(subj.ScopeKeywords)+5)
	if score < subjectRelatedThreshold {
		return fmt.Sprintf("not subject-related (score %.2f)", score)
	}
	return ""
}
