// Package ingest turns free-text CV and job documents into structured skill
// sets and drives node upserts into the knowledge graph.
package ingest

import (
	"regexp"
	"sort"
	"strings"
)

// CandidateDoc is the structured output of parsing a CV.
type CandidateDoc struct {
	Skills     []string
	Experience []string
}

// JobDoc is the structured output of parsing a job posting.
type JobDoc struct {
	Title          string
	Company        string
	RequiredSkills []string
}

var (
	skillLabelRe     = regexp.MustCompile(`(?i)skills[:\-]\s*(.+)`)
	techSkillLabelRe = regexp.MustCompile(`(?i)technical skills[:\-]\s*(.+)`)
	skillSplitRe     = regexp.MustCompile(`[,|\n;]+`)
	tokenRe          = regexp.MustCompile(`\b[A-Za-z+#]{2,20}\b`)
	numericRe        = regexp.MustCompile(`^[0-9]+$`)
	experienceRe     = regexp.MustCompile(`.{0,80}(?:at|@)\s+[A-Z][\w&\-\s]{2,80}`)

	reqSkillsRe   = regexp.MustCompile(`(?i)required skills[:\-]\s*(.+)`)
	requirementRe = regexp.MustCompile(`(?i)(requirements|must have|you must have)[:\-]\s*(.+)`)
	titleRe       = regexp.MustCompile(`(?i)title[:\-]\s*(.+)`)
	companyRe     = regexp.MustCompile(`(?i)company[:\-]\s*(.+)`)
)

const (
	maxFallbackSkills  = 40
	maxExperienceLines = 10
)

// ParseCandidateText extracts a skill list and experience lines from raw CV
// text. A labeled skills line wins; without one the parser falls back to
// frequency analysis over the whole document. Pure function, never touches
// the graph.
func ParseCandidateText(text string) CandidateDoc {
	text = strings.ReplaceAll(text, "\r", "\n")

	var skills []string
	for _, re := range []*regexp.Regexp{skillLabelRe, techSkillLabelRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			skills = splitSkillList(m[1])
			break
		}
	}
	if len(skills) == 0 {
		skills = frequentTokens(text)
	}

	var experience []string
	for _, line := range experienceRe.FindAllString(text, maxExperienceLines) {
		experience = append(experience, strings.TrimSpace(line))
	}

	return CandidateDoc{Skills: dedupe(skills), Experience: experience}
}

// ParseJobText extracts title, company and required skills from raw job text.
// The explicit "required skills" label takes precedence over the looser
// "requirements" / "must have" labels.
func ParseJobText(text string) JobDoc {
	var skills []string
	if m := reqSkillsRe.FindStringSubmatch(text); m != nil {
		skills = splitSkillList(m[1])
	}
	if len(skills) == 0 {
		if m := requirementRe.FindStringSubmatch(text); m != nil {
			skills = splitSkillList(m[2])
		}
	}

	doc := JobDoc{RequiredSkills: dedupe(skills)}
	if m := titleRe.FindStringSubmatch(text); m != nil {
		doc.Title = strings.TrimSpace(m[1])
	}
	if m := companyRe.FindStringSubmatch(text); m != nil {
		doc.Company = strings.TrimSpace(m[1])
	}
	return doc
}

func splitSkillList(line string) []string {
	var out []string
	for _, s := range skillSplitRe.Split(line, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// frequentTokens is the no-label fallback: case-insensitive word frequencies
// over the whole text, words appearing at least twice, most frequent first,
// ties in first-occurrence order, capped at maxFallbackSkills.
func frequentTokens(text string) []string {
	counts := make(map[string]int)
	var order []string
	for _, tok := range tokenRe.FindAllString(text, -1) {
		w := strings.ToLower(tok)
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > maxFallbackSkills {
		order = order[:maxFallbackSkills]
	}
	var out []string
	for _, w := range order {
		if counts[w] >= 2 && len(w) >= 2 && !numericRe.MatchString(w) {
			out = append(out, w)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
