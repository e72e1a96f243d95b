package parse

import (
	"regexp"
	"strings"
)

var (
	reEmail = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// JP fixed/mobile with area hyphens, plus loose international forms.
	rePhoneJP   = regexp.MustCompile(`0\d{1,4}-\d{1,4}-\d{3,4}`)
	rePhoneIntl = regexp.MustCompile(`\+\d{1,3}[\s\-]?\d{1,4}[\s\-]?\d{2,4}[\s\-]?\d{3,4}`)
	// Lines that are mostly address/URL noise and never a person's name.
	reNoise = regexp.MustCompile(`(?i)https?://|www\.|〒|\d{3}-\d{4}|tel[:.]|fax[:.]|mail[:.]`)
)

var companySuffixes = []string{
	"株式会社", "有限会社", "合同会社", "合資会社",
	"Inc.", "Inc", "LLC", "Ltd.", "Ltd", "Corp.", "Corp",
	"Co.,", "Co.", "GmbH", "K.K.", "Corporation", "Company",
}

var roleKeywords = []string{
	"代表取締役", "取締役", "社長", "部長", "課長", "係長", "主任",
	"マネージャー", "エンジニア", "デザイナー", "営業",
	"CEO", "CTO", "CFO", "COO", "VP", "President",
	"Director", "Manager", "Engineer", "Designer", "Developer",
	"Lead", "Head of", "Officer", "Consultant", "Sales",
}

// PatternExtractor is the deterministic fallback: pure local pattern
// matching, no network, never fails. Its confidence is fixed and low.
type PatternExtractor struct{}

// Extract scans the raw text line by line. Email and phone come from regex
// matches; company from organizational suffixes; role from keyword lines;
// the first line matching none of the above is taken as the name.
func (PatternExtractor) Extract(rawText string) ContactRecord {
	rec := ContactRecord{Confidence: PatternConfidence}

	if m := reEmail.FindString(rawText); m != "" {
		rec.Email = m
	}
	if m := rePhoneJP.FindString(rawText); m != "" {
		rec.Phone = m
	} else if m := rePhoneIntl.FindString(rawText); m != "" {
		rec.Phone = m
	}

	for _, line := range strings.Split(rawText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		matched := false
		if rec.Company == "" && hasCompanySuffix(line) {
			rec.Company = line
			matched = true
		}
		if rec.Role == "" && !matched && hasRoleKeyword(line) {
			rec.Role = line
			matched = true
		}
		if matched {
			continue
		}
		if reEmail.MatchString(line) || rePhoneJP.MatchString(line) ||
			rePhoneIntl.MatchString(line) || reNoise.MatchString(line) {
			continue
		}
		if rec.Name == "" {
			rec.Name = line
		}
	}
	return rec
}

func hasCompanySuffix(line string) bool {
	for _, s := range companySuffixes {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func hasRoleKeyword(line string) bool {
	for _, k := range roleKeywords {
		if strings.Contains(line, k) {
			return true
		}
	}
	return false
}
