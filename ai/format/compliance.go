package format

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DefaultListLimit is the number of list items allowed when the question does
// not ask for a specific amount.
const DefaultListLimit = 3

var (
	storageTerms = regexp.MustCompile(`(?i)\b(sql|database|databases|schema|schemas|table|tables|column|columns|query|queries)\b`)
	rawMinutes   = regexp.MustCompile(`(?i)\b(\d{2,})\s*(minutes|mins|min)\b`)
	requested    = regexp.MustCompile(`(?i)\b(\d{1,2}|two|three|four|five|six|seven|eight|nine|ten)\s+(?:[a-z-]+\s+){0,2}?(tips|ideas|recommendations|suggestions|ways|things|examples|exercises|points|options|steps|items|questions|alternatives|reasons|foods|habits)\b`)
	askMinutes   = regexp.MustCompile(`(?i)\bin minutes\b`)

	// Identifier-shaped tokens: snake_case, CamelCase and bare id columns.
	snakeIdent = regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9]*(?:_[A-Za-z0-9]+)+\b`)
	camelIdent = regexp.MustCompile(`\b[A-Z][a-z]+(?:[A-Z][a-z]+)+\b`)
	idColumn   = regexp.MustCompile(`\b(?:id|Id)\b`)

	inlineItem = regexp.MustCompile(`(?:^|\s)(\d{1,2})[.)]`)

	// Column names that are also everyday words a coach may use.
	plainColumnWords = map[string]bool{
		"id": true, "date": true, "day": true, "time": true, "minute": true, "minutes": true,
		"hour": true, "hours": true, "value": true, "goal": true, "metric": true, "steps": true,
		"calories": true, "distance": true, "weight": true, "bmi": true, "fat": true, "sleep": true,
	}

	numberWords = map[string]int{
		"two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	}
)

// Report lists the presentation rule violations found in an answer.
type Report struct {
	ListItems    int
	ListLimit    int
	StorageTerms []string
	RawMinutes   []string
}

// Compliant reports whether the answer breaks none of the rules.
func (r Report) Compliant() bool {
	return r.ListItems <= r.ListLimit && len(r.StorageTerms) == 0 && len(r.RawMinutes) == 0
}

// Checker is the deterministic view of the presentation rules. It errs on the
// side of reporting: a false violation only costs a judge call.
type Checker struct {
	md         goldmark.Markdown
	vocabulary []*regexp.Regexp
}

// NewChecker creates a checker that also rejects the given table and column
// names. Column names that are ordinary words are not treated as leaks.
func NewChecker(vocabulary []string) *Checker {
	c := &Checker{md: goldmark.New()}
	seen := make(map[string]bool, len(vocabulary))
	for _, name := range vocabulary {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] || plainColumnWords[key] {
			continue
		}
		seen[key] = true
		c.vocabulary = append(c.vocabulary, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(key)+`\b`))
	}
	return c
}

// Check inspects answer in the light of question.
func (c *Checker) Check(question, answer string) Report {
	report := Report{
		ListItems: c.countListItems(answer),
		ListLimit: requestedCount(question),
	}

	for _, m := range storageTerms.FindAllString(answer, -1) {
		report.StorageTerms = append(report.StorageTerms, strings.ToLower(m))
	}
	for _, re := range c.vocabulary {
		report.StorageTerms = append(report.StorageTerms, re.FindAllString(answer, -1)...)
	}
	for _, re := range []*regexp.Regexp{snakeIdent, camelIdent, idColumn} {
		report.StorageTerms = append(report.StorageTerms, re.FindAllString(answer, -1)...)
	}

	if !askMinutes.MatchString(question) {
		for _, m := range rawMinutes.FindAllStringSubmatch(answer, -1) {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 60 {
				report.RawMinutes = append(report.RawMinutes, m[0])
			}
		}
	}
	return report
}

func (c *Checker) countListItems(answer string) int {
	source := []byte(answer)
	doc := c.md.Parser().Parse(text.NewReader(source))

	count := 0
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindListItem {
			count++
		}
		return ast.WalkContinue, nil
	})
	return max(count, inlineItems(answer))
}

// inlineItems returns the length of the longest "1) 2) 3)" style enumeration
// written inside running text.
func inlineItems(answer string) int {
	longest, next := 0, 1
	for _, loc := range inlineItem.FindAllStringSubmatchIndex(answer, -1) {
		// "3.5 hours" is a number, not an item marker.
		if end := loc[1]; end < len(answer) && answer[end] != ' ' && answer[end] != '\t' && answer[end] != '\n' {
			continue
		}
		n, _ := strconv.Atoi(answer[loc[2]:loc[3]])
		switch n {
		case next:
			next++
		case 1:
			next = 2
		default:
			continue
		}
		longest = max(longest, next-1)
	}
	return longest
}

// requestedCount returns the number of items the question asks for, or DefaultListLimit.
func requestedCount(question string) int {
	limit := DefaultListLimit
	for _, m := range requested.FindAllStringSubmatch(question, -1) {
		word := strings.ToLower(m[1])
		n, ok := numberWords[word]
		if !ok {
			var err error
			if n, err = strconv.Atoi(word); err != nil {
				continue
			}
		}
		if n > limit && n <= 20 {
			limit = n
		}
	}
	return limit
}
