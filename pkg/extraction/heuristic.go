package extraction

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"

	"github.com/ashvinar/memory-layer/internal/store"
)

// contextRadius is the half-width of the context window cut around a
// pattern match, before snapping to sentence boundaries.
const contextRadius = 120

var (
	decidedPattern   = regexp.MustCompile(`(?i)\bdecided\s+to\b`)
	intentPattern    = regexp.MustCompile(`(?i)\b(?:will|going\s+to)\s+[a-z]+`)
	migrationPattern = regexp.MustCompile(`(?i)\b(?:migrat(?:e|ed|ing)|switch(?:ed|ing)?\s+to|mov(?:e|ed|ing)\s+to|adopt(?:ed|ing)?|replac(?:e|ed|ing))\b`)

	todoPattern         = regexp.MustCompile(`\b(?:TODO|FIXME|XXX)\b`)
	modalTaskPattern    = regexp.MustCompile(`(?i)\b(?:need\s+to|must|should)\b`)
	highPriorityPattern = regexp.MustCompile(`(?i)\b(?:urgent|critical|asap|blocking|broken|bug)\b`)

	keyValuePattern     = regexp.MustCompile(`^\s*([A-Za-z][\w .\-/]{0,40}?)\s*[:=]\s*(\S.*)$`)
	isMeansPattern      = regexp.MustCompile(`(?i)^(.{2,60}?)\s+(?:is|are|means|stands\s+for|refers\s+to)\s+(.{4,})$`)
	definitionalPattern = regexp.MustCompile(`(?i)\b(?:means|stands\s+for|refers\s+to|is\s+defined\s+as)\b`)
	pronounLeadPattern  = regexp.MustCompile(`(?i)^(?:this|that|it|these|those|there)\b`)

	fencePattern   = regexp.MustCompile("(?s)```([^\n`]*)\n(.*?)```")
	fileRefPattern = regexp.MustCompile(`([\w~./-]+\.[A-Za-z0-9]+):L(\d+)(?:-L(\d+))?`)

	backtickPattern = regexp.MustCompile("`([^`\n]+)`")
	capWordPattern  = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]+\b`)
)

// entityStopwords are capitalized words that lead sentences rather than
// naming anything; they never become entities.
var entityStopwords = map[string]bool{
	"A": true, "An": true, "And": true, "But": true, "For": true, "How": true,
	"If": true, "In": true, "It": true, "Its": true, "Not": true, "On": true,
	"Or": true, "So": true, "That": true, "The": true, "Then": true,
	"These": true, "This": true, "Those": true, "We": true, "What": true,
	"When": true, "Where": true, "Why": true, "You": true,
	"TODO": true, "FIXME": true, "XXX": true,
}

var entityStopwordChecker = stopwords.MustGet("en")

// Heuristic is the pattern-driven extractor. It is stateless and
// deterministic for a fixed input text.
type Heuristic struct{}

// NewHeuristic builds the heuristic extractor.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Extract converts a turn into memories using only local pattern matching.
func (h *Heuristic) Extract(turn *store.Turn) []*store.Memory {
	return toMemories(h.candidates(turn), turn)
}

func (h *Heuristic) candidates(turn *store.Turn) []candidate {
	text := turn.UserText
	topic := inferTopic(turn.Source, text)
	entities := extractEntities(text)

	var cands []candidate
	cands = append(cands, detectDecisions(text, topic, entities)...)
	cands = append(cands, detectTasks(text, topic, entities)...)
	cands = append(cands, detectFacts(text, topic, entities)...)
	cands = append(cands, detectSnippets(text, topic)...)
	if turn.AIText != "" {
		cands = append(cands, detectSnippets(turn.AIText, topic)...)
	}

	out := cands[:0]
	for _, c := range cands {
		if c.confidence >= minConfidence {
			out = append(out, c)
		}
	}
	return out
}

// detectDecisions finds "decided to", intent ("will"/"going to" + verb), and
// migration-verb clauses. Base confidence 0.7, boosted by reasoning markers,
// capitalized entities, and technical terms in the clause.
func detectDecisions(text, topic string, entities []string) []candidate {
	var cands []candidate
	for _, p := range []*regexp.Regexp{decidedPattern, intentPattern, migrationPattern} {
		for _, loc := range p.FindAllStringIndex(text, -1) {
			clause := contextWindow(text, loc[0], loc[1])
			lower := fastLower(clause)

			conf := 0.7
			if hasReasoningMarker(lower) {
				conf += 0.15
			}
			if len(capWordPattern.FindAllString(clause, 1)) > 0 {
				conf += 0.1
			}
			if hasTechnicalTerm(lower) {
				conf += 0.05
			}
			cands = append(cands, candidate{
				kind:       store.KindDecision,
				topic:      topic,
				text:       clause,
				entities:   entities,
				confidence: clampConfidence(conf),
			})
		}
	}
	return cands
}

// detectTasks finds explicit TODO/FIXME/XXX markers (0.9) and modal
// obligations (0.75). High-priority wording shortens the TTL to two days.
func detectTasks(text, topic string, entities []string) []candidate {
	var cands []candidate
	emit := func(loc []int, conf float64) {
		clause := contextWindow(text, loc[0], loc[1])
		ttl := ttlTaskSeconds
		if highPriorityPattern.MatchString(clause) {
			ttl = ttlUrgentSeconds
		}
		cands = append(cands, candidate{
			kind:       store.KindTask,
			topic:      topic,
			text:       clause,
			entities:   entities,
			confidence: conf,
			ttlSeconds: &ttl,
		})
	}

	for _, loc := range todoPattern.FindAllStringIndex(text, -1) {
		emit(loc, 0.9)
	}
	for _, loc := range modalTaskPattern.FindAllStringIndex(text, -1) {
		emit(loc, 0.75)
	}
	return cands
}

// detectFacts finds key:value lines and "X is/means Y" sentences, rejecting
// pronoun leads, questions, and very short values. Base 0.6 clears the
// emission threshold only with a terminology or definitional boost.
func detectFacts(text, topic string, entities []string) []candidate {
	var cands []candidate
	for _, sentence := range splitSentences(text) {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" || strings.HasSuffix(trimmed, "?") {
			continue
		}
		if pronounLeadPattern.MatchString(trimmed) {
			continue
		}

		var value string
		if m := keyValuePattern.FindStringSubmatch(trimmed); m != nil {
			value = strings.TrimSpace(m[2])
		} else if m := isMeansPattern.FindStringSubmatch(trimmed); m != nil {
			value = strings.TrimSpace(m[2])
		} else {
			continue
		}
		if len(value) < 4 {
			continue
		}

		lower := fastLower(trimmed)
		conf := 0.6
		if hasTechnicalTerm(lower) {
			conf += 0.2
		}
		if definitionalPattern.MatchString(trimmed) {
			conf += 0.15
		}
		cands = append(cands, candidate{
			kind:       store.KindFact,
			topic:      topic,
			text:       trimmed,
			entities:   entities,
			confidence: clampConfidence(conf),
		})
	}
	return cands
}

// detectSnippets captures fenced code blocks (0.95) and path:Ln-Lm file
// references (0.9).
func detectSnippets(text, topic string) []candidate {
	var cands []candidate

	for _, m := range fencePattern.FindAllStringSubmatchIndex(text, -1) {
		lang := strings.TrimSpace(text[m[2]:m[3]])
		if !isAlphanumeric(lang) {
			lang = ""
		}
		body := strings.Trim(text[m[4]:m[5]], "\n")
		if strings.TrimSpace(body) == "" {
			continue
		}
		cands = append(cands, candidate{
			kind:  store.KindSnippet,
			topic: topic,
			text:  snippetLead(text, m[0], body),
			snippet: &store.Snippet{
				Text:     body,
				Language: strings.ToLower(lang),
			},
			confidence: 0.95,
		})
	}

	for _, m := range fileRefPattern.FindAllStringSubmatchIndex(text, -1) {
		file := text[m[2]:m[3]]
		loc := "L" + text[m[4]:m[5]]
		if m[6] >= 0 {
			loc += "-L" + text[m[6]:m[7]]
		}
		cands = append(cands, candidate{
			kind:  store.KindSnippet,
			topic: topic,
			text:  contextWindow(text, m[0], m[1]),
			snippet: &store.Snippet{
				Title:    file,
				Text:     text[m[0]:m[1]],
				Location: loc,
				Language: languageForExtension(path.Ext(file)),
			},
			confidence: 0.9,
		})
	}
	return cands
}

// snippetLead returns the prose immediately before a fenced block, which
// usually introduces it, falling back to the block's own first line.
func snippetLead(text string, fenceStart int, body string) string {
	lead := strings.TrimSpace(text[:fenceStart])
	if idx := strings.LastIndexByte(lead, '\n'); idx != -1 {
		lead = strings.TrimSpace(lead[idx+1:])
	}
	if lead != "" {
		return lead
	}
	if idx := strings.IndexByte(body, '\n'); idx != -1 {
		return strings.TrimSpace(body[:idx])
	}
	return body
}

var languageByExtension = map[string]string{
	".go": "go", ".rs": "rust", ".py": "python", ".ts": "typescript",
	".js": "javascript", ".sql": "sql", ".sh": "bash", ".md": "markdown",
	".c": "c", ".h": "c", ".rb": "ruby", ".java": "java", ".yaml": "yaml",
	".yml": "yaml", ".toml": "toml", ".json": "json",
}

func languageForExtension(ext string) string {
	return languageByExtension[strings.ToLower(ext)]
}

// inferTopic implements the precedence chain: last path component of
// source.path, first path segment of source.url, first technical keyword in
// the text, then the app tag.
func inferTopic(src store.Source, text string) string {
	if src.Path != "" {
		if base := path.Base(src.Path); base != "." && base != "/" {
			return base
		}
	}
	if src.URL != "" {
		if u, err := url.Parse(src.URL); err == nil {
			for _, seg := range strings.Split(u.Path, "/") {
				if seg != "" {
					return seg
				}
			}
		}
	}
	if term, ok := firstTechnicalTerm(fastLower(text)); ok {
		return term
	}
	return src.App
}

// extractEntities collects capitalized words (minus the stopword list) and
// backtick-delimited identifiers, deduplicated and sorted.
func extractEntities(text string) []string {
	seen := make(map[string]bool)
	for _, w := range capWordPattern.FindAllString(text, -1) {
		if entityStopwords[w] || entityStopwordChecker.Contains(fastLower(w)) {
			continue
		}
		seen[w] = true
	}
	for _, m := range backtickPattern.FindAllStringSubmatch(text, -1) {
		ident := strings.TrimSpace(m[1])
		if ident != "" {
			seen[ident] = true
		}
	}

	out := make([]string, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// contextWindow cuts ±contextRadius chars around [start,end) and snaps both
// edges to the nearest sentence boundary inside the window.
func contextWindow(text string, start, end int) string {
	lo := start - contextRadius
	if lo < 0 {
		lo = 0
	}
	hi := end + contextRadius
	if hi > len(text) {
		hi = len(text)
	}

	// Snap the left edge forward to just after the last sentence end before
	// the match.
	for i := start - 1; i >= lo; i-- {
		if isSentenceEnd(text[i]) {
			lo = i + 1
			break
		}
	}
	// Snap the right edge back to the first sentence end after the match.
	for i := end; i < hi; i++ {
		if isSentenceEnd(text[i]) {
			hi = i + 1
			break
		}
	}

	return strings.TrimSpace(text[lo:hi])
}

func isSentenceEnd(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if isSentenceEnd(text[i]) || text[i] == '\n' {
			if i > start {
				out = append(out, text[start:i+1])
			}
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func clampConfidence(c float64) float64 {
	if c > 1 {
		return 1
	}
	return c
}

// fastLower returns the string if it contains no uppercase characters,
// otherwise returns strings.ToLower(s). Avoids allocation for common case.
func fastLower(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			return strings.ToLower(s)
		}
	}
	return s
}
