package extraction

import (
	"github.com/coregx/ahocorasick"
)

// Term lists driving the confidence boosts. Matching runs over lowercased
// text through a single Aho-Corasick pass per automaton instead of one
// regexp per term.
var technicalTerms = []string{
	"api", "async", "backend", "benchmark", "binary", "branch", "build",
	"cache", "cli", "client", "cluster", "commit", "compiler", "concurrency",
	"config", "container", "cpu", "daemon", "database", "debug", "dependency",
	"deploy", "docker", "endpoint", "frontend", "git", "golang", "goroutine",
	"grpc", "http", "index", "javascript", "json", "kafka", "kernel",
	"kubernetes", "latency", "library", "linux", "merge", "migration",
	"module", "mutex", "mysql", "namespace", "network", "nginx", "node",
	"orm", "parser", "pipeline", "postgres", "protobuf", "proxy", "python",
	"queue", "redis", "refactor", "regex", "repository", "rest", "runtime",
	"rust", "schema", "server", "shard", "shell", "socket", "sqlite", "ssl",
	"terminal", "thread", "throughput", "timeout", "tls", "token",
	"transaction", "typescript", "websocket", "yaml",
}

var reasoningMarkers = []string{
	"because", "since", "therefore", "so that", "in order to", "due to",
	"the reason", "which means",
}

var actionMarkers = []string{
	"implement", "refactor", "migrate", "deploy", "build", "fix", "add",
	"remove", "update", "upgrade", "switch", "rewrite", "configure",
	"install", "test", "optimize",
}

var (
	technicalTermAC   = mustAutomaton(technicalTerms)
	reasoningMarkerAC = mustAutomaton(reasoningMarkers)
	actionMarkerAC    = mustAutomaton(actionMarkers)
)

func mustAutomaton(patterns []string) *ahocorasick.Automaton {
	ac, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		panic(err)
	}
	return ac
}

// termSpan is a whole-word automaton hit in the scanned text.
type termSpan struct {
	start, end int
}

// wholeWordMatches filters raw automaton hits down to those on word
// boundaries, so "api" never fires inside "rapid". lower must already be
// lowercased.
func wholeWordMatches(ac *ahocorasick.Automaton, lower string) []termSpan {
	raw := ac.FindAllOverlapping([]byte(lower))
	spans := make([]termSpan, 0, len(raw))
	for _, m := range raw {
		if m.Start > 0 && isWordByte(lower[m.Start-1]) {
			continue
		}
		if m.End < len(lower) && isWordByte(lower[m.End]) {
			continue
		}
		spans = append(spans, termSpan{start: m.Start, end: m.End})
	}
	return spans
}

func isWordByte(c byte) bool {
	return c == '_' || c == '-' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func hasTechnicalTerm(lower string) bool {
	return len(wholeWordMatches(technicalTermAC, lower)) > 0
}

// firstTechnicalTerm returns the earliest technical term in lower, used by
// topic inference when neither path nor URL gives a topic.
func firstTechnicalTerm(lower string) (string, bool) {
	spans := wholeWordMatches(technicalTermAC, lower)
	if len(spans) == 0 {
		return "", false
	}
	best := spans[0]
	for _, s := range spans[1:] {
		if s.start < best.start {
			best = s
		}
	}
	return lower[best.start:best.end], true
}

func countReasoningMarkers(lower string) int {
	return len(wholeWordMatches(reasoningMarkerAC, lower))
}

func hasReasoningMarker(lower string) bool {
	return countReasoningMarkers(lower) > 0
}

func countActionMarkers(lower string) int {
	return len(wholeWordMatches(actionMarkerAC, lower))
}
