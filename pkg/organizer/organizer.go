// Package organizer resolves the four-level workspace/project/area/topic
// hierarchy scope for a memory and writes its topic_id. It touches no
// field on the memory besides topic_id.
package organizer

import (
	"net/url"
	"strings"

	"github.com/ashvinar/memory-layer/internal/store"
)

var projectMarkers = map[string]bool{
	"code":      true,
	"projects":  true,
	"workspace": true,
	"work":      true,
}

var areaByKind = map[store.MemoryKind]string{
	store.KindDecision: "Decisions",
	store.KindFact:     "Facts",
	store.KindSnippet:  "Code",
	store.KindTask:     "Tasks",
}

const defaultProjectName = "Default"

// Organize resolves (workspace, project, area, topic) for m given the turn
// it was distilled from, calling the four get-or-create storage operations
// and setting m.TopicID. It returns the same *Memory for chaining.
func Organize(s store.Storer, m *store.Memory, t *store.Turn) (*store.Memory, error) {
	ws, err := s.GetOrCreateWorkspace(t.Source.App)
	if err != nil {
		return nil, err
	}

	project, err := s.GetOrCreateProject(ws.ID, resolveProjectName(t.Source))
	if err != nil {
		return nil, err
	}

	area, err := s.GetOrCreateArea(project.ID, resolveAreaName(m.Kind))
	if err != nil {
		return nil, err
	}

	topic, err := s.GetOrCreateTopic(area.ID, resolveTopicName(m.Topic))
	if err != nil {
		return nil, err
	}

	m.TopicID = &topic.ID
	return m, nil
}

// resolveProjectName: a marker segment in source.path wins over positional
// fallback, which wins over the URL path, which wins over the URL host,
// which wins over "Default".
func resolveProjectName(src store.Source) string {
	if name, ok := projectNameFromPath(src.Path); ok {
		return name
	}
	if name, ok := projectNameFromURL(src.URL); ok {
		return name
	}
	return defaultProjectName
}

func projectNameFromPath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	segments := splitPath(path)
	for i, seg := range segments {
		if projectMarkers[strings.ToLower(seg)] && i+1 < len(segments) {
			return segments[i+1], true
		}
	}
	if len(segments) >= 4 {
		return segments[3], true
	}
	return "", false
}

func projectNameFromURL(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	segments := splitPath(u.Path)
	if len(segments) > 0 {
		return segments[0], true
	}
	host := u.Host
	if host == "" {
		host = raw
	}
	label := strings.SplitN(host, ".", 2)[0]
	if label == "" {
		return "", false
	}
	return label, true
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func resolveAreaName(kind store.MemoryKind) string {
	if name, ok := areaByKind[kind]; ok {
		return name
	}
	return "Facts"
}

func resolveTopicName(topic string) string {
	trimmed := strings.TrimSpace(topic)
	if trimmed == "" {
		return "General"
	}
	return trimmed
}
