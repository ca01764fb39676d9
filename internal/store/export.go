package store

import (
	"encoding/json"
	"time"

	"github.com/ashvinar/memory-layer/internal/apperr"
)

// exportDocument is the full-store JSON snapshot format, the
// backup/restore surface behind `GET /export` and `POST /import`.
type exportDocument struct {
	Version            int                  `json:"version"`
	ExportedAt         time.Time            `json:"exportedAt"`
	Turns              []*Turn              `json:"turns"`
	Workspaces         []*Workspace         `json:"workspaces"`
	Projects           []*Project           `json:"projects"`
	Areas              []*Area              `json:"areas"`
	Topics             []*Topic             `json:"topics"`
	Memories           []*Memory            `json:"memories"`
	Relations          []*MemoryRelation    `json:"relations"`
	Versions           []*MemoryVersion     `json:"versions"`
	AgenticMemories    []*AgenticMemory     `json:"agenticMemories"`
	IndexNotes         []*IndexNote         `json:"indexNotes"`
	ProgressiveSummary []*ProgressiveSummary `json:"progressiveSummaries"`
}

const exportFormatVersion = 1

// Export serializes every table except the embedding cache to a single
// JSON document.
func (s *SQLiteStore) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := exportDocument{Version: exportFormatVersion, ExportedAt: time.Now().UTC()}

	var err error
	if doc.Turns, err = s.exportTurns(); err != nil {
		return nil, err
	}
	if doc.Workspaces, err = s.exportWorkspaces(); err != nil {
		return nil, err
	}
	if doc.Projects, err = s.exportProjects(); err != nil {
		return nil, err
	}
	if doc.Areas, err = s.exportAreas(); err != nil {
		return nil, err
	}
	if doc.Topics, err = s.exportTopics(); err != nil {
		return nil, err
	}
	if doc.Memories, err = s.listMemoriesUnlocked(memorySelect + `ORDER BY created_at ASC`); err != nil {
		return nil, err
	}
	if doc.Relations, err = s.exportRelations(); err != nil {
		return nil, err
	}
	if doc.Versions, err = s.exportVersions(); err != nil {
		return nil, err
	}
	if doc.AgenticMemories, err = s.exportAgentic(); err != nil {
		return nil, err
	}
	if doc.IndexNotes, err = s.exportIndexNotes(); err != nil {
		return nil, err
	}
	if doc.ProgressiveSummary, err = s.exportSummaries(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, apperr.WrapInternal(err, "marshal export document")
	}
	return data, nil
}

// Import replaces the entire store with the contents of a previously
// exported document. Insert order respects foreign-key dependencies:
// hierarchy scopes, then memories, then everything that references a
// memory. The embedding cache is not part of the document and is left as
// it is.
func (s *SQLiteStore) Import(data []byte) error {
	var doc exportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return apperr.NewBadRequest("invalid export document: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return apperr.WrapInternal(err, "begin import tx")
	}
	defer tx.Rollback()

	for _, table := range []string{
		"progressive_summaries", "index_notes", "agentic_memories", "memory_versions", "memory_relations",
		"memories", "topics", "areas", "projects", "workspaces", "turns",
	} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return apperr.WrapInternal(err, "clear table %s", table)
		}
	}

	for _, t := range doc.Turns {
		var tsAI any
		if t.TSAI != nil {
			tsAI = t.TSAI.UnixMilli()
		}
		if _, err := tx.Exec(`
			INSERT INTO turns (id, thread_id, ts_user, user_text, ts_ai, ai_text, source_app, source_url, source_path, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.ThreadID, t.TSUser.UnixMilli(), t.UserText, tsAI, nullString(t.AIText),
			t.Source.App, nullString(t.Source.URL), nullString(t.Source.Path), t.CreatedAt.UnixMilli()); err != nil {
			return apperr.WrapInternal(err, "import turn %s", t.ID)
		}
	}

	for _, w := range doc.Workspaces {
		if _, err := tx.Exec(`INSERT INTO workspaces (id, name, created_at) VALUES (?, ?, ?)`,
			w.ID, w.Name, w.CreatedAt.UnixMilli()); err != nil {
			return apperr.WrapInternal(err, "import workspace %s", w.ID)
		}
	}
	for _, p := range doc.Projects {
		if _, err := tx.Exec(`INSERT INTO projects (id, workspace_id, name, status, created_at) VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.WorkspaceID, p.Name, string(p.Status), p.CreatedAt.UnixMilli()); err != nil {
			return apperr.WrapInternal(err, "import project %s", p.ID)
		}
	}
	for _, a := range doc.Areas {
		if _, err := tx.Exec(`INSERT INTO areas (id, project_id, name, created_at) VALUES (?, ?, ?, ?)`,
			a.ID, a.ProjectID, a.Name, a.CreatedAt.UnixMilli()); err != nil {
			return apperr.WrapInternal(err, "import area %s", a.ID)
		}
	}
	for _, t := range doc.Topics {
		var summary any
		if t.Summary != nil {
			summary = *t.Summary
		}
		if _, err := tx.Exec(`INSERT INTO topics (id, area_id, name, is_index_note, summary, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, t.AreaID, t.Name, boolToInt(t.IsIndexNote), summary, t.CreatedAt.UnixMilli()); err != nil {
			return apperr.WrapInternal(err, "import topic %s", t.ID)
		}
	}

	for _, m := range doc.Memories {
		entitiesJSON, _ := json.Marshal(nonNilStrings(m.Entities))
		provenanceJSON, _ := json.Marshal(nonNilStrings(m.Provenance))
		var snippetTitle, snippetText, snippetLoc, snippetLang any
		if m.Snippet != nil {
			snippetTitle, snippetText, snippetLoc, snippetLang = m.Snippet.Title, m.Snippet.Text, m.Snippet.Location, m.Snippet.Language
		}
		var ttl any
		if m.TTLSeconds != nil {
			ttl = *m.TTLSeconds
		}
		var topicID, supersededBy any
		if m.TopicID != nil {
			topicID = *m.TopicID
		}
		if m.SupersededBy != nil {
			supersededBy = *m.SupersededBy
		}
		if _, err := tx.Exec(`
			INSERT INTO memories (
				id, kind, topic, text, snippet_title, snippet_text, snippet_location, snippet_language,
				entities, provenance, created_at, ttl_seconds, topic_id, importance, status, version, superseded_by
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, string(m.Kind), m.Topic, m.Text, snippetTitle, snippetText, snippetLoc, snippetLang,
			string(entitiesJSON), string(provenanceJSON), m.CreatedAt.UnixMilli(), ttl, topicID,
			ClampImportance(m.Importance), string(m.Status), m.Version, supersededBy); err != nil {
			return apperr.WrapInternal(err, "import memory %s", m.ID)
		}
	}

	for _, r := range doc.Relations {
		var rationale any
		if r.Rationale != nil {
			rationale = *r.Rationale
		}
		if _, err := tx.Exec(`
			INSERT INTO memory_relations (id, source_id, target_id, type, rationale, created_at) VALUES (?, ?, ?, ?, ?, ?)
		`, r.ID, r.SourceID, r.TargetID, string(r.Type), rationale, r.CreatedAt.UnixMilli()); err != nil {
			return apperr.WrapInternal(err, "import relation %s", r.ID)
		}
	}
	for _, v := range doc.Versions {
		var summary any
		if v.ChangeSummary != nil {
			summary = *v.ChangeSummary
		}
		if _, err := tx.Exec(`
			INSERT INTO memory_versions (id, memory_id, content, version_number, change_summary, created_at) VALUES (?, ?, ?, ?, ?, ?)
		`, v.ID, v.MemoryID, v.Content, v.VersionNumber, summary, v.CreatedAt.UnixMilli()); err != nil {
			return apperr.WrapInternal(err, "import version %s", v.ID)
		}
	}
	for _, a := range doc.AgenticMemories {
		keywordsJSON, _ := json.Marshal(nonNilStrings(a.Keywords))
		tagsJSON, _ := json.Marshal(nonNilStrings(a.Tags))
		linksJSON, _ := json.Marshal(nonNilLinks(a.Links))
		evolutionJSON, _ := json.Marshal(nonNilEvolution(a.EvolutionHistory))
		if _, err := tx.Exec(`
			INSERT INTO agentic_memories (
				memory_id, content, context, keywords, tags, category, links,
				retrieval_count, last_accessed, created_at, evolution_history
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.MemoryID, a.Content, a.Context, string(keywordsJSON), string(tagsJSON), string(a.Category),
			string(linksJSON), a.RetrievalCount, a.LastAccessed.UnixMilli(), a.CreatedAt.UnixMilli(), string(evolutionJSON)); err != nil {
			return apperr.WrapInternal(err, "import agentic memory %s", a.MemoryID)
		}
	}
	for _, n := range doc.IndexNotes {
		keyMemoriesJSON, _ := json.Marshal(nonNilStrings(n.KeyMemories))
		if _, err := tx.Exec(`
			INSERT INTO index_notes (id, scope_type, scope_id, memory_count, key_memories, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, n.ID, n.ScopeType, n.ScopeID, n.MemoryCount, string(keyMemoriesJSON), n.CreatedAt.UnixMilli(), n.UpdatedAt.UnixMilli()); err != nil {
			return apperr.WrapInternal(err, "import index note %s", n.ID)
		}
	}
	for _, sm := range doc.ProgressiveSummary {
		if _, err := tx.Exec(`
			INSERT INTO progressive_summaries (id, memory_id, layer, content, created_at) VALUES (?, ?, ?, ?, ?)
		`, sm.ID, sm.MemoryID, sm.Layer, sm.Content, sm.CreatedAt.UnixMilli()); err != nil {
			return apperr.WrapInternal(err, "import summary %s", sm.ID)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) listMemoriesUnlocked(query string, args ...any) ([]*Memory, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.WrapInternal(err, "export memories")
	}
	defer rows.Close()
	var out []*Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, apperr.WrapInternal(err, "scan memory")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) exportTurns() ([]*Turn, error) {
	rows, err := s.db.Query(`
		SELECT id, thread_id, ts_user, user_text, ts_ai, ai_text, source_app, source_url, source_path, created_at
		FROM turns ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, apperr.WrapInternal(err, "export turns")
	}
	defer rows.Close()
	var out []*Turn
	for rows.Next() {
		t, err := scanTurnRows(rows)
		if err != nil {
			return nil, apperr.WrapInternal(err, "scan turn")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) exportWorkspaces() ([]*Workspace, error) {
	rows, err := s.db.Query(`SELECT id, name, created_at FROM workspaces ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperr.WrapInternal(err, "export workspaces")
	}
	defer rows.Close()
	var out []*Workspace
	for rows.Next() {
		var w Workspace
		var createdAtMs int64
		if err := rows.Scan(&w.ID, &w.Name, &createdAtMs); err != nil {
			return nil, apperr.WrapInternal(err, "scan workspace")
		}
		w.CreatedAt = timeFromMillis(createdAtMs)
		out = append(out, &w)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) exportProjects() ([]*Project, error) {
	rows, err := s.db.Query(`SELECT id, workspace_id, name, status, created_at FROM projects ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperr.WrapInternal(err, "export projects")
	}
	defer rows.Close()
	var out []*Project
	for rows.Next() {
		var p Project
		var status string
		var createdAtMs int64
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &p.Name, &status, &createdAtMs); err != nil {
			return nil, apperr.WrapInternal(err, "scan project")
		}
		p.Status = ProjectStatus(status)
		p.CreatedAt = timeFromMillis(createdAtMs)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) exportAreas() ([]*Area, error) {
	rows, err := s.db.Query(`SELECT id, project_id, name, created_at FROM areas ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperr.WrapInternal(err, "export areas")
	}
	defer rows.Close()
	var out []*Area
	for rows.Next() {
		var a Area
		var createdAtMs int64
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &createdAtMs); err != nil {
			return nil, apperr.WrapInternal(err, "scan area")
		}
		a.CreatedAt = timeFromMillis(createdAtMs)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) exportTopics() ([]*Topic, error) {
	rows, err := s.db.Query(`SELECT id, area_id, name, is_index_note, summary, created_at FROM topics ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperr.WrapInternal(err, "export topics")
	}
	defer rows.Close()
	var out []*Topic
	for rows.Next() {
		t, err := func() (*Topic, error) {
			var tpc Topic
			var isIndexNote int
			var summary *string
			var createdAtMs int64
			var summaryNS any
			if err := rows.Scan(&tpc.ID, &tpc.AreaID, &tpc.Name, &isIndexNote, &summaryNS, &createdAtMs); err != nil {
				return nil, err
			}
			if sv, ok := summaryNS.(string); ok {
				summary = &sv
			}
			tpc.IsIndexNote = intToBool(isIndexNote)
			tpc.Summary = summary
			tpc.CreatedAt = timeFromMillis(createdAtMs)
			return &tpc, nil
		}()
		if err != nil {
			return nil, apperr.WrapInternal(err, "scan topic")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) exportRelations() ([]*MemoryRelation, error) {
	rows, err := s.db.Query(`SELECT id, source_id, target_id, type, rationale, created_at FROM memory_relations ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperr.WrapInternal(err, "export relations")
	}
	return scanRelationRows(rows)
}

func (s *SQLiteStore) exportVersions() ([]*MemoryVersion, error) {
	rows, err := s.db.Query(`
		SELECT id, memory_id, content, version_number, change_summary, created_at
		FROM memory_versions ORDER BY memory_id, version_number ASC
	`)
	if err != nil {
		return nil, apperr.WrapInternal(err, "export versions")
	}
	defer rows.Close()
	var out []*MemoryVersion
	for rows.Next() {
		var mv MemoryVersion
		var changeSummary any
		var createdAtMs int64
		if err := rows.Scan(&mv.ID, &mv.MemoryID, &mv.Content, &mv.VersionNumber, &changeSummary, &createdAtMs); err != nil {
			return nil, apperr.WrapInternal(err, "scan version")
		}
		if sv, ok := changeSummary.(string); ok {
			mv.ChangeSummary = &sv
		}
		mv.CreatedAt = timeFromMillis(createdAtMs)
		out = append(out, &mv)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) exportAgentic() ([]*AgenticMemory, error) {
	rows, err := s.db.Query(agenticSelect)
	if err != nil {
		return nil, apperr.WrapInternal(err, "export agentic memories")
	}
	defer rows.Close()
	var out []*AgenticMemory
	for rows.Next() {
		var (
			a                                 AgenticMemory
			category                          string
			keywordsJSON, tagsJSON            string
			linksJSON, evolutionJSON          string
			lastAccessedMs, createdAtMs       int64
		)
		if err := rows.Scan(&a.MemoryID, &a.Content, &a.Context, &keywordsJSON, &tagsJSON, &category,
			&linksJSON, &a.RetrievalCount, &lastAccessedMs, &createdAtMs, &evolutionJSON); err != nil {
			return nil, apperr.WrapInternal(err, "scan agentic memory")
		}
		a.Category = MemoryKind(category)
		a.LastAccessed = timeFromMillis(lastAccessedMs)
		a.CreatedAt = timeFromMillis(createdAtMs)
		_ = json.Unmarshal([]byte(keywordsJSON), &a.Keywords)
		_ = json.Unmarshal([]byte(tagsJSON), &a.Tags)
		_ = json.Unmarshal([]byte(linksJSON), &a.Links)
		_ = json.Unmarshal([]byte(evolutionJSON), &a.EvolutionHistory)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) exportIndexNotes() ([]*IndexNote, error) {
	rows, err := s.db.Query(`
		SELECT id, scope_type, scope_id, memory_count, key_memories, created_at, updated_at FROM index_notes
	`)
	if err != nil {
		return nil, apperr.WrapInternal(err, "export index notes")
	}
	defer rows.Close()
	var out []*IndexNote
	for rows.Next() {
		var n IndexNote
		var keyMemoriesJSON string
		var createdAtMs, updatedAtMs int64
		if err := rows.Scan(&n.ID, &n.ScopeType, &n.ScopeID, &n.MemoryCount, &keyMemoriesJSON, &createdAtMs, &updatedAtMs); err != nil {
			return nil, apperr.WrapInternal(err, "scan index note")
		}
		_ = json.Unmarshal([]byte(keyMemoriesJSON), &n.KeyMemories)
		n.CreatedAt = timeFromMillis(createdAtMs)
		n.UpdatedAt = timeFromMillis(updatedAtMs)
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) exportSummaries() ([]*ProgressiveSummary, error) {
	rows, err := s.db.Query(`SELECT id, memory_id, layer, content, created_at FROM progressive_summaries ORDER BY memory_id, layer ASC`)
	if err != nil {
		return nil, apperr.WrapInternal(err, "export summaries")
	}
	defer rows.Close()
	var out []*ProgressiveSummary
	for rows.Next() {
		var sm ProgressiveSummary
		var createdAtMs int64
		if err := rows.Scan(&sm.ID, &sm.MemoryID, &sm.Layer, &sm.Content, &createdAtMs); err != nil {
			return nil, apperr.WrapInternal(err, "scan summary")
		}
		sm.CreatedAt = timeFromMillis(createdAtMs)
		out = append(out, &sm)
	}
	return out, rows.Err()
}
