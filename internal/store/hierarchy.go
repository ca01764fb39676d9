package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/ids"
)

// GetOrCreateWorkspace returns the existing workspace id for name, or
// creates one. Idempotent under concurrent callers: a losing writer on the
// UNIQUE(name) constraint re-reads and returns the winner's row.
func (s *SQLiteStore) GetOrCreateWorkspace(name string) (*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, err := s.getWorkspaceByName(name); err == nil {
		return w, nil
	} else if !errors.Is(err, apperr.NotFound) {
		return nil, err
	}

	w := &Workspace{ID: ids.New(ids.PrefixWorkspace), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.Exec(`INSERT INTO workspaces (id, name, created_at) VALUES (?, ?, ?)`,
		w.ID, w.Name, w.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueConstraint(err) {
			return s.getWorkspaceByName(name)
		}
		return nil, apperr.WrapInternal(err, "create workspace")
	}
	return w, nil
}

func (s *SQLiteStore) getWorkspaceByName(name string) (*Workspace, error) {
	row := s.db.QueryRow(`SELECT id, name, created_at FROM workspaces WHERE name = ?`, name)
	var w Workspace
	var createdAtMs int64
	if err := row.Scan(&w.ID, &w.Name, &createdAtMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("workspace %q not found", name)
		}
		return nil, apperr.WrapInternal(err, "get workspace")
	}
	w.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	return &w, nil
}

// GetOrCreateProject returns the existing project id for (workspaceID,
// name), or creates one with status "active".
func (s *SQLiteStore) GetOrCreateProject(workspaceID, name string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, err := s.getProjectByName(workspaceID, name); err == nil {
		return p, nil
	} else if !errors.Is(err, apperr.NotFound) {
		return nil, err
	}

	p := &Project{
		ID:          ids.New(ids.PrefixProject),
		WorkspaceID: workspaceID,
		Name:        name,
		Status:      ProjectActive,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO projects (id, workspace_id, name, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.WorkspaceID, p.Name, string(p.Status), p.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueConstraint(err) {
			return s.getProjectByName(workspaceID, name)
		}
		return nil, apperr.WrapInternal(err, "create project")
	}
	return p, nil
}

func (s *SQLiteStore) getProjectByName(workspaceID, name string) (*Project, error) {
	row := s.db.QueryRow(`SELECT id, workspace_id, name, status, created_at FROM projects WHERE workspace_id = ? AND name = ?`,
		workspaceID, name)
	var p Project
	var status string
	var createdAtMs int64
	if err := row.Scan(&p.ID, &p.WorkspaceID, &p.Name, &status, &createdAtMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("project %q not found", name)
		}
		return nil, apperr.WrapInternal(err, "get project")
	}
	p.Status = ProjectStatus(status)
	p.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	return &p, nil
}

// GetOrCreateArea returns the existing area id for (projectID, name), or
// creates one.
func (s *SQLiteStore) GetOrCreateArea(projectID, name string) (*Area, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, err := s.getAreaByName(projectID, name); err == nil {
		return a, nil
	} else if !errors.Is(err, apperr.NotFound) {
		return nil, err
	}

	a := &Area{ID: ids.New(ids.PrefixArea), ProjectID: projectID, Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.Exec(`INSERT INTO areas (id, project_id, name, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.ProjectID, a.Name, a.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueConstraint(err) {
			return s.getAreaByName(projectID, name)
		}
		return nil, apperr.WrapInternal(err, "create area")
	}
	return a, nil
}

func (s *SQLiteStore) getAreaByName(projectID, name string) (*Area, error) {
	row := s.db.QueryRow(`SELECT id, project_id, name, created_at FROM areas WHERE project_id = ? AND name = ?`,
		projectID, name)
	var a Area
	var createdAtMs int64
	if err := row.Scan(&a.ID, &a.ProjectID, &a.Name, &createdAtMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("area %q not found", name)
		}
		return nil, apperr.WrapInternal(err, "get area")
	}
	a.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	return &a, nil
}

// GetOrCreateTopic returns the existing topic id for (areaID, name), or
// creates one.
func (s *SQLiteStore) GetOrCreateTopic(areaID, name string) (*Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, err := s.getTopicByName(areaID, name); err == nil {
		return t, nil
	} else if !errors.Is(err, apperr.NotFound) {
		return nil, err
	}

	t := &Topic{ID: ids.New(ids.PrefixTopic), AreaID: areaID, Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.Exec(`INSERT INTO topics (id, area_id, name, is_index_note, summary, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.AreaID, t.Name, boolToInt(t.IsIndexNote), nil, t.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueConstraint(err) {
			return s.getTopicByName(areaID, name)
		}
		return nil, apperr.WrapInternal(err, "create topic")
	}
	return t, nil
}

func (s *SQLiteStore) getTopicByName(areaID, name string) (*Topic, error) {
	row := s.db.QueryRow(`SELECT id, area_id, name, is_index_note, summary, created_at FROM topics WHERE area_id = ? AND name = ?`,
		areaID, name)
	return scanTopicRow(row)
}

// GetTopic reads a topic by id.
func (s *SQLiteStore) GetTopic(id string) (*Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT id, area_id, name, is_index_note, summary, created_at FROM topics WHERE id = ?`, id)
	return scanTopicRow(row)
}

func scanTopicRow(row *sql.Row) (*Topic, error) {
	var t Topic
	var isIndexNote int
	var summary sql.NullString
	var createdAtMs int64
	if err := row.Scan(&t.ID, &t.AreaID, &t.Name, &isIndexNote, &summary, &createdAtMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("topic not found")
		}
		return nil, apperr.WrapInternal(err, "get topic")
	}
	t.IsIndexNote = intToBool(isIndexNote)
	if summary.Valid {
		s := summary.String
		t.Summary = &s
	}
	t.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	return &t, nil
}

// ListTopicsForArea returns every topic under an area.
func (s *SQLiteStore) ListTopicsForArea(areaID string) ([]*Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, area_id, name, is_index_note, summary, created_at FROM topics WHERE area_id = ? ORDER BY name`, areaID)
	if err != nil {
		return nil, apperr.WrapInternal(err, "list topics")
	}
	defer rows.Close()

	var out []*Topic
	for rows.Next() {
		var t Topic
		var isIndexNote int
		var summary sql.NullString
		var createdAtMs int64
		if err := rows.Scan(&t.ID, &t.AreaID, &t.Name, &isIndexNote, &summary, &createdAtMs); err != nil {
			return nil, apperr.WrapInternal(err, "scan topic")
		}
		t.IsIndexNote = intToBool(isIndexNote)
		if summary.Valid {
			v := summary.String
			t.Summary = &v
		}
		t.CreatedAt = time.UnixMilli(createdAtMs).UTC()
		out = append(out, &t)
	}
	return out, rows.Err()
}

// HierarchyPath walks topic -> area -> project -> workspace for display
// and for the organizer's read-back path.
func (s *SQLiteStore) HierarchyPath(topicID string) (*Workspace, *Project, *Area, *Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT id, area_id, name, is_index_note, summary, created_at FROM topics WHERE id = ?`, topicID)
	topic, err := scanTopicRow(row)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var area Area
	var areaCreated int64
	err = s.db.QueryRow(`SELECT id, project_id, name, created_at FROM areas WHERE id = ?`, topic.AreaID).
		Scan(&area.ID, &area.ProjectID, &area.Name, &areaCreated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, nil, apperr.NewNotFound("area for topic not found")
		}
		return nil, nil, nil, nil, apperr.WrapInternal(err, "get area")
	}
	area.CreatedAt = time.UnixMilli(areaCreated).UTC()

	var project Project
	var projectStatus string
	var projectCreated int64
	err = s.db.QueryRow(`SELECT id, workspace_id, name, status, created_at FROM projects WHERE id = ?`, area.ProjectID).
		Scan(&project.ID, &project.WorkspaceID, &project.Name, &projectStatus, &projectCreated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, nil, apperr.NewNotFound("project for area not found")
		}
		return nil, nil, nil, nil, apperr.WrapInternal(err, "get project")
	}
	project.Status = ProjectStatus(projectStatus)
	project.CreatedAt = time.UnixMilli(projectCreated).UTC()

	var workspace Workspace
	var workspaceCreated int64
	err = s.db.QueryRow(`SELECT id, name, created_at FROM workspaces WHERE id = ?`, project.WorkspaceID).
		Scan(&workspace.ID, &workspace.Name, &workspaceCreated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, nil, apperr.NewNotFound("workspace for project not found")
		}
		return nil, nil, nil, nil, apperr.WrapInternal(err, "get workspace")
	}
	workspace.CreatedAt = time.UnixMilli(workspaceCreated).UTC()

	return &workspace, &project, &area, topic, nil
}
