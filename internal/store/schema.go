package store

// schema defines every base table for the memory engine, executed once at
// open time. `CREATE TABLE IF NOT EXISTS` / `CREATE INDEX IF NOT EXISTS`
// throughout, so re-opening an existing database file is always safe.
const schema = `
CREATE TABLE IF NOT EXISTS turns (
    id TEXT PRIMARY KEY,
    thread_id TEXT NOT NULL,
    ts_user INTEGER NOT NULL,
    user_text TEXT NOT NULL,
    ts_ai INTEGER,
    ai_text TEXT,
    source_app TEXT NOT NULL,
    source_url TEXT,
    source_path TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_thread ON turns(thread_id);

CREATE TABLE IF NOT EXISTS workspaces (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE(name)
);

CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    created_at INTEGER NOT NULL,
    UNIQUE(workspace_id, name)
);

CREATE INDEX IF NOT EXISTS idx_projects_workspace ON projects(workspace_id);

CREATE TABLE IF NOT EXISTS areas (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE(project_id, name)
);

CREATE INDEX IF NOT EXISTS idx_areas_project ON areas(project_id);

CREATE TABLE IF NOT EXISTS topics (
    id TEXT PRIMARY KEY,
    area_id TEXT NOT NULL,
    name TEXT NOT NULL,
    is_index_note INTEGER NOT NULL DEFAULT 0,
    summary TEXT,
    created_at INTEGER NOT NULL,
    UNIQUE(area_id, name)
);

CREATE INDEX IF NOT EXISTS idx_topics_area ON topics(area_id);

CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    topic TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    snippet_title TEXT,
    snippet_text TEXT,
    snippet_location TEXT,
    snippet_language TEXT,
    entities TEXT NOT NULL DEFAULT '[]',
    provenance TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,
    ttl_seconds INTEGER,
    topic_id TEXT,
    importance INTEGER NOT NULL DEFAULT 5,
    status TEXT NOT NULL DEFAULT 'fleeting',
    version INTEGER NOT NULL DEFAULT 1,
    superseded_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_memories_topic_id ON memories(topic_id);
CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);
CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(status);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance DESC);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);

CREATE TABLE IF NOT EXISTS memory_relations (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    type TEXT NOT NULL,
    rationale TEXT,
    created_at INTEGER NOT NULL,
    UNIQUE(source_id, target_id, type)
);

CREATE INDEX IF NOT EXISTS idx_relations_source ON memory_relations(source_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON memory_relations(target_id);

CREATE TABLE IF NOT EXISTS memory_versions (
    id TEXT PRIMARY KEY,
    memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
    content TEXT NOT NULL,
    version_number INTEGER NOT NULL,
    change_summary TEXT,
    created_at INTEGER NOT NULL,
    UNIQUE(memory_id, version_number)
);

CREATE INDEX IF NOT EXISTS idx_versions_memory ON memory_versions(memory_id, version_number DESC);

CREATE TABLE IF NOT EXISTS agentic_memories (
    memory_id TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
    content TEXT NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    keywords TEXT NOT NULL DEFAULT '[]',
    tags TEXT NOT NULL DEFAULT '[]',
    category TEXT NOT NULL,
    links TEXT NOT NULL DEFAULT '[]',
    retrieval_count INTEGER NOT NULL DEFAULT 0,
    last_accessed INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    evolution_history TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS index_notes (
    id TEXT PRIMARY KEY,
    scope_type TEXT NOT NULL,
    scope_id TEXT NOT NULL,
    memory_count INTEGER NOT NULL DEFAULT 0,
    key_memories TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE(scope_type, scope_id)
);

CREATE TABLE IF NOT EXISTS progressive_summaries (
    id TEXT PRIMARY KEY,
    memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
    layer INTEGER NOT NULL,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_summaries_memory ON progressive_summaries(memory_id, layer);

CREATE TABLE IF NOT EXISTS embedding_cache (
    text_hash TEXT PRIMARY KEY,
    vector BLOB NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
    topic, text, snippet_text, entities,
    content='memories', content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
    INSERT INTO memories_fts(rowid, topic, text, snippet_text, entities)
    VALUES (new.rowid, new.topic, new.text, coalesce(new.snippet_text, ''), new.entities);
END;

CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, topic, text, snippet_text, entities)
    VALUES ('delete', old.rowid, old.topic, old.text, coalesce(old.snippet_text, ''), old.entities);
END;

CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, topic, text, snippet_text, entities)
    VALUES ('delete', old.rowid, old.topic, old.text, coalesce(old.snippet_text, ''), old.entities);
    INSERT INTO memories_fts(rowid, topic, text, snippet_text, entities)
    VALUES (new.rowid, new.topic, new.text, coalesce(new.snippet_text, ''), new.entities);
END;

CREATE VIRTUAL TABLE IF NOT EXISTS agentic_memories_fts USING fts5(
    content, context, keywords, tags,
    content='agentic_memories', content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS agentic_ai AFTER INSERT ON agentic_memories BEGIN
    INSERT INTO agentic_memories_fts(rowid, content, context, keywords, tags)
    VALUES (new.rowid, new.content, new.context, new.keywords, new.tags);
END;

CREATE TRIGGER IF NOT EXISTS agentic_ad AFTER DELETE ON agentic_memories BEGIN
    INSERT INTO agentic_memories_fts(agentic_memories_fts, rowid, content, context, keywords, tags)
    VALUES ('delete', old.rowid, old.content, old.context, old.keywords, old.tags);
END;

CREATE TRIGGER IF NOT EXISTS agentic_au AFTER UPDATE ON agentic_memories BEGIN
    INSERT INTO agentic_memories_fts(agentic_memories_fts, rowid, content, context, keywords, tags)
    VALUES ('delete', old.rowid, old.content, old.context, old.keywords, old.tags);
    INSERT INTO agentic_memories_fts(rowid, content, context, keywords, tags)
    VALUES (new.rowid, new.content, new.context, new.keywords, new.tags);
END;
`

// schemaMigrations holds guarded additive column changes, applied in order
// after schema creation. Each entry is idempotent: it checks PRAGMA
// table_info before issuing its ALTER TABLE, so re-running against a
// database that already has the column is a no-op.
type migration struct {
	table  string
	column string
	ddl    string
}

var schemaMigrations = []migration{
	// Reserved for future additive columns; applied via applyMigrations in
	// sqlite_store.go. Empty for the initial schema version.
}
