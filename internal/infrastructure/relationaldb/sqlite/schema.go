package sqlite

// schema is applied by EnsureSchema. Timestamps are TEXT in timeLayout.
const schema = `
	-- Relationship records (one wide table shared by all tenants)
	CREATE TABLE IF NOT EXISTS relationships (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		from_entity_id TEXT NOT NULL,
		to_entity_id TEXT NOT NULL,
		relationship_type TEXT NOT NULL,
		smart_code TEXT NOT NULL,
		strength REAL NOT NULL DEFAULT 1.0 CHECK (strength >= 0 AND strength <= 1),
		direction TEXT NOT NULL DEFAULT 'forward' CHECK (direction IN ('forward', 'reverse', 'bidirectional')),
		is_active INTEGER NOT NULL DEFAULT 1,
		effective_at TEXT,
		expires_at TEXT,
		data TEXT NOT NULL DEFAULT 'null',
		business_rules TEXT NOT NULL DEFAULT 'null',
		validation_rules TEXT NOT NULL DEFAULT 'null',
		confidence REAL,
		insights TEXT NOT NULL DEFAULT 'null',
		classification TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1 CHECK (version >= 1),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		created_by TEXT NOT NULL,
		updated_by TEXT NOT NULL,
		CHECK (effective_at IS NULL OR expires_at IS NULL OR expires_at > effective_at)
	);
	CREATE INDEX IF NOT EXISTS idx_relationships_org_from ON relationships(organization_id, from_entity_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_org_to ON relationships(organization_id, to_entity_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_org_type ON relationships(organization_id, relationship_type);
	CREATE INDEX IF NOT EXISTS idx_relationships_org_active ON relationships(organization_id, is_active);

	-- Registered relationship types and their validation policy
	CREATE TABLE IF NOT EXISTS relationship_types (
		organization_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		hierarchical INTEGER NOT NULL DEFAULT 0,
		allow_self_reference INTEGER NOT NULL DEFAULT 0,
		max_depth INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		PRIMARY KEY (organization_id, name)
	);

	-- Audit log (one row per accepted mutation)
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		organization_id TEXT NOT NULL,
		relationship_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor TEXT NOT NULL,
		version INTEGER NOT NULL,
		details TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_relationship ON audit_log(organization_id, relationship_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(organization_id, action);
`
