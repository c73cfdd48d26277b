package store

const schema = `
CREATE TABLE IF NOT EXISTS extractions (
    token TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    package TEXT NOT NULL,
    database_name TEXT NOT NULL,
    local_path TEXT NOT NULL,
    pathway TEXT NOT NULL,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS extraction_files (
    token TEXT NOT NULL,
    name TEXT NOT NULL,
    technique TEXT,
    ok BOOLEAN NOT NULL,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    detail TEXT,
    PRIMARY KEY (token, name),
    FOREIGN KEY (token) REFERENCES extractions(token) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_extractions_created ON extractions(created_at);
CREATE INDEX IF NOT EXISTS idx_extractions_path ON extractions(local_path);
CREATE INDEX IF NOT EXISTS idx_extractions_target ON extractions(device_id, package, database_name);
`
