package db

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS refreshes (
    id TEXT PRIMARY KEY,
    strategy TEXT NOT NULL,
    source TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT NOT NULL,
    market_count INTEGER NOT NULL,
    news_count INTEGER NOT NULL,
    alert_count INTEGER NOT NULL,
    warnings TEXT
);
CREATE INDEX IF NOT EXISTS idx_refreshes_started ON refreshes(started_at);

CREATE TABLE IF NOT EXISTS scored_markets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    refresh_id TEXT NOT NULL REFERENCES refreshes(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    market_id TEXT NOT NULL,
    name TEXT NOT NULL,
    reference REAL NOT NULL,
    url TEXT NOT NULL,
    change_24h REAL,
    market_source TEXT NOT NULL,
    estimated REAL,
    gap REAL,
    signal TEXT NOT NULL,
    reason TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scored_refresh ON scored_markets(refresh_id);
CREATE INDEX IF NOT EXISTS idx_scored_market ON scored_markets(market_id);

CREATE TABLE IF NOT EXISTS news_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    refresh_id TEXT NOT NULL REFERENCES refreshes(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    title TEXT NOT NULL,
    published TEXT NOT NULL,
    link TEXT NOT NULL,
    source TEXT NOT NULL,
    timestamp_fallback TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_news_refresh ON news_items(refresh_id);
`
