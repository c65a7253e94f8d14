package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS boards (
    id          BIGSERIAL PRIMARY KEY,
    uuid        TEXT NOT NULL UNIQUE,
    code        TEXT NOT NULL UNIQUE,
    status      TEXT NOT NULL DEFAULT 'REGISTERED',
    name        TEXT NOT NULL DEFAULT '',
    type        TEXT NOT NULL DEFAULT '',
    agent       TEXT NOT NULL DEFAULT '',
    owner       TEXT NOT NULL DEFAULT '',
    project     TEXT NOT NULL DEFAULT '',
    mobile      BOOLEAN NOT NULL DEFAULT FALSE,
    config      JSONB NOT NULL DEFAULT '{}',
    extra       JSONB NOT NULL DEFAULT '{}',
    reservation TEXT NOT NULL DEFAULT '',
    target_status TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS locations (
    id         BIGSERIAL PRIMARY KEY,
    board_id   BIGINT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
    longitude  TEXT NOT NULL DEFAULT '',
    latitude   TEXT NOT NULL DEFAULT '',
    altitude   TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sessions (
    id         BIGSERIAL PRIMARY KEY,
    board_id   BIGINT NOT NULL REFERENCES boards(id),
    board_uuid TEXT NOT NULL,
    session_id TEXT NOT NULL UNIQUE,
    valid      BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_sessions_board ON sessions(board_uuid);

CREATE TABLE IF NOT EXISTS plugins (
    id         BIGSERIAL PRIMARY KEY,
    uuid       TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    owner      TEXT NOT NULL DEFAULT '',
    public     BOOLEAN NOT NULL DEFAULT FALSE,
    code       TEXT NOT NULL DEFAULT '',
    callable   BOOLEAN NOT NULL DEFAULT TRUE,
    parameters JSONB NOT NULL DEFAULT '{}',
    extra      JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS injection_plugins (
    id          BIGSERIAL PRIMARY KEY,
    board_uuid  TEXT NOT NULL REFERENCES boards(uuid),
    plugin_uuid TEXT NOT NULL REFERENCES plugins(uuid),
    onboot      BOOLEAN NOT NULL DEFAULT FALSE,
    status      TEXT NOT NULL DEFAULT 'injected',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(board_uuid, plugin_uuid)
);

CREATE TABLE IF NOT EXISTS conductors (
    id         BIGSERIAL PRIMARY KEY,
    hostname   TEXT NOT NULL UNIQUE,
    online     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS wampagents (
    id         BIGSERIAL PRIMARY KEY,
    hostname   TEXT NOT NULL UNIQUE,
    wsurl      TEXT NOT NULL DEFAULT '',
    online     BOOLEAN NOT NULL DEFAULT TRUE,
    ragent     BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS admin_users (
    id            BIGSERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS outbox (
    id         BIGSERIAL PRIMARY KEY,
    topic      TEXT NOT NULL,
    payload    BYTEA NOT NULL,
    retries    INTEGER NOT NULL DEFAULT 0,
    sent       BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
