package store

const schema = `
CREATE TABLE IF NOT EXISTS activity_records (
    kind          TEXT NOT NULL,
    entity_id     TEXT NOT NULL,
    total_score   INTEGER NOT NULL DEFAULT 0,
    last_activity INTEGER,
    last_updated  DATETIME NOT NULL,
    version       INTEGER NOT NULL DEFAULT 1,
    doc           TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (kind, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_records_score ON activity_records(kind, total_score);
CREATE INDEX IF NOT EXISTS idx_records_last_activity ON activity_records(last_activity);

CREATE TABLE IF NOT EXISTS entities (
    kind            TEXT NOT NULL,
    id              TEXT NOT NULL,
    name            TEXT NOT NULL DEFAULT '',
    github_username TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (kind, id)
);

CREATE TABLE IF NOT EXISTS participations (
    user_id           TEXT NOT NULL,
    event_id          TEXT NOT NULL,
    event_name        TEXT NOT NULL DEFAULT '',
    event_date        DATETIME,
    participant_count INTEGER NOT NULL DEFAULT 0,
    position          INTEGER NOT NULL DEFAULT 0,
    UNIQUE(user_id, event_id)
);

CREATE TABLE IF NOT EXISTS organizer_roles (
    entity_kind       TEXT NOT NULL,
    entity_id         TEXT NOT NULL,
    event_id          TEXT NOT NULL,
    event_name        TEXT NOT NULL DEFAULT '',
    role              TEXT NOT NULL DEFAULT 'member',
    event_date        DATETIME,
    participant_count INTEGER NOT NULL DEFAULT 0,
    UNIQUE(entity_kind, entity_id, event_id)
);

CREATE TABLE IF NOT EXISTS memberships (
    entity_kind TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    org_id      TEXT NOT NULL,
    org_name    TEXT NOT NULL DEFAULT '',
    role        TEXT NOT NULL DEFAULT '',
    team_name   TEXT NOT NULL DEFAULT '',
    joined_at   DATETIME,
    UNIQUE(entity_kind, entity_id, org_id, team_name)
);

CREATE TABLE IF NOT EXISTS reviews (
    review_id   TEXT PRIMARY KEY,
    entity_kind TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    rating      INTEGER NOT NULL DEFAULT 0,
    status      TEXT NOT NULL DEFAULT 'pending',
    reviewed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_participations_user ON participations(user_id);
CREATE INDEX IF NOT EXISTS idx_organizer_roles_entity ON organizer_roles(entity_kind, entity_id);
CREATE INDEX IF NOT EXISTS idx_memberships_entity ON memberships(entity_kind, entity_id);
CREATE INDEX IF NOT EXISTS idx_reviews_entity ON reviews(entity_kind, entity_id, status);
`
