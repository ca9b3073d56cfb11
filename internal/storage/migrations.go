package storage

type migration struct {
	version int
	sql     string
}

var sqliteMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS notification_task (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id      INTEGER NOT NULL,
	message      TEXT    NOT NULL CHECK (length(trim(message)) > 0),
	date_time    TEXT    NOT NULL,
	delivered_at TEXT,
	created_at   TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notification_task_due
	ON notification_task(date_time) WHERE delivered_at IS NULL;
`,
	},
}

var postgresMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS notification_task (
	id           BIGSERIAL PRIMARY KEY,
	chat_id      BIGINT    NOT NULL,
	message      TEXT      NOT NULL CHECK (length(trim(message)) > 0),
	date_time    TIMESTAMP WITHOUT TIME ZONE NOT NULL,
	delivered_at TEXT,
	created_at   TEXT      NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notification_task_due
	ON notification_task(date_time) WHERE delivered_at IS NULL;
`,
	},
}
