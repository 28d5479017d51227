package storage

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"NoteCollab/logger"
	"NoteCollab/module/collab/document"
	"NoteCollab/module/collab/model"
	"NoteCollab/tools/errs"
)

// PgStore 与 MongoStore 等价的 postgres 实现；快照列存 JSONB。
// 只选一种 Store 注入引擎，按部署环境配置二选一。
type PgStore struct {
	pool *pgxpool.Pool
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS workspace_states (
	workspace_id  TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	documents     JSONB NOT NULL DEFAULT '[]',
	active_users  JSONB NOT NULL DEFAULT '[]',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_activity TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS document_states (
	workspace_id  TEXT NOT NULL,
	document_id   TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	version       INT  NOT NULL DEFAULT 0,
	last_modified TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (workspace_id, document_id)
);`

func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.ErrCollaborator.WrapMsg("pg connect failed", "err", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, errs.ErrCollaborator.WrapMsg("pg ensure schema failed", "err", err)
	}
	logger.Infof("[storage] postgres connected")
	return &PgStore{pool: pool}, nil
}

func (s *PgStore) Close() { s.pool.Close() }

func (s *PgStore) PersistWorkspaceState(ctx context.Context, snap document.WorkspaceSnapshot) error {
	docs, err := json.Marshal(snap.Documents)
	if err != nil {
		return errs.ErrCollaborator.WrapMsg("marshal documents failed", "err", err)
	}
	users, err := json.Marshal(snap.ActiveUsers)
	if err != nil {
		return errs.ErrCollaborator.WrapMsg("marshal users failed", "err", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO workspace_states (workspace_id, name, documents, active_users, created_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workspace_id) DO UPDATE SET
			name = EXCLUDED.name,
			documents = EXCLUDED.documents,
			active_users = EXCLUDED.active_users,
			last_activity = EXCLUDED.last_activity`,
		snap.WorkspaceID, snap.Name, docs, users, snap.CreatedAt, snap.LastActivity)
	if err != nil {
		return errs.ErrCollaborator.WrapMsg("persist workspace failed", "id", snap.WorkspaceID, "err", err)
	}
	return nil
}

func (s *PgStore) PersistDocumentState(ctx context.Context, workspaceID string, snap document.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO document_states (workspace_id, document_id, content, version, last_modified)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (workspace_id, document_id) DO UPDATE SET
			content = EXCLUDED.content,
			version = EXCLUDED.version,
			last_modified = EXCLUDED.last_modified`,
		workspaceID, snap.DocumentID, snap.Content, snap.Version, snap.LastModified)
	if err != nil {
		return errs.ErrCollaborator.WrapMsg("persist document failed", "id", snap.DocumentID, "err", err)
	}
	return nil
}

func (s *PgStore) LoadWorkspaceStates(ctx context.Context) ([]document.WorkspaceSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT workspace_id, name, documents, active_users, created_at, last_activity FROM workspace_states`)
	if err != nil {
		return nil, errs.ErrCollaborator.WrapMsg("load workspaces failed", "err", err)
	}
	defer rows.Close()

	var out []document.WorkspaceSnapshot
	for rows.Next() {
		var snap document.WorkspaceSnapshot
		var docs, users []byte
		if err := rows.Scan(&snap.WorkspaceID, &snap.Name, &docs, &users, &snap.CreatedAt, &snap.LastActivity); err != nil {
			return nil, errs.ErrCollaborator.WrapMsg("scan workspace failed", "err", err)
		}
		if err := json.Unmarshal(docs, &snap.Documents); err != nil {
			return nil, errs.ErrCollaborator.WrapMsg("decode documents failed", "err", err)
		}
		if users != nil {
			var list []model.UserPresence
			if err := json.Unmarshal(users, &list); err == nil {
				snap.ActiveUsers = list
			}
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
