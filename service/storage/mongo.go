package storage

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"NoteCollab/logger"
	"NoteCollab/module/collab/document"
	"NoteCollab/tools/errs"
)

const (
	collWorkspaces = "workspace_states"
	collDocuments  = "document_states"
)

// MongoConfig mongo 连接参数
type MongoConfig struct {
	URI      string
	Database string
}

// MongoStore 工作区/文档快照的 mongo 持久化。
// 快照整体 upsert，不做增量；热重启时 LoadWorkspaceStates 全量回灌。
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errs.ErrCollaborator.WrapMsg("mongo connect failed", "err", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx, nil); err != nil {
		return nil, errs.ErrCollaborator.WrapMsg("mongo ping failed", "err", err)
	}
	logger.Infof("[storage] mongo connected uri=%s db=%s", cfg.URI, cfg.Database)
	return &MongoStore{db: cli.Database(cfg.Database)}, nil
}

// PersistWorkspaceState 按 workspace_id 整体 upsert
func (s *MongoStore) PersistWorkspaceState(ctx context.Context, snap document.WorkspaceSnapshot) error {
	_, err := s.db.Collection(collWorkspaces).ReplaceOne(ctx,
		bson.M{"workspace_id": snap.WorkspaceID},
		snap,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return errs.ErrCollaborator.WrapMsg("persist workspace failed", "id", snap.WorkspaceID, "err", err)
	}
	return nil
}

// PersistDocumentState 单文档快照，按 workspace_id+document_id upsert
func (s *MongoStore) PersistDocumentState(ctx context.Context, workspaceID string, snap document.Snapshot) error {
	_, err := s.db.Collection(collDocuments).UpdateOne(ctx,
		bson.M{"workspace_id": workspaceID, "document_id": snap.DocumentID},
		bson.M{"$set": bson.M{
			"workspace_id":  workspaceID,
			"document_id":   snap.DocumentID,
			"content":       snap.Content,
			"version":       snap.Version,
			"last_modified": snap.LastModified,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errs.ErrCollaborator.WrapMsg("persist document failed", "id", snap.DocumentID, "err", err)
	}
	return nil
}

// LoadWorkspaceStates 热重启全量回灌
func (s *MongoStore) LoadWorkspaceStates(ctx context.Context) ([]document.WorkspaceSnapshot, error) {
	cur, err := s.db.Collection(collWorkspaces).Find(ctx, bson.M{})
	if err != nil {
		return nil, errs.ErrCollaborator.WrapMsg("load workspaces failed", "err", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []document.WorkspaceSnapshot
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrCollaborator.WrapMsg("decode workspaces failed", "err", err)
	}
	return out, nil
}
