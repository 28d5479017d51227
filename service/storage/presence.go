package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"NoteCollab/module/collab/model"
	"NoteCollab/tools/errs"
)

const (
	presenceKeyPrefix = "collab:presence:" // collab:presence:<workspace>:<user>
	presenceTTL       = 10 * time.Minute   // 节点宕机后的兜底过期
)

// RedisPresence 把在线状态镜像到 redis，供其它节点/后台查询。
// 引擎内存态才是权威，这里只是镜像：写失败由调用方记日志后继续。
type RedisPresence struct {
	client *redis.Client
}

func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client}
}

func presenceKey(workspaceID, userID string) string {
	return presenceKeyPrefix + workspaceID + ":" + userID
}

// Online 写入/刷新在场镜像
func (r *RedisPresence) Online(ctx context.Context, workspaceID string, p model.UserPresence) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return errs.ErrCollaborator.WrapMsg("marshal presence failed", "err", err)
	}
	if err := r.client.Set(ctx, presenceKey(workspaceID, p.UserID), raw, presenceTTL).Err(); err != nil {
		return errs.ErrCollaborator.WrapMsg("redis set presence failed", "err", err)
	}
	return nil
}

// Offline 删除镜像
func (r *RedisPresence) Offline(ctx context.Context, workspaceID, userID string) error {
	if err := r.client.Del(ctx, presenceKey(workspaceID, userID)).Err(); err != nil {
		return errs.ErrCollaborator.WrapMsg("redis del presence failed", "err", err)
	}
	return nil
}

// GetPresence 单个用户的镜像；不在线返回 ok=false
func (r *RedisPresence) GetPresence(ctx context.Context, workspaceID, userID string) (model.UserPresence, bool, error) {
	raw, err := r.client.Get(ctx, presenceKey(workspaceID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.UserPresence{}, false, nil
	}
	if err != nil {
		return model.UserPresence{}, false, errs.ErrCollaborator.WrapMsg("redis get presence failed", "err", err)
	}
	var p model.UserPresence
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.UserPresence{}, false, errs.ErrCollaborator.WrapMsg("decode presence failed", "err", err)
	}
	return p, true, nil
}

// ListOnline 某工作区的全部在场镜像（后台查询用）
func (r *RedisPresence) ListOnline(ctx context.Context, workspaceID string) ([]model.UserPresence, error) {
	keys, err := r.client.Keys(ctx, presenceKeyPrefix+workspaceID+":*").Result()
	if err != nil {
		return nil, errs.ErrCollaborator.WrapMsg("redis scan presence failed", "err", err)
	}
	out := make([]model.UserPresence, 0, len(keys))
	for _, key := range keys {
		raw, gerr := r.client.Get(ctx, key).Bytes()
		if gerr != nil {
			continue // 过期竞态，跳过
		}
		var p model.UserPresence
		if json.Unmarshal(raw, &p) == nil {
			out = append(out, p)
		}
	}
	return out, nil
}
