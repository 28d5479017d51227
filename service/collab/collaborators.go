package collab

import (
	"context"
	"net/http"

	"NoteCollab/module/collab/document"
	"NoteCollab/module/collab/model"
)

// 引擎消费的外部协作方。全部可空注入：缺省时对应能力降级为 no-op，
// 任何协作方失败只记日志，不影响内存态会话（尽力而为，不是正确性依赖）。

// Authenticator 握手认证：从升级请求里解出用户身份。
type Authenticator interface {
	Authenticate(r *http.Request) (model.User, error)
}

// Store 工作区/文档快照持久化（周期落盘 + 热重启回灌）。
type Store interface {
	PersistWorkspaceState(ctx context.Context, snap document.WorkspaceSnapshot) error
	PersistDocumentState(ctx context.Context, workspaceID string, snap document.Snapshot) error
	LoadWorkspaceStates(ctx context.Context) ([]document.WorkspaceSnapshot, error)
}

// PresenceMirror 跨节点在线状态镜像（redis）。
type PresenceMirror interface {
	Online(ctx context.Context, workspaceID string, p model.UserPresence) error
	Offline(ctx context.Context, workspaceID, userID string) error
}

// EventPublisher 活动事件外发（nats），供通知/活动流消费。
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload map[string]any) error
}

// Journal 已应用操作流水外发（kafka），供下游审计/回放消费。
type Journal interface {
	AppendOperation(workspaceID, documentID string, op model.Operation, version int)
}
