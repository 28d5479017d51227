package document

import (
	"sync"
	"time"

	"NoteCollab/module/collab/model"
	"NoteCollab/module/collab/ot"
)

// 容量上限（与历史协议对齐，勿随意调大）
const (
	MaxRecentOperations  = 1000 // 已应用操作历史（FIFO 淘汰）
	MaxPendingOperations = 10   // 未完全确认操作窗口（FIFO 淘汰）
)

// State 单文档协作状态机。
// 所有 ApplyIncoming 必须经由同一个 State 串行化：
// 变换 + 应用 + version 递增在 mu 下原子完成，锁内绝不做 I/O。
type State struct {
	mu sync.Mutex

	documentID   string
	content      string
	version      int
	recentOps    []model.Operation // 已应用历史，容量 MaxRecentOperations
	pendingOps   []model.Operation // 变换窗口，容量 MaxPendingOperations
	lastModified time.Time
}

func NewState(documentID string) *State {
	return &State{
		documentID:   documentID,
		lastModified: time.Now(),
	}
}

// Restore 从持久化快照回灌内容与版本（热重启），不恢复操作窗口。
func Restore(documentID, content string, version int, lastModified time.Time) *State {
	return &State{
		documentID:   documentID,
		content:      content,
		version:      version,
		lastModified: lastModified,
	}
}

// ApplyIncoming 接收一条客户端原始操作：
//  1. 先对 pending 中“其他用户”的操作逐一 rebase（模拟该客户端知晓并发编辑后的样子）；
//  2. rebase 结果进 pending 窗口（超容 FIFO 丢弃，不报错）；
//  3. 应用到内容，version+1，进历史；
//  4. 返回 rebase 后的操作，供广播给其它连接。
//
// 非法操作直接拒绝：不改状态、不广播。
func (s *State) ApplyIncoming(raw model.Operation) (model.Operation, error) {
	if err := raw.Validate(); err != nil {
		return model.Operation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rebased := raw
	for _, pending := range s.pendingOps {
		if pending.UserID == raw.UserID {
			continue
		}
		rebased, _ = ot.Transform(rebased, pending)
	}

	s.pendingOps = append(s.pendingOps, rebased)
	if len(s.pendingOps) > MaxPendingOperations {
		s.pendingOps = s.pendingOps[len(s.pendingOps)-MaxPendingOperations:]
	}

	s.content = ot.Apply(s.content, rebased)
	s.version++
	s.recentOps = append(s.recentOps, rebased)
	if len(s.recentOps) > MaxRecentOperations {
		s.recentOps = s.recentOps[len(s.recentOps)-MaxRecentOperations:]
	}
	s.lastModified = time.Now()

	return rebased, nil
}

// Content 当前内容
func (s *State) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

// Version 当前版本号（每成功应用一个操作严格 +1）
func (s *State) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *State) DocumentID() string { return s.documentID }

// Snapshot 导出持久化快照（复制，不暴露内部切片）。
type Snapshot struct {
	DocumentID   string            `bson:"document_id" json:"document_id"`
	Content      string            `bson:"content" json:"content"`
	Version      int               `bson:"version" json:"version"`
	RecentOps    []model.Operation `bson:"recent_operations" json:"recent_operations"`
	LastModified time.Time         `bson:"last_modified" json:"last_modified"`
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]model.Operation, len(s.recentOps))
	copy(ops, s.recentOps)
	return Snapshot{
		DocumentID:   s.documentID,
		Content:      s.content,
		Version:      s.version,
		RecentOps:    ops,
		LastModified: s.lastModified,
	}
}
