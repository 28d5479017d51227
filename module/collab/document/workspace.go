package document

import (
	"sync"
	"time"

	"NoteCollab/module/collab/model"
)

// Workspace 一个协作工作区：在场用户 + 懒创建的文档集合。
// 一旦创建常驻内存（与历史行为一致，不做闲置淘汰）。
type Workspace struct {
	mu sync.RWMutex

	workspaceID  string
	name         string
	activeUsers  map[string]*model.UserPresence // userID -> presence
	documents    map[string]*State              // documentID -> state
	createdAt    time.Time
	lastActivity time.Time
}

func NewWorkspace(workspaceID, name string) *Workspace {
	now := time.Now()
	return &Workspace{
		workspaceID:  workspaceID,
		name:         name,
		activeUsers:  make(map[string]*model.UserPresence),
		documents:    make(map[string]*State),
		createdAt:    now,
		lastActivity: now,
	}
}

func (w *Workspace) WorkspaceID() string { return w.workspaceID }
func (w *Workspace) Name() string        { return w.name }

// Document 取文档状态机；首次引用未知 documentId 时懒创建。
func (w *Workspace) Document(documentID string) *State {
	w.mu.RLock()
	st := w.documents[documentID]
	w.mu.RUnlock()
	if st != nil {
		return st
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if st = w.documents[documentID]; st == nil {
		st = NewState(documentID)
		w.documents[documentID] = st
	}
	w.lastActivity = time.Now()
	return st
}

// RestoreDocument 热重启时回灌单个文档
func (w *Workspace) RestoreDocument(st *State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.documents[st.DocumentID()] = st
}

// DocumentIDs 已知文档列表（快照集合用）
func (w *Workspace) DocumentIDs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.documents))
	for id := range w.documents {
		out = append(out, id)
	}
	return out
}

// Documents 全部文档状态机引用（周期落盘遍历用）
func (w *Workspace) Documents() []*State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*State, 0, len(w.documents))
	for _, st := range w.documents {
		out = append(out, st)
	}
	return out
}

// UpsertPresence 用户上线（或重复加入时刷新），返回其在场信息副本。
func (w *Workspace) UpsertPresence(user model.User) model.UserPresence {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.activeUsers[user.ID]
	if p == nil {
		p = model.NewPresence(user)
		w.activeUsers[user.ID] = p
	} else {
		p.Status = model.StatusOnline
		p.LastSeen = time.Now()
	}
	w.lastActivity = time.Now()
	return *p
}

// UpdateCursor 光标/选区移动，last-write-wins；不存在则悄悄忽略。
func (w *Workspace) UpdateCursor(userID string, position, selStart, selEnd int) (model.UserPresence, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.activeUsers[userID]
	if p == nil {
		return model.UserPresence{}, false
	}
	p.CursorPosition = position
	p.SelectionStart = selStart
	p.SelectionEnd = selEnd
	p.LastSeen = time.Now()
	return *p, true
}

// UpdateStatus 状态切换（online/away/busy/offline）
func (w *Workspace) UpdateStatus(userID, status string) (model.UserPresence, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.activeUsers[userID]
	if p == nil {
		return model.UserPresence{}, false
	}
	p.Status = status
	p.LastSeen = time.Now()
	return *p, true
}

// SetActiveDocument 记录用户正在看的文档；documentID 传空即清除。
func (w *Workspace) SetActiveDocument(userID, documentID string) (model.UserPresence, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.activeUsers[userID]
	if p == nil {
		return model.UserPresence{}, false
	}
	p.ActiveDocumentID = documentID
	p.LastSeen = time.Now()
	return *p, true
}

// RemovePresence 用户最后一条连接断开时调用
func (w *Workspace) RemovePresence(userID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.activeUsers[userID]; !ok {
		return false
	}
	delete(w.activeUsers, userID)
	w.lastActivity = time.Now()
	return true
}

// ActiveUsers 在场用户副本列表
func (w *Workspace) ActiveUsers() []model.UserPresence {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]model.UserPresence, 0, len(w.activeUsers))
	for _, p := range w.activeUsers {
		out = append(out, *p)
	}
	return out
}

// HasUser 用户是否在场
func (w *Workspace) HasUser(userID string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.activeUsers[userID]
	return ok
}

// Snapshot 工作区持久化快照
type WorkspaceSnapshot struct {
	WorkspaceID  string                `bson:"workspace_id" json:"workspace_id"`
	Name         string                `bson:"name" json:"name"`
	Documents    []Snapshot            `bson:"documents" json:"documents"`
	ActiveUsers  []model.UserPresence  `bson:"active_users" json:"active_users"`
	CreatedAt    time.Time             `bson:"created_at" json:"created_at"`
	LastActivity time.Time             `bson:"last_activity" json:"last_activity"`
}

func (w *Workspace) Snapshot() WorkspaceSnapshot {
	w.mu.RLock()
	users := make([]model.UserPresence, 0, len(w.activeUsers))
	for _, p := range w.activeUsers {
		users = append(users, *p)
	}
	docs := make([]*State, 0, len(w.documents))
	for _, st := range w.documents {
		docs = append(docs, st)
	}
	created, lastAct := w.createdAt, w.lastActivity
	id, name := w.workspaceID, w.name
	w.mu.RUnlock()

	// 文档快照在工作区锁外取，避免持两把锁
	snaps := make([]Snapshot, 0, len(docs))
	for _, st := range docs {
		snaps = append(snaps, st.Snapshot())
	}
	return WorkspaceSnapshot{
		WorkspaceID:  id,
		Name:         name,
		Documents:    snaps,
		ActiveUsers:  users,
		CreatedAt:    created,
		LastActivity: lastAct,
	}
}
