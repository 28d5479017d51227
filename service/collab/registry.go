package collab

import (
	"sync"
)

// Registry 活跃连接登记表。
// 主索引 byConn，辅助索引 byUser / byWorkspace；全部在 mu 下维护。
type Registry struct {
	mu          sync.RWMutex
	byConn      map[string]*Conn            // conn_id -> conn
	byUser      map[string]map[string]*Conn // user_id -> conn_id -> conn
	byWorkspace map[string]map[string]*Conn // workspace_id -> conn_id -> conn
}

func NewRegistry() *Registry {
	return &Registry{
		byConn:      make(map[string]*Conn),
		byUser:      make(map[string]map[string]*Conn),
		byWorkspace: make(map[string]map[string]*Conn),
	}
}

func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[c.ConnID] = c

	if m := r.byUser[c.User.ID]; m == nil {
		r.byUser[c.User.ID] = map[string]*Conn{c.ConnID: c}
	} else {
		m[c.ConnID] = c
	}
	if m := r.byWorkspace[c.WorkspaceID]; m == nil {
		r.byWorkspace[c.WorkspaceID] = map[string]*Conn{c.ConnID: c}
	} else {
		m[c.ConnID] = c
	}
}

// Remove 摘除连接。返回被摘的连接，以及该用户在该工作区是否已无其他连接
// （调用方据此决定要不要撤 presence、播 user_left）。幂等：重复摘除返回 nil。
func (r *Registry) Remove(connID string) (c *Conn, lastOfUser bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c = r.byConn[connID]
	if c == nil {
		return nil, false
	}
	delete(r.byConn, connID)

	if m := r.byUser[c.User.ID]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(r.byUser, c.User.ID)
		}
	}
	if m := r.byWorkspace[c.WorkspaceID]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(r.byWorkspace, c.WorkspaceID)
		}
	}

	// 同工作区还有没有这个用户的其它连接
	lastOfUser = true
	for _, rest := range r.byWorkspace[c.WorkspaceID] {
		if rest.User.ID == c.User.ID {
			lastOfUser = false
			break
		}
	}
	return c, lastOfUser
}

func (r *Registry) Get(connID string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConn[connID]
}

// ListWorkspace 工作区内全部连接（广播前取快照）
func (r *Registry) ListWorkspace(workspaceID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byWorkspace[workspaceID]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

// ListAll 全部连接（心跳/清扫遍历用）
func (r *Registry) ListAll() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	return out
}

// Count 当前连接数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// UserCount 当前独立用户数
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
