package collab

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"NoteCollab/logger"
	"NoteCollab/module/collab/document"
	"NoteCollab/module/collab/model"
	"NoteCollab/tools/ids"
	"NoteCollab/tools/safe"
)

// EngineConf 引擎参数
type EngineConf struct {
	HeartbeatEvery time.Duration // 心跳探测周期（默认 30s）
	SweepEvery     time.Duration // 闲置清扫周期（默认 60s）
	IdleTimeout    time.Duration // 无心跳判死阈值（默认 5m）
	SyncEvery      time.Duration // 快照落盘周期（默认 5m）
	FanoutWorkers  int
	FanoutQueue    int
}

func (c *EngineConf) norm() {
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 30 * time.Second
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 60 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.SyncEvery <= 0 {
		c.SyncEvery = 5 * time.Minute
	}
	if c.FanoutWorkers <= 0 {
		c.FanoutWorkers = 4
	}
	if c.FanoutQueue <= 0 {
		c.FanoutQueue = 1024
	}
}

// Deps 注入的协作方（均可为 nil）
type Deps struct {
	Store    Store
	Presence PresenceMirror
	Events   EventPublisher
	Journal  Journal
}

// Stats 引擎累计指标
type Stats struct {
	TotalConnections    int64 `json:"total_connections"`
	ActiveConnections   int   `json:"active_connections"`
	ActiveWorkspaces    int   `json:"active_workspaces"`
	OperationsProcessed int64 `json:"operations_processed"`
	ConflictsResolved   int64 `json:"conflicts_resolved"`
	MessagesSent        int64 `json:"messages_sent"`
}

// Engine 工作区/会话管理器：连接登记、消息路由、广播扇出、后台维护。
// 连接与工作区索引都归它所有，显式注入，不走包级全局。
type Engine struct {
	conf EngineConf
	deps Deps

	reg    *Registry
	disp   *Dispatcher
	fanout *Fanout

	wmu        sync.RWMutex
	workspaces map[string]*document.Workspace

	totalConnections    atomic.Int64
	operationsProcessed atomic.Int64
	conflictsResolved   atomic.Int64
	messagesSent        atomic.Int64

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewEngine(conf EngineConf, deps Deps) *Engine {
	conf.norm()
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		conf:       conf,
		deps:       deps,
		reg:        NewRegistry(),
		disp:       NewDispatcher(),
		fanout:     NewFanout(conf.FanoutWorkers, conf.FanoutQueue),
		workspaces: make(map[string]*document.Workspace),
		ctx:        ctx,
		cancel:     cancel,
	}
	e.registerHandlers()
	return e
}

// Start 拉起后台维护循环（心跳/清扫/落盘）
func (e *Engine) Start() {
	safe.SafeGo("heartbeat", func() { e.loop(e.conf.HeartbeatEvery, safe.SafeLoop("heartbeat", e.heartbeatTick)) })
	safe.SafeGo("idle-sweep", func() { e.loop(e.conf.SweepEvery, safe.SafeLoop("idle-sweep", e.sweepTick)) })
	safe.SafeGo("state-sync", func() { e.loop(e.conf.SyncEvery, safe.SafeLoop("state-sync", e.syncTick)) })
}

func (e *Engine) loop(every time.Duration, tick func()) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-t.C:
			tick()
		}
	}
}

// Workspace 取工作区，未知 workspaceId 懒创建。
func (e *Engine) Workspace(workspaceID string) *document.Workspace {
	e.wmu.RLock()
	w := e.workspaces[workspaceID]
	e.wmu.RUnlock()
	if w != nil {
		return w
	}

	e.wmu.Lock()
	defer e.wmu.Unlock()
	if w = e.workspaces[workspaceID]; w == nil {
		w = document.NewWorkspace(workspaceID, "Workspace "+shortID(workspaceID))
		e.workspaces[workspaceID] = w
		logger.Infof("[engine] workspace initialized id=%s", workspaceID)
	}
	return w
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Join 登记连接：懒建工作区、写 presence、发 initial_state、播 user_joined。
// 返回的 Conn 已经挂上写协程；读循环由传输层驱动（见 HandleInbound/Leave）。
func (e *Engine) Join(transport Transport, workspaceID string, user model.User) *Conn {
	c := NewConn(ids.GenerateString(), user, workspaceID, transport)
	e.reg.Add(c)
	e.totalConnections.Add(1)

	safe.SafeGo("conn-writer", c.WriteLoop)

	w := e.Workspace(workspaceID)
	presence := w.UpsertPresence(user)

	// 快照先于任何后续广播入队，保证新加入者视图一致
	view := WorkspaceView{
		ID:          w.WorkspaceID(),
		Name:        w.Name(),
		ActiveUsers: w.ActiveUsers(),
		Documents:   w.DocumentIDs(),
	}
	c.Enqueue(BuildInitialState(view))

	e.Broadcast(workspaceID, BuildUserJoined(presence), user.ID)

	if e.deps.Presence != nil {
		if err := e.deps.Presence.Online(e.ctx, workspaceID, presence); err != nil {
			logger.Warnf("[engine] presence mirror online failed user=%s err=%v", user.ID, err)
		}
	}
	e.publishEvent("user_joined", map[string]any{
		"workspace_id": workspaceID,
		"user_id":      user.ID,
	})

	logger.Infof("[engine] user connected user=%s workspace=%s conn=%s", user.ID, workspaceID, c.ConnID)
	return c
}

// HandleInbound 处理一条入站原始帧。
// 协议错误：记日志丢弃，连接保持。语义错误：处理器内部拒绝，同样不致命。
func (e *Engine) HandleInbound(c *Conn, raw []byte) {
	f, err := ParseFrameJSON(raw)
	if err != nil {
		sample := raw
		if len(sample) > 256 {
			sample = sample[:256]
		}
		logger.Warnf("[engine] drop bad frame conn=%s user=%s err=%v sample=%q", c.ConnID, c.User.ID, err, sample)
		return
	}
	if err := e.disp.Dispatch(&Context{Engine: e}, f, c); err != nil {
		logger.Warnf("[engine] frame rejected conn=%s user=%s type=%s err=%v", c.ConnID, c.User.ID, f.Type, err)
	}
}

// Broadcast 向工作区内全部活跃连接投递；excludeUserID 非空则跳过该用户。
// 尽力而为：失败连接被标记不活跃，不中断其余投递。
func (e *Engine) Broadcast(workspaceID string, payload []byte, excludeUserID string) {
	conns := e.reg.ListWorkspace(workspaceID)
	if len(conns) == 0 {
		return
	}
	targets := make([]*Conn, 0, len(conns))
	for _, c := range conns {
		if !c.IsActive() {
			continue
		}
		if excludeUserID != "" && c.User.ID == excludeUserID {
			continue
		}
		targets = append(targets, c)
	}
	if len(targets) == 0 {
		return
	}
	e.messagesSent.Add(int64(len(targets)))
	e.fanout.Broadcast(targets, payload)
}

// Leave 连接退出：双索引摘除；该用户在该工作区最后一条连接时
// 撤 presence 并广播 user_left。幂等：重复调用无副作用。
func (e *Engine) Leave(connID string) {
	c, lastOfUser := e.reg.Remove(connID)
	if c == nil {
		return
	}
	c.Close()

	if lastOfUser {
		w := e.Workspace(c.WorkspaceID)
		if w.RemovePresence(c.User.ID) {
			e.Broadcast(c.WorkspaceID, BuildUserLeft(c.User.ID), "")
		}
		if e.deps.Presence != nil {
			if err := e.deps.Presence.Offline(e.ctx, c.WorkspaceID, c.User.ID); err != nil {
				logger.Warnf("[engine] presence mirror offline failed user=%s err=%v", c.User.ID, err)
			}
		}
		e.publishEvent("user_left", map[string]any{
			"workspace_id": c.WorkspaceID,
			"user_id":      c.User.ID,
		})
	}
	logger.Infof("[engine] connection cleaned up conn=%s user=%s last=%v", connID, c.User.ID, lastOfUser)
}

func (e *Engine) publishEvent(event string, payload map[string]any) {
	if e.deps.Events == nil {
		return
	}
	if err := e.deps.Events.Publish(e.ctx, event, payload); err != nil {
		logger.Warnf("[engine] publish event failed event=%s err=%v", event, err)
	}
}

// ---- 后台维护 ----

func (e *Engine) heartbeatTick() {
	for _, c := range e.reg.ListAll() {
		c.Ping()
	}
}

func (e *Engine) sweepTick() {
	deadline := time.Now().Add(-e.conf.IdleTimeout)
	for _, c := range e.reg.ListAll() {
		if c.LastPing().Before(deadline) {
			logger.Infof("[engine] evict idle connection conn=%s user=%s", c.ConnID, c.User.ID)
			e.Leave(c.ConnID)
		}
	}
}

func (e *Engine) syncTick() {
	if e.deps.Store == nil {
		return
	}
	e.wmu.RLock()
	list := make([]*document.Workspace, 0, len(e.workspaces))
	for _, w := range e.workspaces {
		list = append(list, w)
	}
	e.wmu.RUnlock()

	for _, w := range list {
		snap := w.Snapshot()
		ctx, cancel := context.WithTimeout(e.ctx, 5*time.Second)
		if err := e.deps.Store.PersistWorkspaceState(ctx, snap); err != nil {
			// 下个 tick 重试，绝不干扰在线会话
			logger.Warnf("[engine] persist workspace failed id=%s err=%v", w.WorkspaceID(), err)
		}
		cancel()
	}
}

// RestoreFromStore 热重启：回灌工作区与文档内容/版本（不回灌连接与 presence）。
func (e *Engine) RestoreFromStore(ctx context.Context) error {
	if e.deps.Store == nil {
		return nil
	}
	snaps, err := e.deps.Store.LoadWorkspaceStates(ctx)
	if err != nil {
		return err
	}
	e.wmu.Lock()
	defer e.wmu.Unlock()
	for _, snap := range snaps {
		w := document.NewWorkspace(snap.WorkspaceID, snap.Name)
		for _, ds := range snap.Documents {
			w.RestoreDocument(document.Restore(ds.DocumentID, ds.Content, ds.Version, ds.LastModified))
		}
		e.workspaces[snap.WorkspaceID] = w
	}
	logger.Infof("[engine] restored %d workspaces from store", len(snaps))
	return nil
}

// Stats 当前指标快照
func (e *Engine) Stats() Stats {
	e.wmu.RLock()
	active := len(e.workspaces)
	e.wmu.RUnlock()
	return Stats{
		TotalConnections:    e.totalConnections.Load(),
		ActiveConnections:   e.reg.Count(),
		ActiveWorkspaces:    active,
		OperationsProcessed: e.operationsProcessed.Load(),
		ConflictsResolved:   e.conflictsResolved.Load(),
		MessagesSent:        e.messagesSent.Load(),
	}
}

// Shutdown 优雅退出：停维护循环、关全部连接、收尾落盘。
func (e *Engine) Shutdown(ctx context.Context) {
	e.stopOnce.Do(func() {
		logger.Info("[engine] shutting down")
		e.cancel()
		for _, c := range e.reg.ListAll() {
			e.Leave(c.ConnID)
		}
		if e.deps.Store != nil {
			e.wmu.RLock()
			list := make([]*document.Workspace, 0, len(e.workspaces))
			for _, w := range e.workspaces {
				list = append(list, w)
			}
			e.wmu.RUnlock()
			for _, w := range list {
				if err := e.deps.Store.PersistWorkspaceState(ctx, w.Snapshot()); err != nil {
					logger.Warnf("[engine] final persist failed id=%s err=%v", w.WorkspaceID(), err)
				}
			}
		}
		e.fanout.Close()
		logger.Info("[engine] shutdown complete")
	})
}

// ---- 帧处理逻辑（由 dispatcher 调度） ----

func (e *Engine) applyOperation(c *Conn, p *OperationPayload) error {
	if p.DocumentID == "" {
		return errsSemantic("operation without document_id")
	}

	raw := model.Operation{
		Type:        p.Operation.Type,
		Position:    p.Operation.Position,
		Content:     p.Operation.Content,
		Length:      p.Operation.Length,
		UserID:      c.User.ID,
		Timestamp:   time.Now(),
		OperationID: newOperationID(),
	}

	w := e.Workspace(c.WorkspaceID)
	doc := w.Document(p.DocumentID)

	rebased, err := doc.ApplyIncoming(raw)
	if err != nil {
		return err
	}
	if rebased.Position != raw.Position || rebased.Type != raw.Type || rebased.Length != raw.Length {
		e.conflictsResolved.Add(1)
	}
	e.operationsProcessed.Add(1)

	version := doc.Version()
	e.Broadcast(c.WorkspaceID, BuildOperationBroadcast(p.DocumentID, rebased, version), c.User.ID)

	if e.deps.Journal != nil {
		e.deps.Journal.AppendOperation(c.WorkspaceID, p.DocumentID, rebased, version)
	}
	e.publishEvent("operation_applied", map[string]any{
		"workspace_id": c.WorkspaceID,
		"document_id":  p.DocumentID,
		"user_id":      c.User.ID,
		"version":      version,
	})
	if e.deps.Store != nil {
		// 文档级快照同样尽力而为，失败等周期落盘兜底
		ctx, cancel := context.WithTimeout(e.ctx, 2*time.Second)
		if perr := e.deps.Store.PersistDocumentState(ctx, c.WorkspaceID, doc.Snapshot()); perr != nil {
			logger.Warnf("[engine] persist document failed doc=%s err=%v", p.DocumentID, perr)
		}
		cancel()
	}
	return nil
}

func (e *Engine) moveCursor(c *Conn, p *CursorPayload) error {
	w := e.Workspace(c.WorkspaceID)
	presence, ok := w.UpdateCursor(c.User.ID, p.Position, p.SelectionStart, p.SelectionEnd)
	if !ok {
		return errsSemantic("cursor_move from user without presence")
	}
	e.Broadcast(c.WorkspaceID, BuildCursorUpdate(p.DocumentID, presence), c.User.ID)
	return nil
}

func (e *Engine) updatePresence(c *Conn, p *PresencePayload) error {
	switch p.Status {
	case model.StatusOnline, model.StatusAway, model.StatusBusy, model.StatusOffline:
	default:
		return errsSemantic("unknown presence status " + p.Status)
	}
	w := e.Workspace(c.WorkspaceID)
	presence, ok := w.UpdateStatus(c.User.ID, p.Status)
	if !ok {
		return errsSemantic("presence_update from user without presence")
	}
	e.Broadcast(c.WorkspaceID, BuildPresenceUpdate(presence), c.User.ID)
	return nil
}

func (e *Engine) openDocument(c *Conn, p *DocumentPayload, open bool) error {
	if p.DocumentID == "" && open {
		return errsSemantic("document_open without document_id")
	}
	w := e.Workspace(c.WorkspaceID)
	docID := p.DocumentID
	frame := FrameDocumentOpened
	if !open {
		docID = ""
		frame = FrameDocumentClosed
	}
	if _, ok := w.SetActiveDocument(c.User.ID, docID); !ok {
		return errsSemantic("document event from user without presence")
	}
	e.Broadcast(c.WorkspaceID, BuildDocumentEvent(frame, p.DocumentID, c.User.ID), c.User.ID)
	return nil
}

func (e *Engine) pong(c *Conn) {
	c.TouchPing()
	c.Enqueue(BuildPong())
}
