package collab

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"NoteCollab/module/collab/model"
)

// fakeTransport 内存假传输：记录引擎发出的每一帧
type fakeTransport struct {
	mu     sync.Mutex
	sent   [][]byte
	pings  int
	closed bool
}

func (f *fakeTransport) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) frames() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.sent))
	for _, raw := range f.sent {
		var m map[string]any
		if json.Unmarshal(raw, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

// waitFrame 等到出现第 n 个指定类型的帧（发送是异步的）
func waitFrame(t *testing.T, ft *fakeTransport, typ string, n int) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		seen := 0
		for _, m := range ft.frames() {
			if m["type"] == typ {
				seen++
				if seen == n {
					return m
				}
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("frame %q #%d never arrived, got %v", typ, n, ft.frames())
	return nil
}

func countFrames(ft *fakeTransport, typ string) int {
	n := 0
	for _, m := range ft.frames() {
		if m["type"] == typ {
			n++
		}
	}
	return n
}

func newTestEngine() *Engine {
	return NewEngine(EngineConf{}, Deps{})
}

func join(e *Engine, workspaceID, userID string) (*Conn, *fakeTransport) {
	ft := &fakeTransport{}
	c := e.Join(ft, workspaceID, model.User{ID: userID, DisplayName: userID})
	return c, ft
}

func TestJoinDeliversInitialStateFirst(t *testing.T) {
	e := newTestEngine()
	_, ft := join(e, "ws1", "alice")

	m := waitFrame(t, ft, FrameInitialState, 1)
	ws, _ := m["workspace"].(map[string]any)
	if ws == nil || ws["id"] != "ws1" {
		t.Fatalf("initial_state workspace = %v", m)
	}
	users, _ := ws["active_users"].([]any)
	if len(users) != 1 {
		t.Fatalf("active_users = %v", users)
	}

	// 自己加入不给自己发 user_joined
	if n := countFrames(ft, FrameUserJoined); n != 0 {
		t.Fatalf("joiner saw %d user_joined frames about itself", n)
	}
}

func TestJoinNotifiesExistingUsers(t *testing.T) {
	e := newTestEngine()
	_, ftAlice := join(e, "ws1", "alice")
	waitFrame(t, ftAlice, FrameInitialState, 1)

	_, ftBob := join(e, "ws1", "bob")

	m := waitFrame(t, ftAlice, FrameUserJoined, 1)
	user, _ := m["user"].(map[string]any)
	if user == nil || user["id"] != "bob" {
		t.Fatalf("user_joined = %v", m)
	}
	if user["color_tag"] == "" || user["color_tag"] == nil {
		t.Fatalf("user_joined without color tag: %v", user)
	}

	// bob 的 initial_state 里能看到已在场的 alice
	m = waitFrame(t, ftBob, FrameInitialState, 1)
	ws := m["workspace"].(map[string]any)
	users := ws["active_users"].([]any)
	if len(users) != 2 {
		t.Fatalf("bob sees %d active users, want 2", len(users))
	}
}

func TestOperationBroadcastExcludesSender(t *testing.T) {
	e := newTestEngine()
	_, ftAlice := join(e, "ws1", "alice")
	bob, ftBob := join(e, "ws1", "bob")
	waitFrame(t, ftAlice, FrameUserJoined, 1)

	e.HandleInbound(bob, []byte(`{
		"type": "operation",
		"document_id": "doc1",
		"operation": {"type": "insert", "position": 0, "content": "hello"}
	}`))

	m := waitFrame(t, ftAlice, FrameOperation, 1)
	if m["document_id"] != "doc1" {
		t.Fatalf("broadcast = %v", m)
	}
	op := m["operation"].(map[string]any)
	if op["content"] != "hello" || op["user_id"] != "bob" {
		t.Fatalf("operation = %v", op)
	}
	if v, _ := m["version"].(float64); int(v) != 1 {
		t.Fatalf("version = %v, want 1", m["version"])
	}

	doc := e.Workspace("ws1").Document("doc1")
	if doc.Content() != "hello" || doc.Version() != 1 {
		t.Fatalf("document state: %q v%d", doc.Content(), doc.Version())
	}
	if n := countFrames(ftBob, FrameOperation); n != 0 {
		t.Fatalf("sender received its own operation %d times", n)
	}
	if st := e.Stats(); st.OperationsProcessed != 1 {
		t.Fatalf("operations processed = %d", st.OperationsProcessed)
	}
}

func TestConcurrentOperationsRebaseForLateArrival(t *testing.T) {
	e := newTestEngine()
	alice, _ := join(e, "ws1", "alice")
	bob, ftBob := join(e, "ws1", "bob")

	// alice 先在头部插入，bob 的头部插入随后到达：bob 照发，服务端 rebase
	e.HandleInbound(alice, []byte(`{"type":"operation","document_id":"doc1","operation":{"type":"insert","position":0,"content":"abc"}}`))
	e.HandleInbound(bob, []byte(`{"type":"operation","document_id":"doc1","operation":{"type":"insert","position":1,"content":"Z"}}`))

	doc := e.Workspace("ws1").Document("doc1")
	if doc.Version() != 2 {
		t.Fatalf("version = %d, want 2", doc.Version())
	}
	// bob 的位置被 alice 的 pending 插入顶到 1+3
	m := waitFrame(t, ftBob, FrameOperation, 1) // bob 收到 alice 的那条
	if m["operation"].(map[string]any)["user_id"] != "alice" {
		t.Fatalf("bob's first broadcast = %v", m)
	}
	if doc.Content() != "abcZ" {
		t.Fatalf("content = %q, want %q", doc.Content(), "abcZ")
	}
	if st := e.Stats(); st.ConflictsResolved != 1 {
		t.Fatalf("conflicts resolved = %d, want 1", st.ConflictsResolved)
	}
}

func TestLeaveBroadcastsExactlyOneUserLeft(t *testing.T) {
	e := newTestEngine()
	_, ftAlice := join(e, "ws1", "alice")
	bob, _ := join(e, "ws1", "bob")
	waitFrame(t, ftAlice, FrameUserJoined, 1)

	e.Leave(bob.ConnID)
	m := waitFrame(t, ftAlice, FrameUserLeft, 1)
	if m["user_id"] != "bob" {
		t.Fatalf("user_left = %v", m)
	}

	// 重复 Leave 幂等，不得再播
	e.Leave(bob.ConnID)
	time.Sleep(50 * time.Millisecond)
	if n := countFrames(ftAlice, FrameUserLeft); n != 1 {
		t.Fatalf("user_left broadcast %d times, want 1", n)
	}

	// 之后加入者的快照里已无 bob
	_, ftCarol := join(e, "ws1", "carol")
	init := waitFrame(t, ftCarol, FrameInitialState, 1)
	users := init["workspace"].(map[string]any)["active_users"].([]any)
	for _, u := range users {
		if u.(map[string]any)["user_id"] == "bob" {
			t.Fatalf("departed user still in snapshot: %v", users)
		}
	}
	if len(users) != 2 { // alice + carol
		t.Fatalf("active users = %d, want 2", len(users))
	}
}

func TestMultipleConnectionsSameUser(t *testing.T) {
	e := newTestEngine()
	_, ftAlice := join(e, "ws1", "alice")
	b1, _ := join(e, "ws1", "bob")
	b2, _ := join(e, "ws1", "bob")
	waitFrame(t, ftAlice, FrameUserJoined, 2)

	// 还有一条连接在线：不撤 presence、不播 user_left
	e.Leave(b1.ConnID)
	time.Sleep(50 * time.Millisecond)
	if n := countFrames(ftAlice, FrameUserLeft); n != 0 {
		t.Fatalf("user_left after first conn close: %d", n)
	}
	if !e.Workspace("ws1").HasUser("bob") {
		t.Fatalf("presence dropped while a connection remains")
	}

	e.Leave(b2.ConnID)
	waitFrame(t, ftAlice, FrameUserLeft, 1)
	if e.Workspace("ws1").HasUser("bob") {
		t.Fatalf("presence kept after last connection closed")
	}
}

func TestMalformedFrameKeepsConnectionAlive(t *testing.T) {
	e := newTestEngine()
	_, ftAlice := join(e, "ws1", "alice")
	bob, ftBob := join(e, "ws1", "bob")
	waitFrame(t, ftAlice, FrameUserJoined, 1)

	e.HandleInbound(bob, []byte(`this is not json`))
	e.HandleInbound(bob, []byte(`{"type":"teleport"}`))
	e.HandleInbound(bob, []byte(`{"type":"operation","document_id":"doc1","operation":{"type":"insert","position":-2,"content":"x"}}`))

	if !bob.IsActive() {
		t.Fatalf("connection killed by malformed frames")
	}
	// 非法操作没碰文档
	if v := e.Workspace("ws1").Document("doc1").Version(); v != 0 {
		t.Fatalf("invalid operation applied, version=%d", v)
	}

	// 之后的正常帧照常工作
	e.HandleInbound(bob, []byte(`{"type":"ping"}`))
	waitFrame(t, ftBob, FramePong, 1)
}

func TestCursorUpdateBroadcast(t *testing.T) {
	e := newTestEngine()
	_, ftAlice := join(e, "ws1", "alice")
	bob, ftBob := join(e, "ws1", "bob")
	waitFrame(t, ftAlice, FrameUserJoined, 1)

	e.HandleInbound(bob, []byte(`{"type":"cursor_move","document_id":"doc1","position":7,"selection_start":5,"selection_end":9}`))

	m := waitFrame(t, ftAlice, FrameCursorUpdate, 1)
	if m["user_id"] != "bob" {
		t.Fatalf("cursor_update = %v", m)
	}
	if pos, _ := m["position"].(float64); int(pos) != 7 {
		t.Fatalf("position = %v", m["position"])
	}
	if n := countFrames(ftBob, FrameCursorUpdate); n != 0 {
		t.Fatalf("sender got its own cursor echo")
	}
}

func TestPresenceUpdateValidatesStatus(t *testing.T) {
	e := newTestEngine()
	_, ftAlice := join(e, "ws1", "alice")
	bob, _ := join(e, "ws1", "bob")
	waitFrame(t, ftAlice, FrameUserJoined, 1)

	e.HandleInbound(bob, []byte(`{"type":"presence_update","status":"away"}`))
	m := waitFrame(t, ftAlice, FramePresence, 1)
	if m["status"] != "away" || m["user_id"] != "bob" {
		t.Fatalf("presence_update = %v", m)
	}

	// 未知状态拒绝，bob 的在场状态不变
	e.HandleInbound(bob, []byte(`{"type":"presence_update","status":"teleporting"}`))
	time.Sleep(50 * time.Millisecond)
	for _, p := range e.Workspace("ws1").ActiveUsers() {
		if p.UserID == "bob" && p.Status != model.StatusAway {
			t.Fatalf("bogus status applied: %q", p.Status)
		}
	}
}

func TestDocumentOpenClose(t *testing.T) {
	e := newTestEngine()
	_, ftAlice := join(e, "ws1", "alice")
	bob, _ := join(e, "ws1", "bob")
	waitFrame(t, ftAlice, FrameUserJoined, 1)

	e.HandleInbound(bob, []byte(`{"type":"document_open","document_id":"doc1"}`))
	m := waitFrame(t, ftAlice, FrameDocumentOpened, 1)
	if m["document_id"] != "doc1" || m["user_id"] != "bob" {
		t.Fatalf("document_opened = %v", m)
	}

	e.HandleInbound(bob, []byte(`{"type":"document_close","document_id":"doc1"}`))
	waitFrame(t, ftAlice, FrameDocumentClosed, 1)
	for _, p := range e.Workspace("ws1").ActiveUsers() {
		if p.UserID == "bob" && p.ActiveDocumentID != "" {
			t.Fatalf("active document not cleared: %q", p.ActiveDocumentID)
		}
	}
}

func TestPresenceIsolatedBetweenWorkspaces(t *testing.T) {
	e := newTestEngine()
	_, ft1 := join(e, "ws1", "alice")
	waitFrame(t, ft1, FrameInitialState, 1)

	_, ft2 := join(e, "ws2", "bob")
	waitFrame(t, ft2, FrameInitialState, 1)

	time.Sleep(50 * time.Millisecond)
	if n := countFrames(ft1, FrameUserJoined); n != 0 {
		t.Fatalf("ws1 saw join from ws2")
	}
	if e.Workspace("ws1").HasUser("bob") || e.Workspace("ws2").HasUser("alice") {
		t.Fatalf("presence leaked across workspaces")
	}
}
