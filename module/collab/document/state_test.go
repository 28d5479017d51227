package document

import (
	"strings"
	"testing"
	"time"

	"NoteCollab/module/collab/model"
	"NoteCollab/module/collab/ot"
	"NoteCollab/tools/errs"
)

func TestApplyIncomingVersionStrictlyIncrements(t *testing.T) {
	s := NewState("doc1")

	for i := 0; i < 5; i++ {
		if _, err := s.ApplyIncoming(model.NewInsert("u1", i, "x")); err != nil {
			t.Fatalf("apply %d failed: %v", i, err)
		}
		if got := s.Version(); got != i+1 {
			t.Fatalf("version after %d ops = %d, want %d", i+1, got, i+1)
		}
	}
	if got := s.Content(); got != "xxxxx" {
		t.Fatalf("content = %q", got)
	}
}

func TestApplyIncomingRejectsInvalid(t *testing.T) {
	s := NewState("doc1")
	if _, err := s.ApplyIncoming(model.NewInsert("u1", 0, "hello")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	bad := []model.Operation{
		{Type: "replace", Position: 0, UserID: "u1"},           // 未知类型
		{Type: model.OpInsert, Position: -1, Content: "x", UserID: "u1"}, // 负位置
		{Type: model.OpInsert, Position: 0, UserID: "u1"},      // 缺 content
		{Type: model.OpDelete, Position: 0, Length: 0, UserID: "u1"},     // 缺 length
	}
	for _, op := range bad {
		_, err := s.ApplyIncoming(op)
		if err == nil {
			t.Fatalf("op %+v accepted, want rejection", op)
		}
		if !errs.ErrBadOperation.Is(err) {
			t.Fatalf("op %+v rejected with %v, want bad-operation code", op, err)
		}
	}

	// 被拒操作不得动状态
	if s.Version() != 1 {
		t.Fatalf("version = %d after rejections, want 1", s.Version())
	}
	if s.Content() != "hello" {
		t.Fatalf("content = %q after rejections", s.Content())
	}
}

func TestApplyIncomingRebasesAgainstOtherUsersOnly(t *testing.T) {
	s := NewState("doc1")

	// u1 在头部插 "abc"，进入 pending 窗口
	if _, err := s.ApplyIncoming(model.NewInsert("u1", 0, "abc")); err != nil {
		t.Fatalf("u1 insert: %v", err)
	}

	// u1 自己的后续操作不被自己的 pending 变换
	own, err := s.ApplyIncoming(model.NewInsert("u1", 1, "Z"))
	if err != nil {
		t.Fatalf("u1 second insert: %v", err)
	}
	if own.Position != 1 {
		t.Fatalf("own op rebased to %d, want untouched 1", own.Position)
	}

	// u2 的操作要对 u1 的两个 pending 都 rebase：1 -> 1+3 -> 4+1
	other, err := s.ApplyIncoming(model.NewInsert("u2", 1, "Q"))
	if err != nil {
		t.Fatalf("u2 insert: %v", err)
	}
	if other.Position != 5 {
		t.Fatalf("u2 op rebased to %d, want 5", other.Position)
	}
}

func TestPendingWindowCapFIFO(t *testing.T) {
	s := NewState("doc1")
	for i := 0; i < MaxPendingOperations+5; i++ {
		if _, err := s.ApplyIncoming(model.NewInsert("u1", 0, "a")); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	if got := len(s.pendingOps); got != MaxPendingOperations {
		t.Fatalf("pending window = %d, want cap %d", got, MaxPendingOperations)
	}
	// 全部操作照常应用，没有因窗口溢出被拒
	if got := s.Version(); got != MaxPendingOperations+5 {
		t.Fatalf("version = %d, want %d", got, MaxPendingOperations+5)
	}
}

func TestContentEqualsRecentOpsFold(t *testing.T) {
	s := NewState("doc1")
	ops := []model.Operation{
		model.NewInsert("u1", 0, "hello world"),
		model.NewDelete("u2", 5, 6),
		model.NewInsert("u1", 5, ", collaborative editing"),
		model.NewDelete("u2", 0, 1),
	}
	for _, op := range ops {
		if _, err := s.ApplyIncoming(op); err != nil {
			t.Fatalf("apply %+v: %v", op, err)
		}
	}

	snap := s.Snapshot()
	folded := ""
	for _, op := range snap.RecentOps {
		folded = ot.Apply(folded, op)
	}
	if folded != snap.Content {
		t.Fatalf("fold(recentOps) = %q, content = %q", folded, snap.Content)
	}
}

func TestRecentOpsCapFIFO(t *testing.T) {
	s := NewState("doc1")
	for i := 0; i < MaxRecentOperations+10; i++ {
		if _, err := s.ApplyIncoming(model.NewInsert("u1", 0, "a")); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	if got := len(s.recentOps); got != MaxRecentOperations {
		t.Fatalf("recent history = %d, want cap %d", got, MaxRecentOperations)
	}
	if got := len(s.Content()); got != MaxRecentOperations+10 {
		t.Fatalf("content length = %d, want %d", got, MaxRecentOperations+10)
	}
}

func TestRestoreKeepsContentAndVersion(t *testing.T) {
	mod := time.Now().Add(-time.Hour)
	s := Restore("doc1", strings.Repeat("x", 42), 17, mod)

	if s.Content() != strings.Repeat("x", 42) || s.Version() != 17 {
		t.Fatalf("restored content/version mismatch: %q v%d", s.Content(), s.Version())
	}

	// 回灌后继续编辑，版本从恢复点继续走
	if _, err := s.ApplyIncoming(model.NewInsert("u1", 0, "y")); err != nil {
		t.Fatalf("apply after restore: %v", err)
	}
	if s.Version() != 18 {
		t.Fatalf("version = %d, want 18", s.Version())
	}
}

func TestSnapshotCopiesHistory(t *testing.T) {
	s := NewState("doc1")
	if _, err := s.ApplyIncoming(model.NewInsert("u1", 0, "abc")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	snap := s.Snapshot()
	snap.RecentOps[0].Content = "tampered"

	if s.recentOps[0].Content != "abc" {
		t.Fatalf("snapshot aliases internal history")
	}
}
