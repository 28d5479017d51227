package ot

import (
	"testing"

	"NoteCollab/module/collab/model"
)

// 双向应用收敛律：Apply(Apply(base, a), b') == Apply(Apply(base, b), a')
func assertConverge(t *testing.T, base string, a, b model.Operation) string {
	t.Helper()
	aPrime, bPrime := Transform(a, b)

	left := Apply(Apply(base, a), bPrime)
	right := Apply(Apply(base, b), aPrime)
	if left != right {
		t.Fatalf("divergence: base=%q\n a=%+v b=%+v\n a'=%+v b'=%+v\n left=%q right=%q",
			base, a, b, aPrime, bPrime, left, right)
	}
	return left
}

func TestTransformInsertInsertDistinctPositions(t *testing.T) {
	base := "hello world"
	a := model.NewInsert("u1", 0, "A")
	b := model.NewInsert("u2", 6, "B")

	got := assertConverge(t, base, a, b)
	want := "Ahello Bworld"
	if got != want {
		t.Fatalf("converged to %q, want %q", got, want)
	}
}

func TestTransformInsertInsertSamePositionFavorsFirst(t *testing.T) {
	a := model.NewInsert("u1", 3, "AA")
	b := model.NewInsert("u2", 3, "B")

	aPrime, bPrime := Transform(a, b)
	if aPrime.Position != 3 {
		t.Fatalf("first insert moved to %d, want 3", aPrime.Position)
	}
	if bPrime.Position != 5 {
		t.Fatalf("second insert at %d, want 5 (shifted by len(%q))", bPrime.Position, a.Content)
	}

	got := assertConverge(t, "xxxyyy", a, b)
	if got != "xxxAAByyy" {
		t.Fatalf("converged to %q, want %q", got, "xxxAAByyy")
	}
}

func TestTransformInsertShiftCountsRunes(t *testing.T) {
	// 位移按字符算，不按字节
	a := model.NewInsert("u1", 0, "日本語") // 3 字符 9 字节
	b := model.NewInsert("u2", 2, "X")

	_, bPrime := Transform(a, b)
	if bPrime.Position != 5 {
		t.Fatalf("shifted to %d, want 5 (3 runes)", bPrime.Position)
	}
}

func TestTransformDeleteDeleteDisjoint(t *testing.T) {
	base := "0123456789"
	a := model.NewDelete("u1", 1, 2) // "12"
	b := model.NewDelete("u2", 6, 2) // "67"

	got := assertConverge(t, base, a, b)
	want := "034589"
	if got != want {
		t.Fatalf("converged to %q, want %q", got, want)
	}
}

func TestTransformDeleteDeleteAdjacentShiftsNotMerges(t *testing.T) {
	// 恰好首尾相接不算重叠：后段左移，不并集
	a := model.NewDelete("u1", 2, 3) // [2,5)
	b := model.NewDelete("u2", 5, 2) // [5,7)

	aPrime, bPrime := Transform(a, b)
	if aPrime.Type != model.OpDelete || aPrime.Length != 3 {
		t.Fatalf("a' changed unexpectedly: %+v", aPrime)
	}
	if bPrime.Type != model.OpDelete || bPrime.Position != 2 || bPrime.Length != 2 {
		t.Fatalf("b' = %+v, want delete pos=2 len=2", bPrime)
	}

	got := assertConverge(t, "0123456789", a, b)
	if got != "01789" {
		t.Fatalf("converged to %q, want %q", got, "01789")
	}
}

func TestTransformDeleteDeleteOverlapMergesUnion(t *testing.T) {
	a := model.NewDelete("u1", 1, 3) // [1,4)
	b := model.NewDelete("u2", 2, 4) // [2,6)

	aPrime, bPrime := Transform(a, b)
	if aPrime.Position != 1 || aPrime.Length != 5 {
		t.Fatalf("a' = %+v, want union delete pos=1 len=5", aPrime)
	}
	if bPrime.Type != model.OpRetain {
		t.Fatalf("b' = %+v, want retain", bPrime)
	}
	if bPrime.UserID != "u2" || bPrime.OperationID != b.OperationID {
		t.Fatalf("b' lost identity: %+v", bPrime)
	}
}

func TestTransformDeleteDeleteIdenticalRanges(t *testing.T) {
	a := model.NewDelete("u1", 4, 2)
	b := model.NewDelete("u2", 4, 2)

	aPrime, bPrime := Transform(a, b)
	if aPrime.Position != 4 || aPrime.Length != 2 {
		t.Fatalf("a' = %+v, want unchanged delete", aPrime)
	}
	if bPrime.Type != model.OpRetain {
		t.Fatalf("b' = %+v, want retain (second delete is redundant)", bPrime)
	}
}

func TestTransformInsertBeforeDelete(t *testing.T) {
	base := "0123456789"
	a := model.NewInsert("u1", 1, "XY")
	b := model.NewDelete("u2", 4, 3) // "456"

	got := assertConverge(t, base, a, b)
	want := "0XY123789"
	if got != want {
		t.Fatalf("converged to %q, want %q", got, want)
	}
}

func TestTransformInsertAfterDelete(t *testing.T) {
	base := "0123456789"
	a := model.NewInsert("u1", 8, "XY")
	b := model.NewDelete("u2", 2, 3) // "234"

	got := assertConverge(t, base, a, b)
	want := "01567XY89"
	if got != want {
		t.Fatalf("converged to %q, want %q", got, want)
	}
}

func TestTransformInsertInsideDeleteAbsorbed(t *testing.T) {
	ins := model.NewInsert("u1", 4, "XYZ")
	del := model.NewDelete("u2", 2, 5) // [2,7)

	insPrime, delPrime := Transform(ins, del)
	if insPrime.Position != 2 {
		t.Fatalf("insert clamped to %d, want delete start 2", insPrime.Position)
	}
	if delPrime.Length != 8 {
		t.Fatalf("delete grew to %d, want 5+3=8", delPrime.Length)
	}

	// 先插后删一侧：长大的删除把并发插入一并吃掉
	got := Apply(Apply("0123456789", ins), delPrime)
	if got != "01789" {
		t.Fatalf("got %q, want %q (insert absorbed)", got, "01789")
	}
}

func TestTransformDeleteVsInsertMirrors(t *testing.T) {
	del := model.NewDelete("u1", 2, 5)
	ins := model.NewInsert("u2", 4, "XYZ")

	delPrime, insPrime := Transform(del, ins)
	if insPrime.Position != 2 {
		t.Fatalf("insert clamped to %d, want 2", insPrime.Position)
	}
	if delPrime.Length != 8 {
		t.Fatalf("delete grew to %d, want 8", delPrime.Length)
	}
}

func TestTransformRetainPassthrough(t *testing.T) {
	r := model.NewRetain("u1")
	ins := model.NewInsert("u2", 3, "X")

	aPrime, bPrime := Transform(r, ins)
	if aPrime.Type != model.OpRetain {
		t.Fatalf("retain mutated: %+v", aPrime)
	}
	if bPrime != ins {
		t.Fatalf("insert mutated against retain: %+v", bPrime)
	}
}

func TestApplyInsert(t *testing.T) {
	if got := Apply("hello", model.NewInsert("u", 5, " world")); got != "hello world" {
		t.Fatalf("got %q", got)
	}
	if got := Apply("", model.NewInsert("u", 0, "a")); got != "a" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyDelete(t *testing.T) {
	if got := Apply("hello world", model.NewDelete("u", 5, 6)); got != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyClampsPositions(t *testing.T) {
	// 位置漂出末尾：插入落到末尾，删除静默截断
	if got := Apply("abc", model.NewInsert("u", 99, "X")); got != "abcX" {
		t.Fatalf("insert past end: got %q", got)
	}
	if got := Apply("abc", model.NewDelete("u", 1, 99)); got != "a" {
		t.Fatalf("delete overrun: got %q", got)
	}
	if got := Apply("abc", model.NewDelete("u", 99, 5)); got != "abc" {
		t.Fatalf("delete past end: got %q", got)
	}
	neg := model.Operation{Type: model.OpDelete, Position: -3, Length: 2, UserID: "u"}
	if got := Apply("abc", neg); got != "c" {
		t.Fatalf("negative position: got %q", got)
	}
}

func TestApplyCountsRunesNotBytes(t *testing.T) {
	// "héllo"：位置 2 在 é 之后
	if got := Apply("héllo", model.NewInsert("u", 2, "X")); got != "héXllo" {
		t.Fatalf("got %q", got)
	}
	if got := Apply("日本語テキスト", model.NewDelete("u", 3, 4)); got != "日本語" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyRetainIsNoop(t *testing.T) {
	if got := Apply("abc", model.NewRetain("u")); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
