// Package ot 实现操作变换（Operational Transformation）。
// 纯函数、无 I/O、无共享状态：给定同一版本上并发产生的两个操作，
// 产出变换后的一对，使两种应用顺序收敛到同一内容。
package ot

import (
	"unicode/utf8"

	"NoteCollab/module/collab/model"
)

// Transform 对并发操作对 (a, b) 做双向变换，返回 (a', b')，
// 满足 Apply(Apply(base, a), b') == Apply(Apply(base, b), a')。
// 例外：重叠删除按并集规则输出（a' 吃掉并集，b' 退化为 retain），
// 此时两侧各自应用同一对结果仍然收敛，但不再是独立顺序等价。
func Transform(a, b model.Operation) (model.Operation, model.Operation) {
	switch {
	case a.Type == model.OpInsert && b.Type == model.OpInsert:
		return transformInsertInsert(a, b)
	case a.Type == model.OpDelete && b.Type == model.OpDelete:
		return transformDeleteDelete(a, b)
	case a.Type == model.OpInsert && b.Type == model.OpDelete:
		return transformInsertDelete(a, b)
	case a.Type == model.OpDelete && b.Type == model.OpInsert:
		// 镜像：换参数求解后换回返回顺序
		bPrime, aPrime := transformInsertDelete(b, a)
		return aPrime, bPrime
	default:
		// 任一方已是 retain：都不用动
		return a, b
	}
}

// 相同位置的插入偏向第一个参数（调用序决定，纯策略，不影响收敛性）
func transformInsertInsert(a, b model.Operation) (model.Operation, model.Operation) {
	if a.Position <= b.Position {
		bPrime := b
		bPrime.Position = b.Position + runeLen(a.Content)
		return a, bPrime
	}
	aPrime := a
	aPrime.Position = a.Position + runeLen(b.Content)
	return aPrime, b
}

func transformDeleteDelete(a, b model.Operation) (model.Operation, model.Operation) {
	aEnd := a.Position + a.Length
	bEnd := b.Position + b.Length

	if aEnd <= b.Position {
		// a 在前，b 左移
		bPrime := b
		bPrime.Position = b.Position - a.Length
		return a, bPrime
	}
	if bEnd <= a.Position {
		// b 在前，a 左移
		aPrime := a
		aPrime.Position = a.Position - b.Length
		return aPrime, b
	}

	// 区间真重叠（邻接走上面的平移分支）：并集删除，防止同一段文本被删两次。
	// a' 负责整个并集，b' 退化为空操作。
	unionStart := min(a.Position, b.Position)
	unionEnd := max(aEnd, bEnd)

	aPrime := a
	aPrime.Position = unionStart
	aPrime.Length = unionEnd - unionStart

	bPrime := model.Operation{
		Type:        model.OpRetain,
		Position:    0,
		Length:      0,
		UserID:      b.UserID,
		Timestamp:   b.Timestamp,
		OperationID: b.OperationID,
	}
	return aPrime, bPrime
}

func transformInsertDelete(ins, del model.Operation) (model.Operation, model.Operation) {
	delEnd := del.Position + del.Length

	if ins.Position <= del.Position {
		// 插入点在删除段之前：删除整体右移
		delPrime := del
		delPrime.Position = del.Position + runeLen(ins.Content)
		return ins, delPrime
	}
	if ins.Position >= delEnd {
		// 插入点在删除段之后：插入整体左移
		insPrime := ins
		insPrime.Position = ins.Position - del.Length
		return insPrime, del
	}

	// 插入点落在删除段内部：删除吸收这段并发插入。
	// 插入位置钳到删除起点，删除长度加上插入长度。
	insPrime := ins
	insPrime.Position = del.Position

	delPrime := del
	delPrime.Length = del.Length + runeLen(ins.Content)
	return insPrime, delPrime
}

// Apply 把操作套到内容上，位置一律钳进 [0, len]，永不报错。
// 位置漂出文档末尾的操作会被静默截断（可观测行为，测试覆盖）。
// 位置与长度都按字符（rune）计，不按字节。
func Apply(content string, op model.Operation) string {
	switch op.Type {
	case model.OpInsert:
		runes := []rune(content)
		pos := clamp(op.Position, len(runes))
		return string(runes[:pos]) + op.Content + string(runes[pos:])
	case model.OpDelete:
		runes := []rune(content)
		start := clamp(op.Position, len(runes))
		end := clamp(start+op.Length, len(runes))
		if end < start {
			end = start
		}
		return string(runes[:start]) + string(runes[end:])
	case model.OpRetain:
		return content
	}
	return content
}

func clamp(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
