package model

import (
	"time"

	"github.com/google/uuid"
)

// OpType 操作类型
const (
	OpInsert = "insert"
	OpDelete = "delete"
	OpRetain = "retain" // 冲突消解产生的占位空操作
)

// Operation 表示一次原子文本编辑（OT 的基本单位）。
// 一旦创建不可变：变换永远产出新值，绝不原地修改。
type Operation struct {
	Type        string    `bson:"type" json:"type"`                           // insert/delete/retain
	Position    int       `bson:"position" json:"position"`                   // 0 起始的字符位置
	Content     string    `bson:"content,omitempty" json:"content,omitempty"` // insert 携带
	Length      int       `bson:"length,omitempty" json:"length,omitempty"`   // delete 携带
	UserID      string    `bson:"user_id" json:"user_id"`                     // 操作发起者
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
	OperationID string    `bson:"operation_id" json:"operation_id"`
}

// NewInsert 构造插入操作
func NewInsert(userID string, position int, content string) Operation {
	return Operation{
		Type:        OpInsert,
		Position:    position,
		Content:     content,
		UserID:      userID,
		Timestamp:   time.Now(),
		OperationID: uuid.NewString(),
	}
}

// NewDelete 构造删除操作
func NewDelete(userID string, position, length int) Operation {
	return Operation{
		Type:        OpDelete,
		Position:    position,
		Length:      length,
		UserID:      userID,
		Timestamp:   time.Now(),
		OperationID: uuid.NewString(),
	}
}

// NewRetain 构造空操作（degenerate，no-op）
func NewRetain(userID string) Operation {
	return Operation{
		Type:        OpRetain,
		Position:    0,
		Length:      0,
		UserID:      userID,
		Timestamp:   time.Now(),
		OperationID: uuid.NewString(),
	}
}

// Validate 语义校验：类型未知或必带字段缺失/越界即拒绝。
// 不通过的操作不得进入文档状态机。
func (op Operation) Validate() error {
	switch op.Type {
	case OpInsert:
		if op.Position < 0 {
			return errNegativePosition
		}
		if op.Content == "" {
			return errMissingContent
		}
	case OpDelete:
		if op.Position < 0 {
			return errNegativePosition
		}
		if op.Length <= 0 {
			return errMissingLength
		}
	case OpRetain:
		// 空操作总是合法
	default:
		return errUnknownOpType
	}
	return nil
}

// IsNoop retain 或零长度删除对内容无影响
func (op Operation) IsNoop() bool {
	return op.Type == OpRetain || (op.Type == OpDelete && op.Length == 0)
}
