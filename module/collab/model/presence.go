package model

import (
	"hash/fnv"
	"time"
)

// PresenceStatus
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

// User 已认证的用户身份（由认证协作方给出，本引擎只读）。
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// UserPresence 工作区内单个用户的在场信息（光标/选区/状态）。
// 归属 Workspace；只由该用户自己的连接写入，last-write-wins。
// 与文档内容完全无关：presence 更新绝不触碰 content/version。
type UserPresence struct {
	UserID           string    `bson:"user_id" json:"user_id"`
	DisplayName      string    `bson:"display_name" json:"display_name"`
	Status           string    `bson:"status" json:"status"` // online/away/busy/offline
	CursorPosition   int       `bson:"cursor_position" json:"cursor_position"`
	SelectionStart   int       `bson:"selection_start" json:"selection_start"`
	SelectionEnd     int       `bson:"selection_end" json:"selection_end"`
	LastSeen         time.Time `bson:"last_seen" json:"last_seen"`
	ColorTag         string    `bson:"color_tag" json:"color_tag"`
	ActiveDocumentID string    `bson:"active_document_id,omitempty" json:"active_document_id,omitempty"`
}

// NewPresence 新上线用户的初始在场信息
func NewPresence(user User) *UserPresence {
	return &UserPresence{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Status:      StatusOnline,
		LastSeen:    time.Now(),
		ColorTag:    ColorTagFor(user.ID),
	}
}

// 16 色头像盘，按 userID 稳定取色
var colorPalette = [...]string{
	"#EF4444", "#F97316", "#F59E0B", "#EAB308",
	"#84CC16", "#22C55E", "#10B981", "#14B8A6",
	"#06B6D4", "#0EA5E9", "#3B82F6", "#6366F1",
	"#8B5CF6", "#A855F7", "#D946EF", "#EC4899",
}

// ColorTagFor 同一个 userID 永远得到同一个颜色
func ColorTagFor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return colorPalette[h.Sum32()%uint32(len(colorPalette))]
}
