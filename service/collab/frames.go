package collab

import (
	"encoding/json"
	"fmt"
	"time"

	"NoteCollab/module/collab/model"
	decode "NoteCollab/tools/decode"
	errs "NoteCollab/tools/errs"
)

// 入站帧类型（客户端 -> 引擎）
const (
	FrameOperation     = "operation"
	FrameCursorMove    = "cursor_move"
	FramePresence      = "presence_update"
	FrameDocumentOpen  = "document_open"
	FrameDocumentClose = "document_close"
	FramePing          = "ping"
)

// 出站帧类型（引擎 -> 客户端）
const (
	FrameInitialState   = "initial_state"
	FrameCursorUpdate   = "cursor_update"
	FrameUserJoined     = "user_joined"
	FrameUserLeft       = "user_left"
	FrameDocumentOpened = "document_opened"
	FrameDocumentClosed = "document_closed"
	FramePong           = "pong"
)

// OperationPayload operation 帧负载
type OperationPayload struct {
	DocumentID string       `json:"document_id"`
	Operation  RawOperation `json:"operation"`
}

// RawOperation 客户端操作描述（引擎收到后补 userID/时间戳/ID）
type RawOperation struct {
	Type     string `json:"type"`
	Position int    `json:"position"`
	Content  string `json:"content,omitempty"`
	Length   int    `json:"length,omitempty"`
}

// CursorPayload cursor_move 帧负载
type CursorPayload struct {
	DocumentID     string `json:"document_id"`
	Position       int    `json:"position"`
	SelectionStart int    `json:"selection_start"`
	SelectionEnd   int    `json:"selection_end"`
}

// PresencePayload presence_update 帧负载
type PresencePayload struct {
	Status string `json:"status"`
}

// DocumentPayload document_open/document_close 帧负载
type DocumentPayload struct {
	DocumentID string `json:"document_id"`
}

// Frame 入站帧的 tagged union：Type 决定哪个负载非 nil。
// 在传输边界一次性解码，下游 dispatch 全部静态可检。
type Frame struct {
	Type      string
	Operation *OperationPayload
	Cursor    *CursorPayload
	Presence  *PresencePayload
	Document  *DocumentPayload // document_open / document_close 共用
}

// ParseFrameJSON 解析入站帧。未知类型/负载解不开归为协议错误。
func ParseFrameJSON(raw []byte) (*Frame, error) {
	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errs.ErrProtocol.WrapMsg("unmarshal frame failed", "err", err)
	}
	typ, err := decode.ReadString(envelope, "type")
	if err != nil {
		return nil, errs.ErrProtocol.WrapMsg("frame missing type")
	}

	f := &Frame{Type: typ}
	switch typ {
	case FrameOperation:
		p, derr := decode.DecodeMap[OperationPayload](envelope)
		if derr != nil {
			return nil, errs.ErrProtocol.WrapMsg("bad operation payload", "err", derr)
		}
		f.Operation = p
	case FrameCursorMove:
		p, derr := decode.DecodeMap[CursorPayload](envelope)
		if derr != nil {
			return nil, errs.ErrProtocol.WrapMsg("bad cursor payload", "err", derr)
		}
		f.Cursor = p
	case FramePresence:
		p, derr := decode.DecodeMap[PresencePayload](envelope)
		if derr != nil {
			return nil, errs.ErrProtocol.WrapMsg("bad presence payload", "err", derr)
		}
		f.Presence = p
	case FrameDocumentOpen, FrameDocumentClose:
		p, derr := decode.DecodeMap[DocumentPayload](envelope)
		if derr != nil {
			return nil, errs.ErrProtocol.WrapMsg("bad document payload", "err", derr)
		}
		f.Document = p
	case FramePing:
		// 空负载
	default:
		return nil, errs.ErrUnknownFrame.WrapMsg("", "type", typ)
	}
	return f, nil
}

// ---- 出站帧构造 ----

// WorkspaceView initial_state 里的工作区视图
type WorkspaceView struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	ActiveUsers []model.UserPresence `json:"active_users"`
	Documents   []string             `json:"documents"`
}

func BuildInitialState(view WorkspaceView) []byte {
	return mustMarshal(map[string]any{
		"type":      FrameInitialState,
		"workspace": view,
	})
}

func BuildOperationBroadcast(documentID string, op model.Operation, version int) []byte {
	return mustMarshal(map[string]any{
		"type":        FrameOperation,
		"document_id": documentID,
		"version":     version,
		"operation":   op,
	})
}

func BuildCursorUpdate(documentID string, p model.UserPresence) []byte {
	return mustMarshal(map[string]any{
		"type":            FrameCursorUpdate,
		"user_id":         p.UserID,
		"document_id":     documentID,
		"position":        p.CursorPosition,
		"selection_start": p.SelectionStart,
		"selection_end":   p.SelectionEnd,
	})
}

func BuildPresenceUpdate(p model.UserPresence) []byte {
	return mustMarshal(map[string]any{
		"type":     FramePresence,
		"user_id":  p.UserID,
		"status":   p.Status,
		"presence": p,
	})
}

func BuildUserJoined(p model.UserPresence) []byte {
	return mustMarshal(map[string]any{
		"type": FrameUserJoined,
		"user": map[string]any{
			"id":           p.UserID,
			"display_name": p.DisplayName,
			"color_tag":    p.ColorTag,
			"status":       p.Status,
		},
	})
}

func BuildUserLeft(userID string) []byte {
	return mustMarshal(map[string]any{
		"type":    FrameUserLeft,
		"user_id": userID,
	})
}

func BuildDocumentEvent(frameType, documentID, userID string) []byte {
	return mustMarshal(map[string]any{
		"type":        frameType,
		"document_id": documentID,
		"user_id":     userID,
	})
}

func BuildPong() []byte {
	return mustMarshal(map[string]any{
		"type":      FramePong,
		"timestamp": time.Now().UnixMilli(),
	})
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// 出站帧全部是可序列化的内建类型，到这说明代码有 bug
		panic(fmt.Sprintf("marshal outbound frame: %v", err))
	}
	return b
}
