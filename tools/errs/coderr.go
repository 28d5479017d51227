package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// 协作引擎错误码段：1xxx 协议错误 / 2xxx 语义错误 / 3xxx 传输错误 / 4xxx 协作方错误
var (
	ErrProtocol     = NewCodeError(1001, "protocol error")
	ErrUnknownFrame = NewCodeError(1002, "unknown frame type")
	ErrSemantic     = NewCodeError(2001, "semantic error")
	ErrBadOperation = NewCodeError(2002, "malformed operation")
	ErrTransport    = NewCodeError(3001, "transport error")
	ErrCollaborator = NewCodeError(4001, "collaborator error")
	ErrUnauthorized = NewCodeError(4002, "unauthorized")
)

func NewCodeError(code int, msg string) CodeError {
	return CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e *CodeError) WithDetail(detail string) CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: e.Detail,
	}
}

// WrapMsg 附加说明与 kv 详情后返回新错误
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	retErr := e.clone()
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if retErr.Detail == "" {
			retErr.Detail = detail
		} else {
			retErr.Detail += ", " + detail
		}
	}
	return retErr
}

func (e *CodeError) Is(err error) bool {
	if ptr := (*CodeError)(nil); errors.As(err, &ptr) {
		return e.Code == ptr.Code
	}
	var val CodeError
	if errors.As(err, &val) {
		return e.Code == val.Code
	}
	return false
}

func (e CodeError) Error() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(e.Code))
	sb.WriteString(" ")
	sb.WriteString(e.Msg)
	if e.Detail != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

func toString(msg string, kv []any) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if i != 0 || msg != "" {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%v", kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprintf("%v", kv[i+1]))
		}
	}
	return sb.String()
}

func New(text string) error { return errors.New(text) }
