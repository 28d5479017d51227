package collab

import (
	errs "NoteCollab/tools/errs"
)

// Handler 单一入站帧类型的处理器
type Handler interface {
	Type() string
	Handle(ctx *Context, f *Frame, c *Conn) error
}

// Context 处理器可见的引擎视图
type Context struct {
	Engine *Engine
}

// Dispatcher 帧类型 -> 处理器 的注册表
type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Type()] = h }

func (d *Dispatcher) Dispatch(ctx *Context, f *Frame, c *Conn) error {
	h, ok := d.handlers[f.Type]
	if !ok {
		return errs.ErrUnknownFrame.WrapMsg("", "type", f.Type)
	}
	return h.Handle(ctx, f, c)
}
