package collab

import (
	"github.com/google/uuid"

	"NoteCollab/tools/errs"
)

func errsSemantic(detail string) error {
	return errs.ErrSemantic.WrapMsg(detail)
}

func newOperationID() string {
	return uuid.NewString()
}

func (e *Engine) registerHandlers() {
	e.disp.Register(&operationHandler{})
	e.disp.Register(&cursorHandler{})
	e.disp.Register(&presenceHandler{})
	e.disp.Register(&documentOpenHandler{})
	e.disp.Register(&documentCloseHandler{})
	e.disp.Register(&pingHandler{})
}

type operationHandler struct{}

func (operationHandler) Type() string { return FrameOperation }
func (operationHandler) Handle(ctx *Context, f *Frame, c *Conn) error {
	return ctx.Engine.applyOperation(c, f.Operation)
}

type cursorHandler struct{}

func (cursorHandler) Type() string { return FrameCursorMove }
func (cursorHandler) Handle(ctx *Context, f *Frame, c *Conn) error {
	return ctx.Engine.moveCursor(c, f.Cursor)
}

type presenceHandler struct{}

func (presenceHandler) Type() string { return FramePresence }
func (presenceHandler) Handle(ctx *Context, f *Frame, c *Conn) error {
	return ctx.Engine.updatePresence(c, f.Presence)
}

type documentOpenHandler struct{}

func (documentOpenHandler) Type() string { return FrameDocumentOpen }
func (documentOpenHandler) Handle(ctx *Context, f *Frame, c *Conn) error {
	return ctx.Engine.openDocument(c, f.Document, true)
}

type documentCloseHandler struct{}

func (documentCloseHandler) Type() string { return FrameDocumentClose }
func (documentCloseHandler) Handle(ctx *Context, f *Frame, c *Conn) error {
	return ctx.Engine.openDocument(c, f.Document, false)
}

type pingHandler struct{}

func (pingHandler) Type() string { return FramePing }
func (pingHandler) Handle(ctx *Context, _ *Frame, c *Conn) error {
	ctx.Engine.pong(c)
	return nil
}
