package model

import "NoteCollab/tools/errs"

var (
	errUnknownOpType    = errs.ErrBadOperation.WrapMsg("unknown operation type")
	errNegativePosition = errs.ErrBadOperation.WrapMsg("negative position")
	errMissingContent   = errs.ErrBadOperation.WrapMsg("insert requires content")
	errMissingLength    = errs.ErrBadOperation.WrapMsg("delete requires positive length")
)
