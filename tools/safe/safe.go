package safe

import (
	"NoteCollab/logger"
)

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func SafeGo(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] %s panic recovered: %v", name, r)
			}
		}()
		f()
	}()
}

// SafeLoop 周期性任务：每个 tick 调一次 f，panic 只影响当前 tick
func SafeLoop(name string, f func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeLoop] %s tick panic recovered: %v", name, r)
			}
		}()
		f()
	}
}
