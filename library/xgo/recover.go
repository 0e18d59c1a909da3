package xgo

import (
	"runtime/debug"

	"github.com/KimigaiiWuyi/MajsoulUID/library/log"
)

func RecoverFromError(cb func(e any)) {
	if e := recover(); e != nil {
		log.Errorf("Recover => %v\n%s\n", e, debug.Stack())
		if cb != nil {
			cb(e)
		}
	}
}

// Go 启动一个带panic保护的协程
func Go(fn func()) {
	go func() {
		defer RecoverFromError(nil)
		fn()
	}()
}
