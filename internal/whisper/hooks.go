package whisper

import "context"

// callHooks backs the abort and progress callback slots of one Full call.
type callHooks struct {
	ctx      context.Context
	progress func(percent int)
}

func newCallHooks(ctx context.Context, progress func(int)) *callHooks {
	if ctx.Done() == nil && progress == nil {
		return nil
	}
	return &callHooks{ctx: ctx, progress: progress}
}

func (h *callHooks) aborted() bool {
	if h == nil || h.ctx == nil {
		return false
	}
	select {
	case <-h.ctx.Done():
		return true
	default:
		return false
	}
}

func (h *callHooks) reportProgress(percent int) {
	if h == nil || h.progress == nil {
		return
	}
	h.progress(percent)
}
