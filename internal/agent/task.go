package agent

import "context"

// Task 表示一次后台缓存回写；生产路径不等待，测试可通过 Wait 确认结果。
type Task struct {
	done chan struct{}
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Done 在回写结束后关闭。
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait 阻塞至回写结束或 ctx 取消，返回回写错误。
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
