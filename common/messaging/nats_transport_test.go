package messaging

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPendingRepliesResponds(t *testing.T) {
	p := newPendingReplies()
	defer p.stop()

	got := make(chan Response, 1)
	future := newFuture()
	p.await(future, func(resp Response) { got <- resp })
	future.resolve(OK(nil).WithMessage("done"))

	select {
	case resp := <-got:
		if resp.Message != "done" {
			t.Errorf("resp = %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("resolved future was never answered")
	}
}

func TestPendingRepliesStop(t *testing.T) {
	p := newPendingReplies()

	var responded atomic.Int32
	respond := func(Response) { responded.Add(1) }
	unresolved := newFuture()
	p.await(unresolved, respond)
	p.await(newFuture(), respond)

	stopped := make(chan struct{})
	go func() {
		p.stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop left reply goroutines waiting")
	}

	if p.ctx.Err() == nil {
		t.Error("stop must cancel the dispatch context")
	}

	// Nothing is sent once the subscription is gone.
	unresolved.resolve(OK(nil))
	late := resolved(OK(nil))
	p.await(late, respond)
	time.Sleep(20 * time.Millisecond)
	if n := responded.Load(); n != 0 {
		t.Errorf("responses after stop = %d", n)
	}
}
