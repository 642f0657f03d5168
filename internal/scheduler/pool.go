package scheduler

import "sync"

// Pool runs submitted jobs with at most size of them in flight. Submit
// never blocks the caller; queued jobs wait for a slot in their own goroutine.
type Pool struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{slots: make(chan struct{}, size)}
}

func (p *Pool) Size() int {
	return cap(p.slots)
}

func (p *Pool) Submit(job func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.slots <- struct{}{}
		defer func() { <-p.slots }()
		job()
	}()
}

// Wait blocks until every submitted job has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
