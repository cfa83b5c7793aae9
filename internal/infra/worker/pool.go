// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// Pool runs one batch of tasks on at most n goroutines. It satisfies the
// export processor's batch runner.
type Pool struct {
	n   int
	log *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Pool{n: workers, log: logger}
}

func (p *Pool) Size() int { return p.n }

// Run blocks until every task has returned. Tasks not yet started when ctx is
// cancelled are still run with the cancelled ctx so they can record their outcome.
func (p *Pool) Run(ctx context.Context, tasks []func(ctx context.Context)) {
	if len(tasks) == 0 {
		return
	}
	jobs := make(chan func(context.Context))
	var wg sync.WaitGroup
	for i := 0; i < min(p.n, len(tasks)); i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for task := range jobs {
				p.runTask(ctx, id, task)
			}
		}(i)
	}
	for _, t := range tasks {
		if t != nil {
			jobs <- t
		}
	}
	close(jobs)
	wg.Wait()
}

func (p *Pool) runTask(ctx context.Context, id int, task func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("worker task panicked")
		}
	}()
	task(ctx)
}
