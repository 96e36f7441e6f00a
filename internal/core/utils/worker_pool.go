package utils

import "sync"

type CompletedTask[T any] struct {
	Result T
	Error  error
}

// RunInPool runs worker over every task using at most maxWorkers goroutines
// and blocks until all tasks are done. Results are returned in task order.
func RunInPool[In any, Out any](worker func(In) (Out, error), tasks []In, maxWorkers int) []CompletedTask[Out] {
	completed := make([]CompletedTask[Out], len(tasks))
	if len(tasks) == 0 {
		return completed
	}

	workers := max(1, min(len(tasks), maxWorkers))

	queue := make(chan int)
	wg := sync.WaitGroup{}
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()

			for i := range queue {
				res, err := worker(tasks[i])
				completed[i] = CompletedTask[Out]{Result: res, Error: err}
			}
		}()
	}

	for i := range tasks {
		queue <- i
	}
	close(queue)

	wg.Wait()

	return completed
}
