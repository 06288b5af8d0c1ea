package impulse

import "sync"

// task calls fn on every element of data, split in contiguous chunks over
// workersCount goroutines
func task[T any](workersCount int, data []T, fn func(data T)) {
	each(workersCount, len(data), func(i int) {
		fn(data[i])
	})
}

// gather maps data through fn over workersCount goroutines. The results keep
// the order of data whatever the scheduling.
func gather[T, R any](workersCount int, data []T, fn func(data T) R) []R {
	results := make([]R, len(data))
	each(workersCount, len(data), func(i int) {
		results[i] = fn(data[i])
	})

	return results
}

func each(workersCount, dataSize int, fn func(i int)) {
	workersCount = min(max(1, workersCount), dataSize)
	if workersCount <= 1 {
		for i := 0; i < dataSize; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := (dataSize + workersCount - 1) / workersCount

	for workerID := 0; workerID < workersCount; workerID++ {
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(i)
			}
		}(workerID*chunkSize, min((workerID+1)*chunkSize, dataSize))
	}
	wg.Wait()
}
