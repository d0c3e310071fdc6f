package app

import (
	"sync"

	"github.com/argusops/argus/pkg/logger"
)

// maxRetryAttempts bounds automatic re-execution of a failed command.
// After that the command is discarded and must be resubmitted manually.
const maxRetryAttempts = 3

// maxRetryQueue bounds the queue itself; when full the oldest entry is
// dropped, since an unbounded backlog of stale commands helps nobody.
const maxRetryQueue = 100

type retryItem struct {
	commandType string
	attempts    int
	execute     func() error
}

// retryQueue holds failed commands for bounded automatic re-execution.
type retryQueue struct {
	mu    sync.Mutex
	items []retryItem
}

func newRetryQueue() *retryQueue {
	return &retryQueue{}
}

// enqueue adds a failed command. attempts counts executions already made.
func (q *retryQueue) enqueue(commandType string, attempts int, execute func() error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, retryItem{commandType: commandType, attempts: attempts, execute: execute})
	if len(q.items) > maxRetryQueue {
		dropped := q.items[0]
		q.items = q.items[1:]
		logger.WarnCF("commands", "Retry queue full, dropping oldest", map[string]interface{}{
			"command": dropped.commandType,
		})
	}
}

// size returns the number of queued commands.
func (q *retryQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// drain re-executes every queued command once. Commands that fail again
// are re-queued until their attempt budget is spent.
func (q *retryQueue) drain() {
	q.mu.Lock()
	pending := q.items
	q.items = nil
	q.mu.Unlock()

	for _, item := range pending {
		err := item.execute()
		if err == nil {
			logger.InfoCF("commands", "Retried command succeeded", map[string]interface{}{
				"command": item.commandType,
			})
			continue
		}
		item.attempts++
		if item.attempts >= maxRetryAttempts {
			logger.ErrorCF("commands", "Command discarded after retries", map[string]interface{}{
				"command":  item.commandType,
				"attempts": item.attempts,
				"error":    err.Error(),
			})
			continue
		}
		q.enqueue(item.commandType, item.attempts, item.execute)
	}
}
