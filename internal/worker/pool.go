package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"commitpact-backend/internal/models"
	"commitpact-backend/internal/services"
)

// CommitQueue is the redis list the webhook handler pushes commit events onto.
const CommitQueue = "queue:commit-events"

// Pool drains the commit-event queue and feeds the orchestrator. Delivery is
// at-least-once: a failed event is pushed back with an incremented retry
// count, and the attendance uniqueness constraint makes redelivery of an
// already-recorded commit a no-op.
type Pool struct {
	redis        *redis.Client
	orchestrator *services.Orchestrator
	workerCount  int
	maxRetries   int
	stopChan     chan struct{}
}

func NewPool(redisClient *redis.Client, orchestrator *services.Orchestrator, workerCount, maxRetries int) *Pool {
	return &Pool{
		redis:        redisClient,
		orchestrator: orchestrator,
		workerCount:  workerCount,
		maxRetries:   maxRetries,
		stopChan:     make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}

	log.Printf("Started %d commit workers", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, CommitQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		var evt models.CommitEvent
		if err := json.Unmarshal([]byte(result[1]), &evt); err != nil {
			log.Printf("Worker %d: failed to parse commit event: %v", id, err)
			continue
		}

		if err := p.orchestrator.HandleCommit(ctx, evt); err != nil {
			p.requeue(ctx, id, evt, err)
		}
	}
}

// requeue pushes a failed event back for another attempt. Events that keep
// failing are dropped after maxRetries; by then the local attendance row
// (if any) exists and the ack sweep owns the remaining ledger work.
func (p *Pool) requeue(ctx context.Context, workerID int, evt models.CommitEvent, cause error) {
	evt.RetryCount++
	if evt.RetryCount > p.maxRetries {
		log.Printf("Worker %d: dropping commit %s after %d attempts: %v", workerID, evt.CommitSHA, evt.RetryCount, cause)
		return
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("Worker %d: failed to re-encode commit event: %v", workerID, err)
		return
	}

	if err := p.redis.RPush(ctx, CommitQueue, payload).Err(); err != nil {
		log.Printf("Worker %d: failed to requeue commit %s: %v", workerID, evt.CommitSHA, err)
		return
	}

	log.Printf("Worker %d: requeued commit %s (attempt %d): %v", workerID, evt.CommitSHA, evt.RetryCount, cause)
}
