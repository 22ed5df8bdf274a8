package workqueue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Options control retry behaviour for a single enqueue.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration // base delay, doubled per attempt
}

// Lease is the exclusive, time-bounded right to process one delivery. It is
// passed back explicitly to Ack, Nack and ReportProgress.
type Lease struct {
	DeliveryID   string
	JobID        string
	URL          string
	AttemptsMade int

	maxAttempts int
	backoff     time.Duration
}

// Queue is a durable, at-least-once work queue on redis. Messages wait in a
// list, move to an active list under a lease while a worker holds them, and
// sit in a delayed zset between backoff retries. Lifecycle events go out on a
// pub/sub channel.
type Queue struct {
	rdb      redis.UniversalClient
	prefix   string
	leaseTTL time.Duration
}

const (
	pollInterval  = 5 * time.Second
	maxBackoff    = 60 * time.Second
	eventChanSize = 64
)

func New(rdb redis.UniversalClient, name string, leaseTTL time.Duration) *Queue {
	if leaseTTL <= 0 {
		leaseTTL = 2 * time.Minute
	}
	return &Queue{rdb: rdb, prefix: "queue:" + name, leaseTTL: leaseTTL}
}

func (q *Queue) waitKey() string    { return q.prefix + ":wait" }
func (q *Queue) activeKey() string  { return q.prefix + ":active" }
func (q *Queue) delayedKey() string { return q.prefix + ":delayed" }
func (q *Queue) leasesKey() string  { return q.prefix + ":leases" }
func (q *Queue) orphansKey() string { return q.prefix + ":orphans" }
func (q *Queue) eventsKey() string  { return q.prefix + ":events" }
func (q *Queue) msgKey(deliveryID string) string {
	return q.prefix + ":msg:" + deliveryID
}

// Enqueue durably stores a message and returns its delivery id.
func (q *Queue) Enqueue(ctx context.Context, jobID, url string, opts Options) (string, error) {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	deliveryID := uuid.NewString()

	err := q.rdb.HSet(ctx, q.msgKey(deliveryID), map[string]interface{}{
		"jobId":        jobID,
		"url":          url,
		"attemptsMade": 0,
		"maxAttempts":  opts.MaxAttempts,
		"backoffMs":    opts.Backoff.Milliseconds(),
	}).Err()
	if err != nil {
		return "", fmt.Errorf("store message: %w", err)
	}

	if err := q.rdb.LPush(ctx, q.waitKey(), deliveryID).Err(); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return deliveryID, nil
}

// Dequeue blocks until a message is available and returns it under an
// exclusive lease. Expired leases and due retries are promoted on each poll
// cycle, so a crashed worker's delivery becomes redeliverable after leaseTTL.
func (q *Queue) Dequeue(ctx context.Context) (*Lease, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q.promoteDelayed(ctx)
		q.reapExpiredLeases(ctx)
		q.reapOrphanedActive(ctx)

		deliveryID, err := q.rdb.BLMove(ctx, q.waitKey(), q.activeKey(), "RIGHT", "LEFT", pollInterval).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("dequeue: %w", err)
		}

		fields, err := q.rdb.HGetAll(ctx, q.msgKey(deliveryID)).Result()
		if err != nil || len(fields) == 0 {
			// Envelope gone (acked elsewhere or deleted); drop the stray id.
			q.rdb.LRem(ctx, q.activeKey(), 1, deliveryID)
			continue
		}

		attempts, err := q.rdb.HIncrBy(ctx, q.msgKey(deliveryID), "attemptsMade", 1).Result()
		if err != nil {
			return nil, fmt.Errorf("count attempt: %w", err)
		}

		expiry := float64(time.Now().Add(q.leaseTTL).UnixMilli())
		if err := q.rdb.ZAdd(ctx, q.leasesKey(), redis.Z{Score: expiry, Member: deliveryID}).Err(); err != nil {
			return nil, fmt.Errorf("record lease: %w", err)
		}
		// Another worker's orphan scan may have marked the delivery in the
		// window before the lease was stamped.
		q.rdb.ZRem(ctx, q.orphansKey(), deliveryID)

		maxAttempts, _ := strconv.Atoi(fields["maxAttempts"])
		backoffMs, _ := strconv.ParseInt(fields["backoffMs"], 10, 64)

		return &Lease{
			DeliveryID:   deliveryID,
			JobID:        fields["jobId"],
			URL:          fields["url"],
			AttemptsMade: int(attempts),
			maxAttempts:  maxAttempts,
			backoff:      time.Duration(backoffMs) * time.Millisecond,
		}, nil
	}
}

// ReportProgress emits a best-effort progress event to subscribers.
func (q *Queue) ReportProgress(ctx context.Context, lease *Lease, stage string, percentage int) {
	q.publish(ctx, Event{
		Type:       EventProgress,
		DeliveryID: lease.DeliveryID,
		JobID:      lease.JobID,
		Stage:      stage,
		Percentage: percentage,
		Attempts:   lease.AttemptsMade,
	})
}

// Ack marks the delivery complete and emits a completed event. An ack after
// the lease expired still wins: deleting the envelope turns the reaper's
// redelivery into a stray id that Dequeue drops.
func (q *Queue) Ack(ctx context.Context, lease *Lease) error {
	held, err := q.release(ctx, lease.DeliveryID)
	if err != nil {
		return err
	}
	if !held {
		log.Warn().Str("delivery_id", lease.DeliveryID).Msg("ack on expired lease")
	}
	if err := q.rdb.Del(ctx, q.msgKey(lease.DeliveryID)).Err(); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	q.publish(ctx, Event{
		Type:       EventCompleted,
		DeliveryID: lease.DeliveryID,
		JobID:      lease.JobID,
		Attempts:   lease.AttemptsMade,
	})
	return nil
}

// Nack releases the lease. If attempts remain the message is re-queued after
// an exponential backoff delay; otherwise a failed event is emitted and the
// delivery is dropped.
func (q *Queue) Nack(ctx context.Context, lease *Lease, reason string) error {
	held, err := q.release(ctx, lease.DeliveryID)
	if err != nil {
		return err
	}
	if !held {
		// The reaper expired the lease and re-queued the delivery already;
		// scheduling a retry here would put two copies in flight.
		log.Warn().Str("delivery_id", lease.DeliveryID).Msg("nack on expired lease, retry owned by the reaper")
		return nil
	}

	if lease.AttemptsMade < lease.maxAttempts {
		delay := backoffDelay(lease.backoff, lease.AttemptsMade, maxBackoff)
		readyAt := float64(time.Now().Add(delay).UnixMilli())
		if err := q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{Score: readyAt, Member: lease.DeliveryID}).Err(); err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}
		log.Info().
			Str("delivery_id", lease.DeliveryID).
			Str("job_id", lease.JobID).
			Int("attempt", lease.AttemptsMade).
			Dur("delay", delay).
			Msg("delivery re-queued with backoff")
		return nil
	}

	if err := q.rdb.Del(ctx, q.msgKey(lease.DeliveryID)).Err(); err != nil {
		return fmt.Errorf("drop message: %w", err)
	}
	q.publish(ctx, Event{
		Type:       EventFailed,
		DeliveryID: lease.DeliveryID,
		JobID:      lease.JobID,
		Attempts:   lease.AttemptsMade,
		Reason:     reason,
	})
	return nil
}

// release drops the delivery from the active list and the lease zset. It
// reports whether the lease was still held; a false return means the reaper
// expired it and already re-queued the delivery.
func (q *Queue) release(ctx context.Context, deliveryID string) (bool, error) {
	if err := q.rdb.LRem(ctx, q.activeKey(), 1, deliveryID).Err(); err != nil {
		return false, fmt.Errorf("release active: %w", err)
	}
	q.rdb.ZRem(ctx, q.orphansKey(), deliveryID)
	held, err := q.rdb.ZRem(ctx, q.leasesKey(), deliveryID).Result()
	if err != nil {
		return false, fmt.Errorf("release lease: %w", err)
	}
	return held > 0, nil
}

// promoteDelayed moves messages whose backoff elapsed back onto the wait list.
func (q *Queue) promoteDelayed(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return
	}
	for _, deliveryID := range due {
		removed, err := q.rdb.ZRem(ctx, q.delayedKey(), deliveryID).Result()
		if err != nil || removed == 0 {
			continue // another worker promoted it
		}
		q.rdb.LPush(ctx, q.waitKey(), deliveryID)
	}
}

// reapExpiredLeases re-queues deliveries whose worker never acked or nacked.
func (q *Queue) reapExpiredLeases(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	expired, err := q.rdb.ZRangeByScore(ctx, q.leasesKey(), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return
	}
	for _, deliveryID := range expired {
		removed, err := q.rdb.ZRem(ctx, q.leasesKey(), deliveryID).Result()
		if err != nil || removed == 0 {
			continue
		}
		q.rdb.LRem(ctx, q.activeKey(), 1, deliveryID)
		q.rdb.LPush(ctx, q.waitKey(), deliveryID)
		log.Warn().Str("delivery_id", deliveryID).Msg("lease expired, delivery re-queued")
	}
}

// reapOrphanedActive re-queues active deliveries that never got a lease
// stamped, i.e. their worker died between the list move and the ZAdd. A
// sighted unleased delivery gets leaseTTL of grace before it is treated as
// lost, so a worker mid-claim is never raced.
func (q *Queue) reapOrphanedActive(ctx context.Context) {
	ids, err := q.rdb.LRange(ctx, q.activeKey(), 0, -1).Result()
	if err != nil {
		return
	}
	now := time.Now().UnixMilli()
	for _, deliveryID := range ids {
		err := q.rdb.ZScore(ctx, q.leasesKey(), deliveryID).Err()
		if err == nil {
			q.rdb.ZRem(ctx, q.orphansKey(), deliveryID)
			continue
		}
		if err != redis.Nil {
			continue
		}

		added, err := q.rdb.ZAddNX(ctx, q.orphansKey(), redis.Z{Score: float64(now), Member: deliveryID}).Result()
		if err != nil || added > 0 {
			continue // first sighting, grace period starts
		}
		firstSeen, err := q.rdb.ZScore(ctx, q.orphansKey(), deliveryID).Result()
		if err != nil {
			continue
		}
		if now-int64(firstSeen) < q.leaseTTL.Milliseconds() {
			continue
		}

		removed, err := q.rdb.ZRem(ctx, q.orphansKey(), deliveryID).Result()
		if err != nil || removed == 0 {
			continue // another worker reaped it
		}
		q.rdb.LRem(ctx, q.activeKey(), 1, deliveryID)
		q.rdb.LPush(ctx, q.waitKey(), deliveryID)
		log.Warn().Str("delivery_id", deliveryID).Msg("unleased active delivery re-queued")
	}
}

// backoffDelay returns base * 2^(attempt-1), capped.
func backoffDelay(base time.Duration, attempt int, cap time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
