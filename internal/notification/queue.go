package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/quantops/sentinel/internal/alerting"
)

// Job is one queued delivery: the rendered message plus the record tracking
// its attempts. NotBefore holds back retries until their delay has passed.
type Job struct {
	ID        string                      `json:"id"`
	AlertID   string                      `json:"alert_id"`
	Record    alerting.NotificationRecord `json:"record"`
	Message   Message                     `json:"message"`
	NotBefore time.Time                   `json:"not_before"`
}

// Queue is the durable job store between submission and delivery. Jobs
// survive restarts; a job is removed only once delivery succeeds or its
// retry budget is spent.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// DequeueDue returns up to limit jobs whose NotBefore has passed,
	// earliest first. Jobs stay queued until acknowledged.
	DequeueDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
	Acknowledge(ctx context.Context, job Job) error
	// Reschedule moves a job to a later due time in one transaction.
	Reschedule(ctx context.Context, job Job, notBefore time.Time) (Job, error)
	Depth() (int, error)
	Close() error
}

// BadgerQueue is a disk-backed Queue. Keys sort by due time, so iteration
// order is delivery order.
type BadgerQueue struct {
	db *badger.DB
}

// NewBadgerQueue opens (or creates) the queue at path.
func NewBadgerQueue(path string) (*BadgerQueue, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // disable internal logging
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &BadgerQueue{db: db}, nil
}

// key format: notBefore:jobID
func jobKey(id string, notBefore time.Time) []byte {
	return []byte(fmt.Sprintf("%020d:%s", notBefore.UnixNano(), id))
}

// Enqueue adds a job to the queue, rejecting duplicates.
func (q *BadgerQueue) Enqueue(ctx context.Context, job Job) error {
	key := jobKey(job.ID, job.NotBefore)
	val, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("job duplicate: %s", job.ID)
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, val)
	})
}

// DequeueDue returns the due jobs in key order without removing them.
func (q *BadgerQueue) DequeueDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	cutoff := fmt.Sprintf("%020d", now.UnixNano())
	jobs := make([]Job, 0, limit)
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid() && len(jobs) < limit; it.Next() {
			item := it.Item()
			if string(item.Key()[:20]) > cutoff {
				break // keys sort by due time, the rest are in the future
			}
			var job Job
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &job) }); err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Acknowledge removes a finished job from storage.
func (q *BadgerQueue) Acknowledge(ctx context.Context, job Job) error {
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(jobKey(job.ID, job.NotBefore))
	})
}

// Reschedule atomically moves the job to its new due time.
func (q *BadgerQueue) Reschedule(ctx context.Context, job Job, notBefore time.Time) (Job, error) {
	oldKey := jobKey(job.ID, job.NotBefore)
	job.NotBefore = notBefore
	val, err := json.Marshal(job)
	if err != nil {
		return Job{}, err
	}
	err = q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(oldKey); err != nil {
			return err
		}
		return txn.Set(jobKey(job.ID, notBefore), val)
	})
	if err != nil {
		return Job{}, err
	}
	return job, nil
}

// Depth returns the number of queued jobs.
func (q *BadgerQueue) Depth() (int, error) {
	count := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close closes the underlying BadgerDB.
func (q *BadgerQueue) Close() error {
	return q.db.Close()
}
