package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studyhub-platform/studyindexer/internal/models"
)

const keyPrefix = "studyindexer:"

// RedisStore keeps one JSON status record per document plus per-status
// index sets. Atomicity per id comes from WATCH-based optimistic
// transactions; the indexing lease is a SetNX key with a TTL.
type RedisStore struct {
	rdb      *redis.Client
	leaseTTL time.Duration
}

func NewRedisStore(rdb *redis.Client, leaseTTL time.Duration) *RedisStore {
	if leaseTTL <= 0 {
		leaseTTL = time.Hour
	}
	return &RedisStore{rdb: rdb, leaseTTL: leaseTTL}
}

func docKey(id string) string    { return keyPrefix + "doc:" + id }
func leaseKey(id string) string  { return keyPrefix + "lease:" + id }
func allKey() string             { return keyPrefix + "docs" }
func statusKey(s models.Status) string {
	return keyPrefix + "docs:status:" + string(s)
}

func (s *RedisStore) Create(ctx context.Context, rec *models.StatusRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, docKey(rec.DocumentID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("create record: %w", errors.Join(ErrUnavailable, err))
	}
	if !ok {
		return fmt.Errorf("document %s: %w", rec.DocumentID, ErrExists)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, allKey(), rec.DocumentID)
		pipe.SAdd(ctx, statusKey(rec.Status), rec.DocumentID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index record: %w", errors.Join(ErrUnavailable, err))
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.StatusRecord, error) {
	data, err := s.rdb.Get(ctx, docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", errors.Join(ErrUnavailable, err))
	}

	var rec models.StatusRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, upd Update) (*models.StatusRecord, error) {
	key := docKey(id)
	var updated *models.StatusRecord

	// Optimistic retry loop: last write wins per field, status moves
	// forward only.
	for attempt := 0; attempt < 5; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("document %s: %w", id, ErrNotFound)
			}
			if err != nil {
				return errors.Join(ErrUnavailable, err)
			}

			var rec models.StatusRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("unmarshal record %s: %w", id, err)
			}

			prev := rec.Status
			if err := apply(&rec, upd, time.Now().UTC()); err != nil {
				return err
			}

			buf, err := json.Marshal(&rec)
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, buf, 0)
				if prev != rec.Status {
					pipe.SRem(ctx, statusKey(prev), id)
					pipe.SAdd(ctx, statusKey(rec.Status), id)
				}
				return nil
			})
			if err != nil {
				return err
			}
			updated = &rec
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	return nil, fmt.Errorf("update %s: too many concurrent writers", id)
}

func (s *RedisStore) List(ctx context.Context, status models.Status) ([]*models.StatusRecord, error) {
	setKey := allKey()
	if status != "" {
		setKey = statusKey(status)
	}

	ids, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", errors.Join(ErrUnavailable, err))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(id)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", errors.Join(ErrUnavailable, err))
	}

	records := make([]*models.StatusRecord, 0, len(values))
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue // id indexed but record gone; skip
		}
		var rec models.StatusRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			slog.Warn("skipping malformed status record", "document_id", ids[i], "error", err)
			continue
		}
		records = append(records, &rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (s *RedisStore) MarkDeleted(ctx context.Context, id string) error {
	_, err := s.Update(ctx, id, Update{Status: models.StatusDeleted})
	return err
}

func (s *RedisStore) StatusCounts(ctx context.Context) (map[models.Status]int64, error) {
	statuses := []models.Status{
		models.StatusPending, models.StatusProcessing, models.StatusCompleted,
		models.StatusFailed, models.StatusDeleted,
	}

	cmds := make(map[models.Status]*redis.IntCmd, len(statuses))
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, st := range statuses {
			cmds[st] = pipe.SCard(ctx, statusKey(st))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", errors.Join(ErrUnavailable, err))
	}

	counts := make(map[models.Status]int64, len(statuses))
	for st, cmd := range cmds {
		counts[st] = cmd.Val()
	}
	return counts, nil
}

func (s *RedisStore) AcquireLease(ctx context.Context, id string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, leaseKey(id), "1", s.leaseTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", id, errors.Join(ErrUnavailable, err))
	}
	return ok, nil
}

func (s *RedisStore) ReleaseLease(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, leaseKey(id)).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", id, errors.Join(ErrUnavailable, err))
	}
	return nil
}

func (s *RedisStore) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := s.rdb.SMembers(ctx, statusKey(models.StatusProcessing)).Result()
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", errors.Join(ErrUnavailable, err))
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	failed := 0
	msg := "indexing timed out"

	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		if rec.UpdatedAt.After(cutoff) {
			continue
		}
		if _, err := s.Update(ctx, id, Update{Status: models.StatusFailed, Error: &msg}); err != nil {
			slog.Warn("sweep failed to update stuck document", "document_id", id, "error", err)
			continue
		}
		_ = s.ReleaseLease(ctx, id)
		failed++
	}
	return failed, nil
}
