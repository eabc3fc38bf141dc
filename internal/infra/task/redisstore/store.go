// Package redisstore is a Redis-backed task.Store, for hosts that already
// run Redis for queueing or pub/sub and would rather not add a relational
// dependency just to track task runs.
//
// Schema (key layout):
//
//	task:run:<id>              hash  - Run fields (times as RFC3339Nano strings)
//	task:status:<status>       zset  - task ids in that status, scored by created_at
//	task:events:<id>           list  - JSON-encoded Event, append order == insertion order
//	task:events:<id>:seq       int   - event id counter
//	task:artifacts:<id>        hash  - path -> JSON-encoded Artifact
//	task:artifacts:<id>:seq    int   - artifact id counter
//
// Redis has no native row-level "UPDATE ... WHERE id = ? RETURNING rows
// affected" primitive, so the mutating operations that must return
// task.ErrNotFound on a missing row (UpdateStatus, the two counter bumps,
// SetLastResponse) are implemented as small Lua scripts executed with
// EVAL, which is the only way to make "check existence, then mutate" atomic
// against a concurrent writer.
package redisstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"taskcore/internal/domain/task"
)

// Store implements task.Store backed by a redis.Client.
type Store struct {
	client *redis.Client
}

var _ task.Store = (*Store)(nil)

// New wraps an already-connected client. Store.Close closes that client; it
// does not distinguish a client passed to New from one created by Open.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Open connects using a redis:// URL (or host:port form accepted by
// redis.ParseURL) and verifies the connection with a Ping, mirroring the
// gartmeier-swarmmarket NewRedisDB pattern.
func Open(ctx context.Context, addr string) (*Store, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}
	s := &Store{client: client}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// EnsureSchema is a no-op: Redis keys are created implicitly by the first
// write to them. Kept to satisfy task.Store and to verify connectivity.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redisstore: ensure schema: %w", err)
	}
	return nil
}

func runKey(id string) string          { return "task:run:" + id }
func statusKey(status string) string   { return "task:status:" + status }
func eventsKey(id string) string       { return "task:events:" + id }
func eventsSeqKey(id string) string    { return "task:events:" + id + ":seq" }
func artifactsKey(id string) string    { return "task:artifacts:" + id }
func artifactsSeqKey(id string) string { return "task:artifacts:" + id + ":seq" }

func (s *Store) InsertTaskRun(ctx context.Context, id, channel, senderKey, replyTarget, originalRequest string) error {
	now := task.Now()
	nowStr := formatTime(now)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, runKey(id), map[string]any{
		"id":                   id,
		"channel":              channel,
		"sender_key":           senderKey,
		"reply_target":         replyTarget,
		"status":               string(task.StatusQueued),
		"original_request":     originalRequest,
		"attempt_count":        0,
		"provider_retry_count": 0,
		"created_at":           nowStr,
		"updated_at":           nowStr,
	})
	pipe.ZAdd(ctx, statusKey(string(task.StatusQueued)), redis.Z{Score: float64(now.UnixNano()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: insert task run %q: %w", id, err)
	}
	return nil
}

var updateStatusScript = redis.NewScript(`
local runKey = KEYS[1]
local newStatus = ARGV[1]
local isTerminal = ARGV[2]
local nowStr = ARGV[3]
local score = ARGV[4]
local statusPrefix = ARGV[5]
local id = ARGV[6]

if redis.call('EXISTS', runKey) == 0 then
  return 0
end

local oldStatus = redis.call('HGET', runKey, 'status')
redis.call('HSET', runKey, 'status', newStatus, 'updated_at', nowStr)
if isTerminal == '1' then
  redis.call('HSET', runKey, 'completed_at', nowStr)
end
if oldStatus then
  local oldScore = redis.call('ZSCORE', statusPrefix .. oldStatus, id)
  if oldScore then
    score = oldScore
  end
  redis.call('ZREM', statusPrefix .. oldStatus, id)
end
redis.call('ZADD', statusPrefix .. newStatus, score, id)
return 1
`)

func (s *Store) UpdateStatus(ctx context.Context, id string, newStatus task.Status) error {
	now := task.Now()
	isTerminal := "0"
	if newStatus.IsTerminal() {
		isTerminal = "1"
	}
	res, err := updateStatusScript.Run(ctx, s.client, []string{runKey(id)},
		string(newStatus), isTerminal, formatTime(now), fmt.Sprintf("%d", now.UnixNano()), "task:status:", id,
	).Int64()
	if err != nil {
		return fmt.Errorf("redisstore: update status for %q: %w", id, err)
	}
	if res == 0 {
		return task.ErrNotFound
	}
	return nil
}

var bumpCounterScript = redis.NewScript(`
local runKey = KEYS[1]
local column = ARGV[1]
local nowStr = ARGV[2]

if redis.call('EXISTS', runKey) == 0 then
  return 0
end
redis.call('HINCRBY', runKey, column, 1)
redis.call('HSET', runKey, 'updated_at', nowStr)
return 1
`)

func (s *Store) IncrementAttemptCount(ctx context.Context, id string) error {
	return s.bumpCounter(ctx, id, "attempt_count")
}

func (s *Store) IncrementProviderRetryCount(ctx context.Context, id string) error {
	return s.bumpCounter(ctx, id, "provider_retry_count")
}

// bumpCounter increments one of the two known integer fields; column is
// never caller-controlled, so passing it as a script argument (rather than
// interpolating it into the script body) is purely a style choice here, not
// a safety requirement.
func (s *Store) bumpCounter(ctx context.Context, id, column string) error {
	res, err := bumpCounterScript.Run(ctx, s.client, []string{runKey(id)}, column, formatTime(task.Now())).Int64()
	if err != nil {
		return fmt.Errorf("redisstore: bump %s for %q: %w", column, id, err)
	}
	if res == 0 {
		return task.ErrNotFound
	}
	return nil
}

var setFieldScript = redis.NewScript(`
local runKey = KEYS[1]
local field = ARGV[1]
local value = ARGV[2]
local nowStr = ARGV[3]

if redis.call('EXISTS', runKey) == 0 then
  return 0
end
redis.call('HSET', runKey, field, value, 'updated_at', nowStr)
return 1
`)

func (s *Store) SetLastResponse(ctx context.Context, id, text string) error {
	res, err := setFieldScript.Run(ctx, s.client, []string{runKey(id)}, "last_response", text, formatTime(task.Now())).Int64()
	if err != nil {
		return fmt.Errorf("redisstore: set last response for %q: %w", id, err)
	}
	if res == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (s *Store) GetTaskRun(ctx context.Context, id string) (*task.Run, error) {
	fields, err := s.client.HGetAll(ctx, runKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: get task run %q: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	run, err := runFromFields(fields)
	if err != nil {
		return nil, fmt.Errorf("redisstore: decode task run %q: %w", id, err)
	}
	return run, nil
}

type scoredID struct {
	id    string
	score float64
}

func (s *Store) ListRecoverableTasks(ctx context.Context) ([]*task.Run, error) {
	var all []scoredID
	for _, status := range task.RecoverableStatuses() {
		zs, err := s.client.ZRangeWithScores(ctx, statusKey(string(status)), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: list recoverable tasks: %w", err)
		}
		for _, z := range zs {
			all = append(all, scoredID{id: fmt.Sprint(z.Member), score: z.Score})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score < all[j].score })

	out := make([]*task.Run, 0, len(all))
	for _, item := range all {
		run, err := s.GetTaskRun(ctx, item.id)
		if err != nil {
			return nil, err
		}
		if run != nil {
			out = append(out, run)
		}
	}
	return out, nil
}

func (s *Store) AppendEvent(ctx context.Context, id, eventType string, payload any) error {
	now := task.Now()
	eventID, err := s.client.Incr(ctx, eventsSeqKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redisstore: next event id for %q: %w", id, err)
	}

	encoded, err := encodeEvent(eventID, id, eventType, payload, now)
	if err != nil {
		return fmt.Errorf("redisstore: encode event for %q: %w", id, err)
	}
	if err := s.client.RPush(ctx, eventsKey(id), encoded).Err(); err != nil {
		return fmt.Errorf("redisstore: append event for %q: %w", id, err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, id string) ([]*task.Event, error) {
	raw, err := s.client.LRange(ctx, eventsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list events for %q: %w", id, err)
	}
	out := make([]*task.Event, 0, len(raw))
	for _, blob := range raw {
		ev, err := decodeEvent(blob)
		if err != nil {
			return nil, fmt.Errorf("redisstore: decode event for %q: %w", id, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// upsertArtifactScript preserves the existing artifact's id across repeated
// verification of the same path, and otherwise allocates a fresh one from
// the per-task sequence counter; cjson is Redis's built-in scripting JSON
// codec, available without any client-side library.
var upsertArtifactScript = redis.NewScript(`
local artifactsKey = KEYS[1]
local seqKey = KEYS[2]
local path = ARGV[1]
local taskID = ARGV[2]
local verified = ARGV[3]
local checksum = ARGV[4]
local verifiedAt = ARGV[5]

local id
local existing = redis.call('HGET', artifactsKey, path)
if existing then
  local obj = cjson.decode(existing)
  id = obj.id
else
  id = redis.call('INCR', seqKey)
end

local checksumVal = checksum
if checksum == '' then checksumVal = cjson.null end
local verifiedAtVal = verifiedAt
if verifiedAt == '' then verifiedAtVal = cjson.null end

local encoded = cjson.encode({
  id = id,
  task_id = taskID,
  path = path,
  verified = (verified == '1'),
  checksum = checksumVal,
  verified_at = verifiedAtVal,
})
redis.call('HSET', artifactsKey, path, encoded)
return id
`)

func (s *Store) UpsertArtifactVerification(ctx context.Context, id, path string, checksum *string, verified bool) error {
	verifiedFlag := "0"
	if verified {
		verifiedFlag = "1"
	}
	checksumArg := ""
	if checksum != nil {
		checksumArg = *checksum
	}
	verifiedAtArg := ""
	if verified {
		verifiedAtArg = formatTime(task.Now())
	}

	err := upsertArtifactScript.Run(ctx, s.client,
		[]string{artifactsKey(id), artifactsSeqKey(id)},
		path, id, verifiedFlag, checksumArg, verifiedAtArg,
	).Err()
	if err != nil {
		return fmt.Errorf("redisstore: upsert artifact for %q: %w", id, err)
	}
	return nil
}

func (s *Store) ListArtifacts(ctx context.Context, id string) ([]*task.Artifact, error) {
	fields, err := s.client.HGetAll(ctx, artifactsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list artifacts for %q: %w", id, err)
	}
	out := make([]*task.Artifact, 0, len(fields))
	for _, blob := range fields {
		a, err := decodeArtifact(blob)
		if err != nil {
			return nil, fmt.Errorf("redisstore: decode artifact for %q: %w", id, err)
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
