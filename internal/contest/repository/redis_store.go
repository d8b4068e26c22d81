package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"

	"contestoj/internal/contest/model"
	appErr "contestoj/pkg/errors"
	"contestoj/pkg/utils/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultNamespace    = "contest"
	defaultWatchRetries = 8
)

// registerScript creates the competitor document and indexes its name in
// one step. KEYS: document, index. ARGV: document JSON, name.
var registerScript = redis.NewScript(`
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("SADD", KEYS[2], ARGV[2])
return 1
`)

// RedisStore keeps one JSON document per competitor. Updates are optimistic
// WATCH/MULTI cycles on the competitor's key, so writers touching different
// competitors never conflict.
type RedisStore struct {
	client     *redis.Client
	ns         string
	maxRetries int
	opts       options
	log        *zap.Logger
}

// NewRedisStore wraps client. An empty namespace defaults to "contest".
func NewRedisStore(client *redis.Client, namespace string, opts ...Option) (*RedisStore, error) {
	if client == nil {
		return nil, appErr.New(appErr.CacheError).WithMessage("redis client is not initialized")
	}
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &RedisStore{
		client:     client,
		ns:         namespace,
		maxRetries: defaultWatchRetries,
		opts:       buildOptions(opts),
		log:        logger.Named("redis_store"),
	}, nil
}

func (r *RedisStore) competitorKey(name string) string { return r.ns + ":competitor:" + name }
func (r *RedisStore) indexKey() string                 { return r.ns + ":competitors" }
func (r *RedisStore) metaKey() string                  { return r.ns + ":meta" }
func (r *RedisStore) problemsKey() string              { return r.ns + ":problems" }

// EventsChannel is the pub/sub channel change events are published on.
func (r *RedisStore) EventsChannel() string { return r.ns + ":events" }

func (r *RedisStore) RegisterCompetitor(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	data, err := json.Marshal(model.NewCompetitor(name, r.opts.now()))
	if err != nil {
		return false, appErr.Wrapf(err, appErr.CacheError, "encode competitor")
	}
	created, err := registerScript.Run(ctx, r.client, []string{r.competitorKey(name), r.indexKey()}, data, name).Int()
	if err != nil {
		return false, appErr.Wrapf(err, appErr.CacheError, "register competitor")
	}
	if created == 0 {
		return false, nil
	}
	r.publish(ctx, name, ChangeRegistered)
	return true, nil
}

func (r *RedisStore) IsNameTaken(ctx context.Context, name string) (bool, error) {
	n, err := r.client.Exists(ctx, r.competitorKey(name)).Result()
	if err != nil {
		return false, appErr.Wrapf(err, appErr.CacheError, "check competitor")
	}
	return n > 0, nil
}

func (r *RedisStore) UpdateCurrentProblem(ctx context.Context, name string, problemID int) (bool, error) {
	return r.update(ctx, name, ChangeProblemSelected, selectProblem(problemID, r.opts.now()))
}

func (r *RedisStore) RecordSubmission(ctx context.Context, name string, problemID int, result model.SubmissionResult) (bool, error) {
	if err := validateResult(result); err != nil {
		return false, err
	}
	return r.update(ctx, name, ChangeSubmission, appendSubmission(problemID, model.NewSubmission(result, r.opts.now())))
}

func (r *RedisStore) SetJudgeApproval(ctx context.Context, name string, problemID int, status model.ApprovalStatus) (bool, error) {
	if err := validateStatus(status); err != nil {
		return false, err
	}
	return r.update(ctx, name, ChangeApproval, approve(problemID, status, r.opts.now()))
}

func (r *RedisStore) GetProgress(ctx context.Context, name string, problemID int) (*model.ProblemProgress, error) {
	c, err := r.GetCompetitor(ctx, name)
	if err != nil || c == nil {
		return nil, err
	}
	return c.Problems[problemID], nil
}

func (r *RedisStore) GetCompetitor(ctx context.Context, name string) (*model.Competitor, error) {
	data, err := r.client.Get(ctx, r.competitorKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load competitor")
	}
	return decodeCompetitor(data)
}

func (r *RedisStore) ListCompetitors(ctx context.Context) ([]model.Competitor, error) {
	names, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "list competitor names")
	}
	if len(names) == 0 {
		return []model.Competitor{}, nil
	}
	sort.Strings(names)

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = r.competitorKey(name)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load competitors")
	}

	out := make([]model.Competitor, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			r.log.Warn("competitor indexed without document", zap.String("name", names[i]))
			continue
		}
		c, err := decodeCompetitor([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

func (r *RedisStore) StartCompetition(ctx context.Context) error {
	err := r.updateMeta(ctx, func(meta *model.CompetitionMeta) {
		now := r.opts.now()
		meta.Started = true
		meta.StartTime = &now
	})
	if err == nil {
		r.publish(ctx, "", ChangeStarted)
	}
	return err
}

func (r *RedisStore) SetProblemsLoaded(ctx context.Context, problemIDs []int) error {
	return r.updateMeta(ctx, func(meta *model.CompetitionMeta) {
		meta.ProblemsLoaded = append([]int{}, problemIDs...)
	})
}

func (r *RedisStore) Metadata(ctx context.Context) (model.CompetitionMeta, error) {
	data, err := r.client.Get(ctx, r.metaKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.CompetitionMeta{ProblemsLoaded: []int{}}, nil
	}
	if err != nil {
		return model.CompetitionMeta{}, appErr.Wrapf(err, appErr.CacheError, "load metadata")
	}
	return decodeMeta(data)
}

func (r *RedisStore) Reset(ctx context.Context) error {
	names, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "list competitor names")
	}
	keys := []string{r.indexKey(), r.metaKey()}
	for _, name := range names {
		keys = append(keys, r.competitorKey(name))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "reset competition")
	}
	r.publish(ctx, "", ChangeReset)
	return nil
}

func (r *RedisStore) ImportMetadata(ctx context.Context, meta model.CompetitionMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "encode metadata")
	}
	if err := r.client.Set(ctx, r.metaKey(), data, 0).Err(); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store metadata")
	}
	return nil
}

func (r *RedisStore) ImportCompetitor(ctx context.Context, competitor *model.Competitor) error {
	if competitor == nil {
		return appErr.ValidationError("competitor", "required")
	}
	if err := validateName(competitor.Name); err != nil {
		return err
	}
	c := competitor.Clone()
	normalizeCompetitor(c)
	data, err := json.Marshal(c)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "encode competitor")
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.competitorKey(c.Name), data, 0)
		pipe.SAdd(ctx, r.indexKey(), c.Name)
		return nil
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "import competitor")
	}
	r.publish(ctx, c.Name, ChangeImported)
	return nil
}

// SaveProblems replaces the mirrored problem set.
func (r *RedisStore) SaveProblems(ctx context.Context, problems []model.Problem) error {
	fields := make(map[string]interface{}, len(problems))
	for _, p := range problems {
		data, err := json.Marshal(p)
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "encode problem %d", p.ID)
		}
		fields[strconv.Itoa(p.ID)] = data
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.problemsKey())
		if len(fields) > 0 {
			pipe.HSet(ctx, r.problemsKey(), fields)
		}
		return nil
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store problems")
	}
	return nil
}

// LoadProblems returns the mirrored problems ordered by id.
func (r *RedisStore) LoadProblems(ctx context.Context) ([]model.Problem, error) {
	raw, err := r.client.HGetAll(ctx, r.problemsKey()).Result()
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load problems")
	}
	out := make([]model.Problem, 0, len(raw))
	for field, value := range raw {
		var p model.Problem
		if err := json.Unmarshal([]byte(value), &p); err != nil {
			return nil, appErr.Wrapf(err, appErr.DocumentCorrupt, "decode problem %s", field)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Subscribe streams change events published by any RedisStore sharing the
// namespace. The channel closes when ctx is done.
func (r *RedisStore) Subscribe(ctx context.Context) (<-chan ChangeEvent, error) {
	pubsub := r.client.Subscribe(ctx, r.EventsChannel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, appErr.Wrapf(err, appErr.CacheError, "subscribe to change events")
	}

	out := make(chan ChangeEvent, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					r.log.Warn("drop malformed change event", zap.String("payload", msg.Payload), zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// update applies fn to the competitor document inside a WATCH transaction,
// retrying when another writer got there first.
func (r *RedisStore) update(ctx context.Context, name string, kind ChangeKind, fn mutation) (bool, error) {
	key := r.competitorKey(name)
	var changed bool
	txf := func(tx *redis.Tx) error {
		changed = false
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		c, err := decodeCompetitor(data)
		if err != nil {
			return err
		}
		if !fn(c) {
			return nil
		}
		out, err := json.Marshal(c)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	}

	if err := r.watch(ctx, txf, key); err != nil {
		return false, err
	}
	if changed {
		r.publish(ctx, name, kind)
	}
	return changed, nil
}

func (r *RedisStore) updateMeta(ctx context.Context, fn func(meta *model.CompetitionMeta)) error {
	key := r.metaKey()
	txf := func(tx *redis.Tx) error {
		meta := model.CompetitionMeta{ProblemsLoaded: []int{}}
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if meta, err = decodeMeta(data); err != nil {
				return err
			}
		}
		fn(&meta)
		out, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}
	return r.watch(ctx, txf, key)
}

func (r *RedisStore) watch(ctx context.Context, txf func(tx *redis.Tx) error, key string) error {
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var appError *appErr.Error
		if errors.As(err, &appError) {
			return err
		}
		return appErr.Wrapf(err, appErr.CacheError, "update %s", key)
	}
	return appErr.Newf(appErr.DocumentConflict, "update %s: too many concurrent writers", key)
}

// publish is best-effort; subscribers that miss an event catch up on the
// next read.
func (r *RedisStore) publish(ctx context.Context, name string, kind ChangeKind) {
	payload, err := json.Marshal(ChangeEvent{Name: name, Kind: kind, At: r.opts.now()})
	if err != nil {
		return
	}
	if err := r.client.Publish(ctx, r.EventsChannel(), payload).Err(); err != nil {
		logger.Warn(ctx, "publish change event failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func decodeCompetitor(data []byte) (*model.Competitor, error) {
	var c model.Competitor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, appErr.Wrapf(err, appErr.DocumentCorrupt, "decode competitor")
	}
	normalizeCompetitor(&c)
	return &c, nil
}

func decodeMeta(data []byte) (model.CompetitionMeta, error) {
	var meta model.CompetitionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return model.CompetitionMeta{}, appErr.Wrapf(err, appErr.DocumentCorrupt, "decode metadata")
	}
	if meta.ProblemsLoaded == nil {
		meta.ProblemsLoaded = []int{}
	}
	return meta, nil
}
