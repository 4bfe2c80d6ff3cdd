package segment

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/funnelbot/internal/store"
)

const keyPrefix = "segments:"

type redisIndex struct {
	client *redis.Client
}

// NewRedis constructs an Index backed by redis sets, one set per stage.
// Used when segment counts must survive restarts or be shared between
// bot instances.
func NewRedis(client *redis.Client) Index {
	return &redisIndex{client: client}
}

func stageKey(stage store.Stage) string {
	return keyPrefix + string(stage)
}

func (r *redisIndex) Rebuild(ctx context.Context, id int64, stage store.Stage) error {
	member := strconv.FormatInt(id, 10)
	pipe := r.client.TxPipeline()
	for _, s := range store.Stages() {
		pipe.SRem(ctx, stageKey(s), member)
	}
	pipe.SAdd(ctx, stageKey(stage), member)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("segment: rebuild %d: %w", id, err)
	}
	return nil
}

func (r *redisIndex) Counts(ctx context.Context) (map[store.Stage]int, error) {
	pipe := r.client.Pipeline()
	cmds := make(map[store.Stage]*redis.IntCmd, len(store.Stages()))
	for _, s := range store.Stages() {
		cmds[s] = pipe.SCard(ctx, stageKey(s))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("segment: counts: %w", err)
	}
	counts := make(map[store.Stage]int, len(cmds))
	for s, cmd := range cmds {
		counts[s] = int(cmd.Val())
	}
	return counts, nil
}

func (r *redisIndex) Members(ctx context.Context, stage store.Stage) ([]int64, error) {
	raw, err := r.client.SMembers(ctx, stageKey(stage)).Result()
	if err != nil {
		return nil, fmt.Errorf("segment: members %s: %w", stage, err)
	}
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
