package presence

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry shares presence between processes. Each room is a Redis set
// under "<prefix>doc:<docID>"; a reverse index "<prefix>user:<userID>" lists
// the rooms a user is in so disconnect cleanup does not scan every room.
// Redis deletes a set when its last member is removed, so an empty room
// leaves no key behind.
type RedisRegistry struct {
	client *redis.Client
	prefix string
}

// NewRedisRegistry creates a Redis-backed registry. Prefix may be empty.
func NewRedisRegistry(client *redis.Client, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = "presence:"
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

func (r *RedisRegistry) docKey(docID string) string   { return r.prefix + "doc:" + docID }
func (r *RedisRegistry) userKey(userID string) string { return r.prefix + "user:" + userID }

func (r *RedisRegistry) Join(ctx context.Context, docID, userID string) ([]string, error) {
	var members *redis.StringSliceCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, r.docKey(docID), userID)
		p.SAdd(ctx, r.userKey(userID), docID)
		members = p.SMembers(ctx, r.docKey(docID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("presence join: %w", err)
	}
	return sortedSlice(members.Val()), nil
}

func (r *RedisRegistry) Leave(ctx context.Context, docID, userID string) ([]string, error) {
	var members *redis.StringSliceCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SRem(ctx, r.docKey(docID), userID)
		p.SRem(ctx, r.userKey(userID), docID)
		members = p.SMembers(ctx, r.docKey(docID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("presence leave: %w", err)
	}
	return sortedSlice(members.Val()), nil
}

func (r *RedisRegistry) OnDisconnect(ctx context.Context, userID string) (map[string][]string, error) {
	docs, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence rooms of user: %w", err)
	}
	out := make(map[string][]string, len(docs))
	for _, docID := range docs {
		members, err := r.Leave(ctx, docID, userID)
		if err != nil {
			return out, err
		}
		out[docID] = members
	}
	return out, nil
}

func (r *RedisRegistry) Members(ctx context.Context, docID string) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.docKey(docID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence members: %w", err)
	}
	return sortedSlice(members), nil
}

func (r *RedisRegistry) Evict(ctx context.Context, docID string) ([]string, error) {
	members, err := r.Members(ctx, docID)
	if err != nil {
		return nil, err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.docKey(docID))
		for _, userID := range members {
			p.SRem(ctx, r.userKey(userID), docID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("presence evict: %w", err)
	}
	return members, nil
}

func sortedSlice(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}
