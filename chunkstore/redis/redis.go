// Package redis implements the chunk store on Redis. Chunks are stored as
// JSON values keyed by workspace and chunk id, with per-document and
// per-workspace index sets for cascading deletes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/ragcore"
	"github.com/smallnest/ragcore/chunkstore"
)

// RedisChunkStore implements chunkstore.Store using Redis.
type RedisChunkStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "ragcore:"
	TTL      time.Duration // Expiration for chunks, default 0 (no expiration)
}

// NewRedisChunkStore creates a new Redis chunk store.
func NewRedisChunkStore(opts RedisOptions) *RedisChunkStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "ragcore:"
	}

	return &RedisChunkStore{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
	}
}

// NewRedisChunkStoreWithClient wraps an existing client, useful for testing
// against miniredis.
func NewRedisChunkStoreWithClient(client *redis.Client, prefix string) *RedisChunkStore {
	if prefix == "" {
		prefix = "ragcore:"
	}
	return &RedisChunkStore{client: client, prefix: prefix}
}

var _ chunkstore.Store = (*RedisChunkStore)(nil)

func (s *RedisChunkStore) chunkKey(workspaceID, chunkID string) string {
	return fmt.Sprintf("%schunk:%s:%s", s.prefix, workspaceID, chunkID)
}

func (s *RedisChunkStore) documentKey(workspaceID, documentID string) string {
	return fmt.Sprintf("%sdoc:%s:%s:chunks", s.prefix, workspaceID, documentID)
}

func (s *RedisChunkStore) workspaceKey(workspaceID string) string {
	return fmt.Sprintf("%sws:%s:docs", s.prefix, workspaceID)
}

// PutChunks replaces the document's chunks. The removal of the old chunks
// and the write of the new ones execute as one MULTI/EXEC transaction, so a
// failed replace leaves the previous chunks in place.
func (s *RedisChunkStore) PutChunks(ctx context.Context, workspaceID, documentID string, chunks []ragcore.Chunk) error {
	if err := chunkstore.ValidatePositions(chunks); err != nil {
		return err
	}

	docKey := s.documentKey(workspaceID, documentID)
	oldChunkIDs, err := s.client.SMembers(ctx, docKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list document chunks: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range oldChunkIDs {
		pipe.Del(ctx, s.chunkKey(workspaceID, id))
	}
	pipe.Del(ctx, docKey)
	for _, chunk := range chunks {
		chunk.WorkspaceID = workspaceID
		chunk.DocumentID = documentID
		data, err := json.Marshal(chunk)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk %s: %w", chunk.ID, err)
		}
		pipe.Set(ctx, s.chunkKey(workspaceID, chunk.ID), data, s.ttl)
		pipe.SAdd(ctx, docKey, chunk.ID)
	}
	pipe.SAdd(ctx, s.workspaceKey(workspaceID), documentID)
	if s.ttl > 0 {
		pipe.Expire(ctx, docKey, s.ttl)
		pipe.Expire(ctx, s.workspaceKey(workspaceID), s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save chunks to redis: %w", err)
	}
	return nil
}

// GetChunks fetches chunks by id, in request order, skipping unknown ids.
func (s *RedisChunkStore) GetChunks(ctx context.Context, workspaceID string, chunkIDs []string) ([]ragcore.Chunk, error) {
	if len(chunkIDs) == 0 {
		return []ragcore.Chunk{}, nil
	}

	keys := make([]string, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		keys = append(keys, s.chunkKey(workspaceID, id))
	}

	// MGet returns nil for missing keys, which we skip.
	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks from redis: %w", err)
	}

	chunks := make([]ragcore.Chunk, 0, len(results))
	for _, result := range results {
		if result == nil {
			continue
		}
		strData, ok := result.(string)
		if !ok {
			continue
		}
		var chunk ragcore.Chunk
		if err := json.Unmarshal([]byte(strData), &chunk); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// DeleteDocument removes the document's chunks and index entries.
func (s *RedisChunkStore) DeleteDocument(ctx context.Context, workspaceID, documentID string) error {
	docKey := s.documentKey(workspaceID, documentID)
	chunkIDs, err := s.client.SMembers(ctx, docKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list document chunks: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range chunkIDs {
		pipe.Del(ctx, s.chunkKey(workspaceID, id))
	}
	pipe.Del(ctx, docKey)
	pipe.SRem(ctx, s.workspaceKey(workspaceID), documentID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return nil
}

// DeleteWorkspace removes every chunk and index of the workspace.
func (s *RedisChunkStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	wsKey := s.workspaceKey(workspaceID)
	documentIDs, err := s.client.SMembers(ctx, wsKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list workspace documents: %w", err)
	}

	for _, documentID := range documentIDs {
		if err := s.DeleteDocument(ctx, workspaceID, documentID); err != nil {
			return err
		}
	}

	if err := s.client.Del(ctx, wsKey).Err(); err != nil {
		return fmt.Errorf("failed to delete workspace index: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisChunkStore) Close() error {
	return s.client.Close()
}
