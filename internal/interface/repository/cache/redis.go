package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"offlineproxy/internal/domain"
)

// RedisStorage はRedisに保存するキャッシュストレージ実装
//
// キー構成:
//
//	<ns>:caches                 キャッシュ名のZSET (score = 作成順)
//	<ns>:seq                    作成順/挿入順のカウンタ
//	<ns>:cache:<name>:entries   エントリのHASH
//	<ns>:cache:<name>:order     キーのZSET (score = 最初の挿入順)
type RedisStorage struct {
	client    *redis.Client
	namespace string
	codec     *codec
}

// Verify interface implementation
var (
	_ domain.CacheStorage = (*RedisStorage)(nil)
	_ domain.Cache        = (*redisCache)(nil)
)

// OpenRedis はRedisストレージに接続する
func OpenRedis(ctx context.Context, redisURL, namespace string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if namespace == "" {
		namespace = "offlineproxy"
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	c, err := newCodec()
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisStorage{client: client, namespace: namespace, codec: c}, nil
}

func (s *RedisStorage) cachesKey() string {
	return s.namespace + ":caches"
}

func (s *RedisStorage) seqKey() string {
	return s.namespace + ":seq"
}

func (s *RedisStorage) entriesKey(name string) string {
	return s.namespace + ":cache:" + name + ":entries"
}

func (s *RedisStorage) orderKey(name string) string {
	return s.namespace + ":cache:" + name + ":order"
}

// Close はクライアントを閉じる
func (s *RedisStorage) Close() error {
	s.codec.close()
	return s.client.Close()
}

// Open は名前のキャッシュを開く
func (s *RedisStorage) Open(ctx context.Context, name string) (domain.Cache, error) {
	exists, err := s.Has(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		seq, err := s.client.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return nil, fmt.Errorf("allocate cache sequence: %w", err)
		}
		if err := s.client.ZAddNX(ctx, s.cachesKey(), redis.Z{Score: float64(seq), Member: name}).Err(); err != nil {
			return nil, fmt.Errorf("register cache %s: %w", name, err)
		}
	}
	return &redisCache{name: name, storage: s}, nil
}

// Has はキャッシュの存在を確認
func (s *RedisStorage) Has(ctx context.Context, name string) (bool, error) {
	err := s.client.ZScore(ctx, s.cachesKey(), name).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup cache %s: %w", name, err)
	}
	return true, nil
}

// Keys はキャッシュ名を作成順で返す
func (s *RedisStorage) Keys(ctx context.Context) ([]string, error) {
	names, err := s.client.ZRange(ctx, s.cachesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	return names, nil
}

// Delete はキャッシュとそのエントリを削除
func (s *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	pipe := s.client.TxPipeline()
	removed := pipe.ZRem(ctx, s.cachesKey(), name)
	pipe.Unlink(ctx, s.entriesKey(name), s.orderKey(name))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	return removed.Val() > 0, nil
}

// Match は全キャッシュを作成順に検索
func (s *RedisStorage) Match(ctx context.Context, key domain.RequestKey) (*domain.StoredResponse, bool, error) {
	names, err := s.Keys(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, name := range names {
		c := &redisCache{name: name, storage: s}
		resp, ok, err := c.Match(ctx, key)
		if err != nil || ok {
			return resp, ok, err
		}
	}
	return nil, false, nil
}

type redisCache struct {
	name    string
	storage *RedisStorage
}

func (c *redisCache) Name() string {
	return c.name
}

func (c *redisCache) Match(ctx context.Context, key domain.RequestKey) (*domain.StoredResponse, bool, error) {
	data, err := c.storage.client.HGet(ctx, c.storage.entriesKey(c.name), key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s from %s: %w", key, c.name, err)
	}

	resp, err := c.storage.codec.decode(data)
	if err != nil {
		return nil, false, err
	}
	return resp, true, nil
}

// Put はエントリを保存する. 挿入順は最初の書き込み時のみ記録する
func (c *redisCache) Put(ctx context.Context, key domain.RequestKey, resp *domain.StoredResponse) error {
	data, err := c.storage.codec.encode(resp)
	if err != nil {
		return err
	}

	seq, err := c.storage.client.Incr(ctx, c.storage.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("allocate entry sequence: %w", err)
	}

	pipe := c.storage.client.TxPipeline()
	pipe.HSet(ctx, c.storage.entriesKey(c.name), key.String(), data)
	pipe.ZAddNX(ctx, c.storage.orderKey(c.name), redis.Z{Score: float64(seq), Member: key.String()})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put %s into %s: %w", key, c.name, err)
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, key domain.RequestKey) (bool, error) {
	pipe := c.storage.client.TxPipeline()
	removed := pipe.HDel(ctx, c.storage.entriesKey(c.name), key.String())
	pipe.ZRem(ctx, c.storage.orderKey(c.name), key.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("delete %s from %s: %w", key, c.name, err)
	}
	return removed.Val() > 0, nil
}

func (c *redisCache) Keys(ctx context.Context) ([]domain.RequestKey, error) {
	members, err := c.storage.client.ZRange(ctx, c.storage.orderKey(c.name), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", c.name, err)
	}

	keys := make([]domain.RequestKey, 0, len(members))
	for _, m := range members {
		method, rawURL, ok := strings.Cut(m, " ")
		if !ok {
			continue
		}
		keys = append(keys, domain.RequestKey{Method: method, URL: rawURL})
	}
	return keys, nil
}
