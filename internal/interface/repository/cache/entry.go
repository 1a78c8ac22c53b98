package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"offlineproxy/internal/domain"
)

// Summary は名前付きキャッシュ1つ分の概要を表す
type Summary struct {
	Name    string    `json:"name"`
	Entries int       `json:"entries"`
	Bytes   int64     `json:"bytes"`
	Size    string    `json:"size"`
	Oldest  time.Time `json:"oldest,omitempty"`
	Newest  time.Time `json:"newest,omitempty"`
}

// Summarize は全キャッシュの概要を作成順で返す
func Summarize(ctx context.Context, storage domain.CacheStorage) ([]Summary, error) {
	names, err := storage.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}

	summaries := make([]Summary, 0, len(names))
	for _, name := range names {
		s, err := summarizeOne(ctx, storage, name)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func summarizeOne(ctx context.Context, storage domain.CacheStorage, name string) (Summary, error) {
	c, err := storage.Open(ctx, name)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to open cache %s: %w", name, err)
	}

	keys, err := c.Keys(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list keys of %s: %w", name, err)
	}

	s := Summary{Name: name, Entries: len(keys)}
	for _, key := range keys {
		resp, ok, err := c.Match(ctx, key)
		if err != nil {
			return Summary{}, err
		}
		if !ok {
			continue
		}
		s.Bytes += int64(len(resp.Body))
		if s.Oldest.IsZero() || resp.StoredAt.Before(s.Oldest) {
			s.Oldest = resp.StoredAt
		}
		if resp.StoredAt.After(s.Newest) {
			s.Newest = resp.StoredAt
		}
	}
	s.Size = humanize.Bytes(uint64(s.Bytes))
	return s, nil
}
