package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

var (
	_ ports.CacheGateway = (*CacheGateway)(nil)
	_ ports.CacheSweeper = (*Store)(nil)
)

const upsertItemSuffix = `ON CONFLICT (source_type, source_key, dedup_key) DO UPDATE SET
	item_id = excluded.item_id,
	body = excluded.body,
	url = excluded.url,
	author = excluded.author,
	published_at = excluded.published_at,
	quality_score = excluded.quality_score,
	metadata = excluded.metadata,
	fetched_at = excluded.fetched_at`

// CacheGateway serves cached items of one source type.
type CacheGateway struct {
	store      *Store
	sourceType domain.SourceType
	ttl        time.Duration
	keyTTL     map[string]time.Duration
}

// Cache returns the gateway for t. keyTTL overrides ttl for individual keys.
func (s *Store) Cache(t domain.SourceType, ttl time.Duration, keyTTL map[string]time.Duration) *CacheGateway {
	return &CacheGateway{store: s, sourceType: t, ttl: ttl, keyTTL: keyTTL}
}

// TTL returns the freshness threshold that applies to key.
func (c *CacheGateway) TTL(key string) time.Duration {
	if d, ok := c.keyTTL[key]; ok {
		return d
	}
	return c.ttl
}

// IsFresh reports whether key was written within its TTL.
func (c *CacheGateway) IsFresh(ctx context.Context, key string) (bool, error) {
	row, err := c.store.queryRow(ctx, c.store.builder.
		Select("fetched_at").
		From("cache_records").
		Where(sq.Eq{"source_type": string(c.sourceType), "source_key": key}))
	if err != nil {
		return false, err
	}

	var fetched int64
	if err := row.Scan(&fetched); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("read cache record %s/%s: %w", c.sourceType, key, err)
	}

	record := domain.CacheRecord{SourceType: c.sourceType, SourceKey: key, FetchedAt: fromNanos(fetched)}
	return record.Fresh(c.store.now(), c.TTL(key)), nil
}

// Read returns the cached items for key, newest first.
func (c *CacheGateway) Read(ctx context.Context, key string) ([]domain.ContentItem, error) {
	rows, err := c.store.query(ctx, c.store.builder.
		Select("item_id", "source_key", "body", "url", "author", "published_at", "quality_score", "metadata").
		From("cached_items").
		Where(sq.Eq{"source_type": string(c.sourceType), "source_key": key}).
		OrderBy("published_at DESC", "dedup_key ASC"))
	if err != nil {
		return nil, fmt.Errorf("query cached items %s/%s: %w", c.sourceType, key, err)
	}
	defer rows.Close()

	var items []domain.ContentItem
	for rows.Next() {
		var (
			item      domain.ContentItem
			published int64
			metadata  string
		)
		if err := rows.Scan(&item.ID, &item.SourceKey, &item.Text, &item.URL, &item.Author, &published, &item.QualityScore, &metadata); err != nil {
			return nil, fmt.Errorf("scan cached item: %w", err)
		}
		item.SourceType = c.sourceType
		item.Timestamp = fromNanos(published)
		if metadata != "" && metadata != "null" {
			if err := json.Unmarshal([]byte(metadata), &item.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", item.ID, err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return items, nil
}

// Write replaces the cached set of key in one transaction: fetched_at is
// refreshed, items are upserted by dedup key and rows of key missing from
// items are removed. Items are scoped per key, so a URL seen under two keys
// is cached under both.
func (c *CacheGateway) Write(ctx context.Context, key string, items []domain.ContentItem) error {
	now := toNanos(c.store.now())

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	record := c.store.builder.
		Insert("cache_records").
		Columns("source_type", "source_key", "fetched_at").
		Values(string(c.sourceType), key, now).
		Suffix("ON CONFLICT (source_type, source_key) DO UPDATE SET fetched_at = excluded.fetched_at")
	if err := execTx(ctx, tx, record); err != nil {
		return fmt.Errorf("upsert cache record %s/%s: %w", c.sourceType, key, err)
	}

	dedupKeys := make([]string, 0, len(items))
	for _, item := range items {
		item.SourceType = c.sourceType
		dedupKeys = append(dedupKeys, item.DedupKey())
	}
	stale := c.store.builder.
		Delete("cached_items").
		Where(sq.Eq{"source_type": string(c.sourceType), "source_key": key})
	if len(dedupKeys) > 0 {
		stale = stale.Where(sq.NotEq{"dedup_key": dedupKeys})
	}
	if err := execTx(ctx, tx, stale); err != nil {
		return fmt.Errorf("drop stale cached items %s/%s: %w", c.sourceType, key, err)
	}

	for _, item := range items {
		metadata, err := json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", item.ID, err)
		}
		item.SourceType = c.sourceType
		insert := c.store.builder.
			Insert("cached_items").
			Columns("source_type", "dedup_key", "source_key", "item_id", "body", "url", "author",
				"published_at", "quality_score", "metadata", "fetched_at").
			Values(string(c.sourceType), item.DedupKey(), key, item.ID, item.Text, item.URL, item.Author,
				toNanos(item.Timestamp), item.QualityScore, string(metadata), now).
			Suffix(upsertItemSuffix)
		if err := execTx(ctx, tx, insert); err != nil {
			return fmt.Errorf("upsert cached item %s: %w", item.DedupKey(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache write: %w", err)
	}
	return nil
}

// Sweep deletes cached items and records last written before now-retention.
// It returns the number of removed items.
func (s *Store) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := toNanos(s.now().Add(-retention))

	res, err := s.exec(ctx, s.builder.Delete("cached_items").Where(sq.Lt{"fetched_at": cutoff}))
	if err != nil {
		return 0, fmt.Errorf("sweep cached items: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows affected: %w", err)
	}

	if _, err := s.exec(ctx, s.builder.Delete("cache_records").Where(sq.Lt{"fetched_at": cutoff})); err != nil {
		return removed, fmt.Errorf("sweep cache records: %w", err)
	}
	return removed, nil
}

func execTx(ctx context.Context, tx *sql.Tx, q sq.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}
