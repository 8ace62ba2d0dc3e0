package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

var _ ports.DigestRepository = (*DigestRepository)(nil)

var digestColumns = []string{
	"id", "title", "summary", "content", "ai_model", "analysis_type", "window_start", "window_end",
	"item_count", "source_counts", "posted_to_social", "social_url", "sent_to_chatops",
	"tokens_used", "cost_usd", "created_at", "updated_at",
}

// DigestRepository persists digests. Only distribution fields change after insert.
type DigestRepository struct {
	store *Store
}

// Digests returns the digest repository backed by s.
func (s *Store) Digests() *DigestRepository {
	return &DigestRepository{store: s}
}

// Insert stores d in a single statement and returns its ID.
func (r *DigestRepository) Insert(ctx context.Context, d domain.Digest) (string, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := r.store.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}

	counts, err := json.Marshal(d.SourceCounts)
	if err != nil {
		return "", fmt.Errorf("encode source counts: %w", err)
	}

	_, err = r.store.exec(ctx, r.store.builder.
		Insert("digests").
		Columns(digestColumns...).
		Values(d.ID, d.Title, d.Summary, d.Content, d.AIModel, d.AnalysisType,
			toNanos(d.WindowStart), toNanos(d.WindowEnd), d.ItemCount, string(counts),
			d.PostedToSocial, d.SocialURL, d.SentToChatOps, d.TokensUsed, d.CostUSD,
			toNanos(d.CreatedAt), toNanos(d.UpdatedAt)))
	if err != nil {
		return "", fmt.Errorf("insert digest: %w", err)
	}
	return d.ID, nil
}

// Update applies distribution status changes to digest id.
func (r *DigestRepository) Update(ctx context.Context, id string, update domain.DigestUpdate) error {
	if update.Empty() {
		return nil
	}

	q := r.store.builder.Update("digests").
		Set("updated_at", toNanos(r.store.now())).
		Where(sq.Eq{"id": id})
	if update.PostedToSocial != nil {
		q = q.Set("posted_to_social", *update.PostedToSocial)
	}
	if update.SocialURL != nil {
		q = q.Set("social_url", *update.SocialURL)
	}
	if update.SentToChatOps != nil {
		q = q.Set("sent_to_chatops", *update.SentToChatOps)
	}

	res, err := r.store.exec(ctx, q)
	if err != nil {
		return fmt.Errorf("update digest %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update digest rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("digest %s: %w", id, ErrNotFound)
	}
	return nil
}

// Get loads one digest.
func (r *DigestRepository) Get(ctx context.Context, id string) (domain.Digest, error) {
	row, err := r.store.queryRow(ctx, r.store.builder.
		Select(digestColumns...).
		From("digests").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.Digest{}, err
	}
	d, err := scanDigest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Digest{}, fmt.Errorf("digest %s: %w", id, ErrNotFound)
	}
	return d, err
}

// ListRecent returns up to limit digests, newest first.
func (r *DigestRepository) ListRecent(ctx context.Context, limit int) ([]domain.Digest, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.store.query(ctx, r.store.builder.
		Select(digestColumns...).
		From("digests").
		OrderBy("created_at DESC", "id ASC").
		Limit(uint64(limit)))
	if err != nil {
		return nil, fmt.Errorf("list digests: %w", err)
	}
	defer rows.Close()

	var out []domain.Digest
	for rows.Next() {
		d, err := scanDigest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDigest(row rowScanner) (domain.Digest, error) {
	var (
		d                                            domain.Digest
		windowStart, windowEnd, createdAt, updatedAt int64
		counts                                       string
	)
	err := row.Scan(&d.ID, &d.Title, &d.Summary, &d.Content, &d.AIModel, &d.AnalysisType,
		&windowStart, &windowEnd, &d.ItemCount, &counts,
		&d.PostedToSocial, &d.SocialURL, &d.SentToChatOps, &d.TokensUsed, &d.CostUSD,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Digest{}, err
		}
		return domain.Digest{}, fmt.Errorf("scan digest: %w", err)
	}
	d.WindowStart = fromNanos(windowStart)
	d.WindowEnd = fromNanos(windowEnd)
	d.CreatedAt = fromNanos(createdAt)
	d.UpdatedAt = fromNanos(updatedAt)
	if counts != "" && counts != "null" {
		if err := json.Unmarshal([]byte(counts), &d.SourceCounts); err != nil {
			return domain.Digest{}, fmt.Errorf("decode source counts of %s: %w", d.ID, err)
		}
	}
	return d, nil
}
