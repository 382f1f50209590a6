package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/execution-hub/agent-orchestrator/internal/application/memory"
)

// DB is the subset of pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// MemoryRepository implements memory.Persister.
type MemoryRepository struct {
	db DB
}

func NewMemoryRepository(db DB) *MemoryRepository {
	return &MemoryRepository{db: db}
}

func (r *MemoryRepository) Save(ctx context.Context, worker, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode memory %s/%s: %w", worker, key, err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO agent_memory (worker, memory_key, value, stored_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (worker, memory_key) DO UPDATE SET value=EXCLUDED.value, stored_at=EXCLUDED.stored_at
	`, worker, key, raw, time.Now().UTC())
	return err
}

func (r *MemoryRepository) Delete(ctx context.Context, worker, key string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM agent_memory WHERE worker=$1 AND memory_key=$2`, worker, key)
	return err
}

func (r *MemoryRepository) Load(ctx context.Context, worker string) (map[string]memory.Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT memory_key, value, stored_at
		FROM agent_memory WHERE worker=$1
	`, worker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]memory.Entry)
	for rows.Next() {
		key, entry, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out[key] = entry
	}
	return out, rows.Err()
}

func scanMemory(row pgx.Row) (string, memory.Entry, error) {
	var key string
	var raw []byte
	var entry memory.Entry
	if err := row.Scan(&key, &raw, &entry.StoredAt); err != nil {
		return "", entry, err
	}
	if err := json.Unmarshal(raw, &entry.Value); err != nil {
		return "", entry, fmt.Errorf("decode memory %s: %w", key, err)
	}
	return key, entry, nil
}
