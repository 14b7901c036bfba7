package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/siteprobe/siteprobe/internal/probe"
)

const getKeyValue = `
SELECT value
FROM key_value
WHERE collection = $1 AND name = $2
`

const setKeyValue = `
INSERT INTO key_value (collection, name, value)
VALUES ($1, $2, $3)
ON CONFLICT (collection, name) DO UPDATE SET value = EXCLUDED.value
`

func (q *Queries) keyValue(ctx context.Context, collection, name string) (any, bool, error) {
	var raw []byte
	err := q.db.QueryRow(ctx, getKeyValue, collection, name).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s %s: %w", collection, name, err)
	}

	v, err := decodeJSON(raw)
	if err != nil {
		return nil, false, fmt.Errorf("load %s %s: %w", collection, name, err)
	}
	return v, true, nil
}

// State reads a state entry
func (q *Queries) State(ctx context.Context, key string) (any, bool, error) {
	return q.keyValue(ctx, StateCollection, key)
}

// SetState writes a state entry with a single upsert
func (q *Queries) SetState(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}
	if _, err := q.db.Exec(ctx, setKeyValue, StateCollection, key, data); err != nil {
		return fmt.Errorf("save state %s: %w", key, err)
	}
	return nil
}

// InstalledSchemaVersion is the schema version module was last updated to,
// or probe.SchemaUninstalled when none was recorded.
func (q *Queries) InstalledSchemaVersion(ctx context.Context, module string) (int, error) {
	v, ok, err := q.keyValue(ctx, SchemaCollection, module)
	if err != nil {
		return 0, err
	}
	if !ok {
		return probe.SchemaUninstalled, nil
	}
	return schemaVersion(v), nil
}

func schemaVersion(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return probe.SchemaUninstalled
}
