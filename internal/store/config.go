package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/siteprobe/siteprobe/internal/probe"
)

const getConfig = `
SELECT data
FROM config
WHERE collection = '' AND name = $1
`

// Config loads the active configuration object name. Objects that were never
// saved come back empty.
func (q *Queries) Config(ctx context.Context, name string) (probe.ConfigObject, error) {
	var raw []byte
	err := q.db.QueryRow(ctx, getConfig, name).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return probe.ConfigObject{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", name, err)
	}

	obj := probe.ConfigObject{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", name, err)
	}
	return obj, nil
}

const saveConfig = `
INSERT INTO config (collection, name, data)
VALUES ('', $1, $2)
ON CONFLICT (collection, name) DO UPDATE SET data = EXCLUDED.data
`

// SaveConfig replaces the configuration object name
func (q *Queries) SaveConfig(ctx context.Context, name string, obj probe.ConfigObject) error {
	if obj == nil {
		obj = probe.ConfigObject{}
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode config %s: %w", name, err)
	}
	if _, err := q.db.Exec(ctx, saveConfig, name, data); err != nil {
		return fmt.Errorf("save config %s: %w", name, err)
	}
	return nil
}
