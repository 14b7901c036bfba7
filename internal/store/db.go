// Package store reads the platform's own tables through pgx. It implements
// the data source interfaces of the probe package.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/siteprobe/siteprobe/internal/probe"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Key/value collections used by the platform
const (
	StateCollection  = "state"
	SchemaCollection = "system.schema"
)

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

var (
	_ probe.Database        = (*Queries)(nil)
	_ probe.ConfigReader    = (*Queries)(nil)
	_ probe.StateStore      = (*Queries)(nil)
	_ probe.SchemaStore     = (*Queries)(nil)
	_ probe.DomainDirectory = (*Queries)(nil)
	_ probe.AliasDirectory  = (*Queries)(nil)
)

// WithTx returns a copy of the queries bound to tx
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// decodeJSON unmarshals a jsonb column. A JSON null decodes to nil.
func decodeJSON(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode json value: %w", err)
	}
	return v, nil
}
