package store

import (
	"context"

	"github.com/siteprobe/siteprobe/internal/probe"
)

const listDomains = `
SELECT id, domain_id, hostname, name, scheme, weight, is_default, path
FROM domain
ORDER BY weight, domain_id
`

// Domains lists the records of the multi-domain subsystem
func (q *Queries) Domains(ctx context.Context) ([]probe.Domain, error) {
	rows, err := q.db.Query(ctx, listDomains)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []probe.Domain
	for rows.Next() {
		var i probe.Domain
		if err := rows.Scan(
			&i.ID,
			&i.DomainID,
			&i.Hostname,
			&i.Label,
			&i.Scheme,
			&i.Weight,
			&i.IsDefault,
			&i.Path,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listDomainAliases = `
SELECT id, domain_id, pattern, redirect
FROM domain_alias
ORDER BY domain_id, id
`

func (q *Queries) DomainAliases(ctx context.Context) ([]probe.Alias, error) {
	rows, err := q.db.Query(ctx, listDomainAliases)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []probe.Alias
	for rows.Next() {
		var i probe.Alias
		if err := rows.Scan(&i.ID, &i.DomainID, &i.Pattern, &i.Redirect); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
