package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/siteprobe/siteprobe/internal/probe"
)

const usersPerStatus = `
SELECT status, COUNT(uid)
FROM users_field_data
WHERE uid <> 0
GROUP BY status
`

// UsersPerStatus counts accounts by status, leaving out the anonymous user
func (q *Queries) UsersPerStatus(ctx context.Context) (map[int]int64, error) {
	rows, err := q.db.Query(ctx, usersPerStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var status int
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

const usersPerRoleStatus = `
SELECT ur.roles_target_id, u.status, COUNT(u.uid)
FROM users_field_data u
JOIN user__roles ur ON ur.entity_id = u.uid
WHERE u.uid <> 0
GROUP BY ur.roles_target_id, u.status
ORDER BY ur.roles_target_id, u.status
`

func (q *Queries) UsersPerRoleStatus(ctx context.Context) ([]probe.RoleStatusCount, error) {
	rows, err := q.db.Query(ctx, usersPerRoleStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []probe.RoleStatusCount
	for rows.Next() {
		var i probe.RoleStatusCount
		if err := rows.Scan(&i.RoleID, &i.Status, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listRoles = `
SELECT id, label
FROM user_role
ORDER BY weight, id
`

func (q *Queries) Roles(ctx context.Context) ([]probe.Role, error) {
	rows, err := q.db.Query(ctx, listRoles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []probe.Role
	for rows.Next() {
		var i probe.Role
		if err := rows.Scan(&i.ID, &i.Label); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// Translations share a nid, so each content item is counted once
const nodesPerTypeStatus = `
SELECT type, status, COUNT(DISTINCT nid)
FROM node_field_data
GROUP BY type, status
ORDER BY type, status
`

func (q *Queries) NodesPerTypeStatus(ctx context.Context) ([]probe.TypeStatusCount, error) {
	rows, err := q.db.Query(ctx, nodesPerTypeStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []probe.TypeStatusCount
	for rows.Next() {
		var i probe.TypeStatusCount
		if err := rows.Scan(&i.Type, &i.Status, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const logStats = `
SELECT COUNT(wid), COALESCE(MIN(timestamp), 0), COALESCE(MAX(timestamp), 0)
FROM watchdog
`

func (q *Queries) LogStats(ctx context.Context) (probe.LogStats, error) {
	var s probe.LogStats
	err := q.db.QueryRow(ctx, logStats).Scan(&s.Rows, &s.MinTimestamp, &s.MaxTimestamp)
	return s, err
}

const getAccount = `
SELECT name, COALESCE(mail, '')
FROM users_field_data
WHERE uid = $1
`

// Account returns the name and mail of uid. A missing account yields an
// empty Account.
func (q *Queries) Account(ctx context.Context, uid int64) (probe.Account, error) {
	var a probe.Account
	err := q.db.QueryRow(ctx, getAccount, uid).Scan(&a.Name, &a.Mail)
	if errors.Is(err, pgx.ErrNoRows) {
		return probe.Account{}, nil
	}
	if err != nil {
		return probe.Account{}, fmt.Errorf("load account %d: %w", uid, err)
	}
	return a, nil
}
