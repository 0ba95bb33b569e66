package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LuckPerms/rest-api/internal/infrastructure/database"
	"github.com/LuckPerms/rest-api/internal/perms"
)

// Repository persists holders, tracks and actions.
// SQLiteRepository is the only production implementation.
type Repository interface {
	// LoadPlayer returns found=false when the player has never been saved.
	LoadPlayer(ctx context.Context, id uuid.UUID) (p PlayerRecord, found bool, err error)
	SavePlayer(ctx context.Context, p PlayerRecord) error
	SavePlayerData(ctx context.Context, id uuid.UUID, username string) (perms.PlayerSaveResult, error)
	DeletePlayer(ctx context.Context, id uuid.UUID) (bool, error)
	UniqueUsers(ctx context.Context) ([]uuid.UUID, error)
	LookupUniqueID(ctx context.Context, username string) (uuid.UUID, error)
	LookupUsername(ctx context.Context, id uuid.UUID) (string, error)

	CreateGroup(ctx context.Context, name string) error
	// LoadGroup returns found=false when the group does not exist.
	LoadGroup(ctx context.Context, name string) (nodes []perms.Node, found bool, err error)
	GroupNames(ctx context.Context) ([]string, error)
	SaveGroup(ctx context.Context, name string, nodes []perms.Node) error
	DeleteGroup(ctx context.Context, name string) error

	CreateTrack(ctx context.Context, name string) error
	// LoadTrack returns found=false when the track does not exist.
	LoadTrack(ctx context.Context, name string) (groups []string, found bool, err error)
	TrackNames(ctx context.Context) ([]string, error)
	SaveTrack(ctx context.Context, name string, groups []string) error
	DeleteTrack(ctx context.Context, name string) error

	// HolderNodes returns every stored node of a holder type keyed by holder id.
	HolderNodes(ctx context.Context, holderType perms.HolderType) (map[string][]perms.Node, error)

	InsertAction(ctx context.Context, a perms.Action) error
	// Actions returns every action, oldest first.
	Actions(ctx context.Context) ([]perms.Action, error)
}

// PlayerRecord is a stored user.
type PlayerRecord struct {
	UniqueID     uuid.UUID
	Username     string
	PrimaryGroup string
	Nodes        []perms.Node
}

// SQLiteRepository implements Repository on the migrated schema.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ─── Players ──────────────────────────────────────────────────────────

func (r *SQLiteRepository) LoadPlayer(ctx context.Context, id uuid.UUID) (PlayerRecord, bool, error) {
	p := PlayerRecord{UniqueID: id}
	err := r.db.QueryRowContext(ctx,
		"SELECT username, primary_group FROM players WHERE unique_id = ?", id.String(),
	).Scan(&p.Username, &p.PrimaryGroup)
	if errors.Is(err, sql.ErrNoRows) {
		return PlayerRecord{}, false, nil
	}
	if err != nil {
		return PlayerRecord{}, false, fmt.Errorf("querying player: %w", err)
	}

	p.Nodes, err = r.loadNodes(ctx, perms.HolderUser, id.String())
	if err != nil {
		return PlayerRecord{}, false, err
	}
	return p, true, nil
}

func (r *SQLiteRepository) SavePlayer(ctx context.Context, p PlayerRecord) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO players (unique_id, username, primary_group) VALUES (?, ?, ?)
			ON CONFLICT (unique_id) DO UPDATE SET
				username = CASE WHEN excluded.username = '' THEN players.username ELSE excluded.username END,
				primary_group = excluded.primary_group`,
			p.UniqueID.String(), p.Username, p.PrimaryGroup,
		); err != nil {
			return fmt.Errorf("upserting player: %w", err)
		}
		return replaceNodes(ctx, tx, perms.HolderUser, p.UniqueID.String(), p.Nodes)
	})
}

func (r *SQLiteRepository) SavePlayerData(ctx context.Context, id uuid.UUID, username string) (perms.PlayerSaveResult, error) {
	var result perms.PlayerSaveResult
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var stored string
		err := tx.QueryRowContext(ctx,
			"SELECT username FROM players WHERE unique_id = ?", id.String(),
		).Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			result.CleanInsert = true
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO players (unique_id, username, primary_group) VALUES (?, ?, ?)",
				id.String(), username, perms.DefaultGroup,
			); err != nil {
				return fmt.Errorf("inserting player: %w", err)
			}
			if err := insertNodes(ctx, tx, perms.HolderUser, id.String(),
				[]perms.Node{perms.InheritanceNode(perms.DefaultGroup)}); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("querying player: %w", err)
		case stored != username:
			result.UsernameUpdated = true
			if _, err := tx.ExecContext(ctx,
				"UPDATE players SET username = ? WHERE unique_id = ?", username, id.String(),
			); err != nil {
				return fmt.Errorf("updating username: %w", err)
			}
		}

		rows, err := tx.QueryContext(ctx,
			"SELECT unique_id FROM players WHERE lower(username) = lower(?) AND unique_id != ?",
			username, id.String(),
		)
		if err != nil {
			return fmt.Errorf("querying username owners: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var s string
			if err := rows.Scan(&s); err != nil {
				return fmt.Errorf("scanning player id: %w", err)
			}
			if other, err := uuid.Parse(s); err == nil {
				result.OtherUniqueIDs = append(result.OtherUniqueIDs, other)
			}
		}
		return rows.Err()
	})
	return result, err
}

func (r *SQLiteRepository) DeletePlayer(ctx context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM players WHERE unique_id = ?", id.String())
		if err != nil {
			return fmt.Errorf("deleting player: %w", err)
		}
		n, _ := res.RowsAffected() //nolint:errcheck // sqlite3 always reports it
		deleted = n > 0
		return replaceNodes(ctx, tx, perms.HolderUser, id.String(), nil)
	})
	return deleted, err
}

func (r *SQLiteRepository) UniqueUsers(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := r.queryStrings(ctx, "SELECT unique_id FROM players ORDER BY unique_id")
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(ids))
	for _, s := range ids {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *SQLiteRepository) LookupUniqueID(ctx context.Context, username string) (uuid.UUID, error) {
	var s string
	err := r.db.QueryRowContext(ctx,
		"SELECT unique_id FROM players WHERE lower(username) = lower(?) ORDER BY rowid DESC LIMIT 1",
		username,
	).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("looking up username: %w", err)
	}
	return uuid.Parse(s)
}

func (r *SQLiteRepository) LookupUsername(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := r.db.QueryRowContext(ctx,
		"SELECT username FROM players WHERE unique_id = ?", id.String(),
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up unique id: %w", err)
	}
	return name, nil
}

// ─── Groups ───────────────────────────────────────────────────────────

func (r *SQLiteRepository) CreateGroup(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO permission_groups (name) VALUES (?) ON CONFLICT (name) DO NOTHING", name,
	); err != nil {
		return fmt.Errorf("creating group: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) LoadGroup(ctx context.Context, name string) ([]perms.Node, bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM permission_groups WHERE name = ?", name,
	).Scan(&n); err != nil {
		return nil, false, fmt.Errorf("querying group: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}
	nodes, err := r.loadNodes(ctx, perms.HolderGroup, name)
	if err != nil {
		return nil, false, err
	}
	return nodes, true, nil
}

func (r *SQLiteRepository) GroupNames(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx, "SELECT name FROM permission_groups ORDER BY name")
}

func (r *SQLiteRepository) SaveGroup(ctx context.Context, name string, nodes []perms.Node) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO permission_groups (name) VALUES (?) ON CONFLICT (name) DO NOTHING", name,
		); err != nil {
			return fmt.Errorf("upserting group: %w", err)
		}
		return replaceNodes(ctx, tx, perms.HolderGroup, name, nodes)
	})
}

func (r *SQLiteRepository) DeleteGroup(ctx context.Context, name string) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM permission_groups WHERE name = ?", name); err != nil {
			return fmt.Errorf("deleting group: %w", err)
		}
		return replaceNodes(ctx, tx, perms.HolderGroup, name, nil)
	})
}

// ─── Tracks ───────────────────────────────────────────────────────────

func (r *SQLiteRepository) CreateTrack(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO tracks (name) VALUES (?) ON CONFLICT (name) DO NOTHING", name,
	); err != nil {
		return fmt.Errorf("creating track: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) LoadTrack(ctx context.Context, name string) ([]string, bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM tracks WHERE name = ?", name,
	).Scan(&n); err != nil {
		return nil, false, fmt.Errorf("querying track: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}
	groups, err := r.queryStrings(ctx,
		"SELECT group_name FROM track_groups WHERE track = ? ORDER BY position", name)
	if err != nil {
		return nil, false, err
	}
	return groups, true, nil
}

func (r *SQLiteRepository) TrackNames(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx, "SELECT name FROM tracks ORDER BY name")
}

func (r *SQLiteRepository) SaveTrack(ctx context.Context, name string, groups []string) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tracks (name) VALUES (?) ON CONFLICT (name) DO NOTHING", name,
		); err != nil {
			return fmt.Errorf("upserting track: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM track_groups WHERE track = ?", name); err != nil {
			return fmt.Errorf("clearing track groups: %w", err)
		}
		for i, g := range groups {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO track_groups (track, position, group_name) VALUES (?, ?, ?)",
				name, i, g,
			); err != nil {
				return fmt.Errorf("inserting track group: %w", err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteTrack(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM tracks WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting track: %w", err)
	}
	return nil
}

// ─── Nodes ────────────────────────────────────────────────────────────

func (r *SQLiteRepository) HolderNodes(ctx context.Context, holderType perms.HolderType) (map[string][]perms.Node, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT holder_id, key, value, context, expiry FROM nodes WHERE holder_type = ? ORDER BY id",
		string(holderType),
	)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]perms.Node)
	for rows.Next() {
		var holderID string
		n, err := scanNode(rows, &holderID)
		if err != nil {
			return nil, err
		}
		out[holderID] = append(out[holderID], n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) loadNodes(ctx context.Context, holderType perms.HolderType, holderID string) ([]perms.Node, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT holder_id, key, value, context, expiry FROM nodes WHERE holder_type = ? AND holder_id = ? ORDER BY id",
		string(holderType), holderID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []perms.Node
	for rows.Next() {
		var ignored string
		n, err := scanNode(rows, &ignored)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}
	return nodes, nil
}

func scanNode(rows *sql.Rows, holderID *string) (perms.Node, error) {
	var (
		n       perms.Node
		value   int
		ctxJSON string
		expiry  sql.NullInt64
	)
	if err := rows.Scan(holderID, &n.Key, &value, &ctxJSON, &expiry); err != nil {
		return perms.Node{}, fmt.Errorf("scanning node: %w", err)
	}
	n.Value = value != 0

	ctxSet, err := decodeContext(ctxJSON)
	if err != nil {
		return perms.Node{}, fmt.Errorf("decoding context of %q: %w", n.Key, err)
	}
	n.Context = ctxSet
	if expiry.Valid {
		n = n.WithExpiry(time.Unix(expiry.Int64, 0))
	}
	return n, nil
}

func replaceNodes(ctx context.Context, tx *sql.Tx, holderType perms.HolderType, holderID string, nodes []perms.Node) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM nodes WHERE holder_type = ? AND holder_id = ?", string(holderType), holderID,
	); err != nil {
		return fmt.Errorf("clearing nodes: %w", err)
	}
	return insertNodes(ctx, tx, holderType, holderID, nodes)
}

func insertNodes(ctx context.Context, tx *sql.Tx, holderType perms.HolderType, holderID string, nodes []perms.Node) error {
	for _, n := range nodes {
		var expiry any
		if n.Expiry != nil {
			expiry = n.Expiry.Unix()
		}
		value := 0
		if n.Value {
			value = 1
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO nodes (holder_type, holder_id, key, value, context, expiry) VALUES (?, ?, ?, ?, ?, ?)",
			string(holderType), holderID, n.Key, value, encodeContext(n.Context), expiry,
		); err != nil {
			return fmt.Errorf("inserting node %q: %w", n.Key, err)
		}
	}
	return nil
}

func encodeContext(c perms.ContextSet) string {
	m := make(map[string][]string, len(c.Keys()))
	for _, k := range c.Keys() {
		m[k] = c.Values(k)
	}
	data, _ := json.Marshal(m) //nolint:errcheck // map of strings always marshals
	return string(data)
}

func decodeContext(s string) (perms.ContextSet, error) {
	if s == "" || s == "{}" {
		return perms.ContextSet{}, nil
	}
	var m map[string][]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return perms.ContextSet{}, err
	}
	b := perms.NewContextBuilder()
	for k, vs := range m {
		for _, v := range vs {
			b.Add(k, v)
		}
	}
	return b.Build()
}

// ─── Actions ──────────────────────────────────────────────────────────

func (r *SQLiteRepository) InsertAction(ctx context.Context, a perms.Action) error {
	var targetID any
	if a.Target.UniqueID != nil {
		targetID = a.Target.UniqueID.String()
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO actions (timestamp, source_uuid, source_name, target_uuid, target_name, target_type, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Timestamp.Unix(), a.Source.UniqueID.String(), a.Source.Name,
		targetID, a.Target.Name, string(a.Target.Type), a.Description,
	); err != nil {
		return fmt.Errorf("inserting action: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Actions(ctx context.Context) ([]perms.Action, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT timestamp, source_uuid, source_name, target_uuid, target_name, target_type, description
		FROM actions ORDER BY timestamp, id`)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	var out []perms.Action
	for rows.Next() {
		var (
			a                    perms.Action
			ts                   int64
			sourceID, targetType string
			targetID             sql.NullString
		)
		if err := rows.Scan(&ts, &sourceID, &a.Source.Name, &targetID, &a.Target.Name, &targetType, &a.Description); err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		a.Timestamp = time.Unix(ts, 0).UTC()
		a.Source.UniqueID, _ = uuid.Parse(sourceID) //nolint:errcheck // Stored by InsertAction
		a.Target.Type = perms.TargetType(strings.ToLower(targetType))
		if targetID.Valid {
			if id, err := uuid.Parse(targetID.String); err == nil {
				a.Target.UniqueID = &id
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating: %w", err)
	}
	return out, nil
}
