package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// EnsureUserBySubject returns the user whose external_subject matches,
// creating one on first sight. The unique index on external_subject makes the
// check-then-insert safe: a concurrent first-sight loser gets a duplicate-key
// error and re-reads the winner's row.
func (s *PostgresStore) EnsureUserBySubject(ctx context.Context, subject string) (User, error) {
	user, err := s.findUserBySubject(ctx, subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (external_subject, placeholder_secret)
		VALUES ($1, 'external')
		RETURNING id, external_subject, placeholder_secret, created_at
	`, subject).Scan(&user.ID, &user.ExternalSubject, &user.PlaceholderSecret, &user.CreatedAt)
	if isUniqueViolation(err) {
		user, err = s.findUserBySubject(ctx, subject)
		if err != nil {
			return User{}, fmt.Errorf("re-read user after conflict: %w", err)
		}
		return user, nil
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) findUserBySubject(ctx context.Context, subject string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_subject, placeholder_secret, created_at
		FROM users
		WHERE external_subject = $1
	`, subject).Scan(&user.ID, &user.ExternalSubject, &user.PlaceholderSecret, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) ListMindmapsByUser(ctx context.Context, userID int64) ([]Mindmap, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, root_node_id, created_at, updated_at
		FROM mindmaps
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list mindmaps: %w", err)
	}
	defer rows.Close()

	items := make([]Mindmap, 0)
	for rows.Next() {
		var item Mindmap
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.RootNodeID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan mindmap: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mindmaps: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMindmap(ctx context.Context, mindmapID int64) (Mindmap, error) {
	var item Mindmap
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, root_node_id, created_at, updated_at
		FROM mindmaps
		WHERE id = $1
	`, mindmapID).Scan(&item.ID, &item.UserID, &item.Name, &item.RootNodeID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Mindmap{}, err
	}
	return item, nil
}

// CreateMindmapWithRoot inserts the mindmap, its root node, and the root
// back-reference as one transaction. A reader never observes the mindmap
// without its root. Transient failures retry the whole transaction.
func (s *PostgresStore) CreateMindmapWithRoot(ctx context.Context, userID int64, name string) (Mindmap, Node, error) {
	var mindmap Mindmap
	var root Node
	err := s.withTxRetry(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO mindmaps (user_id, name)
			VALUES ($1, $2)
			RETURNING id, user_id, name, root_node_id, created_at, updated_at
		`, userID, name).Scan(&mindmap.ID, &mindmap.UserID, &mindmap.Name, &mindmap.RootNodeID, &mindmap.CreatedAt, &mindmap.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert mindmap: %w", err)
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO nodes (mindmap_id, parent_id, content, position_x, position_y, radius)
			VALUES ($1, NULL, 'Root', 0, 0, 50)
			RETURNING id, mindmap_id, parent_id, content, position_x, position_y, radius, created_at
		`, mindmap.ID).Scan(&root.ID, &root.MindmapID, &root.ParentID, &root.Content, &root.PositionX, &root.PositionY, &root.Radius, &root.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert root node: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE mindmaps SET root_node_id = $2 WHERE id = $1
		`, mindmap.ID, root.ID); err != nil {
			return fmt.Errorf("set root node: %w", err)
		}
		mindmap.RootNodeID = &root.ID
		return nil
	})
	if err != nil {
		return Mindmap{}, Node{}, err
	}
	return mindmap, root, nil
}

func (s *PostgresStore) ListNodesByMindmap(ctx context.Context, mindmapID int64) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mindmap_id, parent_id, content, position_x, position_y, radius, created_at
		FROM nodes
		WHERE mindmap_id = $1
		ORDER BY id ASC
	`, mindmapID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	items := make([]Node, 0)
	for rows.Next() {
		var item Node
		if err := rows.Scan(&item.ID, &item.MindmapID, &item.ParentID, &item.Content, &item.PositionX, &item.PositionY, &item.Radius, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return items, nil
}

// RenameMindmap replaces the name and refreshes updated_at in one statement.
// clock_timestamp() instead of NOW() so updated_at strictly increases even
// for updates inside the same transaction second.
func (s *PostgresStore) RenameMindmap(ctx context.Context, mindmapID int64, name string) (Mindmap, error) {
	var item Mindmap
	err := s.db.QueryRowContext(ctx, `
		UPDATE mindmaps
		SET name = $2, updated_at = clock_timestamp()
		WHERE id = $1
		RETURNING id, user_id, name, root_node_id, created_at, updated_at
	`, mindmapID, name).Scan(&item.ID, &item.UserID, &item.Name, &item.RootNodeID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Mindmap{}, err
	}
	return item, nil
}

// DeleteMindmapCascade removes all nodes of the mindmap and then the mindmap
// row as one transaction. Returns sql.ErrNoRows if the mindmap was already
// gone, so a Delete losing a race surfaces as NotFound.
func (s *PostgresStore) DeleteMindmapCascade(ctx context.Context, mindmapID int64) error {
	return s.withTxRetry(ctx, func(tx *sql.Tx) error {
		// root_node_id references nodes; clear it before deleting them
		if _, err := tx.ExecContext(ctx, `
			UPDATE mindmaps SET root_node_id = NULL WHERE id = $1
		`, mindmapID); err != nil {
			return fmt.Errorf("clear root node: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM nodes WHERE mindmap_id = $1
		`, mindmapID); err != nil {
			return fmt.Errorf("delete nodes: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM mindmaps WHERE id = $1`, mindmapID)
		if err != nil {
			return fmt.Errorf("delete mindmap: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete mindmap rows: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti = $1 AND expires_at > NOW())
	`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
