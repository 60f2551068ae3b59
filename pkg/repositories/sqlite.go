package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/openvtt/battlemap/pkg/types"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(ctx context.Context, path string, migrations string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	dir, err := os.ReadDir(migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}

	for _, entry := range dir {
		if entry.IsDir() {
			continue
		}

		migrationPath := filepath.Join(migrations, entry.Name())
		migration, err := os.ReadFile(migrationPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %v", migrationPath, err)
		}

		if _, err := db.ExecContext(ctx, string(migration)); err != nil {
			return nil, fmt.Errorf("failed to execute migration %s: %v", migrationPath, err)
		}
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) GetOrCreateUser(ctx context.Context, id string) (*types.User, error) {
	q := `
	INSERT INTO users (id, role) VALUES (?, ?)
	ON CONFLICT (id) DO NOTHING;
	`
	if _, err := r.db.ExecContext(ctx, q, id, types.RolePlayer); err != nil {
		return nil, fmt.Errorf("failed to insert user: %v", err)
	}
	return r.GetUser(ctx, id)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (*types.User, error) {
	q := `
	SELECT id, role FROM users WHERE id = ?;
	`
	user := &types.User{}
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&user.ID, &user.Role); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan user: %v", err)
	}
	return user, nil
}

func (r *SQLiteRepository) UpsertUser(ctx context.Context, user *types.User) error {
	q := `
	INSERT INTO users (id, role) VALUES (?, ?)
	ON CONFLICT (id) DO UPDATE SET role = excluded.role;
	`
	if _, err := r.db.ExecContext(ctx, q, user.ID, user.Role); err != nil {
		return fmt.Errorf("failed to upsert user: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateCharacter(ctx context.Context, character *types.Character) error {
	q := `
	INSERT INTO characters (id, user_id, name) VALUES (?, ?, ?);
	`
	if _, err := r.db.ExecContext(ctx, q, character.ID, character.UserID, character.Name); err != nil {
		return fmt.Errorf("failed to insert character: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) ListCharacters(ctx context.Context, userID string) ([]types.Character, error) {
	q := `
	SELECT id, user_id, name FROM characters ORDER BY name;
	`
	args := []interface{}{}
	if userID != "" {
		q = `
		SELECT id, user_id, name FROM characters WHERE user_id = ? ORDER BY name;
		`
		args = append(args, userID)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query characters: %v", err)
	}
	defer rows.Close()

	var characters []types.Character
	for rows.Next() {
		var c types.Character
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan character: %v", err)
		}
		characters = append(characters, c)
	}
	return characters, rows.Err()
}

func (r *SQLiteRepository) CharacterOwner(ctx context.Context, characterID string) (string, error) {
	q := `
	SELECT user_id FROM characters WHERE id = ?;
	`
	var userID string
	if err := r.db.QueryRowContext(ctx, q, characterID).Scan(&userID); err != nil {
		if err == sql.ErrNoRows {
			return "", &ErrNotFound{}
		}
		return "", fmt.Errorf("failed to scan character owner: %v", err)
	}
	return userID, nil
}

func (r *SQLiteRepository) GetBattlefield(ctx context.Context, id string) (*types.Battlefield, error) {
	q := battlefieldSelect + ` WHERE id = ?;`
	return scanSQLiteBattlefield(r.db.QueryRowContext(ctx, q, id))
}

func (r *SQLiteRepository) GetActiveBattlefield(ctx context.Context) (*types.Battlefield, error) {
	q := battlefieldSelect + ` WHERE is_active = 1 LIMIT 1;`
	return scanSQLiteBattlefield(r.db.QueryRowContext(ctx, q))
}

func (r *SQLiteRepository) GetLatestBattlefield(ctx context.Context) (*types.Battlefield, error) {
	q := battlefieldSelect + ` ORDER BY updated_at DESC LIMIT 1;`
	return scanSQLiteBattlefield(r.db.QueryRowContext(ctx, q))
}

func (r *SQLiteRepository) CreateBattlefield(ctx context.Context, battlefield *types.Battlefield) error {
	tokens, err := json.Marshal(battlefield.Tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %v", err)
	}

	q := `
	INSERT INTO battlefields (id, name, map_image_url, grid_size, grid_width, grid_height, is_active, tokens, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`
	_, err = r.db.ExecContext(ctx, q,
		battlefield.ID,
		battlefield.Name,
		nullableString(battlefield.MapImageURL),
		battlefield.GridSize,
		battlefield.GridWidth,
		battlefield.GridHeight,
		battlefield.IsActive,
		string(tokens),
		battlefield.CreatedAt.UnixMilli(),
		battlefield.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert battlefield: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) DeactivateBattlefields(ctx context.Context) error {
	q := `
	UPDATE battlefields SET is_active = 0 WHERE is_active = 1;
	`
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("failed to deactivate battlefields: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateBattlefield(ctx context.Context, id string, patch types.Patch) (*types.Battlefield, error) {
	set := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UnixMilli()}

	if patch.Tokens != nil {
		tokens, err := json.Marshal(*patch.Tokens)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tokens: %v", err)
		}
		set = append(set, "tokens = ?")
		args = append(args, string(tokens))
	}
	if patch.MapImageURL != nil {
		set = append(set, "map_image_url = ?")
		args = append(args, nullableString(*patch.MapImageURL))
	}
	if patch.GridSize != nil {
		set = append(set, "grid_size = ?")
		args = append(args, *patch.GridSize)
	}
	if patch.GridWidth != nil {
		set = append(set, "grid_width = ?")
		args = append(args, *patch.GridWidth)
	}
	if patch.GridHeight != nil {
		set = append(set, "grid_height = ?")
		args = append(args, *patch.GridHeight)
	}
	if patch.Name != nil {
		set = append(set, "name = ?")
		args = append(args, *patch.Name)
	}

	q := `UPDATE battlefields SET ` + strings.Join(set, ", ") + ` WHERE id = ?;`
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update battlefield: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %v", err)
	}
	if affected == 0 {
		return nil, &ErrNotFound{}
	}

	return r.GetBattlefield(ctx, id)
}

const battlefieldSelect = `
SELECT id, name, map_image_url, grid_size, grid_width, grid_height, is_active, tokens, created_at, updated_at
FROM battlefields`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteBattlefield(row rowScanner) (*types.Battlefield, error) {
	b := &types.Battlefield{}
	var mapImageURL sql.NullString
	var tokens string
	var createdAt, updatedAt int64
	err := row.Scan(&b.ID, &b.Name, &mapImageURL, &b.GridSize, &b.GridWidth, &b.GridHeight, &b.IsActive, &tokens, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan battlefield: %v", err)
	}
	b.MapImageURL = mapImageURL.String
	if err := json.Unmarshal([]byte(tokens), &b.Tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tokens: %v", err)
	}
	b.CreatedAt = time.UnixMilli(createdAt)
	b.UpdatedAt = time.UnixMilli(updatedAt)
	return b, nil
}

// nullableString maps the empty string to NULL so a cleared map image is
// stored the same way as a never-set one.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
