package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/openvtt/battlemap/pkg/types"
)

type PostgresRepository struct {
	conn *pgx.Conn
}

// NewPostgresRepository creates a new PostgresRepository.
// It panics if it is unable to connect to the database.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string) Repository {
	return &PostgresRepository{
		conn: connectDb(ctx, connStr),
	}
}

func connectDb(ctx context.Context, connStr string) *pgx.Conn {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		panic(fmt.Sprintf("Unable to connect to database: %v\n", err))
	}

	var username string
	var database string
	err = conn.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database)
	if err != nil {
		panic(fmt.Sprintf("Unable to query database: %v\n", err))
	}

	return conn
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) GetOrCreateUser(ctx context.Context, id string) (*types.User, error) {
	q := `
	INSERT INTO users (id, role) VALUES ($1, $2)
	ON CONFLICT (id) DO NOTHING;
	`
	if _, err := r.conn.Exec(ctx, q, id, types.RolePlayer); err != nil {
		return nil, fmt.Errorf("failed to insert user: %v", err)
	}
	return r.GetUser(ctx, id)
}

func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*types.User, error) {
	q := `
	SELECT id, role FROM users WHERE id = $1;
	`
	user := &types.User{}
	if err := r.conn.QueryRow(ctx, q, id).Scan(&user.ID, &user.Role); err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan user: %v", err)
	}
	return user, nil
}

func (r *PostgresRepository) UpsertUser(ctx context.Context, user *types.User) error {
	q := `
	INSERT INTO users (id, role) VALUES ($1, $2)
	ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role;
	`
	if _, err := r.conn.Exec(ctx, q, user.ID, user.Role); err != nil {
		return fmt.Errorf("failed to upsert user: %v", err)
	}
	return nil
}

func (r *PostgresRepository) CreateCharacter(ctx context.Context, character *types.Character) error {
	q := `
	INSERT INTO characters (id, user_id, name) VALUES ($1, $2, $3);
	`
	if _, err := r.conn.Exec(ctx, q, character.ID, character.UserID, character.Name); err != nil {
		return fmt.Errorf("failed to insert character: %v", err)
	}
	return nil
}

func (r *PostgresRepository) ListCharacters(ctx context.Context, userID string) ([]types.Character, error) {
	q := `
	SELECT id, user_id, name FROM characters ORDER BY name;
	`
	args := []interface{}{}
	if userID != "" {
		q = `
		SELECT id, user_id, name FROM characters WHERE user_id = $1 ORDER BY name;
		`
		args = append(args, userID)
	}

	rows, err := r.conn.Query(ctx, q, args...)
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

func (r *PostgresRepository) CharacterOwner(ctx context.Context, characterID string) (string, error) {
	q := `
	SELECT user_id FROM characters WHERE id = $1;
	`
	var userID string
	if err := r.conn.QueryRow(ctx, q, characterID).Scan(&userID); err != nil {
		if err == pgx.ErrNoRows {
			return "", &ErrNotFound{}
		}
		return "", fmt.Errorf("failed to scan character owner: %v", err)
	}
	return userID, nil
}

func (r *PostgresRepository) GetBattlefield(ctx context.Context, id string) (*types.Battlefield, error) {
	q := battlefieldSelect + ` WHERE id = $1;`
	return scanPostgresBattlefield(r.conn.QueryRow(ctx, q, id))
}

func (r *PostgresRepository) GetActiveBattlefield(ctx context.Context) (*types.Battlefield, error) {
	q := battlefieldSelect + ` WHERE is_active LIMIT 1;`
	return scanPostgresBattlefield(r.conn.QueryRow(ctx, q))
}

func (r *PostgresRepository) GetLatestBattlefield(ctx context.Context) (*types.Battlefield, error) {
	q := battlefieldSelect + ` ORDER BY updated_at DESC LIMIT 1;`
	return scanPostgresBattlefield(r.conn.QueryRow(ctx, q))
}

func (r *PostgresRepository) CreateBattlefield(ctx context.Context, battlefield *types.Battlefield) error {
	tokens, err := json.Marshal(battlefield.Tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %v", err)
	}

	q := `
	INSERT INTO battlefields (id, name, map_image_url, grid_size, grid_width, grid_height, is_active, tokens, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	_, err = r.conn.Exec(ctx, q,
		battlefield.ID,
		battlefield.Name,
		nullableString(battlefield.MapImageURL),
		battlefield.GridSize,
		battlefield.GridWidth,
		battlefield.GridHeight,
		battlefield.IsActive,
		string(tokens),
		battlefield.CreatedAt,
		battlefield.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert battlefield: %v", err)
	}
	return nil
}

func (r *PostgresRepository) DeactivateBattlefields(ctx context.Context) error {
	q := `
	UPDATE battlefields SET is_active = FALSE WHERE is_active;
	`
	if _, err := r.conn.Exec(ctx, q); err != nil {
		return fmt.Errorf("failed to deactivate battlefields: %v", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateBattlefield(ctx context.Context, id string, patch types.Patch) (*types.Battlefield, error) {
	set := []string{"updated_at = $1"}
	args := []interface{}{time.Now()}

	if patch.Tokens != nil {
		tokens, err := json.Marshal(*patch.Tokens)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tokens: %v", err)
		}
		set = append(set, fmt.Sprintf("tokens = $%d", len(args)+1))
		args = append(args, string(tokens))
	}
	if patch.MapImageURL != nil {
		set = append(set, fmt.Sprintf("map_image_url = $%d", len(args)+1))
		args = append(args, nullableString(*patch.MapImageURL))
	}
	if patch.GridSize != nil {
		set = append(set, fmt.Sprintf("grid_size = $%d", len(args)+1))
		args = append(args, *patch.GridSize)
	}
	if patch.GridWidth != nil {
		set = append(set, fmt.Sprintf("grid_width = $%d", len(args)+1))
		args = append(args, *patch.GridWidth)
	}
	if patch.GridHeight != nil {
		set = append(set, fmt.Sprintf("grid_height = $%d", len(args)+1))
		args = append(args, *patch.GridHeight)
	}
	if patch.Name != nil {
		set = append(set, fmt.Sprintf("name = $%d", len(args)+1))
		args = append(args, *patch.Name)
	}

	q := `UPDATE battlefields SET ` + strings.Join(set, ", ") + fmt.Sprintf(` WHERE id = $%d;`, len(args)+1)
	args = append(args, id)

	tag, err := r.conn.Exec(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update battlefield: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, &ErrNotFound{}
	}

	return r.GetBattlefield(ctx, id)
}

func scanPostgresBattlefield(row pgx.Row) (*types.Battlefield, error) {
	b := &types.Battlefield{}
	var mapImageURL *string
	var tokens string
	err := row.Scan(&b.ID, &b.Name, &mapImageURL, &b.GridSize, &b.GridWidth, &b.GridHeight, &b.IsActive, &tokens, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan battlefield: %v", err)
	}
	if mapImageURL != nil {
		b.MapImageURL = *mapImageURL
	}
	if err := json.Unmarshal([]byte(tokens), &b.Tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tokens: %v", err)
	}
	return b, nil
}
