package types

import "time"

// Role represents a user's role at the table.
type Role string

const (
	RoleDM     Role = "dm"
	RolePlayer Role = "player"
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// IsDM reports whether the actor holds the DM role.
func (a Actor) IsDM() bool {
	return a.Role == RoleDM
}

// Token is a movable marker on the battlefield grid.
// Positions are in pixel space and are grid-aligned at rest;
// alignment is the mover's responsibility, not the store's.
type Token struct {
	ID          string  `json:"id"`
	CharacterID string  `json:"characterId,omitempty"`
	Name        string  `json:"name"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Size        float64 `json:"size"`
	Color       string  `json:"color"`
	IsNPC       bool    `json:"isNPC"`
}

// Battlefield is the shared scene: map image, grid geometry and tokens.
// At most one battlefield is active at a time.
type Battlefield struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MapImageURL string    `json:"mapImageUrl,omitempty"`
	GridSize    int       `json:"gridSize"`
	GridWidth   int       `json:"gridWidth"`
	GridHeight  int       `json:"gridHeight"`
	Tokens      []Token   `json:"tokens"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Default battlefield geometry.
const (
	DefaultGridSize   = 40
	DefaultGridWidth  = 20
	DefaultGridHeight = 15
)

// Patch is a partial battlefield update. Nil fields are left untouched.
// Tokens, when present, replace the stored token list as a whole.
type Patch struct {
	Tokens      *[]Token `json:"tokens,omitempty"`
	MapImageURL *string  `json:"mapImageUrl,omitempty"`
	GridSize    *int     `json:"gridSize,omitempty"`
	GridWidth   *int     `json:"gridWidth,omitempty"`
	GridHeight  *int     `json:"gridHeight,omitempty"`
	Name        *string  `json:"name,omitempty"`
}

// TouchesMapSettings reports whether the patch changes any DM-only field.
func (p Patch) TouchesMapSettings() bool {
	return p.MapImageURL != nil || p.GridSize != nil || p.GridWidth != nil ||
		p.GridHeight != nil || p.Name != nil
}

// Character belongs to exactly one player. Tokens reference characters by
// ID; token ownership is derived through this link.
type Character struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// User is an authenticated account as known to the repository.
type User struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}
