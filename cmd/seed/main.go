package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openvtt/battlemap/pkg/log"
	"github.com/openvtt/battlemap/pkg/repositories"
	"github.com/openvtt/battlemap/pkg/types"
)

// Seeds a local sqlite database with a DM, four players with one
// character each, and an initial active battlefield.
func main() {
	sqlitePath := flag.String("sqlite-path", "battlemap.db", "Path to the sqlite database")
	migrations := flag.String("migrations", "migrations/sqlite", "Path to the sqlite migrations directory")
	flag.Parse()

	ctx := context.Background()

	repository, err := repositories.NewSQLiteRepository(ctx, *sqlitePath, *migrations)
	if err != nil {
		panic(fmt.Sprintf("Failed to open sqlite repository: %v", err))
	}
	defer repository.Close(ctx)

	if err := repository.UpsertUser(ctx, &types.User{ID: "dm", Role: types.RoleDM}); err != nil {
		panic(fmt.Sprintf("Failed to create dm user: %v", err))
	}
	log.Info("Created user dm")

	players := []struct {
		id        string
		character string
	}{
		{"player1", "Thorin"},
		{"player2", "Elaria"},
		{"player3", "Grimm"},
		{"player4", "Seraphine"},
	}
	for _, p := range players {
		if err := repository.UpsertUser(ctx, &types.User{ID: p.id, Role: types.RolePlayer}); err != nil {
			panic(fmt.Sprintf("Failed to create user %s: %v", p.id, err))
		}
		if err := repository.CreateCharacter(ctx, &types.Character{
			ID:     uuid.NewString(),
			UserID: p.id,
			Name:   p.character,
		}); err != nil {
			panic(fmt.Sprintf("Failed to create character for %s: %v", p.id, err))
		}
		log.Info("Created user %s with character %s", p.id, p.character)
	}

	if _, err := repository.GetActiveBattlefield(ctx); err == nil {
		log.Info("Active battlefield already exists, skipping")
		return
	} else if !repositories.IsNotFound(err) {
		panic(fmt.Sprintf("Failed to check for active battlefield: %v", err))
	}

	now := time.Now()
	battlefield := &types.Battlefield{
		ID:         uuid.NewString(),
		Name:       "Cragmaw Hideout",
		GridSize:   types.DefaultGridSize,
		GridWidth:  types.DefaultGridWidth,
		GridHeight: types.DefaultGridHeight,
		Tokens:     []types.Token{},
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repository.CreateBattlefield(ctx, battlefield); err != nil {
		panic(fmt.Sprintf("Failed to create battlefield: %v", err))
	}
	log.Info("Created battlefield %s", battlefield.Name)
}
