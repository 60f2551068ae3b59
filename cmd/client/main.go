package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	battlemapclient "github.com/openvtt/battlemap/pkg/client"
	"github.com/openvtt/battlemap/pkg/log"
	"github.com/openvtt/battlemap/pkg/queue"
	"github.com/openvtt/battlemap/pkg/types"
)

const eventQueueSize = 1024

// Headless battlemap client: joins the current battlefield, folds room
// events into a local scene, and optionally performs a one-shot move.
func main() {
	apiAddr := flag.String("api-addr", "http://localhost:9090", "API server address")
	wsAddr := flag.String("ws-addr", "ws://localhost:9091/ws", "WebSocket server address")
	token := flag.String("token", "", "Session token")
	role := flag.String("role", "player", "Actor role (dm, player)")
	moveToken := flag.String("move-token", "", "Token ID to move before watching")
	moveX := flag.Float64("move-x", 0, "Raw x coordinate for the move")
	moveY := flag.Float64("move-y", 0, "Raw y coordinate for the move")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}
	log.SetDefaultLogger(log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel))

	if *token == "" {
		panic("token is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := queue.NewInMemoryQueue(eventQueueSize)
	wsClient := battlemapclient.NewWSClient(*wsAddr, *token, events)
	if err := wsClient.Connect(); err != nil {
		panic(fmt.Sprintf("Failed to connect: %v", err))
	}
	defer wsClient.Close()
	go func() {
		if err := wsClient.HandleMessages(ctx); err != nil {
			log.Error("WebSocket closed: %v", err)
			stop()
		}
	}()

	reconciler := battlemapclient.NewReconciler(battlemapclient.NewReconcilerOptions{
		Actor:    types.Actor{UserID: *token, Role: types.Role(*role)},
		API:      battlemapclient.NewAPIClient(*apiAddr, *token),
		Realtime: wsClient,
		Scene:    battlemapclient.NewInMemorySceneManager(),
		Events:   events,
	})

	scene, err := reconciler.Load(ctx)
	if err != nil {
		panic(fmt.Sprintf("Failed to load battlefield: %v", err))
	}
	log.Info("Joined battlefield %s (%s) with %d tokens", scene.Name, scene.ID, len(scene.Tokens))

	if *moveToken != "" {
		if err := reconciler.MoveToken(ctx, *moveToken, *moveX, *moveY); err != nil {
			log.Error("Failed to move token: %v", err)
		}
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := reconciler.ProcessEvents(); err != nil {
				log.Error("Failed to process events: %v", err)
			}
		}
	}
}
