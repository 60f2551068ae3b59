package client

import (
	"fmt"
	"sync"

	"github.com/openvtt/battlemap/pkg/types"
)

// SceneManager provides shared access to the locally rendered scene.
// Implementations must be thread-safe.
type SceneManager interface {
	// Get returns a copy of the current scene, or nil before the first Set.
	Get() (*types.Battlefield, error)
	// Set replaces the current scene.
	Set(scene *types.Battlefield) error
}

type InMemorySceneManager struct {
	lock  sync.RWMutex
	scene *types.Battlefield
}

func NewInMemorySceneManager() *InMemorySceneManager {
	return &InMemorySceneManager{}
}

func (m *InMemorySceneManager) Get() (*types.Battlefield, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.scene == nil {
		return nil, nil
	}
	scene := *m.scene
	scene.Tokens = make([]types.Token, len(m.scene.Tokens))
	copy(scene.Tokens, m.scene.Tokens)
	return &scene, nil
}

func (m *InMemorySceneManager) Set(scene *types.Battlefield) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if scene == nil {
		return fmt.Errorf("scene is nil")
	}
	m.scene = scene
	return nil
}
