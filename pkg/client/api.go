package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/openvtt/battlemap/pkg/types"
)

// DurableClient is the request/response path against the scene store.
type DurableClient interface {
	GetCurrentBattlefield(ctx context.Context) (*types.Battlefield, error)
	CreateBattlefield(ctx context.Context, params CreateBattlefieldParams) (*types.Battlefield, error)
	UpdateBattlefield(ctx context.Context, id string, patch types.Patch) (*types.Battlefield, error)
	ListCharacters(ctx context.Context) ([]types.Character, error)
}

type CreateBattlefieldParams struct {
	Name        string `json:"name"`
	MapImageURL string `json:"mapImageUrl"`
	GridSize    int    `json:"gridSize"`
	GridWidth   int    `json:"gridWidth"`
	GridHeight  int    `json:"gridHeight"`
}

// APIClient talks to the battlemap REST API.
type APIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ DurableClient = &APIClient{}

func NewAPIClient(baseURL string, token string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		client:  http.DefaultClient,
	}
}

func (c *APIClient) GetCurrentBattlefield(ctx context.Context) (*types.Battlefield, error) {
	battlefield := &types.Battlefield{}
	if err := c.do(ctx, http.MethodGet, "/battlefield", nil, battlefield); err != nil {
		return nil, err
	}
	return battlefield, nil
}

func (c *APIClient) CreateBattlefield(ctx context.Context, params CreateBattlefieldParams) (*types.Battlefield, error) {
	battlefield := &types.Battlefield{}
	if err := c.do(ctx, http.MethodPost, "/battlefield", params, battlefield); err != nil {
		return nil, err
	}
	return battlefield, nil
}

type updateBattlefieldRequest struct {
	ID string `json:"id"`
	types.Patch
}

func (c *APIClient) UpdateBattlefield(ctx context.Context, id string, patch types.Patch) (*types.Battlefield, error) {
	battlefield := &types.Battlefield{}
	req := updateBattlefieldRequest{ID: id, Patch: patch}
	if err := c.do(ctx, http.MethodPatch, "/battlefield", req, battlefield); err != nil {
		return nil, err
	}
	return battlefield, nil
}

func (c *APIClient) ListCharacters(ctx context.Context) ([]types.Character, error) {
	var characters []types.Character
	if err := c.do(ctx, http.MethodGet, "/characters", nil, &characters); err != nil {
		return nil, err
	}
	return characters, nil
}

func (c *APIClient) do(ctx context.Context, method string, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return &ErrRequestFailed{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}

type ErrRequestFailed struct {
	StatusCode int
	Message    string
}

func (e *ErrRequestFailed) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}
