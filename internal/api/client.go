// Package api is the client of the room REST API served next to the
// signaling endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/BioHazard786/Warpcall/internal/dns"
)

const requestTimeout = 10 * time.Second

// Room is a room as reported by the server.
type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Participants int       `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

type createRoomRequest struct {
	Name string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RoomService creates and looks up rooms.
//
//go:generate go run go.uber.org/mock/mockgen -source=client.go -destination=../mocks/mock_room_service.go -package=mocks
type RoomService interface {
	CreateRoom(ctx context.Context, name string) (*Room, error)
	GetRoom(ctx context.Context, id string) (*Room, error)
}

type Client struct {
	log     *slog.Logger
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the API at baseURL. Lookups are not retried.
func NewClient(log *slog.Logger, baseURL string) *Client {
	return &Client{
		log:     log,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   requestTimeout,
			Transport: &http.Transport{DialContext: dns.DialContext},
		},
	}
}

func (c *Client) CreateRoom(ctx context.Context, name string) (*Room, error) {
	body, err := json.Marshal(createRoomRequest{Name: name})
	if err != nil {
		return nil, err
	}

	var room Room
	if err := c.do(ctx, "create room", http.MethodPost, "/rooms", body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) GetRoom(ctx context.Context, id string) (*Room, error) {
	if strings.TrimSpace(id) == "" {
		return nil, callerr.RoomLookup("get room", callerr.ErrRoomNotFound, "empty room id")
	}

	var room Room
	if err := c.do(ctx, "get room", http.MethodGet, "/rooms/"+url.PathEscape(id), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return callerr.RoomLookup(op, nil, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return callerr.RoomLookup(op, nil, err.Error())
	}
	defer resp.Body.Close()

	c.log.Debug("room api response", slog.String("op", op), slog.Int("status", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return callerr.RoomLookup(op, callerr.ErrRoomNotFound, readError(resp.Body))
	case resp.StatusCode >= http.StatusInternalServerError:
		return callerr.RoomLookup(op, callerr.ErrServer, readError(resp.Body))
	case resp.StatusCode >= http.StatusBadRequest:
		return callerr.RoomLookup(op, nil, fmt.Sprintf("status %d: %s", resp.StatusCode, readError(resp.Body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return callerr.RoomLookup(op, callerr.ErrServer, "invalid response: "+err.Error())
	}
	return nil
}

func readError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var e errorResponse
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}
