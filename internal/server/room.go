package server

import (
	"time"

	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/samber/lo"
)

// Room is a mesh of clients keyed by participant ID, in join order.
type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time

	members map[string]*Client
	order   []string
}

func newRoom(id, name string) *Room {
	return &Room{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		members:   make(map[string]*Client),
	}
}

// add registers c under its participant ID and returns the client it
// replaced, if any.
func (r *Room) add(c *Client) *Client {
	prev, ok := r.members[c.ID]
	if !ok {
		r.order = append(r.order, c.ID)
	}
	r.members[c.ID] = c
	return prev
}

// remove drops c if it is still the registered client for its ID.
func (r *Room) remove(c *Client) bool {
	if cur, ok := r.members[c.ID]; !ok || cur != c {
		return false
	}
	delete(r.members, c.ID)
	r.order = lo.Without(r.order, c.ID)
	return true
}

func (r *Room) member(id string) (*Client, bool) {
	c, ok := r.members[id]
	return c, ok
}

// users lists every member except the one with ID except.
func (r *Room) users(except string) []signaling.User {
	users := make([]signaling.User, 0, len(r.order))
	for _, id := range r.order {
		if id == except {
			continue
		}
		users = append(users, signaling.User{ID: id, Name: r.members[id].Name})
	}
	return users
}

func (r *Room) clients() []*Client {
	return lo.Map(r.order, func(id string, _ int) *Client { return r.members[id] })
}

func (r *Room) size() int { return len(r.order) }
