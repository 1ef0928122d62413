package nomi

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Agent binds a Client to one Nomi. It is immutable after construction.
type Agent struct {
	client *Client
	nomi   Nomi
}

// FromUUID resolves the Nomi identified by id. It fails when id is not a
// UUID or the account has no such Nomi.
func FromUUID(ctx context.Context, client *Client, id string) (*Agent, error) {
	if client == nil {
		return nil, fmt.Errorf("nomi: client is required")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("nomi: invalid id %q: %w", id, err)
	}

	n, err := client.GetNomi(ctx, parsed.String())
	if err != nil {
		return nil, fmt.Errorf("nomi: resolve %s: %w", parsed, err)
	}
	if n.UUID == "" {
		n.UUID = parsed.String()
	}
	return &Agent{client: client, nomi: *n}, nil
}

// Nomi returns the resolved persona.
func (a *Agent) Nomi() Nomi { return a.nomi }

// SendMessage sends text to the Nomi and returns the reply text.
func (a *Agent) SendMessage(ctx context.Context, text string) (string, error) {
	_, reply, err := a.client.SendMessage(ctx, a.nomi.UUID, text)
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}
