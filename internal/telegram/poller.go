package telegram

import (
	"context"
	"log"
	"time"
)

// Poller feeds long-polled updates to a handler until the context ends.
type Poller struct {
	client  *Client
	timeout time.Duration
	backoff time.Duration
}

func NewPoller(client *Client, timeout time.Duration) *Poller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{client: client, timeout: timeout, backoff: 2 * time.Second}
}

// Run blocks until ctx is cancelled. Errors are logged and retried.
func (p *Poller) Run(ctx context.Context, handle func(Update)) error {
	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		updates, next, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[telegram] getUpdates failed: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff):
			}
			continue
		}

		offset = next
		for _, u := range updates {
			handle(u)
		}
	}
}
