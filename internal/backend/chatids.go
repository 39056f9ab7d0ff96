package backend

import (
	"context"
	"log/slog"
	"sync"

	"matchme-client/internal/models"
)

/*
LEARNING: BOUNDED WORKER POOL

Resolving chat ids is one HTTP call per match. A fixed number of workers pull
user ids from a jobs channel, so a long match list neither runs sequentially
nor opens a connection per match. The WaitGroup tells us when every worker has
drained the channel; the results map is the only shared state.
*/

const chatIDWorkers = 4

// ChatIDs resolves the conversation of every match, keyed by the other user's
// id. Matches that fail to resolve are logged and left out.
func (c *Client) ChatIDs(ctx context.Context, matches []models.Match) map[int64]int64 {
	jobs := make(chan int64, len(matches))
	for _, m := range matches {
		jobs <- m.LikedID
	}
	close(jobs)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		ids = make(map[int64]int64, len(matches))
	)

	workers := min(chatIDWorkers, len(matches))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for userID := range jobs {
				if ctx.Err() != nil {
					return
				}
				id, err := c.ChatID(ctx, userID)
				if err != nil {
					slog.Warn("backend: no chat id for match", "user_id", userID, "error", err)
					continue
				}
				mu.Lock()
				ids[userID] = id
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return ids
}
