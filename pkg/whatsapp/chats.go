package whatsapp

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/dispatch"
)

type chatLoader func(ctx context.Context) ([]dispatch.Chat, error)

// chatCache holds the last chat listing for ttl. Concurrent misses share one load.
type chatCache struct {
	ttl  time.Duration
	load chatLoader
	now  func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	chats    []dispatch.Chat
	loadedAt time.Time
}

func newChatCache(ttl time.Duration, load chatLoader) *chatCache {
	return &chatCache{ttl: ttl, load: load, now: time.Now}
}

func (c *chatCache) Get(ctx context.Context, refresh bool) ([]dispatch.Chat, error) {
	if refresh {
		return c.GetWithin(ctx, 0)
	}
	return c.GetWithin(ctx, c.ttl)
}

// GetWithin serves the cached listing only when it is younger than maxAge.
func (c *chatCache) GetWithin(ctx context.Context, maxAge time.Duration) ([]dispatch.Chat, error) {
	if maxAge > c.ttl {
		maxAge = c.ttl
	}
	if maxAge > 0 {
		c.mu.RLock()
		fresh := c.chats != nil && c.now().Sub(c.loadedAt) < maxAge
		chats := c.chats
		c.mu.RUnlock()
		if fresh {
			return chats, nil
		}
	}

	res, err, _ := c.group.Do("chats", func() (interface{}, error) {
		chats, err := c.load(ctx)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(chats, func(i, j int) bool { return chats[i].ID < chats[j].ID })

		c.mu.Lock()
		c.chats = chats
		c.loadedAt = c.now()
		c.mu.Unlock()
		return chats, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]dispatch.Chat), nil
}

func (c *chatCache) Invalidate() {
	c.mu.Lock()
	c.chats = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

// filterChats returns at most max chats of the requested kind, max <= 0 means all.
func filterChats(chats []dispatch.Chat, groups bool, max int) []dispatch.Chat {
	out := make([]dispatch.Chat, 0)
	for _, c := range chats {
		if c.IsGroup != groups {
			continue
		}
		out = append(out, c)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
