package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cache"
)

// HttpCacheInMemory caches GET responses for the given path suffixes only.
// Requests with ?refresh=true bypass the cache.
func HttpCacheInMemory(ttl int, paths ...string) fiber.Handler {
	if ttl <= 0 {
		ttl = 5
	}
	return cache.New(cache.Config{
		Next: func(c *fiber.Ctx) bool {
			if c.Method() != fiber.MethodGet || c.Query("refresh") == "true" {
				return true
			}
			for _, p := range paths {
				if strings.HasSuffix(c.Path(), p) {
					return false
				}
			}
			return true
		},
		Expiration: time.Duration(ttl) * time.Second,
	})
}
