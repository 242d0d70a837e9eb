package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	fiberredis "github.com/gofiber/storage/redis/v3"
)

// newLimiterStorage opens the Fiber storage the HTTP rate limiter keeps its
// counters in. It panics when Redis is unreachable, so call it only after a
// successful ping.
func newLimiterStorage(addr string) fiber.Storage {
	host, port := splitRedisAddr(addr)
	return fiberredis.New(fiberredis.Config{
		Host:     host,
		Port:     port,
		PoolSize: 10,
	})
}

// splitRedisAddr falls back to 127.0.0.1:6379 for the parts it cannot parse.
func splitRedisAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "127.0.0.1", 6379
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 6379
	}
	return host, port
}
