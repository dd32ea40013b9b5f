package errx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis errors to AppError with a consistent status code.
// redis.Nil becomes a 404 that matches ErrNotFound.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(fmt.Errorf("%w: %v", ErrNotFound, err), http.StatusNotFound, NotFoundMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}
