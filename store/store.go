package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/yaoapp/braid/store/lru"
	"github.com/yaoapp/braid/store/redis"
)

// New create a store
func New(option Option) (Store, error) {

	switch strings.ToLower(option.Type) {
	case "", "lru":
		size := option.Size
		if size <= 0 {
			size = 10240
		}
		return lru.New(size)

	case "redis":
		name := option.Name
		if name == "" {
			name = "braid"
		}

		timeout := option.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}

		store, err := redis.New(redis.Option{
			Host:    option.Host,
			Port:    option.Port,
			User:    option.User,
			Pass:    option.Pass,
			DB:      option.DB,
			Timeout: timeout,
			Prefix:  fmt.Sprintf("%s:", name),
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	return nil, fmt.Errorf("the store type %s does not support", option.Type)
}
