package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
	"github.com/yaoapp/kun/log"
)

// Store redis store
type Store struct {
	rdb    *redis.Client
	Option Option
}

// Option redis option
type Option struct {
	Host    string
	Port    string
	User    string
	Pass    string
	DB      int
	Timeout time.Duration
	Prefix  string
}

// New connect to the redis server
func New(option Option) (*Store, error) {
	if option.Host == "" {
		return nil, fmt.Errorf("the redis host is required")
	}

	if option.Port == "" {
		option.Port = "6379"
	}

	options := &redis.Options{
		Addr: fmt.Sprintf("%s:%s", option.Host, option.Port),
		DB:   option.DB,
	}

	if option.User != "" {
		options.Username = option.User
	}

	if option.Pass != "" {
		options.Password = option.Pass
	}

	client := redis.NewClient(options)
	if option.Timeout > 0 {
		client = client.WithTimeout(option.Timeout)
	}

	_, err := client.Ping(context.Background()).Result()
	if err != nil {
		client.Close()
		return nil, err
	}

	return &Store{rdb: client, Option: option}, nil
}

// Get looks up a key's value from the store.
func (store *Store) Get(key string) (value interface{}, ok bool) {
	key = fmt.Sprintf("%s%s", store.Option.Prefix, key)
	val, err := store.rdb.Get(context.Background(), key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Error("Store redis Get %s: %s", key, err.Error())
		}
		return nil, false
	}

	err = jsoniter.Unmarshal([]byte(val), &value)
	if err != nil {
		log.Error("Store redis Get %s: %s val: %s", key, err.Error(), val)
		return nil, false
	}

	return value, true
}

// Set adds a value to the store.
func (store *Store) Set(key string, value interface{}, ttl time.Duration) error {
	key = fmt.Sprintf("%s%s", store.Option.Prefix, key)
	bytes, err := jsoniter.Marshal(value)
	if err != nil {
		log.Error("Store redis Set %s: %s", key, err.Error())
		return err
	}

	err = store.rdb.Set(context.Background(), key, bytes, ttl).Err()
	if err != nil {
		log.Error("Store redis Set %s: %s", key, err.Error())
		return err
	}
	return nil
}

// Del remove is used to purge a key from the store
func (store *Store) Del(key string) error {
	key = fmt.Sprintf("%s%s", store.Option.Prefix, key)
	return store.rdb.Del(context.Background(), key).Err()
}

// Has check if the store is exist
func (store *Store) Has(key string) bool {
	key = fmt.Sprintf("%s%s", store.Option.Prefix, key)
	v, err := store.rdb.Exists(context.Background(), key).Result()
	if err != nil {
		log.Error("Store redis Has %s: %s", key, err.Error())
		return false
	}
	return v == 1
}

// Len returns the number of stored entries (**not O(1)**)
func (store *Store) Len() int {
	return len(store.Keys())
}

// Keys returns all the stored keys
func (store *Store) Keys() []string {
	prefix := store.Option.Prefix
	keys := []string{}
	iter := store.rdb.Scan(context.Background(), 0, prefix+"*", 100).Iterator()
	for iter.Next(context.Background()) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}

	if err := iter.Err(); err != nil {
		log.Error("Store redis Keys: %s", err.Error())
		return []string{}
	}
	return keys
}

// Clear is used to clear the store
func (store *Store) Clear() {
	for _, key := range store.Keys() {
		store.Del(key)
	}
}

// GetSet looks up a key's value from the store. if does not exist add to the store
func (store *Store) GetSet(key string, ttl time.Duration, getValue func(key string) (interface{}, error)) (interface{}, error) {
	value, ok := store.Get(key)
	if !ok {
		var err error
		value, err = getValue(key)
		if err != nil {
			return nil, err
		}
		if err := store.Set(key, value, ttl); err != nil {
			return nil, err
		}
	}
	return value, nil
}

// Close the connection
func (store *Store) Close() error {
	return store.rdb.Close()
}
