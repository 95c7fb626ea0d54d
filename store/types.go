package store

import "time"

// Store The interface of a key-value store
type Store interface {
	Get(key string) (value interface{}, ok bool)
	Set(key string, value interface{}, ttl time.Duration) error
	Del(key string) error
	Has(key string) bool
	Len() int
	Keys() []string
	Clear()
	GetSet(key string, ttl time.Duration, getValue func(key string) (interface{}, error)) (interface{}, error)
}

// Option the store setting
type Option struct {
	Type    string        `json:"type,omitempty" yaml:"type,omitempty"`       // lru (default) or redis
	Name    string        `json:"name,omitempty" yaml:"name,omitempty"`       // the redis key prefix, the default value is braid
	Size    int           `json:"size,omitempty" yaml:"size,omitempty"`       // the lru size, the default value is 10240
	Host    string        `json:"host,omitempty" yaml:"host,omitempty"`       // redis host
	Port    string        `json:"port,omitempty" yaml:"port,omitempty"`       // redis port, the default value is 6379
	User    string        `json:"user,omitempty" yaml:"user,omitempty"`       // redis user
	Pass    string        `json:"pass,omitempty" yaml:"pass,omitempty"`       // redis password
	DB      int           `json:"db,omitempty" yaml:"db,omitempty"`           // redis db
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"` // redis timeout, the default value is 5s
}
