package datastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yaoapp/braid/datastore/badger"
	"github.com/yaoapp/braid/datastore/buntdb"
	"github.com/yaoapp/braid/datastore/neo4j"
	"github.com/yaoapp/braid/graph"
	"github.com/yaoapp/kun/log"
)

// Option the datastore options
type Option struct {
	Type     string        `json:"type" yaml:"type"`
	Path     string        `json:"path,omitempty" yaml:"path,omitempty"`
	URL      string        `json:"url,omitempty" yaml:"url,omitempty"`
	Username string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password string        `json:"password,omitempty" yaml:"password,omitempty"`
	Database string        `json:"database,omitempty" yaml:"database,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// New open the datastore of the given type: badger, buntdb (default) or neo4j
func New(option Option) (graph.Datastore, error) {
	switch strings.ToLower(option.Type) {
	case "badger":
		store, err := badger.New(option.Path)
		if err != nil {
			return nil, err
		}
		return store, nil

	case "", "buntdb", "memory":
		store, err := buntdb.New(option.Path)
		if err != nil {
			return nil, err
		}
		return store, nil

	case "neo4j":
		ctx := context.Background()
		if option.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, option.Timeout)
			defer cancel()
		}
		store, err := neo4j.Connect(ctx, neo4j.Option{
			URL:      option.URL,
			Username: option.Username,
			Password: option.Password,
			Database: option.Database,
			Timeout:  option.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	log.Error("[datastore] %s does not support", option.Type)
	return nil, fmt.Errorf("datastore %s does not support", option.Type)
}
