package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/yaoapp/braid/datastore"
	"github.com/yaoapp/braid/script"
	"github.com/yaoapp/braid/store"
	"github.com/yaoapp/kun/log"
	"gopkg.in/yaml.v3"
)

// Config the braid setting
type Config struct {
	Log        Log                     `json:"log,omitempty"`
	Datastore  datastore.Option        `json:"datastore,omitempty"`
	Script     script.Option           `json:"script,omitempty"`
	Dispatcher script.DispatcherOption `json:"dispatcher,omitempty"`
	Store      store.Option            `json:"store,omitempty"`
	Procedures string                  `json:"procedures,omitempty"` // the procedure directory
	Watch      bool                    `json:"watch,omitempty"`      // reload the procedures when the files change
}

// Log the log setting
type Log struct {
	Level  string `json:"level,omitempty"`  // trace, debug, info, warn, error. the default value is info
	Output string `json:"output,omitempty"` // a file path, stdout or stderr. the default value is stderr
	Format string `json:"format,omitempty"` // text or json
}

// the keys holding durations, "5s" and "100ms" are accepted
var durationKeys = map[string]bool{"timeout": true, "queueTimeout": true}

// Load read the config file (.json .jsonc .braid .yml .yaml)
func Load(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = Parse(file, data, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Procedures != "" && !filepath.IsAbs(cfg.Procedures) {
		cfg.Procedures = filepath.Join(filepath.Dir(file), cfg.Procedures)
	}
	return cfg, nil
}

// Parse the json/jsonc/yaml data. $ENV.NAME strings are replaced by the environment variable NAME
func Parse(name string, data []byte, vPtr interface{}) error {
	var doc interface{}
	ext := filepath.Ext(name)
	switch ext {
	case ".braid", ".jsonc":
		err := jsoniter.Unmarshal(trim(data, nil), &doc)
		if err != nil {
			return fmt.Errorf("[Parse] %s Error %s", name, err.Error())
		}

	case ".json":
		err := jsoniter.Unmarshal(data, &doc)
		if err != nil {
			return fmt.Errorf("[Parse] %s Error %s", name, err.Error())
		}

	case ".yml", ".yaml":
		err := yaml.Unmarshal(data, &doc)
		if err != nil {
			return fmt.Errorf("[Parse] %s Error %s", name, err.Error())
		}

	default:
		return fmt.Errorf("[Parse] %s Error %s does not support", name, ext)
	}

	doc, err := prepare("", doc)
	if err != nil {
		return fmt.Errorf("[Parse] %s Error %s", name, err.Error())
	}

	content, err := jsoniter.Marshal(doc)
	if err != nil {
		return fmt.Errorf("[Parse] %s Error %s", name, err.Error())
	}

	err = jsoniter.Unmarshal(content, vPtr)
	if err != nil {
		return fmt.Errorf("[Parse] %s Error %s", name, err.Error())
	}
	return nil
}

// Apply set the log level, output and format
func (cfg *Config) Apply() error {
	switch strings.ToLower(cfg.Log.Level) {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "", "info":
		log.SetLevel(log.InfoLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		return fmt.Errorf("the log level %s does not support", cfg.Log.Level)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "", "text":
		log.SetFormatter(log.TEXT)
	case "json":
		log.SetFormatter(log.JSON)
	default:
		return fmt.Errorf("the log format %s does not support", cfg.Log.Format)
	}

	output, err := cfg.Log.writer()
	if err != nil {
		return err
	}
	log.SetOutput(output)
	return nil
}

func (l Log) writer() (io.Writer, error) {
	switch strings.ToLower(l.Output) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}

	err := os.MkdirAll(filepath.Dir(l.Output), 0755)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(l.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// prepare replace the environment variables, normalize the yaml maps and parse the durations
func prepare(key string, v interface{}) (interface{}, error) {
	switch value := v.(type) {
	case string:
		value = env(value)
		if durationKeys[key] {
			d, err := time.ParseDuration(value)
			if err != nil {
				return nil, fmt.Errorf("%s: %s", key, err.Error())
			}
			return int64(d), nil
		}
		return value, nil

	case map[string]interface{}:
		for k, item := range value {
			converted, err := prepare(k, item)
			if err != nil {
				return nil, err
			}
			value[k] = converted
		}
		return value, nil

	case map[interface{}]interface{}:
		res := map[string]interface{}{}
		for k, item := range value {
			name := fmt.Sprintf("%v", k)
			converted, err := prepare(name, item)
			if err != nil {
				return nil, err
			}
			res[name] = converted
		}
		return res, nil

	case []interface{}:
		for i, item := range value {
			converted, err := prepare("", item)
			if err != nil {
				return nil, err
			}
			value[i] = converted
		}
		return value, nil
	}
	return v, nil
}

// env $ENV.NAME is the value of the environment variable NAME
func env(value string) string {
	if strings.HasPrefix(value, "$ENV.") {
		return os.Getenv(strings.TrimPrefix(value, "$ENV."))
	}
	return value
}
