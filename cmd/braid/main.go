package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/yaoapp/braid/config"
	"github.com/yaoapp/braid/datastore"
	"github.com/yaoapp/braid/procedure"
	"github.com/yaoapp/braid/script"
	"github.com/yaoapp/braid/store"
	"github.com/yaoapp/kun/log"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		color.Red("%s", err.Error())
		os.Exit(1)
	}
}

// run braid -c braid.yml [-account <uuid>] [-arg <json>] (-file script.lua | -procedure name | -serve)
func run(args []string, stdin io.Reader, stdout io.Writer) error {
	flags := flag.NewFlagSet("braid", flag.ContinueOnError)
	file := flags.String("c", "", "the config file (.json .jsonc .braid .yml .yaml)")
	account := flags.String("account", uuid.Nil.String(), "the account id")
	arg := flags.String("arg", "", "the script argument (JSON)")
	source := flags.String("file", "", "the script file to run")
	name := flags.String("procedure", "", "the stored procedure to run")
	serving := flags.Bool("serve", false, "answer the procedure requests read from stdin, one JSON document per line")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *serving {
		if *source != "" || *name != "" {
			return fmt.Errorf("-serve can not be used with -file or -procedure")
		}
	} else if (*source == "") == (*name == "") {
		return fmt.Errorf("one of -file, -procedure or -serve is required")
	}

	accountID, err := uuid.Parse(*account)
	if err != nil {
		return fmt.Errorf("invalid account id %s: %s", *account, err.Error())
	}

	var value interface{}
	if *arg != "" {
		value, err = script.DecodeJSON([]byte(*arg))
		if err != nil {
			return fmt.Errorf("invalid argument: %s", err.Error())
		}
	}

	cfg := &config.Config{}
	if *file != "" {
		cfg, err = config.Load(*file)
		if err != nil {
			return err
		}
	}

	if err := cfg.Apply(); err != nil {
		return err
	}

	ds, err := datastore.New(cfg.Datastore)
	if err != nil {
		return err
	}
	defer ds.Close()

	engine, err := script.New(cfg.Script)
	if err != nil {
		return err
	}

	dispatcher := script.NewDispatcher(engine, ds, cfg.Dispatcher)
	if err := dispatcher.Start(); err != nil {
		return err
	}
	defer dispatcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *source != "" {
		content, err := os.ReadFile(*source)
		if err != nil {
			return err
		}
		res, err := dispatcher.Exec(ctx, accountID, string(content), value)
		if err != nil {
			return err
		}
		return output(stdout, res)
	}

	procedures, err := load(cfg)
	if err != nil {
		return err
	}

	if *serving {
		if cfg.Watch {
			if err := procedures.Watch(ctx); err != nil {
				return err
			}
		}
		return serve(ctx, dispatcher, procedures, stdin, stdout)
	}

	res, err := procedures.Run(ctx, dispatcher, *name, accountID, value)
	if err != nil {
		return err
	}
	return output(stdout, res)
}

func load(cfg *config.Config) (*procedure.Procedures, error) {
	if cfg.Procedures == "" {
		return nil, fmt.Errorf("the procedures directory is not configured")
	}

	s, err := store.New(cfg.Store)
	if err != nil {
		return nil, err
	}

	procedures := procedure.New(s)
	if err := procedures.Load(cfg.Procedures); err != nil {
		return nil, err
	}
	return procedures, nil
}

func output(stdout io.Writer, res interface{}) error {
	data, err := script.EncodeJSON(res)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(data))
	return nil
}

// request one line read by -serve
type request struct {
	Procedure string              `json:"procedure"`
	Account   string              `json:"account,omitempty"`
	Arg       jsoniter.RawMessage `json:"arg,omitempty"`
}

// serve answer each request line with {"result": ...} or {"error": "..."} until stdin is closed
func serve(ctx context.Context, dispatcher *script.Dispatcher, procedures *procedure.Procedures, stdin io.Reader, stdout io.Writer) error {
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		response := map[string]interface{}{}
		res, err := answer(ctx, dispatcher, procedures, line)
		if err != nil {
			log.Warn("[braid] %s", err.Error())
			response["error"] = err.Error()
		} else {
			response["result"] = res
		}

		if err := output(stdout, response); err != nil {
			output(stdout, map[string]interface{}{"error": err.Error()})
		}
	}
	return scanner.Err()
}

func answer(ctx context.Context, dispatcher *script.Dispatcher, procedures *procedure.Procedures, line []byte) (interface{}, error) {
	var req request
	if err := jsoniter.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("invalid request: %s", err.Error())
	}

	accountID := uuid.Nil
	if req.Account != "" {
		id, err := uuid.Parse(req.Account)
		if err != nil {
			return nil, fmt.Errorf("invalid account id %s: %s", req.Account, err.Error())
		}
		accountID = id
	}

	var arg interface{}
	if len(req.Arg) > 0 {
		value, err := script.DecodeJSON(req.Arg)
		if err != nil {
			return nil, fmt.Errorf("invalid argument: %s", err.Error())
		}
		arg = value
	}

	return procedures.Run(ctx, dispatcher, req.Procedure, accountID, arg)
}
