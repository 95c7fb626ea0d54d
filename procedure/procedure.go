package procedure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/yaoapp/braid/store"
	"github.com/yaoapp/kun/log"
)

// Ext the file extension of a procedure
const Ext = ".lua"

// ErrNotFound the procedure is not loaded
var ErrNotFound = errors.New("procedure not found")

// Executor runs a script, *script.Dispatcher is the executor used in production
type Executor interface {
	Exec(ctx context.Context, accountID uuid.UUID, source string, arg interface{}) (interface{}, error)
}

// Procedures the stored procedures, the sources are kept in a store keyed by name
type Procedures struct {
	root  string
	store store.Store
}

// New create the procedures backed by the store
func New(s store.Store) *Procedures {
	return &Procedures{store: s}
}

// Name the procedure name of a file relative to the root, a/b.lua is a.b
func Name(rel string) string {
	name := strings.TrimSuffix(filepath.ToSlash(rel), Ext)
	name = strings.TrimPrefix(name, "/")
	return strings.ReplaceAll(name, "/", ".")
}

// Load read all the procedures under the root directory
func (procedures *Procedures) Load(root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	info, err := os.Stat(root)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	procedures.root = root
	count := 0
	err = filepath.Walk(root, func(file string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || !strings.HasSuffix(file, Ext) {
			return nil
		}

		if err := procedures.LoadFile(file); err != nil {
			return err
		}
		count++
		return nil
	})

	if err != nil {
		return err
	}

	log.Trace("[procedure] %d procedures loaded from %s", count, root)
	return nil
}

// LoadFile read one procedure file under the root
func (procedures *Procedures) LoadFile(file string) error {
	name, err := procedures.name(file)
	if err != nil {
		return err
	}

	source, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	return procedures.Set(name, string(source))
}

// Set store the source of a procedure
func (procedures *Procedures) Set(name string, source string) error {
	if name == "" {
		return fmt.Errorf("the procedure name is required")
	}
	return procedures.store.Set(name, source, 0)
}

// Remove drop the cached source of the procedure, the next Select reads its file again
func (procedures *Procedures) Remove(name string) error {
	return procedures.store.Del(name)
}

// Select get the source of a procedure. Sources evicted from the store are read
// back from their file under the root.
func (procedures *Procedures) Select(name string) (string, error) {
	value, err := procedures.store.GetSet(name, 0, procedures.read)
	if err != nil {
		return "", err
	}

	source, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("the procedure %s is not a string (%T)", name, value)
	}
	return source, nil
}

// Names the names of the cached procedures and the procedure files under the root, sorted
func (procedures *Procedures) Names() []string {
	seen := map[string]bool{}
	for _, name := range procedures.store.Keys() {
		seen[name] = true
	}

	if procedures.root != "" {
		filepath.Walk(procedures.root, func(file string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() || !strings.HasSuffix(file, Ext) {
				return nil
			}
			if name, err := procedures.name(file); err == nil {
				seen[name] = true
			}
			return nil
		})
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run run the procedure on the executor
func (procedures *Procedures) Run(ctx context.Context, executor Executor, name string, accountID uuid.UUID, arg interface{}) (interface{}, error) {
	source, err := procedures.Select(name)
	if err != nil {
		return nil, err
	}

	log.With(log.F{"procedure": name, "account_id": accountID.String()}).Trace("[procedure] run")
	return executor.Exec(ctx, accountID, source, arg)
}

func (procedures *Procedures) name(file string) (string, error) {
	if procedures.root == "" {
		return "", fmt.Errorf("the procedures are not loaded from a directory")
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(procedures.root, abs)
	if err != nil {
		return "", err
	}

	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is not under %s", file, procedures.root)
	}
	return Name(rel), nil
}

// read load the source of a procedure from its file, a.b is a/b.lua
func (procedures *Procedures) read(name string) (interface{}, error) {
	if procedures.root == "" || name == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	file := filepath.Join(procedures.root, filepath.FromSlash(strings.ReplaceAll(name, ".", "/"))+Ext)
	source, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	} else if err != nil {
		return nil, err
	}

	log.Trace("[procedure] %s read from %s", name, file)
	return string(source), nil
}
