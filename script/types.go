package script

import (
	"time"

	"github.com/google/uuid"
	"github.com/yaoapp/braid/graph"
	lua "github.com/yuin/gopher-lua"
)

// Option engine option
type Option struct {
	Libraries       []string      `json:"libraries,omitempty" yaml:"libraries,omitempty"`             // the standard libraries opened in each session, the default is base, table, string, math and coroutine
	MaxDepth        int           `json:"maxDepth,omitempty" yaml:"maxDepth,omitempty"`               // the maximum nesting depth of marshaled values, the default value is 64
	CacheSize       int           `json:"cacheSize,omitempty" yaml:"cacheSize,omitempty"`             // the number of compiled chunks kept in memory, 0 disables the cache
	CallStackSize   int           `json:"callStackSize,omitempty" yaml:"callStackSize,omitempty"`     // the interpreter call stack size, the default value is lua.CallStackSize
	RegistrySize    int           `json:"registrySize,omitempty" yaml:"registrySize,omitempty"`       // the initial interpreter registry size, the default value is lua.RegistrySize
	RegistryMaxSize int           `json:"registryMaxSize,omitempty" yaml:"registryMaxSize,omitempty"` // the registry growth limit, a script exceeding it fails with a memory error. the default value is 1048576
	Timeout         time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`                 // terminate the execution after this time, 0 means no limit
}

// Engine compiles and runs scripts against graph transactions
type Engine struct {
	option Option
	cache  *Cache
}

// Function a host function descriptor
type Function struct {
	Name    string
	Args    []Extractor
	Returns int
	Handler Handler
}

// Handler the host function handler, the returned value is pushed when the function returns one value
type Handler func(call *Call) (lua.LValue, error)

// Call a host function invocation with its extracted arguments
type Call struct {
	Name      string
	Args      []interface{}
	Trans     graph.Transaction
	AccountID uuid.UUID
	L         *lua.LState
	maxDepth  int
}

// Extractor reads one positional argument
type Extractor uint8

const (
	// String required string, numbers are accepted
	String Extractor = iota

	// OptionalInt64 signed 64-bit integer as a string, "" is absent
	OptionalInt64

	// ID uuid as a string
	ID

	// OptionalID uuid as a string, "" is uuid.Nil
	OptionalID

	// Type vertex or edge type
	Type

	// OptionalTime Unix seconds as a string, "" is absent
	OptionalTime

	// Weight number between -1.0 and 1.0
	Weight

	// Limit non-negative integer, saturates at 65535
	Limit

	// Offset non-negative integer
	Offset

	// Properties table of properties, nil is an empty table
	Properties

	// Value any JSON value
	Value
)

// ArgumentError a malformed positional argument
type ArgumentError struct {
	Position int
	Message  string
}

// Handle the transaction handle stored in the trans global
type Handle struct {
	tag   uint64
	token uint64
}

// Kind the reported kind of a script error
type Kind uint8

const (
	// KindSyntax the source could not be compiled
	KindSyntax Kind = iota

	// KindMemory the interpreter ran out of memory
	KindMemory

	// KindRuntime the script, a host function or the commit failed
	KindRuntime

	// KindPanicked the interpreter failed in an unexpected way
	KindPanicked
)

// Stage where the execution failed
type Stage uint8

const (
	// StageLoad compiling the source
	StageLoad Stage = iota

	// StageCall running the script
	StageCall

	// StageResult converting the returned value
	StageResult

	// StageCommit committing the transaction
	StageCommit
)

// ScriptError a classified execution failure
type ScriptError struct {
	Kind    Kind
	Stage   Stage
	Message string
	Cause   error
}

const (
	stateRunning int32 = iota
	stateCommitting
	stateAbandoned
)

// execution the commit claim of one run, shared with the dispatcher supervisor
type execution struct {
	state int32
}
