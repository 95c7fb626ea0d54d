package script

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yaoapp/braid/graph"
	"github.com/yaoapp/kun/log"
	lua "github.com/yuin/gopher-lua"
)

var (
	defaultEngine *Engine
	defaultOnce   sync.Once
)

// base library functions reading the file system
var unsafeGlobals = []string{"dofile", "loadfile"}

// New create a script engine
func New(option Option) (*Engine, error) {
	option.Validate()
	cache, err := NewCache(option.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{option: option, cache: cache}, nil
}

// Default the engine used by the package level Run
func Default() *Engine {
	defaultOnce.Do(func() {
		engine, err := New(Option{CacheSize: 256})
		if err != nil {
			log.Error("[script] default engine: %s", err.Error())
			engine = &Engine{option: Option{}}
			engine.option.Validate()
		}
		defaultEngine = engine
	})
	return defaultEngine
}

// Run run the source against the transaction with the default engine
func Run(trans graph.Transaction, accountID uuid.UUID, source string, arg interface{}) (interface{}, error) {
	return Default().Run(trans, accountID, source, arg)
}

// Option the validated engine option
func (engine *Engine) Option() Option {
	return engine.option
}

// Cache the compiled chunk cache, nil when disabled
func (engine *Engine) Cache() *Cache {
	return engine.cache
}

// Run run the source against the transaction. The transaction is committed
// when the script succeeds and rolled back otherwise.
func (engine *Engine) Run(trans graph.Transaction, accountID uuid.UUID, source string, arg interface{}) (interface{}, error) {
	ctx := context.Background()
	if engine.option.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, engine.option.Timeout)
		defer cancel()
	}
	return engine.Execute(ctx, trans, accountID, source, arg)
}

// Execute run the source, the script is interrupted when ctx is done
func (engine *Engine) Execute(ctx context.Context, trans graph.Transaction, accountID uuid.UUID, source string, arg interface{}) (interface{}, error) {
	return engine.execute(ctx, &execution{}, trans, accountID, source, arg)
}

func (engine *Engine) execute(ctx context.Context, ex *execution, trans graph.Transaction, accountID uuid.UUID, source string, arg interface{}) (interface{}, error) {
	start := time.Now()

	// Loaded
	L, err := engine.newState()
	if err != nil {
		engine.abort(trans)
		return nil, &ScriptError{Kind: KindPanicked, Stage: StageLoad, Message: err.Error(), Cause: err}
	}
	defer L.Close()

	sess := newSession(L, accountID, engine.option.MaxDepth)
	sess.register(Functions)
	sess.openLog()
	sess.trackErrors()

	proto, err := engine.cache.Compile(source)
	if err != nil {
		engine.abort(trans)
		log.Trace("[script] session %d: compile error: %s", sess.tag, err.Error())
		return nil, syntaxError(err)
	}
	fn := L.NewFunctionFromProto(proto)

	// Bound
	handle, err := sess.bind(trans, arg)
	if err != nil {
		engine.abort(trans)
		return nil, &ScriptError{Kind: KindRuntime, Stage: StageCall, Message: err.Error(), Cause: err}
	}
	defer sess.unbind(handle)

	// Running
	L.SetContext(ctx)
	top := L.GetTop()
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		engine.abort(trans)
		scriptErr := callError(ctx, err, sess)
		log.Trace("[script] session %d: %s error: %s", sess.tag, scriptErr.Kind, scriptErr.Message)
		return nil, scriptErr
	}

	var result lua.LValue = lua.LNil
	if L.GetTop() > top {
		result = L.Get(top + 1)
	}

	value, err := ToJSON(result, engine.option.MaxDepth)
	if err != nil {
		engine.abort(trans)
		return nil, resultError(err)
	}

	// Committed
	if ctx.Err() != nil || !ex.claim() {
		engine.abort(trans)
		return nil, timeoutError(ctx)
	}

	if err := trans.Commit(); err != nil {
		engine.abort(trans)
		log.Error("[script] session %d: commit: %s", sess.tag, err.Error())
		return nil, commitError(err)
	}

	log.Trace("[script] session %d: committed in %v", sess.tag, time.Since(start))
	return value, nil
}

func (engine *Engine) newState() (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:    true,
		CallStackSize:   engine.option.CallStackSize,
		RegistrySize:    engine.option.RegistrySize,
		RegistryMaxSize: engine.option.RegistryMaxSize,
	})

	for _, name := range engine.option.Libraries {
		lib := libraries[name]
		err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name))
		if err != nil {
			L.Close()
			return nil, fmt.Errorf("could not open the %s library: %w", name, err)
		}
	}

	for _, name := range unsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L, nil
}

func (engine *Engine) abort(trans graph.Transaction) {
	if err := trans.Rollback(); err != nil {
		log.Error("[script] rollback: %s", err.Error())
	}
}

// claim take the right to commit, fails once the execution was abandoned
func (ex *execution) claim() bool {
	return atomic.CompareAndSwapInt32(&ex.state, stateRunning, stateCommitting)
}

// abandon give up on the execution, fails once the commit was claimed
func (ex *execution) abandon() bool {
	return atomic.CompareAndSwapInt32(&ex.state, stateRunning, stateAbandoned)
}
