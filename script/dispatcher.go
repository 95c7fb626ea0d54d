package script

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yaoapp/braid/graph"
	"github.com/yaoapp/kun/exception"
	"github.com/yaoapp/kun/log"
)

// DispatcherOption the worker pool option
type DispatcherOption struct {
	Workers      int           `json:"workers,omitempty" yaml:"workers,omitempty"`           // the number of workers, the default value is 4, max value is 256
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`           // abort the execution after this time, 0 means no limit
	QueueTimeout time.Duration `json:"queueTimeout,omitempty" yaml:"queueTimeout,omitempty"` // fail when no worker is free after this time, the default value is 5s
}

// Dispatcher runs scripts on a fixed pool of workers, one transaction and one session per task
type Dispatcher struct {
	engine  *Engine
	store   graph.Datastore
	option  DispatcherOption
	tasks   chan *task
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
}

// WorkerID is the worker id
type WorkerID string

func (id WorkerID) String() string {
	return strings.Split(string(id), "-")[0]
}

type task struct {
	ctx       context.Context
	ex        *execution
	accountID uuid.UUID
	source    string
	arg       interface{}
	resp      chan taskResult
}

type taskResult struct {
	value interface{}
	err   error
}

// Validate the option
func (option *DispatcherOption) Validate() {

	if option.Workers == 0 {
		option.Workers = 4
	}

	if option.Workers < 0 || option.Workers > 256 {
		log.Warn("[dispatcher] the workers value should be between 1 and 256")
		option.Workers = 256
	}

	if option.Timeout < 0 {
		log.Warn("[dispatcher] the timeout value should not be negative, no limit")
		option.Timeout = 0
	}

	if option.QueueTimeout <= 0 {
		option.QueueTimeout = 5 * time.Second
	}
}

// NewDispatcher create a dispatcher running the engine against the datastore
func NewDispatcher(engine *Engine, store graph.Datastore, option DispatcherOption) *Dispatcher {
	option.Validate()
	return &Dispatcher{
		engine: engine,
		store:  store,
		option: option,
		tasks:  make(chan *task),
		stop:   make(chan struct{}),
	}
}

// Start start the workers
func (dispatcher *Dispatcher) Start() error {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	if dispatcher.stopped {
		return fmt.Errorf("[dispatcher] the dispatcher is stopped")
	}

	if dispatcher.started {
		return fmt.Errorf("[dispatcher] the dispatcher is already started")
	}

	for i := 0; i < dispatcher.option.Workers; i++ {
		dispatcher.wg.Add(1)
		go dispatcher.work(WorkerID(uuid.New().String()))
	}
	dispatcher.started = true
	log.Trace("[dispatcher] the dispatcher is started. workers %d", dispatcher.option.Workers)
	return nil
}

// Stop stop the workers, running tasks finish first. A stopped dispatcher can not be started again.
func (dispatcher *Dispatcher) Stop() {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	if dispatcher.stopped {
		return
	}
	close(dispatcher.stop)
	dispatcher.wg.Wait()
	dispatcher.stopped = true
	log.Trace("[dispatcher] the dispatcher is stopped")
}

// Exec run the source on a free worker and wait for the result.
// When the timeout expires before the commit, the error is returned at once and
// the worker rolls the transaction back when the interpreter stops.
func (dispatcher *Dispatcher) Exec(ctx context.Context, accountID uuid.UUID, source string, arg interface{}) (interface{}, error) {
	if dispatcher.option.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dispatcher.option.Timeout)
		defer cancel()
	}

	t := &task{
		ctx:       ctx,
		ex:        &execution{},
		accountID: accountID,
		source:    source,
		arg:       arg,
		resp:      make(chan taskResult, 1),
	}

	queue := time.NewTimer(dispatcher.option.QueueTimeout)
	defer queue.Stop()

	select {
	case dispatcher.tasks <- t:
	case <-queue.C:
		return nil, fmt.Errorf("[dispatcher] select timeout %v", dispatcher.option.QueueTimeout)
	case <-ctx.Done():
		return nil, timeoutError(ctx)
	case <-dispatcher.stop:
		return nil, fmt.Errorf("[dispatcher] the dispatcher is stopped")
	}

	select {
	case res := <-t.resp:
		return res.value, res.err

	case <-ctx.Done():
		if t.ex.abandon() {
			log.Warn("[dispatcher] execution abandoned: %s", ctx.Err())
			return nil, timeoutError(ctx)
		}

		// the commit was claimed first
		res := <-t.resp
		return res.value, res.err
	}
}

func (dispatcher *Dispatcher) work(id WorkerID) {
	defer dispatcher.wg.Done()
	log.Trace("[dispatcher] [%s] worker online", id)
	for {
		select {
		case <-dispatcher.stop:
			log.Trace("[dispatcher] [%s] worker offline", id)
			return
		case t := <-dispatcher.tasks:
			dispatcher.run(id, t)
		}
	}
}

func (dispatcher *Dispatcher) run(id WorkerID, t *task) {
	res := taskResult{}
	var trans graph.Transaction

	defer func() {
		if err := exception.Catch(recover()); err != nil {
			log.Error("[dispatcher] [%s] %s", id, err.Error())
			if trans != nil {
				trans.Rollback()
			}
			res = taskResult{err: &ScriptError{Kind: KindPanicked, Stage: StageCall, Message: err.Error(), Cause: err}}
		}
		t.resp <- res
	}()

	if t.ctx.Err() != nil {
		res.err = timeoutError(t.ctx)
		return
	}

	var err error
	trans, err = dispatcher.store.Transaction(t.accountID)
	if err != nil {
		res.err = err
		return
	}

	res.value, res.err = dispatcher.engine.execute(t.ctx, t.ex, trans, t.accountID, t.source, t.arg)
}
