package script

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/yaoapp/braid/graph"
	"github.com/yaoapp/kun/log"
	lua "github.com/yuin/gopher-lua"
)

const (
	globalTrans     = "trans"
	globalAccountID = "account_id"
	globalArg       = "arg"
)

var (
	sessionTags  uint64
	handleTokens uint64
)

// session the state of one interpreter session
type session struct {
	L         *lua.LState
	tag       uint64
	accountID uuid.UUID
	maxDepth  int
	handles   map[uint64]graph.Transaction
	failure   error  // the last host function error
	raised    string // the message the last host function error was raised with
	thrown    string // the last message the script raised with error or assert
}

func newSession(L *lua.LState, accountID uuid.UUID, maxDepth int) *session {
	return &session{
		L:         L,
		tag:       atomic.AddUint64(&sessionTags, 1),
		accountID: accountID,
		maxDepth:  maxDepth,
		handles:   map[uint64]graph.Transaction{},
	}
}

// lend register the transaction and return its handle
func (s *session) lend(trans graph.Transaction) *Handle {
	handle := &Handle{tag: s.tag, token: atomic.AddUint64(&handleTokens, 1)}
	s.handles[handle.token] = trans
	return handle
}

// revoke remove the handle from the registry, lookups fail afterwards
func (s *session) revoke(handle *Handle) {
	if handle == nil {
		return
	}
	delete(s.handles, handle.token)
}

// bind install the trans, account_id and arg globals
func (s *session) bind(trans graph.Transaction, arg interface{}) (*Handle, error) {
	value, err := ToNative(s.L, arg, s.maxDepth)
	if err != nil {
		return nil, fmt.Errorf("could not convert the script argument: %w", err)
	}

	handle := s.lend(trans)
	ud := s.L.NewUserData()
	ud.Value = handle

	mt := s.L.NewTable()
	mt.RawSetString("__metatable", lua.LString("locked"))
	mt.RawSetString("__tostring", s.L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString("transaction"))
		return 1
	}))
	s.L.SetMetatable(ud, mt)

	s.L.SetGlobal(globalTrans, ud)
	s.L.SetGlobal(globalAccountID, lua.LString(s.accountID.String()))
	s.L.SetGlobal(globalArg, value)
	return handle, nil
}

// unbind revoke the handle and clear the trans global
func (s *session) unbind(handle *Handle) {
	s.revoke(handle)
	s.L.SetGlobal(globalTrans, lua.LNil)
}

// transaction resolve the trans global, it must be a live handle of this session
func (s *session) transaction() (graph.Transaction, error) {
	ud, ok := s.L.GetGlobal(globalTrans).(*lua.LUserData)
	if !ok {
		return nil, ErrCorruptedTransaction
	}

	handle, ok := ud.Value.(*Handle)
	if !ok || handle == nil || handle.tag != s.tag {
		log.Warn("[script] session %d: the trans global holds a foreign value", s.tag)
		return nil, ErrCorruptedTransaction
	}

	trans, has := s.handles[handle.token]
	if !has {
		return nil, ErrCorruptedTransaction
	}
	return trans, nil
}
