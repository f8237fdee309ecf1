package relay

import (
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	lru "github.com/hashicorp/golang-lru"
	"github.com/quackamole-dev/quackamole-relay/globals"
	"github.com/quackamole-dev/quackamole-relay/types"
)

const defaultFilterCacheSize = 256

// Env is the environment a broadcast targetFilter expression is evaluated
// against. Once published this shape should not change, or filters stored in
// clients break.
type Env struct {
	Room   FilterRoom
	Source FilterUser
	Target FilterUser
}

type FilterUser struct {
	Id          string
	DisplayName string
	Status      string
	LastSeen    int64
}

type FilterRoom struct {
	Id       string
	Name     string
	MaxUsers int
}

// FilterCache compiles targetFilter expressions and keeps the programs in an
// LRU, clients tend to reuse the same handful of filters.
type FilterCache struct {
	cache *lru.Cache
}

func NewFilterCache(size int) *FilterCache {
	cache, err := lru.New(size)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &FilterCache{cache: cache}
}

func (f *FilterCache) Compile(src string) (*vm.Program, error) {
	if cached, ok := f.cache.Get(src); ok {
		return cached.(*vm.Program), nil
	}
	prog, err := expr.Compile(src, expr.Env(Env{}))
	if err != nil {
		return nil, err
	}
	f.cache.Add(src, prog)
	return prog, nil
}

// Match runs a compiled filter for one receiver. Any evaluation error or a
// non-boolean result excludes the receiver.
func (f *FilterCache) Match(prog *vm.Program, room *types.Room, source, target *types.User) bool {
	if prog == nil {
		return true
	}
	env := Env{
		Room:   FilterRoom{Id: room.Id, Name: room.Name, MaxUsers: room.MaxUsers},
		Source: filterUser(source),
		Target: filterUser(target),
	}
	res, err := expr.Run(prog, env)
	if err != nil {
		globals.AppLogger.Warn("could not run target filter", "error", err)
		return false
	}
	bRes, ok := res.(bool)
	return ok && bRes
}

func filterUser(u *types.User) FilterUser {
	if u == nil {
		return FilterUser{}
	}
	return FilterUser{
		Id:          u.Id,
		DisplayName: u.DisplayName,
		Status:      u.Status,
		LastSeen:    u.LastSeen.Unix(),
	}
}
