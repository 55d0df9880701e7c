package source

import (
	"github.com/puzpuzpuz/xsync/v3"
	"sort"
	"sync/atomic"
)

type storeImpl struct {
	sources    *xsync.MapOf[string, Source]
	generation atomic.Uint32
}

// NewStore creates an empty source store
func NewStore() IStore {
	return &storeImpl{
		sources: xsync.NewMapOf[string, Source](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see source.IStore)
// --------------------------------------------------------------------------

func (s *storeImpl) Add(src Source) {
	src.Lines = append([]string(nil), src.Lines...)
	s.sources.Store(src.Key, src)
	s.generation.Add(1)
}

func (s *storeImpl) Get(key string) (Source, bool) {
	return s.sources.Load(key)
}

func (s *storeImpl) Update(key string, lines []string) (uint32, bool) {
	updated := false
	s.sources.Compute(key, func(old Source, loaded bool) (Source, bool) {
		if !loaded {
			return old, true // nothing to update, do not create
		}
		updated = true
		old.Lines = append([]string(nil), lines...)
		return old, false
	})
	if !updated {
		return s.generation.Load(), false
	}
	return s.generation.Add(1), true
}

func (s *storeImpl) Keys() []string {
	keys := make([]string, 0, s.sources.Size())
	s.sources.Range(func(key string, _ Source) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys
}

func (s *storeImpl) Generation() uint32 {
	return s.generation.Load()
}

func (s *storeImpl) SetGeneration(gen uint32) {
	s.generation.Store(gen)
}
