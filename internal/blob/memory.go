package blob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	info Info
	data []byte
}

// Memory keeps blobs in process memory. Used by tests and dry runs.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]memoryEntry
}

func NewMemory() *Memory { return &Memory{objs: make(map[string]memoryEntry)} }

func (s *Memory) Driver() Driver { return DriverMemory }

func (s *Memory) Put(_ context.Context, key string, data []byte, contentType string) (Info, error) {
	if strings.TrimSpace(key) == "" {
		return Info{}, fmt.Errorf("empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{Key: key, Size: int64(len(data)), ContentType: contentType, LastModified: time.Now().UTC()}
	s.objs[key] = memoryEntry{info: info, data: append([]byte(nil), data...)}
	return info, nil
}

func (s *Memory) Get(_ context.Context, key string) (Info, []byte, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return Info{}, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return obj.info, append([]byte(nil), obj.data...), nil
}

func (s *Memory) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	delete(s.objs, key)
	return ok, nil
}

func (s *Memory) List(_ context.Context, prefix string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.objs))
	for k, v := range s.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, v.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
