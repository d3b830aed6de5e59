package static

import (
	"container/list"
	"os"
	"sync"
	"time"
)

// fileCache keeps the contents of recently served small files, LRU
// evicted. An entry is only used while the file's size and modification
// time still match.
type fileCache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	lru      *list.List
	maxFiles int
}

type cacheEntry struct {
	data    []byte
	size    int64
	modTime time.Time
	element *list.Element
}

func newFileCache(maxFiles int) *fileCache {
	return &fileCache{
		entries:  make(map[string]*cacheEntry),
		lru:      list.New(),
		maxFiles: maxFiles,
	}
}

// get returns the cached contents of path if fi still describes them.
func (fc *fileCache) get(path string, fi os.FileInfo) ([]byte, bool) {
	if fc.maxFiles <= 0 {
		return nil, false
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()

	entry, ok := fc.entries[path]
	if !ok {
		return nil, false
	}
	if entry.size != fi.Size() || !entry.modTime.Equal(fi.ModTime()) {
		fc.lru.Remove(entry.element)
		delete(fc.entries, path)
		return nil, false
	}
	fc.lru.MoveToFront(entry.element)
	return entry.data, true
}

func (fc *fileCache) put(path string, fi os.FileInfo, data []byte) {
	if fc.maxFiles <= 0 {
		return
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if entry, ok := fc.entries[path]; ok {
		entry.data, entry.size, entry.modTime = data, fi.Size(), fi.ModTime()
		fc.lru.MoveToFront(entry.element)
		return
	}

	fc.entries[path] = &cacheEntry{
		data:    data,
		size:    fi.Size(),
		modTime: fi.ModTime(),
		element: fc.lru.PushFront(path),
	}

	// Evict oldest if over limit
	if fc.lru.Len() > fc.maxFiles {
		oldest := fc.lru.Back()
		delete(fc.entries, oldest.Value.(string))
		fc.lru.Remove(oldest)
	}
}

func (fc *fileCache) len() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.lru.Len()
}
