package bulk

import "sync"

// Cache maps file ids to downloaded files for one export run. Each id is
// stored once; later puts for the same id are ignored.
type Cache struct {
	mu    sync.Mutex
	order []string
	names map[string]string
	data  map[string][]byte
}

func NewCache() *Cache {
	return &Cache{names: map[string]string{}, data: map[string][]byte{}}
}

func (c *Cache) Get(fileID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.names[fileID]
	return name, ok
}

// Put records a download and reports whether it was new.
func (c *Cache) Put(fileID, name string, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.names[fileID]; ok {
		return false
	}
	c.order = append(c.order, fileID)
	c.names[fileID] = name
	c.data[fileID] = data
	return true
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Names returns a copy of the file id to file name map.
func (c *Cache) Names() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.names))
	for k, v := range c.names {
		out[k] = v
	}
	return out
}

// Each calls fn for every entry in insertion order.
func (c *Cache) Each(fn func(fileID, name string, data []byte)) {
	c.mu.Lock()
	order := append([]string(nil), c.order...)
	c.mu.Unlock()
	for _, id := range order {
		c.mu.Lock()
		name, data := c.names[id], c.data[id]
		c.mu.Unlock()
		fn(id, name, data)
	}
}
