package pagestore

import "sync"

// Pgno is a page number. Page 0 is the file header; page numbers otherwise
// start at 1.
type Pgno uint32

// Page is an in-memory view of one page's bytes, plus the bookkeeping the
// channel needs to decide whether it must be written back.
type Page struct {
	Number Pgno
	Type   byte
	Data   []byte

	dirty bool
	mu    sync.RWMutex
}

func newPage(number Pgno, typ byte, size int) *Page {
	data := make([]byte, size)
	if typ != 0 {
		data[0] = typ
	}
	return &Page{Number: number, Type: typ, Data: data}
}

// Bytes returns the page's current content. Callers must not retain the
// slice past the current write barrier; use Clone for that.
func (p *Page) Bytes() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Data
}

// Clone returns an independent copy of the page, safe to retain.
func (p *Page) Clone() *Page {
	p.mu.RLock()
	defer p.mu.RUnlock()
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	return &Page{Number: p.Number, Type: p.Type, Data: data}
}

// PutAt writes data into the page's own buffer and marks it dirty. Callers
// must already hold a write barrier; PageChannel.WritePage checks this.
func (p *Page) PutAt(offset int, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copy(p.Data[offset:], data)
	p.dirty = true
}

// IsDirty reports whether the page has unflushed modifications.
func (p *Page) IsDirty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dirty
}

func (p *Page) markClean() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = false
}

// cache holds pages read or written during the current channel lifetime,
// keyed by page number. Each page carries its own dirty flag; dirtyPages
// scans the whole map for set flags so a write barrier flushes exactly the
// pages it touched.
type cache struct {
	mu    sync.RWMutex
	pages map[Pgno]*Page
}

func newCache() *cache {
	return &cache{pages: make(map[Pgno]*Page)}
}

func (c *cache) get(pgno Pgno) *Page {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pages[pgno]
}

func (c *cache) put(p *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[p.Number] = p
}

func (c *cache) dirtyPages() []*Page {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var dirty []*Page
	for _, p := range c.pages {
		if p.IsDirty() {
			dirty = append(dirty, p)
		}
	}
	return dirty
}

func (c *cache) discard(pgnos map[Pgno][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pgno, original := range pgnos {
		if p, ok := c.pages[pgno]; ok {
			p.Data = original
			p.markClean()
		}
	}
}

func (c *cache) markAllClean() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pages {
		p.markClean()
	}
}
