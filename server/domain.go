package server

import (
	"sync"

	"github.com/google/btree"

	"nx-ipc/message"
	"nx-ipc/result"
)

type domainEntry struct {
	id     message.DomainObjectID
	object Object
}

func domainLess(a, b domainEntry) bool {
	return a.id < b.id
}

// DomainTable maps the object ids of one domain to their objects. Sessions
// cloned from a domain session share its table.
type DomainTable struct {
	mu      sync.Mutex
	entries *btree.BTreeG[domainEntry]
}

func NewDomainTable() *DomainTable {
	return &DomainTable{entries: btree.NewG(8, domainLess)}
}

// AllocateID stores obj under the lowest free id, starting at 1.
func (d *DomainTable) AllocateID(obj Object) (message.DomainObjectID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := message.DomainObjectID(1)
	d.entries.Ascend(func(e domainEntry) bool {
		if e.id != next {
			return false
		}
		next++
		return next != 0
	})
	if next == 0 {
		return 0, result.ResultDomainObjectsFull
	}
	d.entries.ReplaceOrInsert(domainEntry{id: next, object: obj})
	return next, nil
}

func (d *DomainTable) AllocateSpecificID(id message.DomainObjectID, obj Object) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id == 0 || d.entries.Has(domainEntry{id: id}) {
		return result.ResultObjectIDAlreadyAllocated
	}
	d.entries.ReplaceOrInsert(domainEntry{id: id, object: obj})
	return nil
}

func (d *DomainTable) Find(id message.DomainObjectID) (Object, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries.Get(domainEntry{id: id})
	return e.object, ok
}

func (d *DomainTable) Deallocate(id message.DomainObjectID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries.Delete(domainEntry{id: id}); !ok {
		return result.ResultDomainNotFound
	}
	return nil
}

func (d *DomainTable) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries.Len()
}
