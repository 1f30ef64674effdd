// Package directory keeps the user <-> ticket thread routing table.
package directory

import "sync"

// Directory maps each user to at most one ticket thread and back, and
// remembers threads closed locally before the platform confirms it.
type Directory struct {
	mu           sync.RWMutex
	userToThread map[string]string
	threadToUser map[string]string
	closed       map[string]struct{}
}

func New() *Directory {
	return &Directory{
		userToThread: make(map[string]string),
		threadToUser: make(map[string]string),
		closed:       make(map[string]struct{}),
	}
}

func (d *Directory) LookupByUser(userID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	threadID, ok := d.userToThread[userID]
	return threadID, ok
}

func (d *Directory) LookupByThread(threadID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	userID, ok := d.threadToUser[threadID]
	return userID, ok
}

// Bind installs userID <-> threadID, dropping whatever either side was bound to before.
func (d *Directory) Bind(userID, threadID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.userToThread[userID]; ok && old != threadID {
		delete(d.threadToUser, old)
	}
	if old, ok := d.threadToUser[threadID]; ok && old != userID {
		delete(d.userToThread, old)
	}
	d.userToThread[userID] = threadID
	d.threadToUser[threadID] = userID
}

func (d *Directory) Unbind(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if threadID, ok := d.userToThread[userID]; ok {
		delete(d.threadToUser, threadID)
	}
	delete(d.userToThread, userID)
}

func (d *Directory) UnbindThread(threadID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if userID, ok := d.threadToUser[threadID]; ok {
		delete(d.userToThread, userID)
	}
	delete(d.threadToUser, threadID)
}

// Evict removes userID's binding only if it still points at threadID.
func (d *Directory) Evict(userID, threadID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.userToThread[userID] == threadID {
		delete(d.userToThread, userID)
	}
	if d.threadToUser[threadID] == userID {
		delete(d.threadToUser, threadID)
	}
}

func (d *Directory) MarkClosed(threadID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed[threadID] = struct{}{}
}

func (d *Directory) IsClosed(threadID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.closed[threadID]
	return ok
}

func (d *Directory) ClearClosed(threadID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.closed, threadID)
}

// Len returns the number of bound tickets.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.userToThread)
}
