package queue

import "golang.org/x/sync/singleflight"

// Deduplicator collapses concurrent in-flight calls that share a key: while
// a call for key is running, other callers wait for and share its result
// instead of starting a duplicate. Entries are forgotten once settled, so a
// later call for the same key runs fresh.
type Deduplicator struct {
	group singleflight.Group
}

// Do runs fn for key, unless a call for key is already in flight, in which
// case it waits for that call and returns its result.
func (d *Deduplicator) Do(key string, fn func() (string, error)) (string, error) {
	v, err, _ := d.group.Do(key, func() (any, error) {
		return fn()
	})
	d.group.Forget(key)
	id, _ := v.(string)
	return id, err
}
