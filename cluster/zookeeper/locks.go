package zookeeper

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// LockEntries is a container of locks.
type LockEntries struct {
	// Map of lock ID integer to the full znode path.
	m map[int]string
	// List of IDs ascending.
	l []int
}

// entriesFrom builds a LockEntries from the child names of namespace.
func entriesFrom(namespace string, children []string) LockEntries {
	var locks = LockEntries{
		m: map[int]string{},
		l: []int{},
	}

	for _, n := range children {
		id, err := idFromZnode(n)
		// Ignore junk entries.
		if err == ErrInvalidSeqNode {
			continue
		}
		locks.m[id] = fmt.Sprintf("%s/%s", namespace, n)
		locks.l = append(locks.l, id)
	}

	sort.Ints(locks.l)

	return locks
}

// idFromZnode returns the store-assigned sequence suffix of a sequential
// znode name or path.
func idFromZnode(s string) (int, error) {
	idx := strings.LastIndex(s, "-")
	if idx == -1 || idx == len(s)-1 {
		return 0, ErrInvalidSeqNode
	}

	id, err := strconv.Atoi(s[idx+1:])
	if err != nil || id < 0 {
		return 0, ErrInvalidSeqNode
	}

	return id, nil
}

// IDs returns all held lock IDs ascending.
func (le LockEntries) IDs() []int {
	return le.l
}

// Paths returns the znode paths in lock order.
func (le LockEntries) Paths() []string {
	paths := make([]string, 0, len(le.l))
	for _, id := range le.l {
		paths = append(paths, le.m[id])
	}
	return paths
}

// First returns the ID with the lowest value.
func (le LockEntries) First() (int, error) {
	if len(le.IDs()) == 0 {
		return 0, fmt.Errorf("no active locks")
	}

	return le.IDs()[0], nil
}

// Contains reports whether id is present.
func (le LockEntries) Contains(id int) bool {
	_, exists := le.m[id]
	return exists
}

// LockPath takes a lock ID and returns the znode path.
func (le LockEntries) LockPath(id int) (string, error) {
	if path, exists := le.m[id]; exists {
		return path, nil
	}
	return "", fmt.Errorf("failed to get lock path; referenced ID doesn't exist")
}

// LockAhead returns the lock ahead of the ID provided.
func (le LockEntries) LockAhead(id int) (int, error) {
	for i, next := range le.l {
		if next == id && i > 0 {
			return le.l[i-1], nil
		}
	}

	return 0, fmt.Errorf("unable to determine which lock to enqueue behind")
}

// Position returns the zero-based queue position of id; 0 is the holder.
func (le LockEntries) Position(id int) (int, error) {
	for i, next := range le.l {
		if next == id {
			return i, nil
		}
	}

	return 0, fmt.Errorf("lock ID %d isn't queued", id)
}
