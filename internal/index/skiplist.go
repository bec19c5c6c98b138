package index

import (
	"bytes"
	"math/rand"
	"sync"

	"github.com/barreldb/barreldb/internal/data"
)

// SkipListIndex is the volatile skip-list backend. No standalone
// skip-list library appears anywhere in this project's dependency
// corpus — the only precedent is badger's unexported, arena-based
// internal/skl package — so this is a from-scratch implementation,
// grounded on that design's shape (per-node height, probabilistic
// leveling, forward pointers per level) but guarded by a plain mutex
// instead of badger's lock-free arena, which is out of proportion for an
// embedded single-process index.
type SkipListIndex struct {
	mu     sync.RWMutex
	head   *skipNode
	height int
	rnd    *rand.Rand
}

const skipListMaxHeight = 16
const skipListP = 0.25

type skipNode struct {
	key     []byte
	pos     data.RecordPosition
	forward []*skipNode
}

// NewSkipListIndex creates an empty skip list.
func NewSkipListIndex() *SkipListIndex {
	return &SkipListIndex{
		head:   &skipNode{forward: make([]*skipNode, skipListMaxHeight)},
		height: 1,
		rnd:    rand.New(rand.NewSource(0xb117ca5d)),
	}
}

func (s *SkipListIndex) randomHeight() int {
	h := 1
	for h < skipListMaxHeight && s.rnd.Float64() < skipListP {
		h++
	}
	return h
}

// search returns, for each level, the last node whose key is < key (or
// the head sentinel if none). update[0].forward[0] is either the node
// with the target key or its forward-insertion point.
func (s *SkipListIndex) search(key []byte) []*skipNode {
	update := make([]*skipNode, skipListMaxHeight)
	cur := s.head
	for level := s.height - 1; level >= 0; level-- {
		for cur.forward[level] != nil && bytes.Compare(cur.forward[level].key, key) < 0 {
			cur = cur.forward[level]
		}
		update[level] = cur
	}
	return update
}

func (s *SkipListIndex) Put(key []byte, pos data.RecordPosition) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	update := s.search(key)
	if next := update[0].forward[0]; next != nil && bytes.Equal(next.key, key) {
		next.pos = pos
		return true
	}

	newHeight := s.randomHeight()
	if newHeight > s.height {
		for level := s.height; level < newHeight; level++ {
			update[level] = s.head
		}
		s.height = newHeight
	}

	node := &skipNode{key: append([]byte(nil), key...), pos: pos, forward: make([]*skipNode, newHeight)}
	for level := 0; level < newHeight; level++ {
		node.forward[level] = update[level].forward[level]
		update[level].forward[level] = node
	}
	return true
}

func (s *SkipListIndex) Get(key []byte) (data.RecordPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur := s.head
	for level := s.height - 1; level >= 0; level-- {
		for cur.forward[level] != nil && bytes.Compare(cur.forward[level].key, key) < 0 {
			cur = cur.forward[level]
		}
	}
	next := cur.forward[0]
	if next == nil || !bytes.Equal(next.key, key) {
		return data.RecordPosition{}, false
	}
	return next.pos, true
}

func (s *SkipListIndex) Delete(key []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	update := s.search(key)
	target := update[0].forward[0]
	if target == nil || !bytes.Equal(target.key, key) {
		return false
	}
	for level := 0; level < len(target.forward); level++ {
		if update[level].forward[level] == target {
			update[level].forward[level] = target.forward[level]
		}
	}
	for s.height > 1 && s.head.forward[s.height-1] == nil {
		s.height--
	}
	return true
}

func (s *SkipListIndex) Iterator(opts IteratorOptions) Iterator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []indexItem
	for cur := s.head.forward[0]; cur != nil; cur = cur.forward[0] {
		items = append(items, indexItem{key: cur.key, pos: cur.pos})
	}
	return newSliceIterator(items, opts)
}

func (s *SkipListIndex) ListKeys() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys [][]byte
	for cur := s.head.forward[0]; cur != nil; cur = cur.forward[0] {
		keys = append(keys, cur.key)
	}
	return keys
}

func (s *SkipListIndex) Close() error {
	return nil
}
