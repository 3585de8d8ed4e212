package flush

import (
	"sync"

	"github.com/reiser4/reiser4fs/jnode"
)

// Queues holds per-subvolume flush queues of flush-prepped jnodes, ready
// for writeback (spec.md §4.8 step 4). The original keys these by a
// red-black tree for ordered drain-by-block-number; a plain mutex-guarded
// map is equivalent here since writeback order within one queue has no
// externally-visible effect in this model (see DESIGN.md's Open Question
// resolution on flush-queue ordering).
type Queues struct {
	mu    sync.Mutex
	byVol map[uint32][]*jnode.Node
}

func NewQueues() *Queues {
	return &Queues{byVol: make(map[uint32][]*jnode.Node)}
}

func (q *Queues) Enqueue(subvolume uint32, n *jnode.Node) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byVol[subvolume] = append(q.byVol[subvolume], n)
}

// Drain removes and returns every queued jnode for subvolume, clearing
// FLUSH_QUEUED on each as it leaves the queue for writeback.
func (q *Queues) Drain(subvolume uint32) []*jnode.Node {
	q.mu.Lock()
	nodes := q.byVol[subvolume]
	delete(q.byVol, subvolume)
	q.mu.Unlock()

	for _, n := range nodes {
		n.Mu.Lock()
		n.ClearFlushQueued()
		n.Mu.Unlock()
	}
	return nodes
}

func (q *Queues) Len(subvolume uint32) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byVol[subvolume])
}
