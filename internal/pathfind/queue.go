package pathfind

// node is a search state. g counts hops from the source.
type node struct {
	name   string
	g      float64
	h      float64
	f      float64
	parent *node
	index  int // position in the heap, -1 once popped
}

// nodeQueue is a binary min-heap on f. Equal f is broken by the
// lexicographically smallest system name, so the expansion order does not
// depend on map iteration or insertion order.
type nodeQueue []*node

func (q nodeQueue) Len() int { return len(q) }

func (q nodeQueue) Less(i, j int) bool {
	if q[i].f != q[j].f {
		return q[i].f < q[j].f
	}
	return q[i].name < q[j].name
}

func (q nodeQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *nodeQueue) Push(x interface{}) {
	n := x.(*node)
	n.index = len(*q)
	*q = append(*q, n)
}

func (q *nodeQueue) Pop() interface{} {
	old := *q
	last := len(old) - 1
	n := old[last]
	old[last] = nil
	n.index = -1
	*q = old[:last]
	return n
}
