package search

import "transit-isochrone/internal/reach"

type queued struct {
	label reach.Label
	seq   uint64
}

// labelQueue is a min-heap on (arrival, location, push order).
type labelQueue []queued

func (q labelQueue) Len() int { return len(q) }

func (q labelQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.label.Arrival != b.label.Arrival {
		return a.label.Arrival < b.label.Arrival
	}
	if a.label.Location != b.label.Location {
		return a.label.Location < b.label.Location
	}
	return a.seq < b.seq
}

func (q labelQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *labelQueue) Push(x any) { *q = append(*q, x.(queued)) }

func (q *labelQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}
