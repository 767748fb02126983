package scheduler

import (
	"container/heap"
	"time"
)

// entry es un item pendiente en la cola de deadlines. due es el instante en
// que el scheduler debe actuar sobre él: deadline − lead_time para la
// decisión de disparo, o el deadline mismo para la verificación de expiración
// de un item que seguía PENDING en su ventana de decisión.
type entry struct {
	id       uint64
	deadline time.Time
	due      time.Time
	lane     int
	index    int
}

// deadlineHeap es un min-heap por due: la cola ordenada por deadline es la
// única fuente de verdad de qué sigue, no el orden de llegada de resultados
type deadlineHeap []*entry

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool { return h[i].due.Before(h[j].due) }

func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// peek retorna el próximo entry sin sacarlo
func (h deadlineHeap) peek() *entry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

var _ heap.Interface = (*deadlineHeap)(nil)
