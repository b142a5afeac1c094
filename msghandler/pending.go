package msghandler

import (
	"sort"
	"time"
)

type pendingItem struct {
	key       string
	timestamp time.Time
}

type pendingQueue []pendingItem

func (p pendingQueue) Len() int {
	return len(p)
}

func (p pendingQueue) Less(i, j int) bool {
	return p[i].timestamp.Before(p[j].timestamp)
}

func (p pendingQueue) Swap(i, j int) {
	p[i], p[j] = p[j], p[i]
}

func pendingOldest(pending map[string]*waiter) pendingQueue {
	queue := make(pendingQueue, 0, len(pending))
	for key, w := range pending {
		queue = append(queue, pendingItem{
			key, w.created,
		})
	}
	sort.Sort(queue)
	return queue
}
