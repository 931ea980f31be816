package session

import "sync"

// queue потокобезопасная неограниченная FIFO-очередь.
// Локальные правки и входящие сообщения не должны ждать сеть, поэтому
// Push никогда не блокируется. Канал signal (буфер 1) объединяет
// уведомления и позволяет ждать данных вместе с ctx.Done().
type queue[T any] struct {
	signal chan struct{}
	items  []T
	mu     sync.Mutex
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Push добавляет элемент в конец очереди
func (q *queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// PopAll забирает все накопленные элементы
func (q *queue[T]) PopAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	items := q.items
	q.items = make([]T, 0, 16)
	return items
}

// Len возвращает количество элементов в очереди
func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Signal возвращает канал уведомления о новых элементах
func (q *queue[T]) Signal() <-chan struct{} {
	return q.signal
}
