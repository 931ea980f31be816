package crdt

import (
	"sync"

	"github.com/google/uuid"
)

// LamportClock представляет логические часы Лампорта актора документа.
// Каждый новый элемент получает значение строго больше любого,
// которое реплика видела к моменту вставки.
type LamportClock struct {
	actor   string     // идентификатор актора (реплики)
	counter uint64     // монотонно возрастающий счетчик
	mu      sync.Mutex // мьютекс для потокобезопасности
}

// NewLamportClock создает часы со случайным идентификатором актора (UUID).
func NewLamportClock() *LamportClock {
	return NewLamportClockWithActor(uuid.New().String())
}

// NewLamportClockWithActor создает часы с заданным идентификатором актора.
// Используется для тестирования и детерминированного наполнения.
func NewLamportClockWithActor(actor string) *LamportClock {
	return &LamportClock{
		actor: actor,
	}
}

// Tick увеличивает счетчик и возвращает новое значение.
// Используется при создании нового локального элемента или удаления.
func (lc *LamportClock) Tick() uint64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.counter++
	return lc.counter
}

// Witness учитывает значение, полученное от другого актора:
// counter = max(counter, remote). Следующий Tick вернет большее значение.
func (lc *LamportClock) Witness(remote uint64) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if remote > lc.counter {
		lc.counter = remote
	}
}

// Current возвращает текущее значение счетчика без изменения
func (lc *LamportClock) Current() uint64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	return lc.counter
}

// Actor возвращает идентификатор актора
func (lc *LamportClock) Actor() string {
	return lc.actor
}
