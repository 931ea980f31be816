package crdt

import (
	"sort"
	"strings"
	"sync"

	"github.com/iudanet/gophtex/internal/models"
)

// SeedActor актор, от имени которого в документ вставляется начальный шаблон.
// Идентификаторы шаблона детерминированы, поэтому повторное наполнение
// тем же текстом на любой реплике ничего не меняет.
const SeedActor = "~seed"

// ApplyResult результат применения удаленного обновления
type ApplyResult int

const (
	// Applied обновление применено (возможно вместе с ожидавшими)
	Applied ApplyResult = iota
	// Buffered не хватает причинных зависимостей, обновление ждет их
	Buffered
	// Duplicate обновление уже было применено или уже ждет в буфере
	Duplicate
	// Rejected обновление структурно некорректно и отброшено
	Rejected
)

func (r ApplyResult) String() string {
	switch r {
	case Applied:
		return "applied"
	case Buffered:
		return "buffered"
	case Duplicate:
		return "duplicate"
	default:
		return "rejected"
	}
}

// Change уведомление подписчиков о применении обновления
type Change struct {
	Update models.Update
	Local  bool
}

// element символ документа в связном списке RGA
type element struct {
	prev      *element
	next      *element
	value     string
	id        models.ElementID
	origin    models.ElementID
	deletedBy models.ElementID
	deleted   bool
}

// Document реплика одного файла: упорядоченная последовательность символов
// в виде CRDT (Replicated Growable Array).
//
// Элемент, вставленный после origin, размещается после всех следующих за
// origin элементов с большим идентификатором. Идентификаторы - значения часов
// Лампорта, поэтому порядок не зависит от порядка доставки и реплики,
// применившие одно и то же множество обновлений, показывают одинаковый текст.
type Document struct {
	head        *element
	clock       *LamportClock
	index       map[models.ElementID]*element
	compacted   map[models.ElementID]struct{}
	vv          models.VersionVector
	subscribers map[int]func(Change)
	roomKey     models.RoomKey
	text        string
	log         []models.Update
	pending     []models.Update
	visible     int
	nextSub     int
	mu          sync.Mutex
	textValid   bool
}

// NewDocument создает пустую реплику для комнаты roomKey.
// Локальные правки подписываются актором часов clock.
func NewDocument(roomKey models.RoomKey, clock *LamportClock) *Document {
	return &Document{
		head:        &element{},
		clock:       clock,
		index:       make(map[models.ElementID]*element),
		compacted:   make(map[models.ElementID]struct{}),
		vv:          make(models.VersionVector),
		subscribers: make(map[int]func(Change)),
		roomKey:     roomKey,
		textValid:   true,
	}
}

// Actor возвращает идентификатор локального актора
func (d *Document) Actor() string {
	return d.clock.Actor()
}

// RoomKey возвращает ключ комнаты документа
func (d *Document) RoomKey() models.RoomKey {
	return d.roomKey
}

// LocalInsert вставляет text в видимую позицию pos.
// Позиция за пределами документа прижимается к границе; вставка пустой
// строки возвращает пустое обновление, которое не нужно рассылать.
func (d *Document) LocalInsert(pos int, text string) models.Update {
	runes := []rune(text)

	d.mu.Lock()
	actor := d.clock.Actor()
	update := models.Update{RoomKey: d.roomKey, Actor: actor, Prev: d.vv[actor]}
	if len(runes) == 0 {
		d.mu.Unlock()
		return update
	}

	left := d.visibleAt(clamp(pos, 0, d.visible))
	origin := left.id
	update.Ops = make([]models.Op, 0, len(runes))

	for _, r := range runes {
		op := models.Op{
			Kind:   models.OpInsert,
			ID:     models.ElementID{Actor: actor, Counter: d.clock.Tick()},
			Origin: origin,
			Value:  string(r),
		}
		d.integrateInsert(op)
		update.Ops = append(update.Ops, op)
		origin = op.ID
	}
	update.Counter = origin.Counter

	d.commit(update)
	subscribers := d.subscribersLocked()
	d.mu.Unlock()

	notify(subscribers, Change{Update: update.Clone(), Local: true})
	return update
}

// LocalDelete помечает удаленными length видимых символов начиная с pos.
// Диапазон прижимается к границам документа и никогда не является ошибкой.
func (d *Document) LocalDelete(pos, length int) models.Update {
	d.mu.Lock()
	actor := d.clock.Actor()
	update := models.Update{RoomKey: d.roomKey, Actor: actor, Prev: d.vv[actor]}

	start := clamp(pos, 0, d.visible)
	end := clamp(start+length, start, d.visible)
	if length <= 0 || start == end {
		d.mu.Unlock()
		return update
	}

	targets := make([]*element, 0, end-start)
	for e := d.visibleAt(start).next; e != nil && len(targets) < end-start; e = e.next {
		if !e.deleted {
			targets = append(targets, e)
		}
	}

	update.Counter = d.clock.Tick()
	stamp := update.Stamp()
	update.Ops = make([]models.Op, 0, len(targets))
	for _, e := range targets {
		update.Ops = append(update.Ops, models.Op{Kind: models.OpDelete, ID: e.id})
		d.markDeleted(e, stamp)
	}

	d.commit(update)
	subscribers := d.subscribersLocked()
	d.mu.Unlock()

	notify(subscribers, Change{Update: update.Clone(), Local: true})
	return update
}

// ApplyRemote сливает чужое обновление с репликой.
// Повторное применение ничего не меняет. Обновление, у которого еще нет
// причинных зависимостей (предыдущее обновление актора, левый сосед вставки,
// цель удаления), буферизуется и применяется, как только они придут.
func (d *Document) ApplyRemote(update models.Update) ApplyResult {
	if err := update.Validate(); err != nil {
		return Rejected
	}

	d.mu.Lock()
	if d.vv[update.Actor] >= update.Counter || d.isPending(update) {
		d.mu.Unlock()
		return Duplicate
	}

	if !d.ready(&update) {
		d.pending = append(d.pending, update.Clone())
		d.mu.Unlock()
		return Buffered
	}

	applied := []models.Update{update.Clone()}
	d.integrate(applied[0])
	applied = append(applied, d.drainPending()...)
	subscribers := d.subscribersLocked()
	d.mu.Unlock()

	for _, u := range applied {
		notify(subscribers, Change{Update: u})
	}
	return Applied
}

// Seed наполняет документ шаблоном от имени SeedActor.
// Детерминированные идентификаторы делают повторное наполнение no-op.
func (d *Document) Seed(text string) ApplyResult {
	update := SeedUpdate(d.roomKey, text)
	if update.IsEmpty() {
		return Duplicate
	}
	return d.ApplyRemote(update)
}

// SeedUpdate строит детерминированное обновление с начальным текстом
func SeedUpdate(roomKey models.RoomKey, text string) models.Update {
	update := models.Update{RoomKey: roomKey, Actor: SeedActor}

	var origin models.ElementID
	for _, r := range text {
		id := models.ElementID{Actor: SeedActor, Counter: origin.Counter + 1}
		update.Ops = append(update.Ops, models.Op{
			Kind:   models.OpInsert,
			ID:     id,
			Origin: origin,
			Value:  string(r),
		})
		origin = id
	}
	update.Counter = origin.Counter

	return update
}

// Text проецирует CRDT в видимую строку
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.textValid {
		var sb strings.Builder
		for e := d.head.next; e != nil; e = e.next {
			if !e.deleted {
				sb.WriteString(e.value)
			}
		}
		d.text = sb.String()
		d.textValid = true
	}

	return d.text
}

// Len возвращает количество видимых символов
func (d *Document) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.visible
}

// VersionVector возвращает копию вектора версий реплики
func (d *Document) VersionVector() models.VersionVector {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.vv.Clone()
}

// UpdatesSince возвращает примененные обновления, не учтенные вектором vv,
// в порядке применения (он согласован с причинностью).
func (d *Document) UpdatesSince(vv models.VersionVector) []models.Update {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []models.Update
	for i := range d.log {
		if d.log[i].Counter > vv[d.log[i].Actor] {
			out = append(out, d.log[i].Clone())
		}
	}

	return out
}

// PendingCount возвращает количество обновлений, ожидающих зависимостей
func (d *Document) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.pending)
}

// Compact физически удаляет tombstone, вставка и удаление которых учтены
// вектором stable (минимумом по всем известным репликам).
// Пока в буфере есть ожидающие обновления, сборка не выполняется.
// Возвращает количество удаленных элементов.
func (d *Document) Compact(stable models.VersionVector) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) > 0 {
		return 0
	}

	removed := 0
	for e := d.head.next; e != nil; {
		next := e.next
		if e.deleted && stable.Covers(e.id) && stable.Covers(e.deletedBy) {
			e.prev.next = e.next
			if e.next != nil {
				e.next.prev = e.prev
			}
			delete(d.index, e.id)
			d.compacted[e.id] = struct{}{}
			removed++
		}
		e = next
	}

	return removed
}

// Tombstones возвращает количество удаленных, но еще не собранных элементов
func (d *Document) Tombstones() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.index) - d.visible
}

// Subscribe регистрирует обработчик изменений документа.
// Возвращает функцию отписки.
func (d *Document) Subscribe(fn func(Change)) func() {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subscribers[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.subscribers, id)
		d.mu.Unlock()
	}
}

// visibleAt возвращает элемент, после которого начинается видимая позиция pos
// (голову документа для pos == 0).
func (d *Document) visibleAt(pos int) *element {
	e := d.head
	for count := 0; count < pos && e.next != nil; {
		e = e.next
		if !e.deleted {
			count++
		}
	}
	return e
}

// ready проверяет, что все причинные зависимости обновления уже есть
func (d *Document) ready(update *models.Update) bool {
	if d.vv[update.Actor] < update.Prev {
		return false
	}

	inserted := make(map[models.ElementID]struct{})
	for _, op := range update.Ops {
		switch op.Kind {
		case models.OpInsert:
			if !op.Origin.IsZero() && !d.known(op.Origin, inserted) {
				return false
			}
			inserted[op.ID] = struct{}{}
		case models.OpDelete:
			if _, gone := d.compacted[op.ID]; gone {
				continue
			}
			if !d.known(op.ID, inserted) {
				return false
			}
		}
	}

	return true
}

func (d *Document) known(id models.ElementID, inserted map[models.ElementID]struct{}) bool {
	if _, ok := d.index[id]; ok {
		return true
	}
	_, ok := inserted[id]
	return ok
}

func (d *Document) isPending(update models.Update) bool {
	for i := range d.pending {
		if d.pending[i].Actor == update.Actor && d.pending[i].Counter == update.Counter {
			return true
		}
	}
	return false
}

// integrate применяет готовое обновление
func (d *Document) integrate(update models.Update) {
	d.clock.Witness(update.Counter)
	stamp := update.Stamp()

	for _, op := range update.Ops {
		switch op.Kind {
		case models.OpInsert:
			d.integrateInsert(op)
		case models.OpDelete:
			if e, ok := d.index[op.ID]; ok {
				d.markDeleted(e, stamp)
			}
		}
	}

	d.commit(update)
}

// drainPending применяет ожидавшие обновления, пока есть прогресс
func (d *Document) drainPending() []models.Update {
	var applied []models.Update

	for progress := true; progress; {
		progress = false
		remaining := d.pending[:0]
		for _, u := range d.pending {
			switch {
			case d.vv[u.Actor] >= u.Counter:
				// уже применено другим путем
			case d.ready(&u):
				d.integrate(u)
				applied = append(applied, u)
				progress = true
			default:
				remaining = append(remaining, u)
			}
		}
		d.pending = remaining
	}

	return applied
}

func (d *Document) integrateInsert(op models.Op) {
	if _, exists := d.index[op.ID]; exists {
		return
	}

	left := d.head
	if !op.Origin.IsZero() {
		left = d.index[op.Origin]
	}
	// Пропускаем элементы с большим идентификатором: они были вставлены
	// после origin конкурентно или позже и должны стоять левее.
	for left.next != nil && op.ID.Less(left.next.id) {
		left = left.next
	}

	e := &element{id: op.ID, origin: op.Origin, value: op.Value, prev: left, next: left.next}
	if left.next != nil {
		left.next.prev = e
	}
	left.next = e
	d.index[op.ID] = e
	d.visible++
	d.textValid = false
}

func (d *Document) markDeleted(e *element, stamp models.ElementID) {
	if e.deleted {
		return
	}
	e.deleted = true
	e.deletedBy = stamp
	d.visible--
	d.textValid = false
}

func (d *Document) commit(update models.Update) {
	if d.vv[update.Actor] < update.Counter {
		d.vv[update.Actor] = update.Counter
	}
	d.log = append(d.log, update.Clone())
	d.textValid = false
}

func (d *Document) subscribersLocked() []func(Change) {
	ids := make([]int, 0, len(d.subscribers))
	for id := range d.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		out = append(out, d.subscribers[id])
	}
	return out
}

func notify(subscribers []func(Change), change Change) {
	for _, fn := range subscribers {
		fn(change)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
