package models

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ElementID уникальный глобально сравнимый идентификатор элемента документа.
// Counter является значением часов Лампорта актора на момент вставки.
type ElementID struct {
	Actor   string `json:"actor"`
	Counter uint64 `json:"counter"`
}

// IsZero сообщает, что идентификатор указывает на начало документа
func (id ElementID) IsZero() bool {
	return id.Actor == "" && id.Counter == 0
}

// Less задает полный порядок над идентификаторами:
// сначала Counter, при равенстве - Actor (лексикографически).
func (id ElementID) Less(other ElementID) bool {
	if id.Counter != other.Counter {
		return id.Counter < other.Counter
	}
	return id.Actor < other.Actor
}

func (id ElementID) String() string {
	return fmt.Sprintf("%s@%d", id.Actor, id.Counter)
}

// OpKind тип операции над документом
type OpKind string

// OpKind константы
const (
	OpInsert OpKind = "insert"
	OpDelete OpKind = "delete"
)

// Op одна операция внутри Update.
// Для вставки ID - идентификатор нового элемента, Origin - левый сосед
// на момент вставки. Для удаления ID - идентификатор удаляемого элемента.
type Op struct {
	Kind   OpKind    `json:"kind"`
	Value  string    `json:"value,omitempty"`
	ID     ElementID `json:"id"`
	Origin ElementID `json:"origin"`
}

// Update неизменяемая дельта документа.
// Counter - наибольшее значение часов, израсходованное этим обновлением,
// Prev - Counter предыдущего обновления того же актора (0 для первого).
type Update struct {
	RoomKey RoomKey `json:"room_key"`
	Actor   string  `json:"actor"`
	Ops     []Op    `json:"ops"`
	Counter uint64  `json:"counter"`
	Prev    uint64  `json:"prev"`
}

// ErrInvalidUpdate возвращается при структурно некорректном обновлении
var ErrInvalidUpdate = errors.New("invalid update")

// IsEmpty сообщает, что обновление не содержит операций
func (u *Update) IsEmpty() bool {
	return len(u.Ops) == 0
}

// Stamp возвращает идентификатор самого обновления (актор + его Counter).
// Используется как отметка удаления для tombstone.
func (u *Update) Stamp() ElementID {
	return ElementID{Actor: u.Actor, Counter: u.Counter}
}

// Validate проверяет, что обновление самоописываемо и согласовано:
// вставки принадлежат актору обновления и укладываются в (Prev, Counter].
func (u *Update) Validate() error {
	if u.Actor == "" {
		return fmt.Errorf("%w: empty actor", ErrInvalidUpdate)
	}
	if u.Counter == 0 || u.Counter <= u.Prev {
		return fmt.Errorf("%w: counter %d must be greater than prev %d", ErrInvalidUpdate, u.Counter, u.Prev)
	}
	if len(u.Ops) == 0 {
		return fmt.Errorf("%w: no operations", ErrInvalidUpdate)
	}

	for i, op := range u.Ops {
		switch op.Kind {
		case OpInsert:
			if op.ID.Actor != u.Actor {
				return fmt.Errorf("%w: op %d inserted by foreign actor %q", ErrInvalidUpdate, i, op.ID.Actor)
			}
			if op.ID.Counter <= u.Prev || op.ID.Counter > u.Counter {
				return fmt.Errorf("%w: op %d counter %d out of range", ErrInvalidUpdate, i, op.ID.Counter)
			}
			if utf8.RuneCountInString(op.Value) != 1 {
				return fmt.Errorf("%w: op %d must insert exactly one character", ErrInvalidUpdate, i)
			}
		case OpDelete:
			if op.ID.IsZero() {
				return fmt.Errorf("%w: op %d deletes document head", ErrInvalidUpdate, i)
			}
		default:
			return fmt.Errorf("%w: op %d has unknown kind %q", ErrInvalidUpdate, i, op.Kind)
		}
	}

	return nil
}

// Clone создает глубокую копию обновления
func (u *Update) Clone() Update {
	ops := make([]Op, len(u.Ops))
	copy(ops, u.Ops)

	return Update{
		RoomKey: u.RoomKey,
		Actor:   u.Actor,
		Ops:     ops,
		Counter: u.Counter,
		Prev:    u.Prev,
	}
}

// VersionVector отображение actorID -> Counter последнего примененного обновления
type VersionVector map[string]uint64

// Clone создает копию вектора версий
func (vv VersionVector) Clone() VersionVector {
	out := make(VersionVector, len(vv))
	for actor, counter := range vv {
		out[actor] = counter
	}
	return out
}

// Covers сообщает, что элемент с данным идентификатором уже учтен вектором
func (vv VersionVector) Covers(id ElementID) bool {
	return vv[id.Actor] >= id.Counter
}

// Dominates сообщает, что вектор учитывает все, что учитывает other
func (vv VersionVector) Dominates(other VersionVector) bool {
	for actor, counter := range other {
		if vv[actor] < counter {
			return false
		}
	}
	return true
}

// Merge поднимает значения вектора до значений other
func (vv VersionVector) Merge(other VersionVector) {
	for actor, counter := range other {
		if vv[actor] < counter {
			vv[actor] = counter
		}
	}
}

// MinVersion возвращает поэлементный минимум векторов.
// Отсутствующий в одном из векторов актор считается нулевым и в результат не попадает.
func MinVersion(vectors ...VersionVector) VersionVector {
	out := make(VersionVector)
	if len(vectors) == 0 {
		return out
	}

	for actor, counter := range vectors[0] {
		lowest := counter
		for _, other := range vectors[1:] {
			if other[actor] < lowest {
				lowest = other[actor]
			}
		}
		if lowest > 0 {
			out[actor] = lowest
		}
	}

	return out
}
