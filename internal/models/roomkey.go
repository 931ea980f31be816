package models

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RoomKey адресует комнату синхронизации на общем транспорте.
// Один ключ соответствует ровно одной паре (projectID, fileName).
type RoomKey string

// ErrInvalidRoomKey возвращается, если ключ комнаты не удалось разобрать
var ErrInvalidRoomKey = errors.New("invalid room key")

// roomKeySeparator разделяет часть проекта и имя файла.
// В экранированном projectID сырой '-' не встречается, поэтому
// первый '-' в ключе всегда является разделителем.
const roomKeySeparator = "-"

var projectEscaper = strings.NewReplacer("%", "%25", "-", "%2D")
var projectUnescaper = strings.NewReplacer("%2D", "-", "%25", "%")

// NewRoomKey строит ключ комнаты для пары (projectID, fileName).
// Имя файла нормализуется в NFC, чтобы визуально одинаковые имена
// попадали в одну комнату.
func NewRoomKey(projectID, fileName string) RoomKey {
	return RoomKey(projectEscaper.Replace(projectID) + roomKeySeparator + NormalizeFileName(fileName))
}

// ParseRoomKey восстанавливает (projectID, fileName) из ключа комнаты.
func ParseRoomKey(key RoomKey) (projectID, fileName string, err error) {
	raw := string(key)
	idx := strings.Index(raw, roomKeySeparator)
	if idx <= 0 || idx == len(raw)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRoomKey, raw)
	}

	projectID = projectUnescaper.Replace(raw[:idx])
	fileName = raw[idx+1:]

	// Ключ должен быть каноническим, иначе две строки давали бы одну комнату
	if NewRoomKey(projectID, fileName) != key {
		return "", "", fmt.Errorf("%w: %q is not canonical", ErrInvalidRoomKey, raw)
	}

	return projectID, fileName, nil
}

// NormalizeFileName приводит имя файла к канонической форме (NFC)
func NormalizeFileName(fileName string) string {
	return norm.NFC.String(strings.TrimSpace(fileName))
}

func (k RoomKey) String() string {
	return string(k)
}
