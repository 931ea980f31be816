package validation

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/iudanet/gophtex/internal/models"
)

// ErrInvalid оборачивает все ошибки валидации
var ErrInvalid = errors.New("validation failed")

const (
	// MaxDisplayNameLen максимальная длина отображаемого имени (в символах)
	MaxDisplayNameLen = 64
	// MaxProjectNameLen максимальная длина имени проекта (в символах)
	MaxProjectNameLen = 128
	// MaxFileNameLen максимальная длина имени файла (в символах)
	MaxFileNameLen = 128
)

// ColorPattern определяет формат цвета присутствия: #RRGGBB
var ColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// FileNamePattern допустимые символы имени файла: буквы, цифры, '.', '_', '-', пробел
var FileNamePattern = regexp.MustCompile(`^[\p{L}\p{N}._\- ]+$`)

// ValidateDisplayName проверяет отображаемое имя участника
// Не пустое, без управляющих символов, до 64 символов
func ValidateDisplayName(name string) error {
	return validateLabel("display name", name, MaxDisplayNameLen)
}

// ValidateProjectName проверяет имя проекта
func ValidateProjectName(name string) error {
	return validateLabel("project name", name, MaxProjectNameLen)
}

// ValidateColor проверяет цвет присутствия. Пустой цвет допустим:
// сервер выберет цвет из палитры.
func ValidateColor(color string) error {
	if color == "" {
		return nil
	}
	if !ColorPattern.MatchString(color) {
		return fmt.Errorf("%w: color must look like #RRGGBB", ErrInvalid)
	}
	return nil
}

// ValidateFileName проверяет имя файла проекта и возвращает его
// каноническую форму (NFC, без пробелов по краям).
// Имя не может содержать путь и не может начинаться с точки.
func ValidateFileName(name string) (string, error) {
	name = models.NormalizeFileName(name)

	if name == "" {
		return "", fmt.Errorf("%w: file name cannot be empty", ErrInvalid)
	}
	if utf8.RuneCountInString(name) > MaxFileNameLen {
		return "", fmt.Errorf("%w: file name must not exceed %d characters", ErrInvalid, MaxFileNameLen)
	}
	if strings.HasPrefix(name, ".") || path.Base(name) != name {
		return "", fmt.Errorf("%w: file name must not be a path", ErrInvalid)
	}
	if !FileNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: file name can only contain letters, digits, spaces, '.', '_' and '-'", ErrInvalid)
	}

	return name, nil
}

func validateLabel(what, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalid, what)
	}
	if !utf8.ValidString(value) {
		return fmt.Errorf("%w: %s must be valid UTF-8", ErrInvalid, what)
	}
	if utf8.RuneCountInString(value) > maxLen {
		return fmt.Errorf("%w: %s must not exceed %d characters", ErrInvalid, what, maxLen)
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %s must not contain control characters", ErrInvalid, what)
		}
	}
	return nil
}
