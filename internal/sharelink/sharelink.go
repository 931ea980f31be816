// Package sharelink строит и проверяет подписанные ссылки на файл проекта.
// Ссылка имеет вид <base>/project/<projectID>?file=<name>&sig=<mac>
// и однозначно разрешается обратно в ключ комнаты.
package sharelink

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/iudanet/gophtex/internal/models"
)

const projectPathPrefix = "/project/"

var (
	// ErrInvalidLink ссылка не соответствует формату
	ErrInvalidLink = errors.New("invalid share link")
	// ErrBadSignature подпись ссылки не совпала
	ErrBadSignature = errors.New("share link signature mismatch")
)

// Target файл проекта, на который указывает ссылка
type Target struct {
	ProjectID string
	FileName  string
}

// RoomKey ключ комнаты файла
func (t Target) RoomKey() models.RoomKey {
	return models.NewRoomKey(t.ProjectID, t.FileName)
}

// Signer подписывает ссылки ключом blake2b
type Signer struct {
	base *url.URL
	key  []byte
}

// NewSigner создает Signer для базового адреса baseURL.
// Ключ длиннее 64 байт сжимается blake2b-512.
func NewSigner(baseURL string, key []byte) (*Signer, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidLink)
	}
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}

	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: bad base url %q", ErrInvalidLink, baseURL)
	}

	return &Signer{base: base, key: key}, nil
}

// Link строит подписанную ссылку на файл проекта
func (s *Signer) Link(projectID, fileName string) (string, error) {
	fileName = models.NormalizeFileName(fileName)
	if projectID == "" || fileName == "" {
		return "", fmt.Errorf("%w: project and file are required", ErrInvalidLink)
	}

	sig, err := s.sign(projectID, fileName)
	if err != nil {
		return "", err
	}

	u := *s.base
	u.Path = s.base.Path + projectPathPrefix + projectID
	u.RawPath = s.base.EscapedPath() + projectPathPrefix + url.PathEscape(projectID)
	u.RawQuery = url.Values{"file": {fileName}, "sig": {sig}}.Encode()
	return u.String(), nil
}

// Resolve проверяет подпись ссылки и возвращает файл, на который она указывает.
// Адрес сервера в ссылке не проверяется: узлы с общим ключом взаимозаменяемы.
func (s *Signer) Resolve(link string) (Target, error) {
	u, err := url.Parse(link)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %w", ErrInvalidLink, err)
	}

	idx := strings.LastIndex(u.Path, projectPathPrefix)
	if idx < 0 {
		return Target{}, fmt.Errorf("%w: missing project path", ErrInvalidLink)
	}
	projectID := u.Path[idx+len(projectPathPrefix):]
	if projectID == "" || strings.Contains(projectID, "/") {
		return Target{}, fmt.Errorf("%w: bad project id", ErrInvalidLink)
	}

	query := u.Query()
	fileName := models.NormalizeFileName(query.Get("file"))
	sig := query.Get("sig")
	if fileName == "" || sig == "" {
		return Target{}, fmt.Errorf("%w: file and sig are required", ErrInvalidLink)
	}

	expected, err := s.sign(projectID, fileName)
	if err != nil {
		return Target{}, err
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return Target{}, ErrBadSignature
	}

	return Target{ProjectID: projectID, FileName: fileName}, nil
}

// sign вычисляет MAC пары (projectID, fileName).
// Нулевой байт не встречается в идентификаторах, поэтому кодирование однозначно.
func (s *Signer) sign(projectID, fileName string) (string, error) {
	h, err := blake2b.New256(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to create mac: %w", err)
	}
	h.Write([]byte(projectID))
	h.Write([]byte{0})
	h.Write([]byte(fileName))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}
