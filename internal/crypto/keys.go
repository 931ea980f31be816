// Package crypto выводит ключи сервера из общего секрета узлов.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// ServerKeys ключи сервера, выведенные из одного секрета.
// Все узлы с одинаковым секретом получают одинаковые ключи.
type ServerKeys struct {
	TokenKey []byte // ключ подписи токенов участников (32 bytes)
	LinkKey  []byte // ключ подписи ссылок на файлы (32 bytes)
}

// Параметры Argon2id
const (
	// Argon2Time - количество итераций (time cost)
	Argon2Time = 1
	// Argon2Memory - объем памяти в KB (64MB = 64*1024 KB)
	Argon2Memory = 64 * 1024
	// Argon2Threads - количество параллельных потоков
	Argon2Threads = 4
	// Argon2KeyLen - длина выходного ключа в байтах
	Argon2KeyLen = 32
	// SecretSize - размер случайного секрета в байтах
	SecretSize = 32
	// MinSecretLen минимальная длина секрета
	MinSecretLen = 16
)

// keySalt фиксирован: ключи должны совпадать на всех узлах
var keySalt = []byte("gophtex/server-keys/v1")

// GenerateSecret генерирует криптографически случайный секрет в Base64
func GenerateSecret() (string, error) {
	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secret), nil
}

// DeriveServerKeys генерирует два независимых ключа из секрета сервера:
// - TokenKey для подписи токенов
// - LinkKey для подписи ссылок
// Использует Argon2id с разными context strings для независимости ключей
func DeriveServerKeys(secret string) (*ServerKeys, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("secret must be at least %d characters, got %d", MinSecretLen, len(secret))
	}

	tokenKey := argon2.IDKey([]byte(secret+"token"), keySalt, Argon2Time, Argon2Memory, Argon2Threads, Argon2KeyLen)
	linkKey := argon2.IDKey([]byte(secret+"link"), keySalt, Argon2Time, Argon2Memory, Argon2Threads, Argon2KeyLen)

	return &ServerKeys{
		TokenKey: tokenKey,
		LinkKey:  linkKey,
	}, nil
}
