// Пакет keyvault — хранилище ключей шифрования документов.
// Один ключ на документ, генерируется при загрузке, никогда не
// переиспользуется. Перед сохранением ключ оборачивается (шифруется)
// master-ключом через AES-256-GCM, в открытом виде в БД не попадает.
// Уничтожение ключа — удаление строки в encryption_keys; выполняется
// в одной транзакции с удалением документа.
package keyvault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/sluggerrrr/briefcase-sub001/internal/repository"
)

// Размер ключа документа (AES-256).
const keySize = 32

// ErrKeyNotFound — ключ отсутствует или уничтожен.
var ErrKeyNotFound = errors.New("ключ шифрования не найден или уничтожен")

// KeyStore — хранилище обёрнутых ключей.
// Реализуется repository.KeyRepository (PostgreSQL).
type KeyStore interface {
	Insert(ctx context.Context, keyRef, documentID string, wrapped []byte) error
	Get(ctx context.Context, keyRef string) ([]byte, error)
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
}

// Vault — хранилище ключей шифрования документов.
type Vault struct {
	store KeyStore
	// aead — AEAD для оборачивания ключей документов master-ключом.
	aead cipher.AEAD
}

// New создаёт Vault с master-ключом.
// masterKey — base64-строка с 32 байтами; иначе строка хешируется
// SHA-256 до 32 байт (для удобства конфигурации).
func New(store KeyStore, masterKey string) (*Vault, error) {
	if masterKey == "" {
		return nil, errors.New("master-ключ не задан")
	}

	keyBytes, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil || len(keyBytes) != keySize {
		sum := sha256.Sum256([]byte(masterKey))
		keyBytes = sum[:]
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &Vault{store: store, aead: aead}, nil
}

// Generate создаёт новый ключ документа, оборачивает его master-ключом
// и сохраняет. Возвращает ссылку на ключ и сам ключ (для немедленного
// шифрования содержимого).
func (v *Vault) Generate(ctx context.Context, documentID string) (keyRef string, key []byte, err error) {
	key = make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", nil, fmt.Errorf("ошибка генерации ключа документа: %w", err)
	}

	wrapped, err := v.wrap(key)
	if err != nil {
		return "", nil, err
	}

	keyRef = uuid.New().String()
	if err := v.store.Insert(ctx, keyRef, documentID, wrapped); err != nil {
		return "", nil, fmt.Errorf("ошибка сохранения ключа документа: %w", err)
	}

	return keyRef, key, nil
}

// Get возвращает ключ документа по ссылке.
// Для отсутствующего (уничтоженного) ключа — ErrKeyNotFound.
func (v *Vault) Get(ctx context.Context, keyRef string) ([]byte, error) {
	wrapped, err := v.store.Get(ctx, keyRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	key, err := v.unwrap(wrapped)
	if err != nil {
		// Обёртка не расшифровывается (другой master-ключ, порча данных) —
		// для вызывающего ключ неотличим от уничтоженного.
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, err.Error())
	}
	return key, nil
}

// wrap шифрует ключ документа master-ключом (nonce prepended).
func (v *Vault) wrap(key []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("ошибка генерации nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, key, nil), nil
}

// unwrap расшифровывает обёрнутый ключ документа.
func (v *Vault) unwrap(wrapped []byte) ([]byte, error) {
	nonceSize := v.aead.NonceSize()
	if len(wrapped) < nonceSize {
		return nil, errors.New("обёрнутый ключ слишком короткий")
	}

	nonce, ciphertext := wrapped[:nonceSize], wrapped[nonceSize:]
	key, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка расшифровки обёртки ключа: %w", err)
	}
	return key, nil
}
