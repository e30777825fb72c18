// crypto.go — шифрование содержимого документов.
//
// AES-256-GCM, ключ на документ из keyvault, nonce в начале ciphertext.
// Ошибка расшифровки — сбой целостности, а не отказ в доступе:
// логируется с высокой серьёзностью и возвращается как ErrDecryptionFailure.
package service

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sluggerrrr/briefcase-sub001/internal/keyvault"
)

// CryptoService — сервис шифрования содержимого документов.
type CryptoService struct {
	vault  *keyvault.Vault
	logger *slog.Logger
}

// NewCryptoService создаёт сервис шифрования.
func NewCryptoService(vault *keyvault.Vault, logger *slog.Logger) *CryptoService {
	return &CryptoService{
		vault:  vault,
		logger: logger.With(slog.String("component", "crypto")),
	}
}

// Encrypt генерирует ключ для документа и шифрует содержимое.
// Возвращает ciphertext (nonce prepended) и ссылку на ключ.
func (s *CryptoService) Encrypt(ctx context.Context, plaintext []byte, documentID string) (ciphertext []byte, keyRef string, err error) {
	keyRef, key, err := s.vault.Generate(ctx, documentID)
	if err != nil {
		return nil, "", fmt.Errorf("ошибка генерации ключа документа: %w", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), keyRef, nil
}

// Decrypt расшифровывает содержимое документа ключом по ссылке.
// Уничтоженный ключ — ErrKeyNotFound, порча ciphertext — ErrDecryptionFailure.
func (s *CryptoService) Decrypt(ctx context.Context, ciphertext []byte, keyRef string) ([]byte, error) {
	key, err := s.vault.Get(ctx, keyRef)
	if err != nil {
		if errors.Is(err, keyvault.ErrKeyNotFound) {
			s.logger.Error("Ключ документа отсутствует или уничтожен",
				slog.String("key_ref", keyRef),
			)
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyRef)
		}
		return nil, fmt.Errorf("ошибка получения ключа документа: %w", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonceSize := aead.NonceSize()
	if len(ciphertext) < nonceSize {
		s.logger.Error("Ciphertext короче nonce", slog.String("key_ref", keyRef))
		return nil, fmt.Errorf("%w: ciphertext повреждён", ErrDecryptionFailure)
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		// Несовпадение тега аутентификации: порча данных или подмена ключа.
		s.logger.Error("Содержимое документа не расшифровывается",
			slog.String("key_ref", keyRef),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %s", ErrDecryptionFailure, err.Error())
	}

	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}
	return aead, nil
}
