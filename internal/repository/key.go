package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// KeyRepository — интерфейс доступа к таблице encryption_keys.
// Хранит обёрнутые (зашифрованные master-ключом) ключи документов.
// Уничтожение ключа — жёсткое удаление строки: после него содержимое
// документа криптографически невосстановимо, даже если blob остался.
type KeyRepository interface {
	// Insert сохраняет обёрнутый ключ документа.
	Insert(ctx context.Context, keyRef, documentID string, wrapped []byte) error
	// Get возвращает обёрнутый ключ по ссылке.
	Get(ctx context.Context, keyRef string) ([]byte, error)
	// DeleteByDocument уничтожает все ключи документа.
	// Вызывается в одной транзакции с переводом документа в deleted.
	// Возвращает количество удалённых ключей.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
}

// keyRepo — реализация KeyRepository.
type keyRepo struct {
	db DBTX
}

// NewKeyRepository создаёт репозиторий ключей шифрования.
func NewKeyRepository(db DBTX) KeyRepository {
	return &keyRepo{db: db}
}

func (r *keyRepo) Insert(ctx context.Context, keyRef, documentID string, wrapped []byte) error {
	query := `
		INSERT INTO encryption_keys (key_ref, document_id, wrapped_key)
		VALUES ($1, $2, $3)`

	if _, err := r.db.Exec(ctx, query, keyRef, documentID, wrapped); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ключ с такой ссылкой уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка сохранения ключа: %w", err)
	}
	return nil
}

func (r *keyRepo) Get(ctx context.Context, keyRef string) ([]byte, error) {
	var wrapped []byte
	err := r.db.QueryRow(ctx,
		`SELECT wrapped_key FROM encryption_keys WHERE key_ref = $1`, keyRef,
	).Scan(&wrapped)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения ключа: %w", err)
	}
	return wrapped, nil
}

func (r *keyRepo) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM encryption_keys WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("ошибка уничтожения ключей документа: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
