package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// DocumentDeleter выполняет мягкое удаление документа вместе
// с уничтожением его ключей шифрования в одной транзакции.
type DocumentDeleter struct {
	runner *TxRunner
}

// NewDocumentDeleter создаёт транзакционный удалитель документов.
func NewDocumentDeleter(runner *TxRunner) *DocumentDeleter {
	return &DocumentDeleter{runner: runner}
}

// DeleteWithKeys помечает документ deleted, удаляет строки его ключей
// и обнуляет key_ref — атомарно. Конкурентная расшифровка видит либо
// ключ до коммита, либо его отсутствие после.
// deleted == false означает, что документ уже был в статусе deleted.
func (d *DocumentDeleter) DeleteWithKeys(ctx context.Context, documentID string, deletedAt time.Time) (deleted bool, keysDestroyed int, err error) {
	err = d.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		docs := NewDocumentRepository(tx)

		transitioned, err := docs.MarkDeleted(ctx, documentID, deletedAt)
		if err != nil {
			return err
		}
		if !transitioned {
			return nil
		}
		deleted = true

		keys := NewKeyRepository(tx)
		destroyed, err := keys.DeleteByDocument(ctx, documentID)
		if err != nil {
			return err
		}
		keysDestroyed = destroyed

		return docs.ClearKeyRef(ctx, documentID)
	})
	if err != nil {
		return false, 0, err
	}
	return deleted, keysDestroyed, nil
}
