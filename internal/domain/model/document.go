package model

import "time"

// Статусы документа. Переходы однонаправленные:
// active → expired (по времени или по лимиту просмотров) → deleted.
// Пути обратно нет — "воскрешение" документа невозможно.
const (
	// StatusActive — документ доступен для операций.
	StatusActive = "active"
	// StatusExpired — срок действия истёк или лимит просмотров исчерпан.
	StatusExpired = "expired"
	// StatusDeleted — документ удалён владельцем или retention-политикой.
	StatusDeleted = "deleted"
)

// Document — запись документа в реестре.
// Хранится в таблице documents.
type Document struct {
	// ID — UUID документа (задаётся при загрузке)
	ID string
	// OwnerID — идентификатор владельца (subject из IdP)
	OwnerID string
	// Title — название документа
	Title string
	// OriginalFilename — оригинальное имя файла
	OriginalFilename string
	// ContentType — MIME-тип файла
	ContentType string
	// Size — размер исходного (незашифрованного) содержимого в байтах
	Size int64
	// BlobHandle — непрозрачный handle зашифрованного содержимого в blob store
	BlobHandle string
	// KeyRef — ссылка на ключ шифрования в KeyVault (nil после уничтожения ключа)
	KeyRef *string
	// Status — статус (active, expired, deleted)
	Status string
	// ExpiresAt — время истечения (опционально)
	ExpiresAt *time.Time
	// ViewLimit — максимальное количество чтений (опционально, > 0)
	ViewLimit *int
	// AccessCount — количество успешных чтений (монотонно неубывающее)
	AccessCount int
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
	// DeletedAt — время пометки deleted (soft delete)
	DeletedAt *time.Time
}

// IsExpired проверяет, истёк ли срок действия документа на момент now.
// Лимит просмотров здесь не учитывается — он проверяется атомарно в БД.
func (d *Document) IsExpired(now time.Time) bool {
	return d.ExpiresAt != nil && !now.Before(*d.ExpiresAt)
}

// ViewsExhausted проверяет, исчерпан ли лимит просмотров.
func (d *Document) ViewsExhausted() bool {
	return d.ViewLimit != nil && d.AccessCount >= *d.ViewLimit
}
