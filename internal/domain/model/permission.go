package model

import "time"

// PermissionEntry — явное разрешение (subject, document, capability).
// Хранится в таблице permission_entries.
// Ролевые разрешения (роль admin) в таблицу не материализуются —
// они раскрываются на этапе вычисления решения.
type PermissionEntry struct {
	// SubjectID — идентификатор субъекта (пользователя)
	SubjectID string
	// DocumentID — UUID документа
	DocumentID string
	// Capability — разрешённое действие (read, write, share, delete, admin)
	Capability string
	// GrantedBy — кто выдал разрешение
	GrantedBy string
	// GrantedAt — когда выдано
	GrantedAt time.Time
	// ExpiresAt — срок действия разрешения (опционально).
	// Просроченные разрешения игнорируются при проверке.
	ExpiresAt *time.Time
}

// IsActive проверяет, действует ли разрешение на момент now.
func (p *PermissionEntry) IsActive(now time.Time) bool {
	return p.ExpiresAt == nil || now.Before(*p.ExpiresAt)
}
