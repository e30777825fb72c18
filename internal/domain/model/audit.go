package model

import "time"

// Исходы записей аудита.
const (
	// OutcomeAllow — доступ разрешён.
	OutcomeAllow = "allow"
	// OutcomeDeny — доступ запрещён.
	OutcomeDeny = "deny"
	// OutcomeError — операция завершилась ошибкой целостности.
	OutcomeError = "error"
)

// AuditRecord — неизменяемая запись аудита.
// Хранится в таблице audit_records, только append — записи никогда
// не изменяются и не удаляются движком (кроме retention-очистки по возрасту).
type AuditRecord struct {
	// ID — последовательный идентификатор (bigserial)
	ID int64
	// Timestamp — время события
	Timestamp time.Time
	// SubjectID — субъект, выполнивший действие
	SubjectID string
	// DocumentID — документ, к которому относится событие
	DocumentID string
	// Action — действие (read, write, share, delete, upload, grant, revoke, expire, purge)
	Action string
	// Outcome — исход (allow, deny, error)
	Outcome string
	// Reason — машиночитаемый код причины (пусто для allow)
	Reason string
	// Detail — дополнительное описание (опционально)
	Detail string
}

// AuditFilters — фильтры запроса записей аудита.
// Нулевые значения означают отсутствие фильтра.
type AuditFilters struct {
	SubjectID  string
	DocumentID string
	Action     string
	Outcome    string
	From       *time.Time
	To         *time.Time
}
