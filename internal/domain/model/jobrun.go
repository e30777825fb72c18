package model

import "time"

// Статусы запуска lifecycle-джоба.
const (
	// JobStatusCompleted — джоб завершился (возможно, с частичными ошибками).
	JobStatusCompleted = "completed"
	// JobStatusFailed — джоб прерван фатальной ошибкой.
	JobStatusFailed = "failed"
)

// JobRun — результат одного запуска lifecycle-джоба (sweep).
// Хранится в таблице job_runs для операционной видимости.
type JobRun struct {
	// ID — UUID запуска
	ID string
	// StartedAt — время начала sweep
	StartedAt time.Time
	// CompletedAt — время завершения
	CompletedAt time.Time
	// DocumentsScanned — количество просмотренных документов
	DocumentsScanned int
	// DocumentsExpired — количество переведённых в expired
	DocumentsExpired int
	// DocumentsPurged — количество физически удалённых (после grace-периода)
	DocumentsPurged int
	// AuditPurged — количество удалённых по retention записей аудита
	AuditPurged int
	// Errors — количество ошибок по отдельным документам
	Errors int
	// ErrorDetail — первые сообщения об ошибках (для диагностики)
	ErrorDetail []string
	// Status — completed или failed
	Status string
}
