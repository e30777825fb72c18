// errors.go — ошибки бизнес-логики сервисного слоя.
//
// Таксономия делится на две группы с разной семантикой распространения:
//   - ожидаемые отказы в доступе (ErrNotFound … ErrInsufficientCapability) —
//     всегда передаются вызывающему дословно, никогда не повторяются;
//   - ошибки целостности (ErrDecryptionFailure, ErrKeyNotFound) — это сбой,
//     а не отказ; логируются с высокой серьёзностью и не маскируются под deny.
//
// ErrAuditUnavailable фатален для объемлющей проверки доступа: если аудит
// не записывается, сама попытка доступа завершается отказом (fail closed) —
// неаудируемое разрешение хуже лишнего отказа.
package service

import "errors"

var (
	// ErrNotFound — документ удалён или не существует
	// (для не-владельцев эти случаи намеренно неотличимы).
	ErrNotFound = errors.New("документ не найден")
	// ErrExpired — срок действия документа истёк.
	ErrExpired = errors.New("срок действия документа истёк")
	// ErrViewLimitExceeded — лимит просмотров исчерпан.
	ErrViewLimitExceeded = errors.New("лимит просмотров документа исчерпан")
	// ErrInsufficientCapability — у субъекта нет нужного разрешения.
	ErrInsufficientCapability = errors.New("недостаточно прав для операции")
	// ErrDecryptionFailure — содержимое не расшифровывается
	// (порча ciphertext, несовпадение тега аутентификации).
	ErrDecryptionFailure = errors.New("ошибка расшифровки содержимого")
	// ErrKeyNotFound — ключ шифрования отсутствует или уничтожен.
	ErrKeyNotFound = errors.New("ключ шифрования не найден")
	// ErrAuditUnavailable — запись аудита невозможна, операция отклонена.
	ErrAuditUnavailable = errors.New("аудит недоступен — операция отклонена")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
)
