package model

// Коды причин отказа в доступе. Передаются вызывающему дословно
// и записываются в аудит; никогда не повторяются (retry) движком.
const (
	// ReasonNotFound — документ удалён или не существует.
	// Для не-владельцев эти случаи неотличимы.
	ReasonNotFound = "NOT_FOUND"
	// ReasonExpired — срок действия документа истёк.
	ReasonExpired = "EXPIRED"
	// ReasonViewLimitExceeded — лимит просмотров исчерпан.
	ReasonViewLimitExceeded = "VIEW_LIMIT_EXCEEDED"
	// ReasonInsufficientCapability — у субъекта нет нужного разрешения.
	ReasonInsufficientCapability = "INSUFFICIENT_CAPABILITY"
)

// Decision — результат вычисления доступа.
type Decision struct {
	// Allowed — разрешён ли доступ.
	Allowed bool
	// Reason — код причины отказа (пусто при Allowed == true).
	Reason string
}

// Allow — положительное решение.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny — отрицательное решение с кодом причины.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}
