// Пакет rbac — закрытые перечисления действий и capabilities,
// статическая таблица действие → требуемая capability и раскрытие ролей.
// Роль admin подразумевает все capabilities на всех ресурсах и
// раскрывается на этапе вычисления решения, не материализуясь в БД.
package rbac

// Action — действие над документом.
type Action string

// Действия, поддерживаемые движком.
const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionShare  Action = "share"
	ActionDelete Action = "delete"
)

// Capability — разрешение на действие с ресурсом.
type Capability string

// Capabilities. CapAdmin подразумевает все остальные на данном ресурсе.
const (
	CapRead   Capability = "read"
	CapWrite  Capability = "write"
	CapShare  Capability = "share"
	CapDelete Capability = "delete"
	CapAdmin  Capability = "admin"
)

// RoleAdmin — роль уровня субъекта, дающая все capabilities на всех ресурсах.
// Поступает из claims IdP, никогда не хранится в permission_entries.
const RoleAdmin = "admin"

// actionCapability — статическая таблица действие → требуемая capability.
var actionCapability = map[Action]Capability{
	ActionRead:   CapRead,
	ActionWrite:  CapWrite,
	ActionShare:  CapShare,
	ActionDelete: CapDelete,
}

// validCapabilities — допустимые значения capability для grant/revoke.
var validCapabilities = map[Capability]bool{
	CapRead:   true,
	CapWrite:  true,
	CapShare:  true,
	CapDelete: true,
	CapAdmin:  true,
}

// CapabilityFor возвращает capability, требуемую для действия.
// Второе значение false для неизвестного действия.
func CapabilityFor(action Action) (Capability, bool) {
	cap, ok := actionCapability[action]
	return cap, ok
}

// IsValidAction проверяет, является ли строка допустимым действием.
func IsValidAction(s string) bool {
	_, ok := actionCapability[Action(s)]
	return ok
}

// IsValidCapability проверяет, является ли строка допустимой capability.
func IsValidCapability(s string) bool {
	return validCapabilities[Capability(s)]
}

// AllCapabilities возвращает полный набор capabilities.
// Порядок стабилен; используется для точечной инвалидации кэша.
func AllCapabilities() []Capability {
	return []Capability{CapRead, CapWrite, CapShare, CapDelete, CapAdmin}
}

// Implies проверяет, покрывает ли имеющаяся capability требуемую.
// admin покрывает всё, остальные — только сами себя.
func Implies(held, required Capability) bool {
	if held == CapAdmin {
		return true
	}
	return held == required
}

// HasAdminRole проверяет наличие роли admin в наборе ролей субъекта.
func HasAdminRole(roles []string) bool {
	for _, r := range roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}
