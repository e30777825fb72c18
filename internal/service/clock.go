package service

import "time"

// timeNow — источник времени сервисного слоя; подменяется в тестах.
var timeNow = func() time.Time { return time.Now().UTC() }
