// cache.go — LRU-кэш результатов проверки прав с TTL.
//
// Кэшируется только итог HasCapability (держит ли субъект данную
// capability на данный документ). Решения Evaluate не кэшируются:
// они зависят от статуса и счётчика просмотров документа.
// Выдача и отзыв прав синхронно инвалидируют пару (subject, document) —
// после возврата Grant/Revoke последующие проверки видят новое состояние.
package service

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sluggerrrr/briefcase-sub001/internal/domain/rbac"
)

// Prometheus-метрики кэша прав.
var (
	permCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bc_permission_cache_hits_total",
		Help: "Общее количество попаданий в кэш прав",
	})

	permCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bc_permission_cache_misses_total",
		Help: "Общее количество промахов кэша прав",
	})
)

// DecisionCache — кэш результатов проверки прав.
// Ключ — тройка (subject, document, capability), значение — bool.
type DecisionCache struct {
	lru *expirable.LRU[string, bool]
}

// NewDecisionCache создаёт кэш на size записей с временем жизни ttl.
func NewDecisionCache(size int, ttl time.Duration) *DecisionCache {
	return &DecisionCache{
		lru: expirable.NewLRU[string, bool](size, nil, ttl),
	}
}

func cacheKey(subjectID, documentID string, capability rbac.Capability) string {
	return fmt.Sprintf("%s\x00%s\x00%s", subjectID, documentID, capability)
}

// Get возвращает закэшированный результат проверки и флаг наличия.
func (c *DecisionCache) Get(subjectID, documentID string, capability rbac.Capability) (bool, bool) {
	held, ok := c.lru.Get(cacheKey(subjectID, documentID, capability))
	if ok {
		permCacheHits.Inc()
	} else {
		permCacheMisses.Inc()
	}
	return held, ok
}

// Set сохраняет результат проверки.
func (c *DecisionCache) Set(subjectID, documentID string, capability rbac.Capability, held bool) {
	c.lru.Add(cacheKey(subjectID, documentID, capability), held)
}

// Invalidate удаляет все записи пары (subject, document).
// Набор capability — закрытое перечисление, поэтому удаление точечное,
// без обхода кэша.
func (c *DecisionCache) Invalidate(subjectID, documentID string) {
	for _, capability := range rbac.AllCapabilities() {
		c.lru.Remove(cacheKey(subjectID, documentID, capability))
	}
}

// InvalidateDocument удаляет записи всех субъектов по документу.
// LRU не индексирован по документу, поэтому обходим ключи целиком;
// вызывается только при удалении документа, не на горячем пути.
func (c *DecisionCache) InvalidateDocument(documentID string) {
	for _, key := range c.lru.Keys() {
		if matchesDocument(key, documentID) {
			c.lru.Remove(key)
		}
	}
}

func matchesDocument(key, documentID string) bool {
	// Формат ключа: subject \x00 document \x00 capability.
	start := -1
	for i := 0; i < len(key); i++ {
		if key[i] == '\x00' {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return false
	}
	end := start + len(documentID)
	return end < len(key) && key[start:end] == documentID && key[end] == '\x00'
}
