package domain

import "time"

// LeaseResourceScheduler — фиксированное имя ресурса для роли координатора.
const LeaseResourceScheduler = "scheduler"

// Lease — эксклюзивная аренда роли координатора.
//
// В каждый момент времени существует не более одной непросроченной
// аренды на ресурс. Аренда создаётся при захвате, продлевается
// heartbeat'ом владельца и истекает по TTL, если владелец упал.
type Lease struct {
	// ResourceName — имя арендуемого ресурса (например, "scheduler").
	ResourceName string `json:"resource_name"`

	// HolderID — идентификатор процесса-владельца.
	// Стабилен на время жизни процесса, уникален между экземплярами.
	HolderID string `json:"holder_id"`

	// AcquiredAt — время захвата аренды.
	AcquiredAt time.Time `json:"acquired_at"`

	// ExpiresAt — время истечения аренды.
	// После этого момента аренду может захватить другой экземпляр.
	ExpiresAt time.Time `json:"expires_at"`

	// LastHeartbeatAt — время последнего успешного heartbeat.
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// IsExpired проверяет, истекла ли аренда.
func (l *Lease) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// HeldBy проверяет, принадлежит ли непросроченная аренда владельцу.
func (l *Lease) HeldBy(holderID string, now time.Time) bool {
	return l.HolderID == holderID && !l.IsExpired(now)
}
