// Package lock реализует распределённую блокировку роли координатора.
//
// Блокировка построена поверх LeaseStore — атомарного хранилища аренд
// (в production — таблица leases в PostgreSQL). Захват и продление —
// одиночные условные записи: гонка конкурирующих экземпляров всегда
// разрешается ровно в одного победителя.
//
// Свойства:
//   - эксклюзивность: не более одного владельца непросроченной аренды
//   - самовосстановление: упавший владелец теряет аренду по TTL
//   - re-entrancy: повторный Acquire тем же процессом продлевает аренду
//
// TTL должен существенно превышать интервал heartbeat (минимум вдвое),
// чтобы один пропущенный heartbeat не приводил к ложной потере владения.
package lock
