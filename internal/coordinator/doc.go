// Package coordinator — сборка цикла тиков scheduled jobs.
//
// Тик: захват распределённой блокировки → ключ периода → проверка
// журнала идемпотентности по каждому субъекту → диспетчеризация через
// FIFO-очередь (каждая попытка под circuit breaker'ом) → финализация
// записей и публикация событий → GC журнала → освобождение блокировки.
//
// Потеря блокировки посреди тика (heartbeat не прошёл) немедленно
// отменяет диспетчеризацию: поставленные jobs сбрасываются, активные
// дорабатывают, их записи финализирует следующий владелец через
// механизм staleness.
package coordinator
