// Package repo содержит слой доступа к PostgreSQL.
//
// Структура:
//   - db.go             — создание пула соединений (pgxpool)
//   - schema.go         — идемпотентные DDL миграции
//   - errors.go         — общие ошибки репозиториев
//   - lease_repo.go     — хранилище аренд (leases)
//   - execution_repo.go — хранилище записей идемпотентности (executions)
//
// Leases и executions — единственное durable-состояние подсистемы.
// Оба хранилища разделяются между экземплярами и мутируются только
// атомарными условными операциями: одиночный SQL statement с WHERE,
// проверяющим предусловие. Никаких read-modify-write на стороне клиента.
package repo
