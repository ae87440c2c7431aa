// Package cli реализует инструмент командной строки Cadence.
//
// # Обзор
//
// CLI — клиентская утилита для Health Facade координатора.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// Используется операторами для диагностики и remediation.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API координатора. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse),
// обработку ошибок и передачу операторского bearer token.
//
//	client := cli.NewClient("http://localhost:8080", token)
//	health, err := client.GetHealth()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: cadence health --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - health: сводное состояние координатора
//   - execution: list, stats
//   - breaker: show, reset
//   - queue: show, clear
//   - lock: show, release
//
// Каждая группа создаётся через фабричную функцию (NewHealthCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
