// Package mq содержит слой работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с автоматическим reconnect
//   - topology.go   — объявление обменников, очередей и привязок
//   - publisher.go  — публикация событий жизненного цикла executions
//
// Координатор только публикует: события execution.completed и
// execution.failed потребляются внешними системами (уведомления,
// аналитика). Публикация best-effort — её ошибка не влияет на
// результат execution, запись в журнале уже финализирована.
package mq
