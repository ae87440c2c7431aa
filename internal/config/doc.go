// Package config загружает конфигурацию координатора из переменных
// окружения и проверяет её согласованность.
//
// Validate отлавливает комбинации параметров, приводящие к нарушению
// гарантий системы: слишком короткий TTL блокировки относительно
// интервала heartbeat и порог staleness журнала, не покрывающий
// худший случай окна повторов breaker'а.
package config
