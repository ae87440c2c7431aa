package coordinator

import (
	"fmt"
	"time"
)

// Виды периодов планирования.
const (
	PeriodDaily  = "daily"
	PeriodWeekly = "weekly"
	PeriodHourly = "hourly"
)

// PeriodFunc вычисляет ключ периода для момента времени.
//
// Ключ детерминирован: все экземпляры с одинаковой конфигурацией
// получают одинаковый ключ для одного момента, поэтому execution id
// совпадает независимо от того, кто держит блокировку.
type PeriodFunc func(time.Time) string

// NewPeriodFunc строит PeriodFunc для вида периода и таймзоны.
//
// Таймзона — IANA-имя ("Europe/Moscow"); пустая строка означает UTC.
// Граница периода определяется локальным временем таймзоны: "день"
// пользователя в Токио и день пользователя в UTC — разные интервалы.
func NewPeriodFunc(kind, timezone string) (PeriodFunc, error) {
	loc := time.UTC
	if timezone != "" {
		parsed, err := time.LoadLocation(timezone)
		if err == nil {
			loc = parsed
		}
		// Fallback на UTC если timezone невалидный
	}

	switch kind {
	case PeriodDaily:
		return func(t time.Time) string {
			return t.In(loc).Format("2006-01-02")
		}, nil

	case PeriodWeekly:
		// ISO-неделя: год недели может отличаться от календарного
		// на границе года
		return func(t time.Time) string {
			year, week := t.In(loc).ISOWeek()
			return fmt.Sprintf("%04d-W%02d", year, week)
		}, nil

	case PeriodHourly:
		return func(t time.Time) string {
			return t.In(loc).Format("2006-01-02T15")
		}, nil

	default:
		return nil, fmt.Errorf("unsupported period kind %q", kind)
	}
}
