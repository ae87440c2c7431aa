// Package ledger реализует журнал идемпотентности scheduled jobs.
//
// Ledger — единственный авторитет решения "выполнять или нет" для
// (subject, job, period). Инвариант: не более одной записи достигает
// COMPLETED на execution id, сколько бы экземпляров ни опрашивало
// журнал конкурентно.
//
// Запись, зависшая в RUNNING дольше порога staleness (процесс упал
// посреди выполнения), автоматически сбрасывается на новую попытку —
// ручное вмешательство в типичном сценарии не требуется.
package ledger
