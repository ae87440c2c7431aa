// Package queue реализует очередь выполнения job bodies.
//
// Свойства:
//   - строгий FIFO порядок среди готовых jobs
//   - ограниченная конкурентность (по умолчанию один слот)
//   - один повтор с возвратом в начало очереди, явный счётчик попыток
//   - результат каждого job — буферизованный канал (единая точка
//     наблюдения успеха/ошибки для вызывающего)
//
// Очередь эфемерна и принадлежит процессу, держащему блокировку.
// Потеря очереди при падении процесса безопасна: журнал идемпотентности
// переперечислит незавершённые subjects на следующем тике.
package queue
