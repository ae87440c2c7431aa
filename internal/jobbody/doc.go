// Package jobbody содержит интерфейс job body и его реализации.
//
// Структура:
//   - jobbody.go — интерфейс Body, BodyFunc, реестр по job id
//   - http.go    — HTTPBody: вызов downstream пайплайна по HTTP
//
// Координатор не знает, что именно делает job body — только то,
// что вызов либо завершается успешно, либо возвращает ошибку.
package jobbody
