// Package tracker — примитив fan-out/join для подопераций одного шага.
//
// Tracker считает подопераций в полёте и запоминает первую ошибку.
// Dispatcher добавляет к нему потолок параллельности (semaphore)
// и прекращает запуск новых подопераций после первой ошибки, не
// отменяя уже запущенные.
package tracker
