// Package steps содержит по одной идемпотентной процедуре на каждый шаг
// задачи клонирования/восстановления.
//
// # Интерфейс Step
//
//	type Step interface {
//	    Name() domain.Step
//	    Execute(ctx context.Context, req *Request) error
//	}
//
// Шаг читает запись из Request.Task, вызывает участников из Deps и
// при успехе может дописать в запись id файлов. Шаг не трогает Step
// и Status: продвижение делает core после успешного Execute.
//
// # Идемпотентность
//
// Любой шаг можно выполнить повторно с той же записью после падения:
//   - CreateCloneFile при ErrFileExists перечитывает id по временному пути
//   - сегменты и чанки перевычисляются из сервиса метаданных на каждом вызове
//   - RecoverChunk/CreateCloneChunk идемпотентны на флоте по (чанк, диапазон)
//
// # Fan-out
//
// CreateCloneChunk и RecoverChunk раскладываются на подоперации через
// tracker.Dispatcher с потолками CreateChunkConcurrency и
// RecoverChunkConcurrency. Провал любой подоперации проваливает весь шаг.
//
// # Ошибки
//
// IsPermanent отделяет постоянные ошибки (нет снапшота, нет файла,
// невалидная запись) от временных. Временные оставляют запись как есть.
//
// # Файлы пакета
//
//   - step.go     — интерфейс Step, Request, ошибки
//   - registry.go — Registry шагов
//   - deps.go     — участники и опции
//   - layout.go   — выбор чанков и их адресация
//   - file.go     — CreateCloneFile
//   - meta.go     — CreateCloneMeta, CompleteCloneMeta
//   - chunk.go    — CreateCloneChunk, RecoverChunk
//   - finish.go   — CompleteCloneFile, ChangeOwner, RenameCloneFile
package steps
