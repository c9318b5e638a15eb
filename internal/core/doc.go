// Package core ведёт одну задачу клонирования/восстановления по её
// порядку шагов.
//
// Runner.Run выполняет текущий шаг, сохраняет запись с продвинутым
// шагом и повторяет, пока задача не завершится, не упадёт или не
// дойдёт до ленивой вехи metaInstalled. Run повторно входим: запись
// всегда указывает на следующий неподтверждённый шаг, а шаги
// идемпотентны, поэтому повторный вызов после падения приводит к тому
// же результату, что и непрерывный прогон.
//
// Блокировок внутри нет: одну задачу ведёт один воркер, это
// гарантирует orchestrator.Manager, а хранилище защищает от второго
// писателя через compare-and-set.
package core
