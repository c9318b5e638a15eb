// Package memfleet — in-memory реализация сервиса метаданных, флота
// чанк-серверов и каталога снапшотов.
//
// Используется в тестах и в режиме fleet.driver = "memory". Все
// операции идемпотентны, поддерживают инъекцию ошибок до и после
// применения эффекта (имитация падения процесса между RPC и записью
// состояния) и считают вызовы.
package memfleet
