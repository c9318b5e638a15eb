// Package storage описывает внешних участников: сервис метаданных,
// флот чанк-серверов и каталог снапшотов.
//
// Все вызовы обязаны быть идемпотентными: повтор с теми же
// аргументами после рестарта либо ничего не меняет, либо возвращает
// ранее созданный результат.
package storage
