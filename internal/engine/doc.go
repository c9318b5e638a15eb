// Package engine содержит автомат шагов задачи клонирования.
//
// Включает:
//   - order.go    — таблица порядков (mode × lazy → список шагов)
//   - validate.go — проверка согласованности записи с её порядком
//
// Engine не делает RPC: он только отвечает на вопрос «какой шаг
// следующий» и «где пауза», поэтому тестируется изолированно.
package engine
