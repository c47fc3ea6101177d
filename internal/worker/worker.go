// Package worker - каркас фоновых потребителей очереди обследований:
// жизненный цикл, общая база и менеджер с управляемой остановкой.
package worker

import (
	"context"
)

// Worker - фоновый потребитель, например обработчик заданий анализа
type Worker interface {
	// Start блокирует до остановки или ошибки потребителя
	Start(ctx context.Context) error

	// Stop сигнализирует о завершении, не дожидаясь его
	Stop() error

	// Name возвращает имя воркера для логов
	Name() string
}
