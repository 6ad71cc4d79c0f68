// Package tasks определяет типы фоновых задач и их конструкторы.
package tasks

import "github.com/hibiken/asynq"

const (
	// TypeSessionSweep — периодическая зачистка строк с истёкшим expires_at.
	// Ретеншн фиксированный, активность его не продлевает, поэтому sweep —
	// единственный механизм уборки помимо expiry-on-read.
	TypeSessionSweep = "session:sweep"
)

func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TypeSessionSweep, nil)
}
