package domain

// TaskStatus — грубое состояние задачи клонирования/восстановления.
//
// Жизненный цикл:
//
//	cloning    → done
//	recovering → done
//	recovering → metaInstalled → recovering (flatten) → done
//	(любой нефинальный) → error
type TaskStatus string

const (
	// TaskStatusCloning — идёт клонирование.
	TaskStatusCloning TaskStatus = "cloning"

	// TaskStatusRecovering — идёт восстановление (или flatten ленивой задачи).
	TaskStatusRecovering TaskStatus = "recovering"

	// TaskStatusMetaInstalled — ленивая задача: том уже доступен пользователю,
	// копирование данных отложено до Flatten.
	TaskStatusMetaInstalled TaskStatus = "metaInstalled"

	// TaskStatusDone — задача успешно завершена.
	TaskStatusDone TaskStatus = "done"

	// TaskStatusError — задача завершилась с неустранимой ошибкой.
	TaskStatusError TaskStatus = "error"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusDone, TaskStatusError:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус известен.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusCloning, TaskStatusRecovering, TaskStatusMetaInstalled,
		TaskStatusDone, TaskStatusError:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление TaskStatus.
func (s TaskStatus) String() string {
	return string(s)
}

// TaskMode — вид задачи.
type TaskMode string

const (
	// TaskModeClone — создание нового тома из снапшота или файла.
	TaskModeClone TaskMode = "clone"

	// TaskModeRecover — восстановление существующего тома.
	TaskModeRecover TaskMode = "recover"
)

// IsValid проверяет, что режим известен.
func (m TaskMode) IsValid() bool {
	return m == TaskModeClone || m == TaskModeRecover
}

// FileType — тип источника.
type FileType string

const (
	// FileTypeFile — источник — живой том.
	FileTypeFile FileType = "file"

	// FileTypeSnapshot — источник — неизменяемый снапшот.
	FileTypeSnapshot FileType = "snapshot"
)

// IsValid проверяет, что тип известен.
func (t FileType) IsValid() bool {
	return t == FileTypeFile || t == FileTypeSnapshot
}
