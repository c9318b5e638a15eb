package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSpec — расписание rescan по умолчанию.
const DefaultSpec = "@every 1m"

// cronParser — парсер выражений расписания: пять полей или дескриптор
// (@hourly, @every 30s).
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSpec разбирает выражение расписания.
func ParseSpec(spec string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// ValidateSpec проверяет выражение расписания.
func ValidateSpec(spec string) error {
	_, err := ParseSpec(spec)
	return err
}

// NextRun возвращает следующее время запуска после from (в UTC).
func NextRun(spec string, from time.Time) (time.Time, error) {
	schedule, err := ParseSpec(spec)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from).UTC(), nil
}
