package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

var taskHeaders = []string{"ID", "MODE", "SOURCE", "DESTINATION", "STEP", "STATUS", "PROGRESS"}

// Output печатает задачи таблицей или JSON (--json).
// Данные идут в stdout, уведомления — в stderr.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output поверх stdout/stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными потоками.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// Task выводит задачу одной строкой таблицы.
func (o *Output) Task(t TaskResponse) {
	if o.jsonMode {
		o.json(t)
		return
	}
	o.table(taskHeaders, [][]string{taskRow(t)})
}

// Tasks выводит список задач. Пустой список в табличном режиме
// печатается как уведомление, в JSON — как [].
func (o *Output) Tasks(tasks []TaskResponse) {
	if o.jsonMode {
		if tasks == nil {
			tasks = []TaskResponse{}
		}
		o.json(tasks)
		return
	}
	if len(tasks) == 0 {
		o.Notice("No tasks found")
		return
	}

	rows := make([][]string, len(tasks))
	for i, t := range tasks {
		rows[i] = taskRow(t)
	}
	o.table(taskHeaders, rows)
}

// TaskDetail выводит все поля задачи. Пустые необязательные поля пропускаются.
func (o *Output) TaskDetail(t TaskResponse) {
	if o.jsonMode {
		o.json(t)
		return
	}

	fileIDs := ""
	if t.SourceFileID != 0 || t.DestinationFileID != 0 {
		fileIDs = fmt.Sprintf("%d -> %d", t.SourceFileID, t.DestinationFileID)
	}

	rows := [][]string{
		{"ID", t.ID},
		{"Owner", t.Owner},
		{"Mode", t.Mode},
		{"Lazy", strconv.FormatBool(t.IsLazy)},
		{"Source", t.Source},
		{"Destination", t.Destination},
		{"FileType", t.FileType},
		{"FileIDs", fileIDs},
		{"PoolSet", t.PoolSet},
		{"Step", t.Step},
		{"Status", t.Status},
		{"Progress", progressCell(t)},
		{"Error", t.Error},
		{"Created", t.CreatedAt},
		{"Updated", t.UpdatedAt},
		{"Finished", t.FinishedAt},
	}

	kept := rows[:0:0]
	for _, r := range rows {
		if r[1] != "" {
			kept = append(kept, r)
		}
	}
	o.table([]string{"FIELD", "VALUE"}, kept)
}

// Notice печатает сообщение в stderr.
func (o *Output) Notice(format string, args ...any) {
	fmt.Fprintf(o.errW, format+"\n", args...)
}

func (o *Output) json(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func (o *Output) table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

func taskRow(t TaskResponse) []string {
	return []string{
		t.ID,
		t.Mode,
		t.Source,
		t.Destination,
		t.Step,
		t.Status,
		progressCell(t),
	}
}

// progressCell: ленивая задача на вехе ждёт flatten, задача с ошибкой
// прогресса не имеет.
func progressCell(t TaskResponse) string {
	switch t.Status {
	case "metaInstalled":
		return "awaiting flatten"
	case "error":
		return "-"
	default:
		return strconv.Itoa(t.Progress) + "%"
	}
}
