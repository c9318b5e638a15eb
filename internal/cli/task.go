package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// createFlags — общие флаги clone и recover.
type createFlags struct {
	owner    string
	fileType string
	poolSet  string
}

func (f *createFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.owner, "owner", os.Getenv("USER"), "Owner of the destination volume")
	cmd.Flags().StringVar(&f.fileType, "file-type", "snapshot", "Source type: snapshot or file")
	cmd.Flags().StringVar(&f.poolSet, "pool-set", "", "Pool set for the destination volume")
}

func (f *createFlags) request(args []string) CreateTaskRequest {
	return CreateTaskRequest{
		Owner:       f.owner,
		Source:      args[0],
		Destination: args[1],
		PoolSet:     f.poolSet,
		FileType:    f.fileType,
	}
}

// NewCloneCmd создаёт команду клонирования.
func NewCloneCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags createFlags

	cmd := &cobra.Command{
		Use:   "clone SOURCE DEST",
		Short: "Clone a snapshot or volume into a new volume",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.CreateClone(cmd.Context(), flags.request(args))
			if err != nil {
				return err
			}

			out.Notice("Clone task created: %s", task.ID)
			out.Task(*task)
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

// NewRecoverCmd создаёт команду восстановления.
func NewRecoverCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags createFlags
	var lazy bool

	cmd := &cobra.Command{
		Use:   "recover SOURCE DEST",
		Short: "Recover an existing volume from a snapshot or volume",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := flags.request(args)
			req.IsLazy = lazy

			task, err := client.CreateRecover(cmd.Context(), req)
			if err != nil {
				return err
			}

			out.Notice("Recover task created: %s", task.ID)
			out.Task(*task)
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVar(&lazy, "lazy", false, "Make the volume available before data is copied; finish with 'task flatten'")
	return cmd
}

// NewTaskCmd создаёт группу команд для просмотра задач.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and control tasks",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskFlattenCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListTasksOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out.Tasks(tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (cloning, recovering, metaInstalled, done, error)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "Filter by mode (clone, recover)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of tasks")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.TaskDetail(*task)
			return nil
		},
	}
}

func newTaskFlattenCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "flatten ID",
		Short: "Copy the data of a lazy recover task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.FlattenTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Notice("Flatten started: %s", task.ID)
			out.Task(*task)
			return nil
		},
	}
}
