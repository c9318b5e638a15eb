// snapclone — инструмент командной строки для задач клонирования
// и восстановления через HTTP API.
//
// Использование:
//
//	snapclone [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	clone SOURCE DEST            Клонировать снапшот или том
//	recover SOURCE DEST [--lazy] Восстановить существующий том
//	task                         Просмотр задач и flatten
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/snapclone/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "snapclone",
		Short:         "snapclone CLI — clone and recover block-storage volumes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := "http://localhost:8080"
	if v := os.Getenv("SNAPCLONE_API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewCloneCmd(clientFn, outputFn),
		cli.NewRecoverCmd(clientFn, outputFn),
		cli.NewTaskCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
