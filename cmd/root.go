package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/segkv/cmd/perf"
	"github.com/ValentinKolb/segkv/cmd/serve"
	"github.com/ValentinKolb/segkv/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "segkv",
		Short: "in-process key-value store on a segmented concurrent hash map",
		Long: fmt.Sprintf(`segkv (v%s)

A key-value store built on a lock-striped concurrent hash map with
lock-free reads, served over HTTP or benchmarked in-process.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of segkv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("segkv v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	key := "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("Level at which logs are written (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
