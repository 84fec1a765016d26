package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "crewdeck",
	Short: "Crewdeck — construction crew scheduling backend",
	Long:  "Crewdeck is the scheduling backend for construction crews: organizations, sites, role-based site assignments, tasks, time tracking, and a scoped data layer that keeps every tenant inside its own walls.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/crewdeck.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
