/*
Copyright 2025 FinBoost Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	payouts "github.com/alafleur/finboost-payouts"
	"github.com/alafleur/finboost-payouts/config"
	"github.com/alafleur/finboost-payouts/database"
	"github.com/alafleur/finboost-payouts/internal/notification"
)

// FinBoost represents the CLI application, encapsulating the root Cobra command.
type FinBoost struct {
	cmd *cobra.Command
}

// payoutsInstance holds the runtime service instance and its configuration,
// shared across subcommands.
type payoutsInstance struct {
	payouts *payouts.Payouts
	cnf     *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the service instance before
// running any command.
func preRun(app *payoutsInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("finboost.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		svc, err := setupPayouts(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.payouts = svc
		app.cnf = cnf

		return nil
	}
}

// setupPayouts creates the payout service on top of a fresh datasource.
func setupPayouts(cfg *config.Configuration) (*payouts.Payouts, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	svc, err := payouts.NewPayouts(db)
	if err != nil {
		return nil, fmt.Errorf("error creating payout service: %v", err)
	}
	return svc, nil
}

// NewCLI creates the command-line interface for the payout service.
func NewCLI() *FinBoost {
	var configFile string
	b := &payoutsInstance{}

	var rootCmd = &cobra.Command{
		Use:   "finboost-payouts",
		Short: "FinBoost payout disbursement service",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./finboost.json", "Configuration file for the payout service")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(backupCommands(b))
	rootCmd.AddCommand(configCommands())

	return &FinBoost{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w FinBoost) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
