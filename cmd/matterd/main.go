// Command matterd is the reference CLI for this module's Matter mDNS
// discovery and CASE session machinery: it can browse the network for
// operational or commissionable devices, advertise this node's own
// services, and drive a CASE handshake against a peer.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"matter-core/pkg/config"
)

var logger = logrus.StandardLogger()

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	root := &cobra.Command{
		Use:   "matterd",
		Short: "Matter mDNS discovery and CASE session tool",
	}
	root.PersistentFlags().String("config-env", "", "environment overlay to merge onto cmd/config/default.yaml")
	root.PersistentFlags().String("log-level", "info", "trace|debug|info|warn|error")
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return err
		}
		logger.SetLevel(parsed)
		return nil
	}

	root.AddCommand(scanCmd())
	root.AddCommand(advertiseCmd())
	root.AddCommand(caseCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	env, _ := cmd.Flags().GetString("config-env")
	return config.Load(env)
}
