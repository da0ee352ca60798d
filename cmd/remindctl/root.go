package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCommand() *cobra.Command {
	v := newViper()
	var configFile string

	load := func() (Config, error) { return loadConfig(v, configFile) }

	root := &cobra.Command{
		Use:           "remindctl",
		Short:         "Interactive reminders assistant with persistent session state",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runREPL(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./remindctl.yaml)")
	flags.String("app", "", "application name")
	flags.String("user", "", "user id")
	flags.String("name", "", "user name seeded into new sessions")
	flags.String("session", "", "session id to attach to (default: newest)")
	flags.String("db", "", "SQLite database path")
	flags.String("provider", "", "model provider: openai, anthropic or scripted")
	flags.String("model", "", "model name override")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.BoolP("verbose", "v", false, "print every event of a turn")

	bindFlags(v, root, map[string]string{
		"app":       "app_name",
		"user":      "user_id",
		"name":      "user_name",
		"session":   "session_id",
		"db":        "database",
		"provider":  "provider",
		"model":     "model",
		"log-level": "log_level",
		"verbose":   "verbose",
	})

	root.AddCommand(newSessionsCommand(load), newStateCommand(load))
	return root
}

// bindFlags binds each persistent flag to its config key so that flags only
// override when they are set explicitly.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := v.BindPFlag(keys[name], cmd.PersistentFlags().Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "bind flag %s: %v\n", name, err)
		}
	}
}

func newSessionsCommand(load func() (Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions of the configured user, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.listSessions(cmd.Context())
		},
	}
}

func newStateCommand(load func() (Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the committed state of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.showState(cmd.Context())
		},
	}
}
