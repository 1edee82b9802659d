package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tcriess/lightspeed-presence/config"
	"github.com/tcriess/lightspeed-presence/globals"
	"github.com/tcriess/lightspeed-presence/persistence"
	"github.com/tcriess/lightspeed-presence/types"
)

// A very simple CLI tool for the administration of the persisted message
// history and user records.

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		panic("no persistence configured")
	}
	defer persister.Close()

	var historyLimit int
	var purgeBeforeHours int

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show persisted users or message history",
	}
	var cmdShowUsers = &cobra.Command{
		Use:   "users",
		Short: "Show users",
		Long:  `show users lists all persisted user records.`,
		Run: func(cmd *cobra.Command, args []string) {
			users, err := persister.GetUsers()
			if err != nil {
				globals.AppLogger.Error("could not get users", "error", err)
				return
			}
			u, err := json.Marshal(users)
			if err != nil {
				globals.AppLogger.Error("could not marshal users", "error", err)
				return
			}
			fmt.Println(string(u))
		},
	}
	var cmdShowUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Show user",
		Long:  `show user prints the persisted record of the user with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			if err := persister.GetUser(&user); err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			u, err := json.Marshal(user)
			if err != nil {
				globals.AppLogger.Error("could not marshal user", "error", err)
				return
			}
			fmt.Println(string(u))
		},
	}
	var cmdShowHistory = &cobra.Command{
		Use:   "history [room id]",
		Short: "Show message history",
		Long:  `show history prints the latest persisted messages of the room with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			messages, err := persister.GetMessageHistory(args[0], historyLimit)
			if err != nil {
				globals.AppLogger.Error("could not get message history", "error", err)
				return
			}
			m, err := json.Marshal(messages)
			if err != nil {
				globals.AppLogger.Error("could not marshal messages", "error", err)
				return
			}
			fmt.Println(string(m))
		},
	}
	cmdShowHistory.Flags().IntVar(&historyLimit, "limit", 50, "maximum number of messages")

	var cmdPurge = &cobra.Command{
		Use:   "purge [room id]",
		Short: "Purge message history",
		Long:  `purge deletes persisted messages of the room with the given id older than the given age.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			before := time.Now().Add(-time.Duration(purgeBeforeHours) * time.Hour)
			purged, err := persister.PurgeMessages(args[0], before)
			if err != nil {
				globals.AppLogger.Error("could not purge messages", "error", err)
				return
			}
			fmt.Printf("purged %d messages\n", purged)
		},
	}
	cmdPurge.Flags().IntVar(&purgeBeforeHours, "older-than-hours", 24, "only purge messages older than this many hours")

	var rootCmd = &cobra.Command{Use: "lightspeed-presence-admin"}
	rootCmd.AddCommand(cmdShow, cmdPurge)
	cmdShow.AddCommand(cmdShowUsers, cmdShowUser, cmdShowHistory)
	if err := rootCmd.Execute(); err != nil {
		globals.AppLogger.Error("command failed", "error", err)
	}
}
