package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/whisperwall/whisperwall/auth"
)

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersAddCmd)
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all user accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		users, err := usersStorage.ListAll()
		if err != nil {
			return err
		}
		for _, u := range users {
			hasSecret := " "
			if u.HasSecret() {
				hasSecret = "*"
			}
			fmt.Printf("%6d %s %s\n", u.ID, hasSecret, u.Username)
		}
		return nil
	},
}

var usersAddCmd = &cobra.Command{
	Use:   "add <email> <password>",
	Short: "Create a local user account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		// Same validation rules as the registration form.
		a := auth.LocalAuthenticator{Users: usersStorage}
		u, err := a.Register(args[0], args[1])
		if err != nil {
			return err
		}
		log.Printf("Created user %d (%s)", u.ID, u.Username)
		return nil
	},
}
