package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/whisperwall/whisperwall/cmd/whisperwall/config"
	"github.com/whisperwall/whisperwall/storage/model"
)

var rootCmd = &cobra.Command{
	Use:   "wwcli",
	Short: "wwcli can help you manage your Whisper Wall",
	Long:  "wwcli can help you manage your Whisper Wall",
}

var configFile string
var usersStorage model.UsersStore

func loadConfig() error {
	config.Load(configFile)
	log.Println("Loaded Config")
	c := config.Get()

	backs, err := config.LoadStorageBackends(c.Storage)
	if err != nil {
		log.Fatal(err)
	}
	usersStorage = backs.Users
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "the config file to use")
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
