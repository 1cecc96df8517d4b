package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whisperwall/whisperwall/internal/fieldcrypt"
)

func init() {
	rootCmd.AddCommand(genkeyCmd)
}

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate a field encryption key for the encryption.key config entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		key := make([]byte, fieldcrypt.KeySize)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		fmt.Println(base64.StdEncoding.EncodeToString(key))
		return nil
	},
}
