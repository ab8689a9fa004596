// mfa-triage classifies German patient mails from the command line: one mail
// per call or a bounded-concurrency batch over several files.
package main

import (
	"fmt"
	"os"

	"github.com/lpernett/godotenv"
)

func main() {
	// Same bootstrap order as the original deployment: .env first, then
	// config file and environment override it through viper.
	_ = godotenv.Load()

	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
