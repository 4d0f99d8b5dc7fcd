package cmd

import (
	"os"

	"github.com/ackruti/Oracle-etl-tool/cmd/credentials"
	"github.com/ackruti/Oracle-etl-tool/cmd/gateway"
	"github.com/ackruti/Oracle-etl-tool/cmd/prompt"
)

// credentialSource uses db.user and db.password when both are configured,
// otherwise the credentials file, prompting on the terminal the first time.
func credentialSource(config *Config, term *prompt.Terminal) gateway.CredentialSource {
	if config.Database.User != "" && config.Database.Password != "" {
		return credentials.Static{Username: config.Database.User, Password: config.Database.Password}
	}
	var prompter credentials.Prompter
	if term != nil {
		prompter = term
	}
	return credentials.NewFileStore(config.App.CredentialsFile, prompter, logger)
}

// newTerminal returns the interactive prompts, or nil when stdin is not a terminal.
func newTerminal(dir string) *prompt.Terminal {
	fi, err := os.Stdin.Stat()
	if err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return nil
	}
	return &prompt.Terminal{Dir: dir}
}
