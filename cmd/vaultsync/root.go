package main

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"vaultsync/internal/config"
	"vaultsync/internal/logging"
	"vaultsync/internal/platform"
	"vaultsync/internal/storage"
)

var (
	verbose bool
	debug   bool
	cfgPath string
	vaultID string

	log logging.Logger

	rootCmd = &cobra.Command{
		Use:   "vaultsync",
		Short: "Encrypted, offline-syncable secret vault",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log = logging.Logger{Verbose: verbose, Debug: debug}
			if err := platform.DisableCoreDumps(); err != nil {
				log.Debugf("could not disable core dumps: %v", err)
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "path to config file")
	rootCmd.PersistentFlags().StringVar(&vaultID, "vault", "main", "vault identifier")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(fingerprintCmd)
	rootCmd.AddCommand(inviteCmd)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vaultsync.toml"
	}
	return home + "/.config/vaultsync/config.toml"
}

func loadSettings() (config.Settings, error) {
	return config.Load(cfgPath)
}

// buildStore picks the storage backend: Mongo when a URI is configured,
// local files otherwise. The returned closer is a no-op for file stores.
func buildStore(ctx context.Context, s config.StorageSettings) (storage.EnvelopeStore, func(), error) {
	if s.MongoURI == "" {
		return storage.NewFileStore(s.Dir), func() {}, nil
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ms, err := storage.NewMongoStore(cctx, s.MongoURI, s.Database, s.Collection)
	if err != nil {
		return nil, nil, err
	}
	return ms, func() { _ = ms.Close(ctx) }, nil
}

// readPassword prompts on the terminal without echo, falling back to a plain
// line read when stdin is not a terminal (tests, pipes).
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)
	if term.IsTerminal(int(syscall.Stdin)) {
		return term.ReadPassword(int(syscall.Stdin))
	}
	var pw string
	if _, err := fmt.Scanln(&pw); err != nil {
		return nil, err
	}
	return []byte(pw), nil
}
