package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vaultsync/internal/audit"
	"vaultsync/internal/collection"
	"vaultsync/internal/config"
	"vaultsync/internal/container"
	"vaultsync/internal/crypto"
	"vaultsync/internal/storage"
	vsync "vaultsync/internal/sync"
)

var (
	remoteDir   string
	remoteMongo string
)

func init() {
	syncCmd.Flags().StringVar(&remoteDir, "remote-dir", "", "directory holding the remote copy (e.g. a synced folder)")
	syncCmd.Flags().StringVar(&remoteMongo, "remote-mongo", "", "MongoDB URI holding the remote copy")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the local vault with its remote copy",
	Long: `Loads the remote envelope, decrypts it with the master password, merges the
remote collection into the local one by last-writer-wins, then re-encrypts
and uploads the merged state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if remoteDir == "" && remoteMongo == "" {
			return errors.New("one of --remote-dir or --remote-mongo is required")
		}
		return withUnlockedVault(cmd.Context(), func(ctx context.Context, store storage.EnvelopeStore, ctr *container.PasswordContainer, col *collection.Collection) error {
			remoteSettings := config.StorageSettings{
				Dir:        remoteDir,
				MongoURI:   remoteMongo,
				Database:   "vaultsync",
				Collection: "envelopes",
			}
			remote, closer, err := buildStore(ctx, remoteSettings)
			if err != nil {
				return err
			}
			defer closer()

			syncer := vsync.New(remote, log, audit.New())
			changes, err := syncer.Sync(ctx, vaultID, ctr, col)
			if err != nil {
				if errors.Is(err, crypto.ErrDecryptionFailed) {
					return errors.New("could not unlock remote vault")
				}
				return err
			}

			for _, ch := range changes {
				fmt.Printf("%-8s %s\n", ch.Kind, ch.Item.ID)
			}
			log.Infof("applied %d remote changes, revision %s", len(changes), col.Revision.ID)

			// The merged state also replaces the local copy.
			return saveVault(ctx, store, ctr, col)
		})
	},
}
