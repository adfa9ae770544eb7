package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vaultsync/internal/accessor"
	"vaultsync/internal/collection"
	"vaultsync/internal/container"
	"vaultsync/internal/crypto"
	"vaultsync/internal/storage"
)

var (
	shareKey         string
	shareOwnerID     string
	shareInviteeKey  string
	shareInviteeID   string
	shareEmail       string
	shareFingerprint string

	revokeKey        string
	revokeOwnerID    string
	revokeAccessorID string
)

func init() {
	shareCmd.Flags().StringVar(&shareKey, "key", "", "owner private key (PEM)")
	shareCmd.Flags().StringVar(&shareOwnerID, "owner-id", "owner", "owner accessor id")
	shareCmd.Flags().StringVar(&shareInviteeKey, "invitee-key", "", "invitee public key (PEM)")
	shareCmd.Flags().StringVar(&shareInviteeID, "invitee-id", "", "invitee accessor id")
	shareCmd.Flags().StringVar(&shareEmail, "email", "", "invitee email")
	shareCmd.Flags().StringVar(&shareFingerprint, "fingerprint", "", "invitee key fingerprint, confirmed out of band")
	_ = shareCmd.MarkFlagRequired("key")
	_ = shareCmd.MarkFlagRequired("invitee-key")
	_ = shareCmd.MarkFlagRequired("invitee-id")
	_ = shareCmd.MarkFlagRequired("fingerprint")

	revokeCmd.Flags().StringVar(&revokeKey, "key", "", "owner private key (PEM)")
	revokeCmd.Flags().StringVar(&revokeOwnerID, "owner-id", "owner", "owner accessor id")
	revokeCmd.Flags().StringVar(&revokeAccessorID, "accessor-id", "", "accessor id to revoke")
	_ = revokeCmd.MarkFlagRequired("key")
	_ = revokeCmd.MarkFlagRequired("accessor-id")
}

// sharedVaultID names the shared copy of the vault in the store, kept
// separate from the password-encrypted copy.
func sharedVaultID() string {
	return vaultID + "-shared"
}

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Grant a participant access to the shared copy of the vault",
	Long: `Activates an invitee into the vault's shared envelope. The first share
decrypts the password vault and writes a shared copy encrypted for the owner
and the invitee; later shares only rewrap the content key for the grown
participant set, without touching the payload ciphertext. The fingerprint
passed here must have been confirmed with the invitee out of band.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		store, closer, err := buildStore(ctx, settings.Storage)
		if err != nil {
			return err
		}
		defer closer()

		priv, err := accessor.LoadPrivateKey(shareKey)
		if err != nil {
			return err
		}
		pub, err := accessor.LoadPublicKey(shareInviteeKey)
		if err != nil {
			return err
		}

		provider := crypto.Default()
		owner := &accessor.Accessor{
			ID:          shareOwnerID,
			Status:      accessor.StatusActive,
			Permissions: accessor.Permissions{Read: true, Write: true, Manage: true},
			PublicKey:   &priv.PublicKey,
		}
		invitee := &accessor.Accessor{
			ID:          shareInviteeID,
			Email:       shareEmail,
			Permissions: accessor.DefaultPermissions(),
			PublicKey:   pub,
		}
		if err := invitee.Invite(owner); err != nil {
			return err
		}
		if err := invitee.Activate(provider, shareFingerprint); err != nil {
			if errors.Is(err, accessor.ErrFingerprintMismatch) {
				return errors.New("fingerprint does not match the invitee key, refusing to share")
			}
			return err
		}

		ctr := container.NewSharedContainer(provider)
		if err := ctr.AddAccessor(owner); err != nil {
			return err
		}
		ctr.SetCurrent(shareOwnerID, priv)
		defer ctr.Lock()

		envelope, err := store.Load(ctx, sharedVaultID())
		if errors.Is(err, storage.ErrNotFound) {
			// First share: seed the shared copy from the password vault.
			return withUnlockedVault(ctx, func(ctx context.Context, _ storage.EnvelopeStore, _ *container.PasswordContainer, col *collection.Collection) error {
				if err := ctr.AddAccessor(invitee); err != nil {
					return err
				}
				data, err := ctr.Serialize(col)
				if err != nil {
					return err
				}
				if err := store.Save(ctx, sharedVaultID(), data); err != nil {
					return err
				}
				log.Infof("created shared copy of vault %s for %s", vaultID, shareInviteeID)
				return nil
			})
		}
		if err != nil {
			return err
		}

		col := collection.New()
		if err := ctr.Deserialize(envelope, col); err != nil {
			if errors.Is(err, container.ErrInvalidContainerData) {
				return fmt.Errorf("owner %q has no access to the shared copy", shareOwnerID)
			}
			return err
		}
		if err := ctr.AddAccessor(invitee); err != nil {
			return err
		}
		rewrapped, err := ctr.Rewrap(envelope)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, sharedVaultID(), rewrapped); err != nil {
			return err
		}
		log.Infof("granted %s access to vault %s", shareInviteeID, vaultID)
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke a participant's access to the shared copy of the vault",
	Long: `Removes an accessor and rewraps the shared envelope for the remaining
participants. The revoked accessor's wrapped key entry is dropped; envelopes
they already downloaded are not retroactively securable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		store, closer, err := buildStore(ctx, settings.Storage)
		if err != nil {
			return err
		}
		defer closer()

		priv, err := accessor.LoadPrivateKey(revokeKey)
		if err != nil {
			return err
		}

		envelope, err := store.Load(ctx, sharedVaultID())
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("vault %q has no shared copy", vaultID)
		}
		if err != nil {
			return err
		}

		ctr := container.NewSharedContainer(crypto.Default())
		ctr.SetCurrent(revokeOwnerID, priv)
		defer ctr.Lock()

		col := collection.New()
		if err := ctr.Deserialize(envelope, col); err != nil {
			if errors.Is(err, container.ErrInvalidContainerData) {
				return fmt.Errorf("owner %q has no access to the shared copy", revokeOwnerID)
			}
			return err
		}

		target := ctr.Accessor(revokeAccessorID)
		if target == nil {
			return fmt.Errorf("accessor %q not found", revokeAccessorID)
		}
		if err := target.Remove(); err != nil {
			return err
		}
		rewrapped, err := ctr.Rewrap(envelope)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, sharedVaultID(), rewrapped); err != nil {
			return err
		}
		log.Infof("revoked access of %s to vault %s", revokeAccessorID, vaultID)
		return nil
	},
}
