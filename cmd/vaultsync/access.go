package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vaultsync/internal/accessor"
	"vaultsync/internal/crypto"
)

var (
	keyOut      string
	inviteKey   string
	inviteEmail string
	invitePub   string
	inviteTTL   time.Duration
)

func init() {
	keygenCmd.Flags().StringVar(&keyOut, "out", "vaultsync_key", "output path prefix (writes <out>.pem and <out>.pub)")
	inviteCmd.Flags().StringVar(&inviteKey, "key", "", "inviter private key (PEM)")
	inviteCmd.Flags().StringVar(&invitePub, "invitee-key", "", "invitee public key (PEM)")
	inviteCmd.Flags().StringVar(&inviteEmail, "email", "", "invitee email")
	inviteCmd.Flags().DurationVar(&inviteTTL, "ttl", 72*time.Hour, "invite validity")
	_ = inviteCmd.MarkFlagRequired("key")
	_ = inviteCmd.MarkFlagRequired("invitee-key")
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an RSA key pair for shared vault access",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := crypto.Default()
		priv, err := provider.GenerateKeyPair(crypto.RSAKeyBits)
		if err != nil {
			return err
		}
		privPath := keyOut + ".pem"
		pubPath := keyOut + ".pub"
		if err := accessor.SaveKeyPair(priv, privPath, pubPath); err != nil {
			return err
		}
		fp, err := provider.Fingerprint(&priv.PublicKey)
		if err != nil {
			return err
		}
		log.Infof("wrote %s and %s", privPath, pubPath)
		fmt.Println(fp)
		return nil
	},
}

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint [public-key.pub]",
	Short: "Print the fingerprint of a public key for out-of-band confirmation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, err := accessor.LoadPublicKey(args[0])
		if err != nil {
			return err
		}
		fp, err := crypto.Default().Fingerprint(pub)
		if err != nil {
			return err
		}
		fmt.Println(fp)
		return nil
	},
}

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Issue a signed invite token for a new vault participant",
	Long: `Signs an invite with the inviter's private key. The token binds the
invitee's key fingerprint; the invitee confirms that fingerprint out of band
before their key is ever trusted with the vault content key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		priv, err := accessor.LoadPrivateKey(inviteKey)
		if err != nil {
			return err
		}
		pub, err := accessor.LoadPublicKey(invitePub)
		if err != nil {
			return err
		}
		fp, err := crypto.Default().Fingerprint(pub)
		if err != nil {
			return err
		}
		token, err := accessor.SignInvite(priv, accessor.Invite{
			VaultID:     vaultID,
			AccessorID:  uuid.NewString(),
			Email:       inviteEmail,
			Fingerprint: fp,
		}, inviteTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}
