package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vaultsync/internal/collection"
	"vaultsync/internal/container"
	"vaultsync/internal/crypto"
	"vaultsync/internal/storage"
)

var (
	addType   string
	addFields []string
	itemID    string
)

func init() {
	addCmd.Flags().StringVar(&addType, "type", "login", "item type")
	addCmd.Flags().StringArrayVar(&addFields, "field", nil, "item field as key=value (repeatable)")
	getCmd.Flags().StringVar(&itemID, "id", "", "item id")
	_ = getCmd.MarkFlagRequired("id")
	removeCmd.Flags().StringVar(&itemID, "id", "", "item id")
	_ = removeCmd.MarkFlagRequired("id")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new empty vault",
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

		if _, err := store.Load(ctx, vaultID); err == nil {
			return fmt.Errorf("vault %q already exists", vaultID)
		}

		password, err := readPassword("Master password: ")
		if err != nil {
			return err
		}
		defer crypto.Zero(password)

		ctr := container.NewPasswordContainer(crypto.Default())
		ctr.KDF.Iterations = settings.Vault.KDFIterations
		ctr.KDF.Algorithm = crypto.KDFAlg(settings.Vault.KDFAlgorithm)
		ctr.SetPassword(password)
		defer ctr.Lock()

		if err := saveVault(ctx, store, ctr, collection.New()); err != nil {
			return err
		}
		log.Infof("vault %s created", vaultID)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add an item to the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUnlockedVault(cmd.Context(), func(ctx context.Context, store storage.EnvelopeStore, ctr *container.PasswordContainer, col *collection.Collection) error {
			fields := map[string]string{"name": args[0]}
			for _, f := range addFields {
				k, v, ok := splitField(f)
				if !ok {
					return fmt.Errorf("malformed field %q, want key=value", f)
				}
				fields[k] = v
			}
			item := collection.Item{Type: addType, Fields: fields}
			col.Update(item)
			if err := saveVault(ctx, store, ctr, col); err != nil {
				return err
			}
			log.Infof("added %s item %q", addType, args[0])
			return nil
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Print one decrypted item",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUnlockedVault(cmd.Context(), func(ctx context.Context, store storage.EnvelopeStore, ctr *container.PasswordContainer, col *collection.Collection) error {
			item, ok := col.Get(itemID)
			if !ok {
				return fmt.Errorf("item %q not found", itemID)
			}
			fmt.Printf("%s (%s)\n", item.ID, item.Type)
			for k, v := range item.Fields {
				fmt.Printf("  %s: %s\n", k, v)
			}
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List vault items",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUnlockedVault(cmd.Context(), func(ctx context.Context, store storage.EnvelopeStore, ctr *container.PasswordContainer, col *collection.Collection) error {
			for _, item := range col.Items() {
				fmt.Printf("%s  %-8s %s\n", item.ID, item.Type, item.Fields["name"])
			}
			return nil
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove an item from the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUnlockedVault(cmd.Context(), func(ctx context.Context, store storage.EnvelopeStore, ctr *container.PasswordContainer, col *collection.Collection) error {
			item, ok := col.Get(itemID)
			if !ok {
				return fmt.Errorf("item %q not found", itemID)
			}
			col.Remove(item)
			if err := saveVault(ctx, store, ctr, col); err != nil {
				return err
			}
			log.Infof("removed item %s", itemID)
			return nil
		})
	},
}

// withUnlockedVault loads the vault, prompts for the master password,
// decrypts, and hands the open collection to fn. The password and container
// key material are dropped before returning.
func withUnlockedVault(ctx context.Context, fn func(context.Context, storage.EnvelopeStore, *container.PasswordContainer, *collection.Collection) error) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, closer, err := buildStore(ctx, settings.Storage)
	if err != nil {
		return err
	}
	defer closer()

	envelope, err := store.Load(ctx, vaultID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("vault %q does not exist, run init first", vaultID)
	}
	if err != nil {
		return err
	}

	password, err := readPassword("Master password: ")
	if err != nil {
		return err
	}
	defer crypto.Zero(password)

	ctr := container.NewPasswordContainer(crypto.Default())
	ctr.SetPassword(password)
	defer ctr.Lock()

	col := collection.New()
	if err := ctr.Deserialize(envelope, col); err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return errors.New("could not unlock vault")
		}
		if errors.Is(err, container.ErrUnsupportedVersion) {
			return errors.New("vault data is from an unsupported version")
		}
		return err
	}
	return fn(ctx, store, ctr, col)
}

func saveVault(ctx context.Context, store storage.EnvelopeStore, ctr *container.PasswordContainer, col *collection.Collection) error {
	envelope, err := ctr.Serialize(col)
	if err != nil {
		return err
	}
	return store.Save(ctx, vaultID, envelope)
}

func splitField(s string) (key, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], i > 0
		}
	}
	return "", "", false
}
