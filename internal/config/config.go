// Package config loads and saves the CLI's TOML settings.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"vaultsync/internal/crypto"
)

type Settings struct {
	Vault   VaultSettings   `toml:"vault"`
	Storage StorageSettings `toml:"storage"`
}

type VaultSettings struct {
	// KDFIterations applies to newly created vaults only; existing envelopes
	// always rederive with the count they were written with.
	KDFIterations int    `toml:"kdf_iterations"`
	KDFAlgorithm  string `toml:"kdf_algorithm"`
}

type StorageSettings struct {
	// Dir is used when MongoURI is empty.
	Dir        string `toml:"dir"`
	MongoURI   string `toml:"mongo_uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

func Default() Settings {
	return Settings{
		Vault: VaultSettings{
			KDFIterations: crypto.DefaultIterations,
			KDFAlgorithm:  string(crypto.PBKDF2),
		},
		Storage: StorageSettings{
			Dir:        ".vaultsync",
			Database:   "vaultsync",
			Collection: "envelopes",
		},
	}
}

// Load reads settings from path, falling back to defaults when the file does
// not exist. Fields absent from the file keep their defaults.
func Load(path string) (Settings, error) {
	s := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return s, nil
	}
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return s, err
	}
	return s, nil
}

func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(s)
}
