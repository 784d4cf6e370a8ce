package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"lendledger/native/lending"
)

type listingFile struct {
	Assets []AssetListing `yaml:"assets"`
}

// LoadAssetListings reads a YAML asset listing file. Unknown keys are
// rejected.
func LoadAssetListings(path string) ([]AssetListing, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open asset listings: %w", err)
	}
	defer file.Close()
	return DecodeAssetListings(file)
}

// DecodeAssetListings decodes a YAML asset listing document.
func DecodeAssetListings(r io.Reader) ([]AssetListing, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var doc listingFile
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode asset listings: %w", err)
	}
	return doc.Assets, nil
}

// ResolveListings converts listings into engine configurations, rejecting
// duplicates.
func ResolveListings(listings []AssetListing) ([]lending.AssetConfig, error) {
	seen := make(map[string]struct{}, len(listings))
	out := make([]lending.AssetConfig, 0, len(listings))
	for _, listing := range listings {
		cfg, err := listing.AssetConfig()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[cfg.Asset]; dup {
			return nil, fmt.Errorf("asset %s listed twice", cfg.Asset)
		}
		seen[cfg.Asset] = struct{}{}
		out = append(out, cfg)
	}
	return out, nil
}
