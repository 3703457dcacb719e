package main

import (
	"fmt"

	"catreg/internal/config"
	"catreg/internal/metadata"
)

// setupMetadataRegistry loads entity types from ENTITY_TYPES_FILE, falling
// back to the embedded definitions.
func setupMetadataRegistry(cfg *config.Config) (*metadata.Registry, error) {
	if cfg.EntityTypesFile == "" {
		return metadata.LoadDefault()
	}
	reg, err := metadata.LoadFile(cfg.EntityTypesFile)
	if err != nil {
		return nil, fmt.Errorf("entity types from %s: %w", cfg.EntityTypesFile, err)
	}
	return reg, nil
}
