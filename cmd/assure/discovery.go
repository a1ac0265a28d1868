package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cloudprobe/assure/assets"
)

// discoveryFile is the on-disk shape of a scan result handed to the
// pipeline, as produced by an external discovery agent.
type discoveryFile struct {
	ScanID string `json:"scan_id"`
	Assets []struct {
		ID         string                 `json:"id"`
		Type       string                 `json:"type"`
		Name       string                 `json:"name"`
		Properties assets.AssetProperties `json:"properties"`
	} `json:"assets"`
}

// loadDiscovery reads a discovery result from a JSON file.
func loadDiscovery(path string) (*assets.DiscoveryResult, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read discovery file: %w", err)
	}

	var file discoveryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse discovery file: %w", err)
	}

	result := assets.NewDiscoveryResult(file.ScanID)
	for _, a := range file.Assets {
		if a.ID == "" || a.Type == "" {
			return nil, fmt.Errorf("asset without id or type in %s", path)
		}
		result.Add(&assets.Asset{
			ID:         a.ID,
			Type:       a.Type,
			Name:       a.Name,
			Properties: a.Properties,
		})
	}
	return result, nil
}
