package assets

import (
	"encoding/json"
	"time"
)

// DiscoveryResult is one completed scan batch: everything a single logical
// scanner run observed, keyed by asset id in discovery order.
type DiscoveryResult struct {
	ScanID    string    `json:"scan_id"`
	Timestamp time.Time `json:"timestamp"`

	ids    []string
	assets map[string]*Asset
}

// NewDiscoveryResult creates an empty batch for the given scan id.
func NewDiscoveryResult(scanID string) *DiscoveryResult {
	return &DiscoveryResult{
		ScanID:    scanID,
		Timestamp: time.Now().Truncate(time.Millisecond),
		assets:    make(map[string]*Asset),
	}
}

// Add records a discovered asset. A second asset with the same id replaces
// the first but keeps its position in discovery order.
func (d *DiscoveryResult) Add(asset *Asset) {
	if d.assets == nil {
		d.assets = make(map[string]*Asset)
	}
	if _, exists := d.assets[asset.ID]; !exists {
		d.ids = append(d.ids, asset.ID)
	}
	d.assets[asset.ID] = asset
}

// Get returns the asset with the given id, if present in the batch.
func (d *DiscoveryResult) Get(id string) (*Asset, bool) {
	asset, ok := d.assets[id]
	return asset, ok
}

// Len returns the number of assets in the batch.
func (d *DiscoveryResult) Len() int {
	return len(d.ids)
}

// Assets returns the batch contents in discovery order.
func (d *DiscoveryResult) Assets() []*Asset {
	out := make([]*Asset, 0, len(d.ids))
	for _, id := range d.ids {
		out = append(out, d.assets[id])
	}
	return out
}

// discoveryResultWire is the JSON shape of a batch; the asset list keeps
// discovery order.
type discoveryResultWire struct {
	ScanID    string    `json:"scan_id"`
	Timestamp time.Time `json:"timestamp"`
	Assets    []*Asset  `json:"assets"`
}

// MarshalJSON encodes the batch for snapshot persistence.
func (d *DiscoveryResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(discoveryResultWire{
		ScanID:    d.ScanID,
		Timestamp: d.Timestamp,
		Assets:    d.Assets(),
	})
}

// UnmarshalJSON restores a persisted batch.
func (d *DiscoveryResult) UnmarshalJSON(data []byte) error {
	var wire discoveryResultWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	d.ScanID = wire.ScanID
	d.Timestamp = wire.Timestamp
	d.ids = nil
	d.assets = make(map[string]*Asset, len(wire.Assets))
	for _, asset := range wire.Assets {
		d.Add(asset)
	}
	return nil
}
