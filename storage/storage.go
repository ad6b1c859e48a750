package storage

import (
	"encoding/json"
	"fmt"
)

type (
	// Cell is one decoded column value. Encoded rows are JSON arrays of
	// cells so the stored column order survives a round trip.
	Cell struct {
		Field string `json:"f"`
		Value any    `json:"v"`
	}

	// KV is one record returned by a range scan.
	KV struct {
		Key   string
		Value []byte
	}

	// Chunk is the batch of records one range scan returns.
	Chunk []KV
)

// EncodeRow renders a row's cells into the stored value encoding.
func EncodeRow(cells []Cell) ([]byte, error) {
	b, err := json.Marshal(cells)
	if err != nil {
		return nil, fmt.Errorf("error in json.Marshal: %w", err)
	}
	return b, nil
}

// DecodeRow reconstructs a row from its stored value. An empty value is a
// tombstone and decodes to no cells.
func DecodeRow(b []byte) ([]Cell, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var cells []Cell
	err := json.Unmarshal(b, &cells)
	if err != nil {
		return nil, fmt.Errorf("error in json.Unmarshal: %w", err)
	}
	return cells, nil
}
