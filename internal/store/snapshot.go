package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"MemberReserve/internal/model"
)

// LoadSnapshot reads a JSON state file. Returns an empty snapshot if the file doesn't exist.
func LoadSnapshot(filePath string) (*model.Snapshot, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return model.NewSnapshot(), nil
		}
		return nil, err
	}
	snap := model.NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	return snap, nil
}

// SaveSnapshot writes snap as indented JSON. The file is replaced atomically.
func SaveSnapshot(filePath string, snap *model.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".state-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}
