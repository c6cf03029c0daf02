package util

import (
	"encoding"
	"encoding/json"
	"os"
	"path/filepath"
)

func SaveJson(path string, data interface{}) error {
	// if path doesn't exist create it
	if _, err := os.Stat(path); os.IsNotExist(err) {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	bs, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = file.Write(bs)
	return err
}

// SaveBinary writes the binary encoding of m to path, creating parent
// directories as needed.
func SaveBinary(path string, m encoding.BinaryMarshaler) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	bs, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	return os.WriteFile(path, bs, 0644)
}

// LoadBinary reads path and decodes it into u.
func LoadBinary(path string, u encoding.BinaryUnmarshaler) error {
	bs, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return u.UnmarshalBinary(bs)
}
