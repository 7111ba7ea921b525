package repository

import (
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

type snapshotSession struct {
	ID       string     `json:"id"`
	UserID   string     `json:"user_id"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

type snapshotFile struct {
	Version  int               `json:"version"`
	Sessions []snapshotSession `json:"sessions"`
}

const snapshotVersion = 1

// SnapshotFile stores the memory store as zstd compressed JSON. Writes go to a
// temporary file that is renamed over the target.
type SnapshotFile struct {
	path    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewSnapshotFile(path string) (*SnapshotFile, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &SnapshotFile{path: path, encoder: encoder, decoder: decoder}, nil
}

func (f *SnapshotFile) Save(sessions []snapshotSession) error {
	raw, err := json.Marshal(snapshotFile{Version: snapshotVersion, Sessions: sessions})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	data := f.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))

	tmp := f.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp, f.path)
}

// Load returns nil without error when the file does not exist yet.
func (f *SnapshotFile) Load() ([]snapshotSession, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	raw, err := f.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var file snapshotFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if file.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", file.Version)
	}
	return file.Sessions, nil
}

func (f *SnapshotFile) Close() {
	f.encoder.Close()
	f.decoder.Close()
}
