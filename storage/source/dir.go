package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chainledger/wallet-indexer/storage"
)

// DirSource reads blocks from a directory holding one `<height>.json` file
// per block, in the same format the HTTP extractor serves.
type DirSource struct {
	dir string
}

var _ storage.BlockSource = (*DirSource)(nil)

func NewDirSource(dir string) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &DirSource{dir: dir}, nil
}

// Block implements storage.BlockSource.
func (s *DirSource) Block(ctx context.Context, height uint64) (*storage.Block, error) {
	path := filepath.Join(s.dir, strconv.FormatUint(height, 10)+".json")
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("block %d: %w", height, storage.ErrNotFound)
	case err != nil:
		return nil, err
	}
	var b storage.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &b, nil
}

// LatestHeight implements storage.BlockSource. It is the highest height
// with a block file, or 0 if the directory holds none.
func (s *DirSource) LatestHeight(ctx context.Context) (uint64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	var latest uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		height, err := strconv.ParseUint(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}
		if height > latest {
			latest = height
		}
	}
	return latest, nil
}

// Close implements storage.BlockSource.
func (s *DirSource) Close() error {
	return nil
}
