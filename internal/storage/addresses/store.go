// Package addresses persists the tracked wallet addresses as a JSON file.
package addresses

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/cointax/internal/domain"
)

var (
	// ErrDuplicate address is already tracked.
	ErrDuplicate = errors.New("address already tracked")
	// ErrLimitReached asset already has the maximum number of addresses.
	ErrLimitReached = errors.New("address limit reached")
	// ErrNotFound address is not tracked.
	ErrNotFound = errors.New("address not tracked")
)

// Store keeps the address book in a single JSON file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store backed by the file at path, creating its directory.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("address book path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create address book dir")
	}

	return &Store{path: path}, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the address book. A missing file yields an empty book.
func (s *Store) Load() (domain.AddressBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

// Add validates and appends the address to the asset's list.
func (s *Store) Add(asset domain.Asset, address string) (string, error) {
	canonical, err := domain.NormalizeAddress(asset, address)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	book, err := s.load()
	if err != nil {
		return "", err
	}

	set := book.Set(asset)
	if set.Contains(canonical) {
		return "", errors.Wrapf(ErrDuplicate, "%s %s", asset, canonical)
	}
	if set.Len() >= domain.MaxAddressesPerAsset {
		return "", errors.Wrapf(ErrLimitReached, "%s allows %d", asset, domain.MaxAddressesPerAsset)
	}

	book[asset] = append(book[asset], canonical)

	return canonical, s.save(book)
}

// Remove drops the address from the asset's list.
func (s *Store) Remove(asset domain.Asset, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, err := s.load()
	if err != nil {
		return err
	}

	needle := domain.NewAddressSet(asset, []string{address})
	idx := slices.IndexFunc(book[asset], func(a string) bool { return needle.Contains(a) })
	if idx < 0 {
		return errors.Wrapf(ErrNotFound, "%s %s", asset, address)
	}

	book[asset] = slices.Delete(book[asset], idx, idx+1)

	return s.save(book)
}

// Clear removes every address of the asset.
func (s *Store) Clear(asset domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, err := s.load()
	if err != nil {
		return err
	}
	delete(book, asset)

	return s.save(book)
}

// Replace overwrites the whole book after validating every entry.
func (s *Store) Replace(book domain.AddressBook) error {
	clean := make(domain.AddressBook, len(book))
	for asset, list := range book {
		if !asset.Valid() {
			return errors.Wrapf(domain.ErrUnknownAsset, "%q", asset)
		}
		if len(list) > domain.MaxAddressesPerAsset {
			return errors.Wrapf(ErrLimitReached, "%s allows %d", asset, domain.MaxAddressesPerAsset)
		}
		for _, address := range list {
			canonical, err := domain.NormalizeAddress(asset, address)
			if err != nil {
				return err
			}
			if clean.Set(asset).Contains(canonical) {
				return errors.Wrapf(ErrDuplicate, "%s %s", asset, canonical)
			}
			clean[asset] = append(clean[asset], canonical)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(clean)
}

func (s *Store) load() (domain.AddressBook, error) {
	book := make(domain.AddressBook)

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return book, nil
		}
		return nil, errors.Wrap(err, "read address book")
	}
	if len(payload) == 0 {
		return book, nil
	}

	if err := json.Unmarshal(payload, &book); err != nil {
		return nil, errors.Wrap(err, "decode address book")
	}

	return book, nil
}

// save writes the book atomically via temp file.
func (s *Store) save(book domain.AddressBook) error {
	payload, err := json.MarshalIndent(book, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode address book")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return errors.Wrap(err, "write address book temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist address book")
	}

	return nil
}
