package addresses

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/cointax/internal/domain"
)

const (
	btcLegacy = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	btcBech32 = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"
	ltcLegacy = "LVg2kJoFNg45Nbpy53h7Fe1wKyeXVRhMH9"
	ethLower  = "0xde0b295669a9fd93d5f28d9ec85e40f4cb697bae"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "addresses.json"))
	require.NoError(t, err)

	return s
}

func TestStoreLoadMissingFile(t *testing.T) {
	s := newTestStore(t)

	book, err := s.Load()
	require.NoError(t, err)
	assert.True(t, book.Empty())
}

func TestStoreAddPersists(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Add(domain.BTC, btcLegacy)
	require.NoError(t, err)
	_, err = s.Add(domain.BTC, " "+btcBech32+" ")
	require.NoError(t, err)
	_, err = s.Add(domain.LTC, ltcLegacy)
	require.NoError(t, err)

	reopened, err := NewStore(s.Path())
	require.NoError(t, err)
	book, err := reopened.Load()
	require.NoError(t, err)

	assert.Equal(t, []string{btcLegacy, btcBech32}, book[domain.BTC])
	assert.Equal(t, []string{ltcLegacy}, book[domain.LTC])
}

func TestStoreAddChecksumsEthereum(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Add(domain.ETH, ethLower)
	require.NoError(t, err)
	assert.True(t, strings.EqualFold(ethLower, got))
	assert.NotEqual(t, ethLower, got)

	_, err = s.Add(domain.ETH, strings.ToUpper(ethLower[2:]))
	assert.Error(t, err, "missing 0x prefix")

	_, err = s.Add(domain.ETH, ethLower)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestStoreAddRejectsInvalid(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Add(domain.BTC, ltcLegacy)
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = s.Add(domain.LTC, btcLegacy)
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = s.Add(domain.BTC, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = s.Add(domain.Asset("DOGE"), btcLegacy)
	assert.ErrorIs(t, err, domain.ErrUnknownAsset)
}

func TestStoreAddRejectsDuplicateAndLimit(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Add(domain.BTC, btcLegacy)
	require.NoError(t, err)
	_, err = s.Add(domain.BTC, btcLegacy)
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = s.Add(domain.BTC, btcBech32)
	require.NoError(t, err)
	_, err = s.Add(domain.BTC, "3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy")
	require.NoError(t, err)

	_, err = s.Add(domain.BTC, "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	assert.ErrorIs(t, err, ErrLimitReached)
}

func TestStoreRemoveAndClear(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Add(domain.ETH, ethLower)
	require.NoError(t, err)
	_, err = s.Add(domain.BTC, btcLegacy)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Remove(domain.LTC, ltcLegacy), ErrNotFound)
	require.NoError(t, s.Remove(domain.ETH, "0x"+strings.ToUpper(ethLower[2:])))

	book, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, book[domain.ETH])

	require.NoError(t, s.Clear(domain.BTC))
	book, err = s.Load()
	require.NoError(t, err)
	assert.True(t, book.Empty())
}

func TestStoreReplaceValidates(t *testing.T) {
	s := newTestStore(t)

	err := s.Replace(domain.AddressBook{domain.BTC: {btcLegacy, btcLegacy}})
	assert.ErrorIs(t, err, ErrDuplicate)

	err = s.Replace(domain.AddressBook{domain.LTC: {"nope"}})
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	require.NoError(t, s.Replace(domain.AddressBook{domain.BTC: {btcLegacy}, domain.LTC: {ltcLegacy}}))
	book, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, book[domain.BTC], 1)
	assert.Len(t, book[domain.LTC], 1)
}

func TestStoreLoadCorruptFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o600))

	_, err := s.Load()
	assert.Error(t, err)
}
