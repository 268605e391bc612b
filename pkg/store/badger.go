package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/sambigeara/sadb/pkg/types"
)

const (
	badgerDirName = "db"
	keyPrefix     = "sa/"
)

var _ Store = (*kv)(nil)

// kv stores each SA under sa/<type>/<scid><spi>, with scid and spi
// big-endian so iteration yields identity order.
type kv struct {
	db *badger.DB
	ft types.FrameType
}

// OpenBadger opens (or creates) the badger database under dir.
func OpenBadger(dir string) (*Set, error) {
	opts := badger.DefaultOptions(filepath.Join(dir, badgerDirName))
	opts.Logger = nil
	return openBadger(opts)
}

// NewInMemoryBadger returns a Set backed by a non-persistent badger
// instance.
func NewInMemoryBadger() (*Set, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*Set, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	set := &Set{stores: make(map[types.FrameType]Store, len(types.FrameTypes))}
	for _, ft := range types.FrameTypes {
		set.stores[ft] = &kv{db: db, ft: ft}
	}
	set.closers = append(set.closers, db.Close)
	return set, nil
}

func (s *kv) prefix() []byte {
	return []byte(keyPrefix + s.ft.String() + "/")
}

func (s *kv) key(scid, spi uint16) []byte {
	k := s.prefix()
	k = binary.BigEndian.AppendUint16(k, scid)
	return binary.BigEndian.AppendUint16(k, spi)
}

func (s *kv) decode(v []byte) (*types.SecurityAssociation, error) {
	sa := &types.SecurityAssociation{}
	if err := json.Unmarshal(v, sa); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", s.ft, err)
	}
	return sa, nil
}

func (s *kv) Get(_ context.Context, scid, spi uint16) (*types.SecurityAssociation, error) {
	var sa *types.SecurityAssociation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(scid, spi))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			sa, err = s.decode(v)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(s.ft, scid, spi)
	}
	if err != nil {
		return nil, err
	}
	return sa, nil
}

func (s *kv) List(_ context.Context, f Filter) ([]*types.SecurityAssociation, error) {
	var out []*types.SecurityAssociation
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := s.prefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				sa, err := s.decode(v)
				if err != nil {
					return err
				}
				if f.Match(sa) {
					out = append(out, sa)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.ft, err)
	}
	return out, nil
}

func (s *kv) Insert(_ context.Context, sa *types.SecurityAssociation) error {
	data, err := json.Marshal(sa)
	if err != nil {
		return fmt.Errorf("encode %s: %w", sa.Identity(), err)
	}
	k := s.key(sa.SCID, sa.SPI)

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(k); err == nil {
			return exists(s.ft, sa.SCID, sa.SPI)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(k, data)
	})
	if err != nil && !errors.Is(err, ErrExists) {
		return fmt.Errorf("persist %s: %w", sa.Identity(), err)
	}
	return err
}

func (s *kv) Update(_ context.Context, sa *types.SecurityAssociation) error {
	data, err := json.Marshal(sa)
	if err != nil {
		return fmt.Errorf("encode %s: %w", sa.Identity(), err)
	}
	k := s.key(sa.SCID, sa.SPI)

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(k); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return notFound(s.ft, sa.SCID, sa.SPI)
			}
			return err
		}
		return txn.Set(k, data)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("persist %s: %w", sa.Identity(), err)
	}
	return err
}

func (s *kv) Delete(_ context.Context, scid, spi uint16) error {
	k := s.key(scid, spi)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(k); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return notFound(s.ft, scid, spi)
			}
			return err
		}
		return txn.Delete(k)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete %s SPI %d / SCID %d: %w", s.ft, spi, scid, err)
	}
	return err
}
