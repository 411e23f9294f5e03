package bolt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/dontvisit/internal/blocker/common/clock"
	"github.com/haukened/dontvisit/internal/blocker/domain"
	"github.com/haukened/dontvisit/internal/blocker/repos/store"
)

var bucketState = []byte("state")

// errNoBucket is returned when the state bucket vanished underneath us.
var errNoBucket = errors.New("state bucket missing")

// boltStore implements store.Store with one bbolt bucket of JSON values.
type boltStore struct {
	db    *bbolt.DB
	clock clock.Clock
}

// New opens (or creates) a Bolt database at path and ensures the bucket exists.
func New(path string, clk clock.Clock) (store.Store, error) {
	if clk == nil {
		clk = &clock.RealClock{}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, unavailable(err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, unavailable(err)
	}
	return &boltStore{db: db, clock: clk}, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) Init() error {
	def := store.Defaults()
	defaults := map[string]any{
		store.KeyBlockedSites:    def.BlockList.Strings(),
		store.KeyBlockingEnabled: def.Enabled,
		store.KeyBlockingMethod:  def.Method,
		store.KeySettings:        def.Settings,
		store.KeyStatistics:      domain.NewStatistics(s.clock.Now().UTC()),
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketState)
		if b == nil {
			return errNoBucket
		}
		for k, v := range defaults {
			if b.Get([]byte(k)) != nil {
				continue
			}
			if err := putJSON(b, k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *boltStore) Snapshot() (domain.Snapshot, error) {
	snap := store.Defaults()
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketState)
		if b == nil {
			return errNoBucket
		}
		var sites []string
		if err := getJSON(b, store.KeyBlockedSites, &sites); err != nil {
			return err
		}
		// Stored entries were normalized on insert.
		snap.BlockList = toList(sites)
		if err := getJSON(b, store.KeyBlockingEnabled, &snap.Enabled); err != nil {
			return err
		}
		if err := getJSON(b, store.KeyBlockingMethod, &snap.Method); err != nil {
			return err
		}
		return getJSON(b, store.KeySettings, &snap.Settings)
	})
	if err != nil {
		return domain.Snapshot{}, unavailable(err)
	}
	return snap, nil
}

func (s *boltStore) BlockList() (domain.BlockList, error) {
	var sites []string
	if err := s.view(store.KeyBlockedSites, &sites); err != nil {
		return nil, err
	}
	return toList(sites), nil
}

func (s *boltStore) UpdateBlockList(fn func(domain.BlockList) (domain.BlockList, error)) (domain.BlockList, error) {
	var next domain.BlockList
	var fnErr error
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketState)
		if b == nil {
			return errNoBucket
		}
		var sites []string
		if err := getJSON(b, store.KeyBlockedSites, &sites); err != nil {
			return err
		}
		next, fnErr = fn(toList(sites))
		if fnErr != nil {
			return fnErr
		}
		return putJSON(b, store.KeyBlockedSites, next.Strings())
	})
	if fnErr != nil {
		return nil, fnErr
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return next, nil
}

func (s *boltStore) SetEnabled(enabled bool) error {
	return s.put(store.KeyBlockingEnabled, enabled)
}

func (s *boltStore) SetMethod(m domain.BlockingMethod) error {
	return s.put(store.KeyBlockingMethod, m)
}

func (s *boltStore) Settings() (domain.Settings, error) {
	st := domain.DefaultSettings()
	if err := s.view(store.KeySettings, &st); err != nil {
		return domain.Settings{}, err
	}
	return st, nil
}

func (s *boltStore) PutSettings(st domain.Settings) error {
	return s.put(store.KeySettings, st)
}

func (s *boltStore) Statistics() (domain.Statistics, error) {
	st := domain.NewStatistics(time.Time{})
	if err := s.view(store.KeyStatistics, &st); err != nil {
		return domain.Statistics{}, err
	}
	if st.SitesBlocked == nil {
		st.SitesBlocked = map[string]uint64{}
	}
	return st, nil
}

// RecordBlock is a read-modify-write inside one transaction, so concurrent
// increments are never lost.
func (s *boltStore) RecordBlock(host string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketState)
		if b == nil {
			return errNoBucket
		}
		st := domain.NewStatistics(s.clock.Now().UTC())
		if err := getJSON(b, store.KeyStatistics, &st); err != nil {
			return err
		}
		st.Record(host)
		return putJSON(b, store.KeyStatistics, st)
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *boltStore) view(key string, out any) error {
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketState)
		if b == nil {
			return errNoBucket
		}
		return getJSON(b, key, out)
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *boltStore) put(key string, v any) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketState)
		if b == nil {
			return errNoBucket
		}
		return putJSON(b, key, v)
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// getJSON leaves out untouched when key is absent.
func getJSON(b *bbolt.Bucket, key string, out any) error {
	v := b.Get([]byte(key))
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(v, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func putJSON(b *bbolt.Bucket, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Put([]byte(key), raw)
}

func toList(sites []string) domain.BlockList {
	out := make(domain.BlockList, 0, len(sites))
	for _, s := range sites {
		out = append(out, domain.BlockEntry(s))
	}
	return out
}

var _ store.Store = (*boltStore)(nil)
