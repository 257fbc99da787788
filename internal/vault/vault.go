package vault

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/delist-sh/delist/pkg/models"
)

// BlobStore is the persistence the vault needs: opaque encrypted blobs
// keyed by profile id. The sqlite store satisfies it.
type BlobStore interface {
	SaveProfileBlob(id string, blob []byte, updatedAt time.Time) error
	GetProfileBlob(id string) ([]byte, error)
	ListProfileIDs() ([]string, error)
	DeleteProfileBlob(id string) error
}

// Vault holds encrypted consumer profiles. Field values are sealed
// individually so a decrypted accessor only ever materializes the
// fields it is asked for.
type Vault struct {
	cipher *Cipher
	store  BlobStore
	logger *logrus.Logger

	mu    sync.RWMutex
	cache map[string]map[string][]byte
}

func New(cipher *Cipher, store BlobStore, logger *logrus.Logger) *Vault {
	if logger == nil {
		logger = logrus.New()
	}
	return &Vault{
		cipher: cipher,
		store:  store,
		logger: logger,
		cache:  make(map[string]map[string][]byte),
	}
}

// CreateProfile seals the given fields and persists them under a new id.
// Empty values are dropped so Field misses stay meaningful.
func (v *Vault) CreateProfile(fields map[string]string) (string, error) {
	id := uuid.New().String()
	sealed := make(map[string][]byte, len(fields))
	for name, value := range fields {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		ct, err := v.cipher.Seal([]byte(value))
		if err != nil {
			return "", fmt.Errorf("seal field %s: %w", name, err)
		}
		sealed[name] = ct
	}

	blob, err := json.Marshal(sealed)
	if err != nil {
		return "", fmt.Errorf("encode profile: %w", err)
	}
	if err := v.store.SaveProfileBlob(id, blob, time.Now().UTC()); err != nil {
		return "", err
	}

	v.mu.Lock()
	v.cache[id] = sealed
	v.mu.Unlock()

	v.logger.WithFields(logrus.Fields{"profile_id": id, "fields": len(sealed)}).
		Info("Profile created")
	return id, nil
}

// Profile implements models.ProfileSource.
func (v *Vault) Profile(id string) (models.ProfileAccessor, error) {
	v.mu.RLock()
	sealed, ok := v.cache[id]
	v.mu.RUnlock()
	if !ok {
		blob, err := v.store.GetProfileBlob(id)
		if err != nil {
			return nil, err
		}
		sealed = make(map[string][]byte)
		if err := json.Unmarshal(blob, &sealed); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", id, err)
		}
		v.mu.Lock()
		v.cache[id] = sealed
		v.mu.Unlock()
	}
	return &accessor{id: id, cipher: v.cipher, sealed: sealed}, nil
}

// ProfileIDs lists known profiles, sorted.
func (v *Vault) ProfileIDs() ([]string, error) {
	ids, err := v.store.ListProfileIDs()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteProfile removes a profile from storage and cache.
func (v *Vault) DeleteProfile(id string) error {
	if err := v.store.DeleteProfileBlob(id); err != nil {
		return err
	}
	v.mu.Lock()
	delete(v.cache, id)
	v.mu.Unlock()
	return nil
}

type accessor struct {
	id     string
	cipher *Cipher
	sealed map[string][]byte
}

func (a *accessor) ProfileID() string { return a.id }

func (a *accessor) Field(name string) (string, bool) {
	ct, ok := a.sealed[name]
	if !ok {
		return "", false
	}
	pt, err := a.cipher.Open(ct)
	if err != nil {
		return "", false
	}
	return string(pt), true
}
