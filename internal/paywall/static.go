package paywall

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"

	"github.com/Resinat/Paygate/internal/model"
)

// StaticSource returns preloaded paywall definitions. Lookups never fail;
// a miss is reported through the boolean.
type StaticSource interface {
	GetStaticPaywall(paywallID string) (model.Paywall, bool)
}

// staticFile is the on-disk YAML layout:
//
//	paywalls:
//	  - id: pw_1
//	    identifier: onboarding
//	    name: Onboarding
//	    url: https://paywalls.example.com/onboarding
//	    product_ids: [pro_monthly]
type staticFile struct {
	Paywalls []model.Paywall `yaml:"paywalls"`
}

// ParseStaticPaywalls decodes a static paywall YAML document. Entries
// without an id or with duplicate ids are rejected.
func ParseStaticPaywalls(data []byte) (map[string]model.Paywall, error) {
	var file staticFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if len(bytes.TrimSpace(data)) == 0 {
			return map[string]model.Paywall{}, nil
		}
		return nil, fmt.Errorf("static paywalls: decode: %w", err)
	}
	out := make(map[string]model.Paywall, len(file.Paywalls))
	for i, p := range file.Paywalls {
		if p.ID == "" {
			return nil, fmt.Errorf("static paywalls: entry %d: missing id", i)
		}
		if _, dup := out[p.ID]; dup {
			return nil, fmt.Errorf("static paywalls: duplicate id %q", p.ID)
		}
		out[p.ID] = p
	}
	return out, nil
}

// StaticStoreConfig configures a StaticStore.
type StaticStoreConfig struct {
	// Path is the YAML file to load. Empty means the store only serves
	// definitions set through Replace.
	Path string
	// ReloadSchedule is a cron expression for re-reading Path.
	// Empty disables scheduled reloads.
	ReloadSchedule string
}

// StaticStore holds statically preloaded paywall definitions. Reads are
// lock-free; reloads swap the whole set atomically.
type StaticStore struct {
	paywalls atomic.Pointer[map[string]model.Paywall]

	path     string
	reloadMu sync.Mutex // serializes Reload calls
	lastHash xxh3.Uint128
	cron     *cron.Cron
}

// NewStaticStore creates a store. Call Start to perform the initial load
// and start scheduled reloads.
func NewStaticStore(cfg StaticStoreConfig) *StaticStore {
	s := &StaticStore{path: cfg.Path}
	empty := map[string]model.Paywall{}
	s.paywalls.Store(&empty)

	if cfg.Path != "" && cfg.ReloadSchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.ReloadSchedule, func() {
			if err := s.Reload(); err != nil {
				log.Printf("[paywall] scheduled static reload failed: %v", err)
			}
		}); err != nil {
			log.Printf("[paywall] invalid static reload schedule %q: %v", cfg.ReloadSchedule, err)
		} else {
			s.cron = c
		}
	}
	return s
}

// NewStaticStoreFromPaywalls creates a store serving the given definitions.
func NewStaticStoreFromPaywalls(paywalls []model.Paywall) *StaticStore {
	s := NewStaticStore(StaticStoreConfig{})
	s.Replace(paywalls)
	return s
}

// Start loads Path (when set) and starts the reload scheduler.
func (s *StaticStore) Start() error {
	if s.path != "" {
		if err := s.Reload(); err != nil {
			return err
		}
	}
	if s.cron != nil {
		s.cron.Start()
	}
	return nil
}

// Stop halts scheduled reloads and waits for a running reload to finish.
func (s *StaticStore) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Reload re-reads Path. An unchanged file is a no-op. On error the current
// set is kept.
func (s *StaticStore) Reload() error {
	if s.path == "" {
		return nil
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("static paywalls: read %s: %w", s.path, err)
	}
	sum := xxh3.Hash128(data)
	if sum == s.lastHash && s.Len() > 0 {
		return nil
	}
	parsed, err := ParseStaticPaywalls(data)
	if err != nil {
		return err
	}
	s.paywalls.Store(&parsed)
	s.lastHash = sum
	log.Printf("[paywall] loaded %d static paywall(s) from %s", len(parsed), s.path)
	return nil
}

// Replace swaps the served set for paywalls. The next Reload re-reads Path
// even when the file is unchanged.
func (s *StaticStore) Replace(paywalls []model.Paywall) {
	next := make(map[string]model.Paywall, len(paywalls))
	for _, p := range paywalls {
		if p.ID == "" {
			continue
		}
		next[p.ID] = p
	}
	s.reloadMu.Lock()
	s.paywalls.Store(&next)
	s.lastHash = xxh3.Uint128{}
	s.reloadMu.Unlock()
}

// GetStaticPaywall implements StaticSource.
func (s *StaticStore) GetStaticPaywall(paywallID string) (model.Paywall, bool) {
	if s == nil {
		return model.Paywall{}, false
	}
	p, ok := (*s.paywalls.Load())[paywallID]
	return p, ok
}

// Len returns the number of served definitions.
func (s *StaticStore) Len() int {
	return len(*s.paywalls.Load())
}
