package translate

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ProviderSettings describes one configured translation backend, read from
// the provider configuration file (§4.8.1).
type ProviderSettings struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"` // "self_hosted" or "web_scrape"
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// FileConfig is the on-disk shape of the provider configuration file.
type FileConfig struct {
	Providers []ProviderSettings `yaml:"providers"`
}

func (c *FileConfig) Validate() error {
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d: name required", i)
		}
		if p.Kind != "self_hosted" && p.Kind != "web_scrape" {
			return fmt.Errorf("provider %q: kind must be self_hosted or web_scrape", p.Name)
		}
	}
	return nil
}

// ConfigManager provides hot-reloadable provider configuration, patterned
// on the challenge-selector manager's lock-free atomic.Value reads plus a
// debounced fsnotify watcher (§4.8.1).
type ConfigManager struct {
	path    string
	current atomic.Value // *FileConfig

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewConfigManager loads path and, if hotReload is true, watches it for
// changes. If path is empty, the manager holds an empty configuration and
// Get always returns no providers. The Service never reads the manager; it
// uses only the providers passed to NewService.
func NewConfigManager(path string, hotReload bool) (*ConfigManager, error) {
	m := &ConfigManager{path: path, stopCh: make(chan struct{})}
	m.current.Store(&FileConfig{})

	if path == "" {
		return m, nil
	}

	if err := m.reload(); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to load translation provider config, using defaults")
	}

	if hotReload {
		if err := m.startWatcher(); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to start translation config watcher, hot-reload disabled")
		}
	}

	return m, nil
}

// Get returns the current configuration. Lock-free, safe for concurrent use.
func (m *ConfigManager) Get() *FileConfig {
	return m.current.Load().(*FileConfig)
}

func (m *ConfigManager) reload() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read translation config: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse translation config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid translation config: %w", err)
	}

	m.current.Store(&cfg)
	log.Info().Str("path", m.path).Int("providers", len(cfg.Providers)).Msg("translation provider config (re)loaded")
	return nil
}

func (m *ConfigManager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(m.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch file: %w", err)
	}
	m.watcher = watcher

	m.wg.Add(1)
	go m.watchFile()
	return nil
}

const configWatchDebounce = 100 * time.Millisecond

func (m *ConfigManager) watchFile() {
	defer m.wg.Done()

	var debounceTimer *time.Timer
	var debouncing bool

	for {
		select {
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debouncing {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
				debounceTimer.Reset(configWatchDebounce)
			} else {
				debouncing = true
				debounceTimer = time.AfterFunc(configWatchDebounce, func() {
					if err := m.reload(); err != nil {
						log.Warn().Err(err).Str("path", m.path).Msg("translation config hot-reload failed, keeping previous config")
					}
					debouncing = false
				})
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("translation config watcher error")
		}
	}
}

// Close stops the watcher goroutine, if any. Safe to call multiple times.
func (m *ConfigManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

// BuildProviders instantiates concrete Providers from the current
// configuration, in file order (self-hosted entries are expected first
// per §4.8.1's fallback ordering, but ordering is the config author's
// responsibility, not enforced here).
func (m *ConfigManager) BuildProviders() []Provider {
	cfg := m.Get()
	providers := make([]Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		switch p.Kind {
		case "self_hosted":
			providers = append(providers, NewSelfHostedProvider(SelfHostedConfig{
				Name:     p.Name,
				Endpoint: p.Endpoint,
				APIKey:   p.APIKey,
			}))
		case "web_scrape":
			providers = append(providers, NewWebScrapeProvider(WebScrapeConfig{
				Endpoint: p.Endpoint,
			}))
		}
	}
	return providers
}
