package judge

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownLanguage is returned when no strategy is registered for a language.
var ErrUnknownLanguage = errors.New("no judge registered for language")

// Language is the per-language strategy used by the Executor.
type Language interface {
	// Init applies plugin settings from the config file.
	Init(settings map[string]interface{}) error
	// EntryPoint finds the callable under test with a best-effort scan.
	EntryPoint(code string) (string, bool)
	// Program wraps code in a harness that reads whitespace-delimited stdin,
	// calls entry and prints its result.
	Program(code, entry string) Program
}

var (
	registry   = make(map[string]Language)
	registryMu sync.RWMutex
)

// RegisterLanguage adds a strategy under a key.
// It should be called in each language plugin's init() function.
func RegisterLanguage(key string, lang Language) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if key == "" {
		return fmt.Errorf("language key cannot be empty")
	}
	if _, exists := registry[key]; exists {
		return fmt.Errorf("language already registered for key %q", key)
	}
	registry[key] = lang
	return nil
}

// GetLanguage retrieves a strategy by key.
func GetLanguage(key string) (Language, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	lang, exists := registry[key]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, key)
	}
	return lang, nil
}

// InitializeLanguage initializes a specific plugin with its settings.
func InitializeLanguage(key string, settings map[string]interface{}) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	lang, exists := registry[key]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, key)
	}
	if err := lang.Init(settings); err != nil {
		return fmt.Errorf("failed to init language %q: %w", key, err)
	}
	return nil
}

// Languages lists the registered keys in sorted order.
func Languages() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StringSetting reads a string plugin setting, returning fallback when absent.
func StringSetting(settings map[string]interface{}, key, fallback string) (string, error) {
	raw, ok := settings[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("setting %q must be a string, got %T", key, raw)
	}
	if s == "" {
		return fallback, nil
	}
	return s, nil
}
