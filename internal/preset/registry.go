package preset

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const defaultKey = "static"

var globalRegistry = newRegistry()

type registry struct {
	mu      sync.RWMutex
	presets map[string]Preset
}

func newRegistry() *registry {
	return &registry{presets: make(map[string]Preset)}
}

// Register 将 preset 加入全局注册表，重复键会返回错误。
func Register(p Preset) error {
	return globalRegistry.register(p)
}

// MustRegister 在注册失败时 panic，适合在 init() 中调用。
func MustRegister(p Preset) {
	if err := Register(p); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的 preset，键大小写不敏感。
func Resolve(key string) (Preset, bool) {
	return globalRegistry.resolve(key)
}

// List 返回按键排序的 preset 列表。
func List() []Preset {
	return globalRegistry.list()
}

// Keys 返回所有已注册 preset 的键值，供配置报错与诊断接口使用。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, p := range items {
		result[i] = p.Key
	}
	return result
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(p Preset) error {
	key := normalizeKey(p.Key)
	if key == "" {
		return fmt.Errorf("preset key is required")
	}
	p.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.presets[key]; exists {
		return fmt.Errorf("preset %s already registered", key)
	}
	r.presets[key] = p
	return nil
}

func (r *registry) resolve(key string) (Preset, bool) {
	normalized := normalizeKey(key)
	if normalized == "" {
		return Preset{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.presets[normalized]
	return p, ok
}

func (r *registry) list() []Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.presets) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.presets))
	for key := range r.presets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Preset, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.presets[key])
	}
	return result
}
