package strategy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"

	"github.com/Brokenbass90/by-bot-sub000/internal/backtest"
	"github.com/Brokenbass90/by-bot-sub000/internal/logger"
)

// Builder 把一个策略实例定义翻译为信号函数。
type Builder func(def Definition) (backtest.SignalFunc, error)

type builderEntry struct {
	build  Builder
	schema *jsonschema.Schema
}

var (
	buildersMu sync.RWMutex
	builders   = make(map[string]builderEntry)
)

// RegisterBuilder 注册策略类型；schemaJSON 为参数的 JSON Schema（可为空）。
// 在各策略文件的 init 中调用。
func RegisterBuilder(typ, schemaJSON string, build Builder) {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" || build == nil {
		panic("strategy: builder 注册参数非法")
	}
	var schema *jsonschema.Schema
	if schemaJSON != "" {
		compiled, err := compileSchema(schemaJSON)
		if err != nil {
			panic(fmt.Sprintf("strategy: %s schema 编译失败: %v", typ, err))
		}
		schema = compiled
	}
	buildersMu.Lock()
	defer buildersMu.Unlock()
	if _, dup := builders[typ]; dup {
		panic("strategy: builder 重复注册: " + typ)
	}
	builders[typ] = builderEntry{build: build, schema: schema}
}

// BuilderTypes 返回已注册的策略类型（排序后）。
func BuilderTypes() []string {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	out := make([]string, 0, len(builders))
	for typ := range builders {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

type snapshot struct {
	version  int64
	loadedAt time.Time
	funcs    map[string]backtest.SignalFunc
	order    []string
}

// Registry 从 YAML 加载策略实例并支持热更新，实现 backtest.StrategyProvider。
type Registry struct {
	path string
	v    *viper.Viper

	mu   sync.RWMutex
	snap snapshot
}

// NewRegistry 读取配置文件并监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("strategy registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read strategy config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("strategy reload failed: %v", err)
		}
	})
	v.WatchConfig()
	return r, nil
}

func (r *Registry) reload() error {
	cfg, err := readStrategyFile(r.path)
	if err != nil {
		return err
	}
	funcs := make(map[string]backtest.SignalFunc)
	var order []string
	for _, def := range cfg.Strategies {
		name := strings.ToLower(strings.TrimSpace(def.Name))
		if name == "" {
			return fmt.Errorf("策略实例缺少 name")
		}
		if _, dup := funcs[name]; dup {
			return fmt.Errorf("策略实例重名: %s", name)
		}
		if !def.IsEnabled() {
			continue
		}
		typ := strings.ToLower(strings.TrimSpace(def.Type))
		buildersMu.RLock()
		entry, ok := builders[typ]
		buildersMu.RUnlock()
		if !ok {
			return fmt.Errorf("策略 %s 引用未知类型: %s（可用: %s）", name, def.Type, strings.Join(BuilderTypes(), "/"))
		}
		if err := validateParams(entry.schema, def.Params); err != nil {
			return fmt.Errorf("策略 %s 参数校验失败: %w", name, err)
		}
		def.Name = name
		fn, err := entry.build(def)
		if err != nil {
			return fmt.Errorf("策略 %s 构建失败: %w", name, err)
		}
		funcs[name] = fn
		order = append(order, name)
	}
	r.mu.Lock()
	r.snap = snapshot{
		version:  r.snap.version + 1,
		loadedAt: time.Now(),
		funcs:    funcs,
		order:    order,
	}
	r.mu.Unlock()
	logger.Infof("策略注册表加载 %d 个实例（%s）", len(order), filepath.Base(r.path))
	return nil
}

// Names 返回启用的策略实例名（配置文件顺序）。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.snap.order...)
}

// Signal 返回指定实例的信号函数。
func (r *Registry) Signal(name string) (backtest.SignalFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.snap.funcs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("未知策略: %s", name)
	}
	return fn, nil
}

// Selector 把多个实例组合为组合引擎使用的选择器：按给定顺序返回第一个信号。
func (r *Registry) Selector(names []string) (backtest.SignalSelector, error) {
	fns := make([]backtest.SignalFunc, 0, len(names))
	tags := make([]string, 0, len(names))
	for _, name := range names {
		fn, err := r.Signal(name)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
		tags = append(tags, strings.ToLower(strings.TrimSpace(name)))
	}
	if len(fns) == 0 {
		return nil, fmt.Errorf("selector 需要至少一个策略")
	}
	return func(symbol string, store *backtest.SeriesStore, ts int64, lastPrice float64) *backtest.TradeSignal {
		bar, ok := store.Current()
		if !ok {
			return nil
		}
		for i, fn := range fns {
			if sig := fn(store, bar); sig != nil {
				if sig.Strategy == "" {
					sig.Strategy = tags[i]
				}
				if sig.Symbol == "" {
					sig.Symbol = symbol
				}
				return sig
			}
		}
		return nil
	}, nil
}
