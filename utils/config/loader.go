package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Loader 配置加载器
// 功能：从文件或base64数据加载配置，并可监听文件变化热更新
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  Config
	onChange []func(Config)
	watcher  *fsnotify.Watcher
}

// NewLoader 从文件加载配置
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// NewLoaderFromData 从base64编码的数据加载配置（不支持热更新）
func NewLoaderFromData(data string) (*Loader, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode config data: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return &Loader{current: cfg}, nil
}

// Config 当前配置
func (l *Loader) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange 注册配置变化回调
func (l *Loader) OnChange(fn func(Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch 启动后台协程监听配置文件，文件变化时重新加载并调用回调
// 返回：停止监听的函数
func (l *Loader) Watch() (stop func(), err error) {
	if l.path == "" {
		return nil, fmt.Errorf("%w: no config file to watch", ErrInvalidConfig)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						log.Warnf("config reload failed, keeping old config: %v", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warnf("config watcher: %v", err)
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload 立即重新读取配置文件并调用回调
func (l *Loader) Reload() (Config, error) {
	cfg, err := l.load()
	if err != nil {
		return Config{}, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(Config), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	log.Infof("config reloaded from %s", l.path)
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", l.path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", l.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
