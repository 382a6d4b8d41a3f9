// Package templates loads connection templates from etcd and keeps them
// current.
//
// Layout: <namespace>connections/<name> holds a JSON object with the same
// keys as database.connections.<name> in the config file.
//
// Reconnection behavior:
//   - a closed watch channel is re-created after a backoff
//   - the backoff starts at 1s, grows by 1.5x and is capped at 30s
//   - it resets after events are processed successfully
//
// Usage:
//
//	src := NewEtcdSource(client, WithNamespace("jxt/"), WithMirror(store))
//	src.LoadAll(ctx)
//	src.StartWatch(ctx)
//	defer src.StopWatch()
package templates

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/json"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy"
)

const (
	InitialBackoff    = 1 * time.Second
	MaxBackoff        = 30 * time.Second
	BackoffMultiplier = 1.5

	connectionsDir = "connections/"
)

// Client is the part of *clientv3.Client the source needs.
type Client interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan
}

// Mirror receives every template change, typically runtime.ViperStore so
// the manager and the generator see the same connections.
type Mirror interface {
	Set(name string, c tenancy.ConnectionConfig)
	Delete(name string)
}

type EtcdSource struct {
	client    Client
	namespace string
	mirror    Mirror
	cache     Cache
	logger    *zap.Logger
	backoff   time.Duration
	maxWait   time.Duration

	data atomic.Value // map[string]tenancy.ConnectionConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

type Option func(*EtcdSource)

func WithNamespace(ns string) Option {
	return func(s *EtcdSource) { s.namespace = ns }
}

func WithMirror(m Mirror) Option {
	return func(s *EtcdSource) { s.mirror = m }
}

// WithCache 成功加载后落盘，etcd 不可用时从缓存恢复
func WithCache(c Cache) Option {
	return func(s *EtcdSource) { s.cache = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *EtcdSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBackoff overrides the reconnection backoff bounds.
func WithBackoff(initial, max time.Duration) Option {
	return func(s *EtcdSource) {
		s.backoff = initial
		s.maxWait = max
	}
}

func NewEtcdSource(client Client, opts ...Option) *EtcdSource {
	s := &EtcdSource{
		client:    client,
		namespace: "jxt/",
		logger:    zap.NewNop(),
		backoff:   InitialBackoff,
		maxWait:   MaxBackoff,
	}
	s.data.Store(map[string]tenancy.ConnectionConfig{})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EtcdSource) prefix() string {
	return s.namespace + connectionsDir
}

// LoadAll replaces the templates with what etcd holds now. When etcd
// fails and a cache is configured, the cached templates are used instead.
func (s *EtcdSource) LoadAll(ctx context.Context) error {
	resp, err := s.client.Get(ctx, s.prefix(), clientv3.WithPrefix())
	if err != nil {
		if s.cache == nil {
			return fmt.Errorf("load connection templates: %w", err)
		}
		cached, cerr := s.cache.Load()
		if cerr != nil {
			return fmt.Errorf("load connection templates: %w (cache: %v)", err, cerr)
		}
		s.logger.Warn("etcd unavailable, using cached connection templates", zap.Error(err))
		s.replace(cached)
		return nil
	}

	next := make(map[string]tenancy.ConnectionConfig, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		name, c, ok := s.parse(string(kv.Key), kv.Value)
		if ok {
			next[name] = c
		}
	}
	s.replace(next)
	s.persist(next)
	s.logger.Info("connection templates loaded", zap.Int("count", len(next)), zap.String("prefix", s.prefix()))
	return nil
}

func (s *EtcdSource) replace(next map[string]tenancy.ConnectionConfig) {
	if s.mirror != nil {
		for name := range s.snapshot() {
			if _, ok := next[name]; !ok {
				s.mirror.Delete(name)
			}
		}
		for name, c := range next {
			s.mirror.Set(name, c)
		}
	}
	s.data.Store(next)
}

func (s *EtcdSource) persist(data map[string]tenancy.ConnectionConfig) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Save(data); err != nil {
		s.logger.Warn("save connection template cache", zap.Error(err))
	}
}

// Template implements tenancy.TemplateSource.
func (s *EtcdSource) Template(name string) (tenancy.ConnectionConfig, error) {
	c, ok := s.snapshot()[name]
	if !ok || c.Empty() {
		return nil, fmt.Errorf("%w: %s", tenancy.ErrSlotNotConfigured, name)
	}
	return c.Clone(), nil
}

// Names 已加载的模板名，按字典序
func (s *EtcdSource) Names() []string {
	data := s.snapshot()
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *EtcdSource) snapshot() map[string]tenancy.ConnectionConfig {
	return s.data.Load().(map[string]tenancy.ConnectionConfig)
}

// StartWatch follows changes under the prefix until StopWatch or ctx ends.
func (s *EtcdSource) StartWatch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return fmt.Errorf("template source already watching")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	ch := s.client.Watch(watchCtx, s.prefix(), clientv3.WithPrefix())
	go s.watchLoop(watchCtx, ch, s.done)
	return nil
}

func (s *EtcdSource) watchLoop(ctx context.Context, ch clientv3.WatchChan, done chan struct{}) {
	defer close(done)
	backoff := s.backoff

	s.logger.Info("watching connection templates", zap.String("prefix", s.prefix()))
	for {
		select {
		case <-ctx.Done():
			return

		case wr, ok := <-ch:
			if !ok {
				s.logger.Warn("template watch closed, reconnecting", zap.Duration("backoff", backoff))
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
					ch = s.client.Watch(ctx, s.prefix(), clientv3.WithPrefix())
					backoff = nextBackoff(backoff, s.maxWait)
					continue
				}
			}

			if err := wr.Err(); err != nil {
				s.logger.Error("template watch error", zap.Error(err))
				continue
			}
			for _, ev := range wr.Events {
				s.apply(ev)
			}
			backoff = s.backoff
		}
	}
}

// apply 写时复制，读方无需加锁
func (s *EtcdSource) apply(ev *clientv3.Event) {
	key := string(ev.Kv.Key)
	current := s.snapshot()
	next := make(map[string]tenancy.ConnectionConfig, len(current)+1)
	for k, v := range current {
		next[k] = v
	}

	switch ev.Type {
	case clientv3.EventTypePut:
		name, c, ok := s.parse(key, ev.Kv.Value)
		if !ok {
			return
		}
		next[name] = c
		if s.mirror != nil {
			s.mirror.Set(name, c)
		}
		s.logger.Info("connection template updated", zap.String("connection", name))
	case clientv3.EventTypeDelete:
		name, ok := s.name(key)
		if !ok {
			return
		}
		delete(next, name)
		if s.mirror != nil {
			s.mirror.Delete(name)
		}
		s.logger.Info("connection template removed", zap.String("connection", name))
	}
	s.data.Store(next)
	s.persist(next)
}

func (s *EtcdSource) StopWatch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return
	}
	s.cancel()
	<-s.done
	s.running.Store(false)
}

func (s *EtcdSource) name(key string) (string, bool) {
	if !strings.HasPrefix(key, s.prefix()) {
		return "", false
	}
	name := strings.TrimPrefix(key, s.prefix())
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

func (s *EtcdSource) parse(key string, value []byte) (string, tenancy.ConnectionConfig, bool) {
	name, ok := s.name(key)
	if !ok {
		return "", nil, false
	}
	var c tenancy.ConnectionConfig
	if err := json.Unmarshal(value, &c); err != nil {
		s.logger.Warn("skip malformed connection template", zap.String("key", key), zap.Error(err))
		return "", nil, false
	}
	return name, c, true
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * BackoffMultiplier)
	if next > max {
		return max
	}
	return next
}
