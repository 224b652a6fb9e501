package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
	"github.com/vladislavdragonenkov/meenava/internal/metrics"
	"github.com/vladislavdragonenkov/meenava/internal/service/cart"
)

const (
	// DefaultKeyPrefix — префикс ключа корзины во внешнем хранилище.
	DefaultKeyPrefix = "meenava-cart"

	defaultIdleTTL     = 30 * time.Minute
	defaultLoadTimeout = 2 * time.Second
	maxSessionIDLength = 128
)

// ErrSessionClosed возвращается при работе с выселенной сессией.
var ErrSessionClosed = errors.New("cart session is closed")

// SnapshotSink принимает снимки позиций на асинхронную запись.
type SnapshotSink interface {
	Enqueue(key string, items []domain.LineItem) error
}

// EventRecorder строит наблюдателя событий для сессии.
type EventRecorder interface {
	Listener(sessionID string) cart.Listener
}

// StorageKey возвращает ключ хранения корзины сессии.
func StorageKey(prefix, sessionID string) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + ":" + sessionID
}

// NormalizeID проверяет и нормализует идентификатор сессии.
func NormalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.ErrSessionRequired
	}
	if len(id) > maxSessionIDLength || strings.ContainsAny(id, " \t\r\n:") {
		return "", domain.ErrInvalidArgument
	}
	return id, nil
}

// ManagerOptions задаёт параметры менеджера сессий.
type ManagerOptions struct {
	Logger      *log.Entry
	Metrics     *metrics.CartMetrics
	Sink        SnapshotSink
	Recorder    EventRecorder
	KeyPrefix   string
	IdleTTL     time.Duration
	LoadTimeout time.Duration
	Now         func() time.Time
}

// Option настраивает Manager.
type Option func(*ManagerOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *ManagerOptions) { opts.Logger = logger }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.CartMetrics) Option {
	return func(opts *ManagerOptions) { opts.Metrics = m }
}

// WithSnapshotSink подключает асинхронную запись снимков.
func WithSnapshotSink(sink SnapshotSink) Option {
	return func(opts *ManagerOptions) { opts.Sink = sink }
}

// WithEventRecorder подключает запись событий корзины.
func WithEventRecorder(recorder EventRecorder) Option {
	return func(opts *ManagerOptions) { opts.Recorder = recorder }
}

// WithKeyPrefix задаёт префикс ключей хранения.
func WithKeyPrefix(prefix string) Option {
	return func(opts *ManagerOptions) { opts.KeyPrefix = prefix }
}

// WithIdleTTL задаёт время простоя, после которого сессия выселяется из памяти.
func WithIdleTTL(ttl time.Duration) Option {
	return func(opts *ManagerOptions) { opts.IdleTTL = ttl }
}

// WithLoadTimeout ограничивает чтение корзины из хранилища.
func WithLoadTimeout(timeout time.Duration) Option {
	return func(opts *ManagerOptions) { opts.LoadTimeout = timeout }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *ManagerOptions) { opts.Now = now }
}

// Session владеет движком одной корзины и сериализует обращения к нему.
type Session struct {
	id  string
	key string

	mu       sync.Mutex
	engine   *cart.Engine
	lastUsed time.Time
	closed   bool
	detach   []func()
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() string { return s.id }

// Key возвращает ключ хранения корзины.
func (s *Session) Key() string { return s.key }

// Manager держит корзины активных сессий в памяти.
type Manager struct {
	store domain.CartStore
	opts  ManagerOptions

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager создаёт менеджер поверх хранилища корзин.
func NewManager(store domain.CartStore, options ...Option) *Manager {
	opts := ManagerOptions{
		KeyPrefix:   DefaultKeyPrefix,
		IdleTTL:     defaultIdleTTL,
		LoadTimeout: defaultLoadTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "cart-sessions")
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = defaultLoadTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		store:    store,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Open возвращает сессию, при первом обращении восстанавливая корзину из хранилища.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return s, nil
	}
	s := &Session{id: id, key: StorageKey(m.opts.KeyPrefix, id)}
	// Сессия публикуется заблокированной: параллельные вызовы ждут окончания загрузки.
	s.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	if err := m.attach(ctx, s); err != nil {
		m.closeLocked(s)
		s.mu.Unlock()
		m.mu.Lock()
		if m.sessions[id] == s {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()
	m.opts.Metrics.RecordSessionOpened()

	return s, nil
}

func (m *Manager) attach(ctx context.Context, s *Session) error {
	logger := m.opts.Logger.WithField("session_id", s.id)
	engine := cart.NewEngine(
		cart.WithLogger(logger.WithField("component", "cart-engine")),
		cart.WithMetrics(m.opts.Metrics),
	)

	if m.opts.Sink != nil {
		s.detach = append(s.detach, engine.Subscribe(func(change cart.Change) {
			if !change.Persist {
				return
			}
			if err := m.opts.Sink.Enqueue(s.key, change.Current.Items); err != nil {
				logger.WithError(err).Warn("failed to enqueue cart snapshot")
			}
		}))
	}
	if m.opts.Recorder != nil {
		s.detach = append(s.detach, engine.Subscribe(m.opts.Recorder.Listener(s.id)))
	}

	if err := m.rehydrate(ctx, logger, s, engine); err != nil {
		return err
	}
	s.engine = engine
	s.lastUsed = m.opts.Now()
	return nil
}

// rehydrate возвращает ошибку только при отмене ctx вызывающего.
func (m *Manager) rehydrate(ctx context.Context, logger *log.Entry, s *Session, engine *cart.Engine) error {
	if m.store == nil {
		return nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, m.opts.LoadTimeout)
	defer cancel()

	data, err := m.store.Get(loadCtx, s.key)
	if errors.Is(err, domain.ErrCartNotFound) {
		return nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Недоступное хранилище не блокирует покупателя: начинаем с пустой корзины.
		logger.WithError(err).Warn("failed to load persisted cart, starting empty")
		return nil
	}

	items, decodeErrs := domain.DecodeCartItems(data)
	for _, decodeErr := range decodeErrs {
		logger.WithError(decodeErr).Warn("dropping malformed persisted cart record")
	}
	snapshot, dropped := engine.Load(items)
	m.opts.Metrics.RecordRehydrateDropped(len(decodeErrs) + len(dropped))

	// Load запрашивает перезапись только для отброшенных им позиций,
	// нечитаемые записи исправляются здесь.
	if len(decodeErrs) > 0 && len(dropped) == 0 && m.opts.Sink != nil {
		if err := m.opts.Sink.Enqueue(s.key, snapshot.Items); err != nil {
			logger.WithError(err).Warn("failed to enqueue repaired cart snapshot")
		}
	}

	logger.WithFields(log.Fields{
		"lines":   len(snapshot.Items),
		"dropped": len(decodeErrs) + len(dropped),
	}).Debug("cart rehydrated")
	return nil
}

// Do выполняет fn над движком сессии под её блокировкой и возвращает итоговый снимок.
// Если сессия была выселена параллельно, она открывается заново.
func (m *Manager) Do(ctx context.Context, id string, fn func(*cart.Engine) error) (domain.CartSnapshot, error) {
	for attempt := 0; attempt < 2; attempt++ {
		s, err := m.Open(ctx, id)
		if err != nil {
			return domain.CartSnapshot{}, err
		}

		snapshot, err := m.apply(s, fn)
		if errors.Is(err, ErrSessionClosed) {
			continue
		}
		return snapshot, err
	}
	return domain.CartSnapshot{}, ErrSessionClosed
}

// Snapshot возвращает текущее состояние корзины сессии.
func (m *Manager) Snapshot(ctx context.Context, id string) (domain.CartSnapshot, error) {
	return m.Do(ctx, id, nil)
}

func (m *Manager) apply(s *Session, fn func(*cart.Engine) error) (domain.CartSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.CartSnapshot{}, ErrSessionClosed
	}
	s.lastUsed = m.opts.Now()

	var err error
	if fn != nil {
		err = fn(s.engine)
	}
	return s.engine.Snapshot(), err
}

// Close выгружает сессию из памяти. Сохранённая корзина остаётся в хранилище.
// Возвращает false, если сессия не была открыта.
func (m *Manager) Close(id string) bool {
	id, err := NormalizeID(id)
	if err != nil {
		return false
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	s.mu.Lock()
	m.closeLocked(s)
	s.mu.Unlock()
	m.opts.Metrics.RecordSessionClosed(false)
	return true
}

func (m *Manager) closeLocked(s *Session) {
	s.closed = true
	for _, detach := range s.detach {
		detach()
	}
	s.detach = nil
}

// Len возвращает число сессий в памяти.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// SweepIdle выселяет сессии, простаивающие дольше IdleTTL. Занятые сессии пропускаются.
func (m *Manager) SweepIdle(now time.Time) int {
	cutoff := now.Add(-m.opts.IdleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if s.lastUsed.After(cutoff) {
			s.mu.Unlock()
			continue
		}
		m.closeLocked(s)
		s.mu.Unlock()

		delete(m.sessions, id)
		m.opts.Metrics.RecordSessionClosed(true)
		evicted++
	}

	if evicted > 0 {
		m.opts.Logger.WithField("evicted", evicted).Debug("idle cart sessions evicted")
	}
	return evicted
}

// Run периодически выселяет простаивающие сессии до отмены ctx.
func (m *Manager) Run(ctx context.Context) {
	interval := m.opts.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepIdle(m.opts.Now())
		}
	}
}
