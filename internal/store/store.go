package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Persisted session keys.
const (
	KeyToken  = "token"
	KeyUserID = "user_id"
	KeyRole   = "role"
	KeyCart   = "cart"
	KeyOrders = "orders"
)

// Authenticator checks credentials and persisted tokens against the auth service.
type Authenticator interface {
	Login(ctx context.Context, creds domain.Credentials) (domain.Identity, error)
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// OrderPlacer submits a cart snapshot to the order service and returns the new order id.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, token string, req domain.OrderRequest) (string, error)
}

type Options struct {
	// Timeout bounds each call to the order service.
	Timeout time.Duration
	// AuthTimeout bounds login and token verification; it defaults to Timeout.
	AuthTimeout time.Duration
	// SessionTTL is the expiry of persisted session keys; zero keeps them forever.
	SessionTTL time.Duration
	Now        func() time.Time
}

// Store owns one client session: identity, cart and order history.
// It is safe for concurrent use; no lock is held across network calls.
type Store struct {
	auth   Authenticator
	orders OrderPlacer
	kv     kv.Store
	log    *logrus.Entry
	opts   Options

	mu      sync.RWMutex
	session domain.Session
	token   string
	cart    domain.Cart
	history []domain.Order
	version uint64

	// idempotency key reused while the cart stays at pendingVersion
	pendingKey     string
	pendingVersion uint64

	// authGen changes on every login and logout; a restore started under an
	// older generation does not overwrite the identity.
	authGen        uint64
	restorePending bool
	loaded         bool

	// persistMu serializes writes of cart and history; savedVersion is the
	// cart version last written.
	persistMu    sync.Mutex
	savedVersion uint64

	sfg singleflight.Group
}

func New(auth Authenticator, orders OrderPlacer, store kv.Store, log *logrus.Entry, opts Options) *Store {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = opts.Timeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		auth:   auth,
		orders: orders,
		kv:     store,
		log:    log,
		opts:   opts,
	}
}

// Restore reloads the persisted cart and order history, then re-authenticates
// from the persisted token if there is one. Any failure other than a rejected
// token marks the Store for another attempt, see RestorePending.
func (s *Store) Restore(ctx context.Context) error {
	s.load(ctx)

	s.mu.RLock()
	gen := s.authGen
	s.mu.RUnlock()

	id, found, err := s.verifyPersisted(ctx)

	s.mu.Lock()
	if s.authGen != gen {
		// a login or logout landed meanwhile
		s.mu.Unlock()
		return err
	}
	s.restorePending = err != nil && !errors.Is(err, domain.ErrAuth)
	if err == nil && found {
		s.setIdentity(id, "")
	}
	s.mu.Unlock()

	if errors.Is(err, domain.ErrAuth) {
		s.forget(ctx)
	}
	if err != nil {
		return err
	}
	if found {
		s.log.WithContext(ctx).WithField("user_id", id.UserID).Info("session restored")
	}
	return nil
}

// RestorePending reports whether the last Restore failed for a reason worth retrying.
func (s *Store) RestorePending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restorePending
}

func (s *Store) verifyPersisted(ctx context.Context) (domain.Identity, bool, error) {
	raw, err := s.kv.Get(ctx, KeyToken)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return domain.Identity{}, false, nil
	}
	if err != nil {
		return domain.Identity{}, false, fmt.Errorf("read persisted session: %w", err)
	}
	token := string(raw)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.AuthTimeout)
	defer cancel()
	id, err := s.auth.Verify(callCtx, token)
	if err != nil {
		return domain.Identity{}, false, fmt.Errorf("restore session: %w", classify(err))
	}

	// the verify reply may omit the role; fall back to what login stored
	if id.Role == "" {
		if raw, err := s.kv.Get(ctx, KeyRole); err == nil {
			id.Role = domain.ParseRole(string(raw))
		}
	}
	id.Token = token
	return id, true, nil
}

// load reads the persisted cart and history. It runs once per Store.
func (s *Store) load(ctx context.Context) {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return
	}
	s.loaded = true
	s.mu.Unlock()

	var cart domain.Cart
	cartOK := s.readJSON(ctx, KeyCart, &cart)
	var history []domain.Order
	historyOK := s.readJSON(ctx, KeyOrders, &history)

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if cartOK && s.version == 0 && !cart.IsEmpty() {
		s.cart = cart
		s.version++
		s.savedVersion = s.version
	}
	if historyOK && len(s.history) == 0 {
		s.history = history
	}
}

func (s *Store) Login(ctx context.Context, creds domain.Credentials) (domain.Session, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.AuthTimeout)
	defer cancel()

	id, err := s.auth.Login(callCtx, creds)
	if err != nil {
		return domain.Session{}, classify(err)
	}
	// the role is whatever the auth service grants, never what the form asked for
	id.Role = domain.ParseRole(string(id.Role))

	s.mu.Lock()
	s.setIdentity(id, creds.Email)
	s.authGen++
	s.restorePending = false
	session := s.session
	s.mu.Unlock()

	s.persist(ctx, id)
	s.log.WithContext(ctx).WithFields(logrus.Fields{"user_id": id.UserID, "role": id.Role}).Info("logged in")
	return session, nil
}

// Logout clears session and cart. It always succeeds; order history is kept.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.session = domain.Session{}
	s.token = ""
	s.authGen++
	s.restorePending = false
	s.setCart(domain.Cart{})
	s.mu.Unlock()

	s.forget(ctx)
	s.saveCart(ctx)
}

// setIdentity requires s.mu held for writing.
func (s *Store) setIdentity(id domain.Identity, fallbackName string) {
	name := id.DisplayName
	if name == "" {
		name = fallbackName
	}
	s.session = domain.Session{
		Authenticated: true,
		DisplayName:   name,
		UserID:        id.UserID,
		Role:          domain.ParseRole(string(id.Role)),
	}
	s.token = id.Token
}

func (s *Store) persist(ctx context.Context, id domain.Identity) {
	values := map[string]string{
		KeyToken:  id.Token,
		KeyUserID: id.UserID,
		KeyRole:   string(id.Role),
	}
	for k, v := range values {
		if err := s.kv.Set(ctx, k, []byte(v), s.opts.SessionTTL); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("key", k).Warn("failed to persist session")
		}
	}
}

func (s *Store) forget(ctx context.Context) {
	if err := s.kv.Delete(ctx, KeyToken, KeyUserID, KeyRole); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("failed to clear persisted session")
	}
}

// setCart requires s.mu held for writing.
func (s *Store) setCart(c domain.Cart) {
	s.cart = c
	s.version++
}

// saveCart writes the current cart unless that version is already stored.
// Writes are detached from ctx cancellation.
func (s *Store) saveCart(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	cart, version := s.cart.Clone(), s.version
	s.mu.RUnlock()
	if version == s.savedVersion {
		return
	}

	var err error
	if cart.IsEmpty() {
		err = s.kv.Delete(ctx, KeyCart)
	} else {
		err = s.writeJSON(ctx, KeyCart, cart)
	}
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("failed to persist cart")
		return
	}
	s.savedVersion = version
}

func (s *Store) saveHistory(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	history := make([]domain.Order, len(s.history))
	copy(history, s.history)
	s.mu.RUnlock()

	if err := s.writeJSON(ctx, KeyOrders, history); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("failed to persist order history")
	}
}

func (s *Store) writeJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, data, s.opts.SessionTTL)
}

func (s *Store) readJSON(ctx context.Context, key string, v interface{}) bool {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return false
	}
	if err == nil {
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("key", key).Warn("failed to load persisted session state")
		return false
	}
	return true
}

func (s *Store) AddToCart(ctx context.Context, item domain.Item) {
	s.mu.Lock()
	s.setCart(s.cart.Add(item))
	s.mu.Unlock()
	s.saveCart(ctx)
}

// RemoveFromCart is a no-op when the item is not in the cart.
func (s *Store) RemoveFromCart(ctx context.Context, itemID string) {
	s.mu.Lock()
	if _, ok := s.cart.Line(itemID); !ok {
		s.mu.Unlock()
		return
	}
	s.setCart(s.cart.Remove(itemID))
	s.mu.Unlock()
	s.saveCart(ctx)
}

// SetQuantity sets an absolute quantity; quantity <= 0 removes the line.
// It is a no-op when the item is not in the cart.
func (s *Store) SetQuantity(ctx context.Context, itemID string, quantity int) {
	s.mu.Lock()
	if _, ok := s.cart.Line(itemID); !ok {
		s.mu.Unlock()
		return
	}
	s.setCart(s.cart.SetQuantity(itemID, quantity))
	s.mu.Unlock()
	s.saveCart(ctx)
}

func (s *Store) ClearCart(ctx context.Context) {
	s.mu.Lock()
	if s.cart.IsEmpty() {
		s.mu.Unlock()
		return
	}
	s.setCart(domain.Cart{})
	s.mu.Unlock()
	s.saveCart(ctx)
}

// Checkout submits the cart to the order service. Concurrent calls share one
// submission and all receive its result; the submission is not cancelled when
// the caller that started it goes away.
func (s *Store) Checkout(ctx context.Context) (string, error) {
	v, err, shared := s.sfg.Do("checkout", func() (interface{}, error) {
		return s.checkout(context.WithoutCancel(ctx))
	})
	if shared {
		s.log.WithContext(ctx).Debug("joined in-flight checkout")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Store) checkout(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.cart.IsEmpty() {
		s.mu.Unlock()
		return "", domain.ErrEmptyCart
	}
	if !s.session.Authenticated {
		s.mu.Unlock()
		return "", fmt.Errorf("checkout: %w", domain.ErrAuth)
	}
	snapshot := s.cart.Clone()
	version := s.version
	if s.pendingKey == "" || s.pendingVersion != version {
		s.pendingKey = uuid.NewString()
		s.pendingVersion = version
	}
	req := domain.OrderRequest{
		UserID:         s.session.UserID,
		Lines:          snapshot.Lines,
		Total:          snapshot.Total(),
		IdempotencyKey: s.pendingKey,
	}
	token := s.token
	s.mu.Unlock()

	log := s.log.WithContext(ctx).WithFields(logrus.Fields{
		"user_id":         req.UserID,
		"lines":           len(req.Lines),
		"total":           req.Total.String(),
		"idempotency_key": req.IdempotencyKey,
	})

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	orderID, err := s.orders.PlaceOrder(callCtx, token, req)
	if err != nil {
		err = classify(err)
		log.WithError(err).Warn("checkout failed, cart kept")
		return "", err
	}

	order := domain.Order{
		ID:        orderID,
		Lines:     snapshot.Lines,
		Total:     req.Total,
		CreatedAt: s.opts.Now().UTC(),
	}

	s.mu.Lock()
	s.history = append(s.history, order)
	if s.version == version {
		s.setCart(domain.Cart{})
	} else {
		// the cart changed while the order was in flight; keep what was added since
		s.setCart(s.cart.Subtract(snapshot.Lines))
	}
	s.pendingKey = ""
	s.mu.Unlock()

	s.saveHistory(ctx)
	s.saveCart(ctx)

	log.WithField("order_id", orderID).Info("order placed")
	return orderID, nil
}

func (s *Store) Session() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Token returns the auth token of the current session, empty when anonymous.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) Cart() domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

func (s *Store) Total() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Total()
}

func (s *Store) Units() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Units()
}

// Snapshot returns the cart together with the version it was read at.
func (s *Store) Snapshot() (domain.Cart, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone(), s.version
}

// Version increases on every cart mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) Orders() []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Order, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Store) Order(id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.history {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
}

// classify maps collaborator failures onto the error kinds; anything unknown,
// including an expired deadline, is a network error.
func classify(err error) error {
	if domain.IsKnown(err) {
		return err
	}
	return &domain.ServiceError{Kind: domain.ErrNetwork, Service: "store", Message: err.Error()}
}
