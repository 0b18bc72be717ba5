package store

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAuth struct {
	m         sync.RWMutex
	identity  domain.Identity
	err       error
	verifyErr error
	logins    int
	verified  []string

	// when set, Login waits for it or for ctx
	block chan struct{}
}

func (m *mockAuth) Login(ctx context.Context, creds domain.Credentials) (domain.Identity, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return domain.Identity{}, ctx.Err()
		}
	}
	m.m.Lock()
	defer m.m.Unlock()
	m.logins++
	if m.err != nil {
		return domain.Identity{}, m.err
	}
	return m.identity, nil
}

func (m *mockAuth) setVerifyErr(err error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.verifyErr = err
}

func (m *mockAuth) Verify(_ context.Context, token string) (domain.Identity, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.verified = append(m.verified, token)
	if m.verifyErr != nil {
		return domain.Identity{}, m.verifyErr
	}
	id := m.identity
	id.Token = ""
	return id, nil
}

type mockOrders struct {
	m        sync.RWMutex
	orderID  string
	err      error
	requests []domain.OrderRequest
	calls    atomic.Int32

	// when set, PlaceOrder signals started and waits for release
	started chan struct{}
	release chan struct{}
}

func (m *mockOrders) PlaceOrder(ctx context.Context, token string, req domain.OrderRequest) (string, error) {
	m.calls.Add(1)
	m.m.Lock()
	m.requests = append(m.requests, req)
	m.m.Unlock()

	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return "", m.err
	}
	return m.orderID, nil
}

func (m *mockOrders) lastRequest() domain.OrderRequest {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.requests[len(m.requests)-1]
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

var (
	itemA = domain.Item{ID: "a", Name: "Apple", Price: decimal.RequireFromString("2.50")}
	itemB = domain.Item{ID: "b", Name: "Bread", Price: decimal.RequireFromString("4.00")}
)

func setupStore(t *testing.T) (*Store, *mockAuth, *mockOrders, kv.Store) {
	t.Helper()
	auth := &mockAuth{identity: domain.Identity{Token: "tok-1", UserID: "u-1", DisplayName: "Jane", Role: domain.RoleCustomer}}
	orders := &mockOrders{orderID: "order-1"}
	mem := kv.NewMemoryStore()
	s := New(auth, orders, mem, testLogger(), Options{Timeout: time.Second, SessionTTL: time.Hour})
	return s, auth, orders, mem
}

func login(t *testing.T, s *Store) {
	t.Helper()
	_, err := s.Login(context.Background(), domain.Credentials{Email: "jane@example.com", Password: "pw"})
	require.NoError(t, err)
}

func TestLogin_SetsSessionAndPersists(t *testing.T) {
	s, _, _, mem := setupStore(t)
	ctx := context.Background()

	session, err := s.Login(ctx, domain.Credentials{Email: "jane@example.com", Password: "pw"})
	require.NoError(t, err)

	assert.True(t, session.Authenticated)
	assert.Equal(t, "Jane", session.DisplayName)
	assert.Equal(t, "u-1", session.UserID)
	assert.Equal(t, domain.RoleCustomer, session.Role)
	assert.Equal(t, session, s.Session())
	assert.Equal(t, "tok-1", s.Token())

	token, err := mem.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", string(token))
	userID, err := mem.Get(ctx, KeyUserID)
	require.NoError(t, err)
	assert.Equal(t, "u-1", string(userID))
	role, err := mem.Get(ctx, KeyRole)
	require.NoError(t, err)
	assert.Equal(t, "customer", string(role))
}

func TestLogin_DisplayNameFallsBackToEmail(t *testing.T) {
	s, auth, _, _ := setupStore(t)
	auth.identity.DisplayName = ""

	session, err := s.Login(context.Background(), domain.Credentials{Email: "jane@example.com", Password: "pw"})
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", session.DisplayName)
}

func TestLogin_RoleComesFromAuthService(t *testing.T) {
	t.Run("requested admin without granted role is customer", func(t *testing.T) {
		s, auth, _, mem := setupStore(t)
		auth.identity.Role = ""

		session, err := s.Login(context.Background(), domain.Credentials{Email: "jane@example.com", Password: "pw", Role: domain.RoleAdmin})
		require.NoError(t, err)

		assert.Equal(t, domain.RoleCustomer, session.Role)
		assert.False(t, session.IsAdmin())
		role, err := mem.Get(context.Background(), KeyRole)
		require.NoError(t, err)
		assert.Equal(t, "customer", string(role))
	})

	t.Run("granted admin", func(t *testing.T) {
		s, auth, _, _ := setupStore(t)
		auth.identity.Role = domain.RoleAdmin

		session, err := s.Login(context.Background(), domain.Credentials{Email: "boss@example.com", Password: "pw"})
		require.NoError(t, err)

		assert.True(t, session.IsAdmin())
	})
}

func TestLogin_UsesAuthTimeout(t *testing.T) {
	s, auth, _, _ := setupStore(t)
	s.opts.Timeout = time.Hour
	s.opts.AuthTimeout = 20 * time.Millisecond
	auth.block = make(chan struct{})

	start := time.Now()
	_, err := s.Login(context.Background(), domain.Credentials{Email: "jane@example.com", Password: "pw"})

	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLogin_Failure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "rejected credentials",
			err:  &domain.ServiceError{Kind: domain.ErrAuth, Service: "auth", Status: 401, Message: "bad password"},
			want: domain.ErrAuth,
		},
		{
			name: "unclassified error becomes network",
			err:  errors.New("connection reset"),
			want: domain.ErrNetwork,
		},
		{
			name: "deadline becomes network",
			err:  context.DeadlineExceeded,
			want: domain.ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, auth, _, mem := setupStore(t)
			auth.err = tt.err

			_, err := s.Login(context.Background(), domain.Credentials{Email: "jane@example.com"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			assert.Equal(t, domain.Session{}, s.Session())
			_, err = mem.Get(context.Background(), KeyToken)
			assert.ErrorIs(t, err, kv.ErrKeyNotFound)
		})
	}
}

func TestLogout_ClearsSessionAndCart(t *testing.T) {
	s, _, _, mem := setupStore(t)
	ctx := context.Background()
	login(t, s)
	s.AddToCart(context.Background(), itemA)
	_, err := s.Checkout(ctx)
	require.NoError(t, err)
	s.AddToCart(context.Background(), itemB)

	s.Logout(ctx)

	assert.Equal(t, domain.Session{}, s.Session())
	assert.True(t, s.Cart().IsEmpty())
	assert.Empty(t, s.Token())
	// history is kept
	assert.Len(t, s.Orders(), 1)

	for _, key := range []string{KeyToken, KeyUserID, KeyRole} {
		_, err := mem.Get(ctx, key)
		assert.ErrorIs(t, err, kv.ErrKeyNotFound, key)
	}
}

func TestLogout_WhenAnonymous(t *testing.T) {
	s, _, _, _ := setupStore(t)
	s.AddToCart(context.Background(), itemA)

	s.Logout(context.Background())

	assert.Equal(t, domain.Session{}, s.Session())
	assert.True(t, s.Cart().IsEmpty())
}

func TestAddToCart_RepeatedCallsIncrementOneLine(t *testing.T) {
	s, _, _, _ := setupStore(t)

	for i := 1; i <= 5; i++ {
		s.AddToCart(context.Background(), itemA)
		cart := s.Cart()
		require.Len(t, cart.Lines, 1)
		assert.Equal(t, i, cart.Lines[0].Quantity)
	}
}

func TestCart_Example(t *testing.T) {
	s, _, _, _ := setupStore(t)

	s.AddToCart(context.Background(), itemA)
	s.AddToCart(context.Background(), itemB)
	s.AddToCart(context.Background(), itemB)

	assert.Len(t, s.Cart().Lines, 2)
	assert.Equal(t, 3, s.Units())
	assert.True(t, decimal.RequireFromString("10.50").Equal(s.Total()), s.Total().String())
}

func TestSetQuantity_ZeroMatchesRemove(t *testing.T) {
	a, _, _, _ := setupStore(t)
	b, _, _, _ := setupStore(t)
	for _, s := range []*Store{a, b} {
		s.AddToCart(context.Background(), itemA)
		s.AddToCart(context.Background(), itemB)
	}

	a.SetQuantity(context.Background(), itemA.ID, 0)
	b.RemoveFromCart(context.Background(), itemA.ID)

	assert.Equal(t, a.Cart(), b.Cart())
	assert.True(t, a.Total().Equal(b.Total()))
}

func TestSetQuantity_NegativeRemovesLine(t *testing.T) {
	s, _, _, _ := setupStore(t)
	s.AddToCart(context.Background(), itemA)

	s.SetQuantity(context.Background(), itemA.ID, -1)

	assert.Empty(t, s.Cart().Lines)
	assert.True(t, s.Total().IsZero())
}

func TestMutations_MissingItemIsNoop(t *testing.T) {
	s, _, _, _ := setupStore(t)
	s.AddToCart(context.Background(), itemA)
	version := s.Version()

	s.RemoveFromCart(context.Background(), "missing")
	s.SetQuantity(context.Background(), "missing", 3)

	assert.Equal(t, version, s.Version())
	assert.Len(t, s.Cart().Lines, 1)
}

func TestVersion_IncrementsOnEveryMutation(t *testing.T) {
	s, _, _, _ := setupStore(t)
	assert.Equal(t, uint64(0), s.Version())

	s.AddToCart(context.Background(), itemA)
	assert.Equal(t, uint64(1), s.Version())
	s.SetQuantity(context.Background(), itemA.ID, 4)
	assert.Equal(t, uint64(2), s.Version())
	s.RemoveFromCart(context.Background(), itemA.ID)
	assert.Equal(t, uint64(3), s.Version())
	s.AddToCart(context.Background(), itemB)
	s.ClearCart(context.Background())
	assert.Equal(t, uint64(5), s.Version())

	// clearing an empty cart changes nothing
	s.ClearCart(context.Background())
	assert.Equal(t, uint64(5), s.Version())
}

func TestCart_ReturnsCopy(t *testing.T) {
	s, _, _, _ := setupStore(t)
	s.AddToCart(context.Background(), itemA)

	cart := s.Cart()
	cart.Lines[0].Quantity = 99

	assert.Equal(t, 1, s.Cart().Lines[0].Quantity)
}

func TestCheckout_Success(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, _, orders, _ := setupStore(t)
	s.opts.Now = func() time.Time { return now }
	login(t, s)
	s.AddToCart(context.Background(), itemA)

	orderID, err := s.Checkout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "order-1", orderID)

	history := s.Orders()
	require.Len(t, history, 1)
	assert.Equal(t, "order-1", history[0].ID)
	assert.True(t, decimal.RequireFromString("2.50").Equal(history[0].Total))
	assert.Equal(t, now, history[0].CreatedAt)
	require.Len(t, history[0].Lines, 1)
	assert.Equal(t, itemA.ID, history[0].Lines[0].Item.ID)

	assert.True(t, s.Cart().IsEmpty())
	assert.True(t, s.Total().IsZero())

	req := orders.lastRequest()
	assert.Equal(t, "u-1", req.UserID)
	assert.NotEmpty(t, req.IdempotencyKey)
	assert.True(t, decimal.RequireFromString("2.50").Equal(req.Total))

	order, err := s.Order("order-1")
	require.NoError(t, err)
	assert.Equal(t, history[0], order)
}

func TestCheckout_EmptyCart(t *testing.T) {
	s, _, orders, _ := setupStore(t)
	login(t, s)
	version := s.Version()

	_, err := s.Checkout(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	assert.Equal(t, version, s.Version())
	assert.Empty(t, s.Orders())
	assert.Equal(t, int32(0), orders.calls.Load())
}

func TestCheckout_Anonymous(t *testing.T) {
	s, _, orders, _ := setupStore(t)
	s.AddToCart(context.Background(), itemA)

	_, err := s.Checkout(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuth)

	assert.Len(t, s.Cart().Lines, 1)
	assert.Equal(t, int32(0), orders.calls.Load())
}

func TestCheckout_AnonymousEmptyCart(t *testing.T) {
	s, _, orders, _ := setupStore(t)

	_, err := s.Checkout(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.NotErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, int32(0), orders.calls.Load())
}

func TestCheckout_FailureKeepsCart(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "rejected",
			err:  &domain.ServiceError{Kind: domain.ErrCheckout, Service: "orders", Status: 422, Message: "out of stock"},
			want: domain.ErrCheckout,
		},
		{
			name: "unavailable",
			err:  &domain.ServiceError{Kind: domain.ErrNetwork, Service: "orders", Status: 503},
			want: domain.ErrNetwork,
		},
		{
			name: "unknown error",
			err:  errors.New("boom"),
			want: domain.ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, orders, _ := setupStore(t)
			orders.err = tt.err
			login(t, s)
			s.AddToCart(context.Background(), itemA)
			s.AddToCart(context.Background(), itemB)
			before := s.Cart()
			version := s.Version()

			_, err := s.Checkout(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			assert.Equal(t, before, s.Cart())
			assert.Equal(t, version, s.Version())
			assert.Empty(t, s.Orders())
		})
	}
}

func TestCheckout_RejectionMessageSurvives(t *testing.T) {
	s, _, orders, _ := setupStore(t)
	orders.err = &domain.ServiceError{Kind: domain.ErrCheckout, Service: "orders", Status: 422, Message: "out of stock"}
	login(t, s)
	s.AddToCart(context.Background(), itemA)

	_, err := s.Checkout(context.Background())
	assert.Equal(t, "out of stock", domain.Reason(err))
}

func TestCheckout_TimeoutIsNetworkError(t *testing.T) {
	s, _, orders, _ := setupStore(t)
	s.opts.Timeout = 20 * time.Millisecond
	orders.release = make(chan struct{})
	login(t, s)
	s.AddToCart(context.Background(), itemA)

	_, err := s.Checkout(context.Background())
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Len(t, s.Cart().Lines, 1)
}

func TestCheckout_IdempotencyKey(t *testing.T) {
	s, _, orders, _ := setupStore(t)
	orders.err = &domain.ServiceError{Kind: domain.ErrNetwork, Service: "orders"}
	login(t, s)
	s.AddToCart(context.Background(), itemA)
	ctx := context.Background()

	_, err := s.Checkout(ctx)
	require.Error(t, err)
	first := orders.lastRequest().IdempotencyKey

	// retry of the unchanged cart reuses the key
	_, err = s.Checkout(ctx)
	require.Error(t, err)
	assert.Equal(t, first, orders.lastRequest().IdempotencyKey)

	// a changed cart gets a fresh one
	s.AddToCart(context.Background(), itemB)
	_, err = s.Checkout(ctx)
	require.Error(t, err)
	assert.NotEqual(t, first, orders.lastRequest().IdempotencyKey)
}

func TestCheckout_ConcurrentCallsPlaceOneOrder(t *testing.T) {
	s, _, orders, _ := setupStore(t)
	orders.started = make(chan struct{}, 1)
	orders.release = make(chan struct{})
	login(t, s)
	s.AddToCart(context.Background(), itemA)

	const callers = 10
	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = s.Checkout(context.Background())
		}(i)
	}

	<-orders.started
	time.Sleep(50 * time.Millisecond)
	close(orders.release)
	wg.Wait()

	assert.Equal(t, int32(1), orders.calls.Load())
	assert.Len(t, s.Orders(), 1)
	for i := 0; i < callers; i++ {
		// a caller arriving after the flight finished sees the emptied cart
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], domain.ErrEmptyCart)
			continue
		}
		assert.Equal(t, "order-1", ids[i])
	}
}

func TestCheckout_StarterGoingAwayDoesNotFailJoiners(t *testing.T) {
	s, _, orders, _ := setupStore(t)
	orders.started = make(chan struct{}, 1)
	orders.release = make(chan struct{})
	login(t, s)
	s.AddToCart(context.Background(), itemA)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		id  string
		err error
	}
	starter := make(chan result, 1)
	go func() {
		id, err := s.Checkout(ctx)
		starter <- result{id, err}
	}()
	<-orders.started

	joiner := make(chan result, 1)
	go func() {
		id, err := s.Checkout(context.Background())
		joiner <- result{id, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	close(orders.release)

	got := <-joiner
	require.NoError(t, got.err)
	assert.Equal(t, "order-1", got.id)
	assert.NoError(t, (<-starter).err)
	assert.Equal(t, int32(1), orders.calls.Load())
	assert.Len(t, s.Orders(), 1)
}

func TestCheckout_MutationsDuringFlightSurvive(t *testing.T) {
	s, _, orders, _ := setupStore(t)
	orders.started = make(chan struct{}, 1)
	orders.release = make(chan struct{})
	login(t, s)
	s.AddToCart(context.Background(), itemA)

	done := make(chan error, 1)
	go func() {
		_, err := s.Checkout(context.Background())
		done <- err
	}()

	<-orders.started
	s.AddToCart(context.Background(), itemA)
	s.AddToCart(context.Background(), itemB)
	close(orders.release)
	require.NoError(t, <-done)

	history := s.Orders()
	require.Len(t, history, 1)
	require.Len(t, history[0].Lines, 1)
	assert.Equal(t, 1, history[0].Lines[0].Quantity)

	cart := s.Cart()
	require.Len(t, cart.Lines, 2)
	assert.Equal(t, itemA.ID, cart.Lines[0].Item.ID)
	assert.Equal(t, 1, cart.Lines[0].Quantity)
	assert.Equal(t, itemB.ID, cart.Lines[1].Item.ID)
	assert.Equal(t, 1, cart.Lines[1].Quantity)
}

func TestOrder_NotFound(t *testing.T) {
	s, _, _, _ := setupStore(t)

	_, err := s.Order("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrders_ReturnsCopy(t *testing.T) {
	s, _, _, _ := setupStore(t)
	login(t, s)
	s.AddToCart(context.Background(), itemA)
	_, err := s.Checkout(context.Background())
	require.NoError(t, err)

	orders := s.Orders()
	orders[0].ID = "changed"

	assert.Equal(t, "order-1", s.Orders()[0].ID)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("no persisted token stays anonymous", func(t *testing.T) {
		s, auth, _, _ := setupStore(t)

		require.NoError(t, s.Restore(ctx))
		assert.False(t, s.Session().Authenticated)
		assert.Empty(t, auth.verified)
	})

	t.Run("valid token re-authenticates", func(t *testing.T) {
		s, auth, _, mem := setupStore(t)
		auth.identity.Role = ""
		require.NoError(t, mem.Set(ctx, KeyToken, []byte("saved"), 0))
		require.NoError(t, mem.Set(ctx, KeyRole, []byte("admin"), 0))

		require.NoError(t, s.Restore(ctx))

		session := s.Session()
		assert.True(t, session.Authenticated)
		assert.Equal(t, "u-1", session.UserID)
		assert.Equal(t, domain.RoleAdmin, session.Role)
		assert.Equal(t, "saved", s.Token())
		assert.Equal(t, []string{"saved"}, auth.verified)
	})

	t.Run("rejected token clears persisted keys", func(t *testing.T) {
		s, auth, _, mem := setupStore(t)
		auth.verifyErr = &domain.ServiceError{Kind: domain.ErrAuth, Service: "auth", Status: 401}
		require.NoError(t, mem.Set(ctx, KeyToken, []byte("stale"), 0))
		require.NoError(t, mem.Set(ctx, KeyUserID, []byte("u-1"), 0))

		err := s.Restore(ctx)
		assert.ErrorIs(t, err, domain.ErrAuth)
		assert.False(t, s.Session().Authenticated)

		_, err = mem.Get(ctx, KeyToken)
		assert.ErrorIs(t, err, kv.ErrKeyNotFound)
		_, err = mem.Get(ctx, KeyUserID)
		assert.ErrorIs(t, err, kv.ErrKeyNotFound)
	})

	t.Run("network failure keeps persisted keys", func(t *testing.T) {
		s, auth, _, mem := setupStore(t)
		auth.verifyErr = errors.New("dial tcp: connection refused")
		require.NoError(t, mem.Set(ctx, KeyToken, []byte("saved"), 0))

		err := s.Restore(ctx)
		assert.ErrorIs(t, err, domain.ErrNetwork)
		assert.False(t, s.Session().Authenticated)
		assert.True(t, s.RestorePending())

		token, err := mem.Get(ctx, KeyToken)
		require.NoError(t, err)
		assert.Equal(t, "saved", string(token))

		// a later attempt succeeds once the auth service is back
		auth.setVerifyErr(nil)
		require.NoError(t, s.Restore(ctx))
		assert.True(t, s.Session().Authenticated)
		assert.False(t, s.RestorePending())
	})

	t.Run("rejected token is not retried", func(t *testing.T) {
		s, auth, _, mem := setupStore(t)
		auth.verifyErr = &domain.ServiceError{Kind: domain.ErrAuth, Service: "auth", Status: 401}
		require.NoError(t, mem.Set(ctx, KeyToken, []byte("stale"), 0))

		require.Error(t, s.Restore(ctx))
		assert.False(t, s.RestorePending())
	})

	t.Run("login during a failed restore wins", func(t *testing.T) {
		s, auth, _, mem := setupStore(t)
		auth.verifyErr = errors.New("dial tcp: connection refused")
		require.NoError(t, mem.Set(ctx, KeyToken, []byte("saved"), 0))
		require.Error(t, s.Restore(ctx))

		login(t, s)
		assert.False(t, s.RestorePending())
		assert.True(t, s.Session().Authenticated)
	})
}

func TestRestore_ReloadsCartAndHistory(t *testing.T) {
	ctx := context.Background()
	first, auth, orders, mem := setupStore(t)
	login(t, first)
	first.AddToCart(ctx, itemA)
	first.AddToCart(ctx, itemA)
	_, err := first.Checkout(ctx)
	require.NoError(t, err)
	first.AddToCart(ctx, itemB)

	second := New(auth, orders, mem, testLogger(), Options{Timeout: time.Second})
	require.NoError(t, second.Restore(ctx))

	assert.True(t, second.Session().Authenticated)

	cart := second.Cart()
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, itemB.ID, cart.Lines[0].Item.ID)
	assert.True(t, decimal.RequireFromString("4.00").Equal(second.Total()))

	history := second.Orders()
	require.Len(t, history, 1)
	assert.Equal(t, "order-1", history[0].ID)
	require.Len(t, history[0].Lines, 1)
	assert.Equal(t, 2, history[0].Lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("5.00").Equal(history[0].Total))

	_, err = second.Order("order-1")
	assert.NoError(t, err)
}

func TestCartPersistence(t *testing.T) {
	ctx := context.Background()
	s, _, _, mem := setupStore(t)

	s.AddToCart(ctx, itemA)
	_, err := mem.Get(ctx, KeyCart)
	require.NoError(t, err)

	s.RemoveFromCart(ctx, itemA.ID)
	_, err = mem.Get(ctx, KeyCart)
	assert.ErrorIs(t, err, kv.ErrKeyNotFound, "empty cart leaves nothing behind")

	s.AddToCart(ctx, itemB)
	s.Logout(ctx)
	_, err = mem.Get(ctx, KeyCart)
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}
