package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type Deps struct {
	Logger *logrus.Entry

	Sessions Sessions
	Catalog  Catalog
	Receipts ReceiptFetcher
	Admin    AdminLister

	Currency       string
	RequestTimeout time.Duration
	Cookie         CookieOptions
}

func NewRouter(d Deps) http.Handler {
	auth := NewAuthHandler()
	catalog := NewCatalogHandler(d.Catalog, d.Currency)
	cart := NewCartHandler(d.Catalog, d.Currency)
	checkout := NewCheckoutHandler()
	orders := NewOrdersHandler(d.Receipts, d.Admin, d.Currency)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	if d.RequestTimeout > 0 {
		r.Use(middleware.Timeout(d.RequestTimeout))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(d.Sessions, d.Cookie))

			r.Post("/login", auth.Login)
			r.Post("/logout", auth.Logout)
			r.Get("/session", auth.Session)

			r.Get("/items", catalog.ListItems)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cart.GetCart)
				r.Delete("/", cart.ClearCart)
				r.Post("/items", cart.AddItem)
				r.Put("/items/{itemID}", cart.UpdateQuantity)
				r.Delete("/items/{itemID}", cart.RemoveItem)
			})

			r.Post("/checkout", checkout.Checkout)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", orders.ListOrders)
				r.Get("/{orderID}/qr", orders.OrderQR)
				r.Get("/{orderID}/receipt", orders.Receipt)
			})

			r.Get("/admin/orders", orders.AdminOrders)
		})
	})

	return r
}
