package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/pointshop-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса обмена баллов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)
				r.Get("/balance", h.GetBalance)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Post("/add", h.AddItem)
				r.Put("/update/{id}", h.UpdateItem)
				r.Delete("/remove/{id}", h.RemoveItem)
				r.Delete("/clear", h.ClearCart)
			})

			r.Post("/checkout", h.Checkout)

			r.Get("/orders", h.GetOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Post("/orders/{id}/cancel", h.CancelOrder)

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.authMiddleware.RequireAdmin)

				r.Get("/orders", h.AdminListOrders)
				r.Post("/orders/{id}/process", h.AdminClaimOrder)
				r.Post("/orders/{id}/items/{itemId}/fulfill", h.AdminFulfillItem)
				r.Post("/orders/{id}/cancel", h.AdminCancelOrder)
				r.Post("/orders/{id}/notes", h.AdminAddOrderNote)

				r.Post("/users/{id}/points", h.AdminGrantPoints)

				r.Get("/expiration/preview", h.AdminPreviewExpired)
				r.Post("/expiration/run", h.AdminRunExpiration)
				r.Post("/expiration/enqueue", h.AdminEnqueueExpiration)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
