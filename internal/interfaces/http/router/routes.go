package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marketplace/backend/internal/interfaces/http/handler"
)

// Handlers bundles the HTTP handlers of the marketplace API
type Handlers struct {
	Cart     *handler.CartHandler
	Checkout *handler.CheckoutHandler
	Store    *handler.StoreHandler
	Order    *handler.OrderHandler
	Webhook  *handler.StripeWebhookHandler
}

// Guards are the per-group middleware. Any of them may be nil.
type Guards struct {
	// RequireAuth rejects requests without a valid bearer token
	RequireAuth gin.HandlerFunc
	// OptionalAuth verifies a bearer token when one is sent
	OptionalAuth gin.HandlerFunc
	// CartIdentity resolves the user or guest that owns carts
	CartIdentity gin.HandlerFunc
	// CheckoutLimit throttles checkout initiation per caller
	CheckoutLimit gin.HandlerFunc
}

// MarketplaceGroups returns the API route groups
func MarketplaceGroups(h Handlers, g Guards) []RouteRegistrar {
	carts := NewDomainGroup("carts", "/carts").Use(g.OptionalAuth, g.CartIdentity)
	carts.POST("", h.Cart.GetOrCreate)
	carts.POST("/merge", h.Cart.Merge)
	carts.GET("/:id", h.Cart.Get)
	carts.POST("/:id/items", h.Cart.AddItem)
	carts.PUT("/:id/items/:product_id", h.Cart.UpdateItem)
	carts.DELETE("/:id/items/:product_id", h.Cart.RemoveItem)
	carts.GET("/:id/orders", h.Order.ListByCart)

	checkout := carts.Group("checkout", "/:id/checkout")
	checkout.POST("", g.CheckoutLimit, h.Checkout.Initiate)
	checkout.POST("/abort", h.Checkout.Abort)
	checkout.GET("/intents", h.Checkout.Intents)

	orders := NewDomainGroup("orders", "/orders").Use(g.OptionalAuth, g.CartIdentity)
	orders.GET("/:id", h.Order.Get)

	// Store reads are public; writes check the caller inside the handler
	stores := NewDomainGroup("stores", "/stores").Use(g.OptionalAuth)
	stores.POST("", h.Store.Create)
	stores.GET("", h.Store.ListMine)
	stores.GET("/:id", h.Store.Get)
	stores.POST("/:id/activate", h.Store.Activate)
	stores.POST("/:id/deactivate", h.Store.Deactivate)
	stores.POST("/:id/products", h.Store.CreateProduct)
	stores.GET("/:id/products", h.Store.ListProducts)
	stores.GET("/:id/orders", h.Order.ListByStore)

	subscription := NewDomainGroup("subscription", "/subscription").Use(g.RequireAuth)
	subscription.GET("/usage", h.Store.PlanUsage)

	webhooks := NewDomainGroup("webhooks", "/webhooks")
	webhooks.POST("/stripe", h.Webhook.HandleStripeWebhook)

	return []RouteRegistrar{carts, orders, stores, subscription, webhooks}
}

// RegisterSystemRoutes mounts the unversioned operational endpoints
func RegisterSystemRoutes(engine *gin.Engine, system *handler.SystemHandler, metrics http.Handler) {
	engine.GET("/health", system.Health)
	engine.GET("/ping", system.Ping)
	if metrics != nil {
		engine.GET("/metrics", handler.Metrics(metrics))
	}
}
