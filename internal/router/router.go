package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/featherlive/backend/api/handler"
)

type Handlers struct {
	Stream  *apiHandler.StreamHandler
	Poll    *apiHandler.PollHandler
	Gift    *apiHandler.GiftHandler
	Wallet  *apiHandler.WalletHandler
	Webhook *apiHandler.WebhookHandler
	Health  *apiHandler.HealthHandler
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Provider callbacks authenticate with a shared secret, not JWT.
	r.POST("/stream/recording/webhook", handlers.Webhook.Recording)

	// Stream lifecycle and interactions
	r.POST("/api/v1/stream/start", authMiddleware(handlers.Stream.Start))
	r.GET("/api/v1/streams", handlers.Stream.List)
	r.GET("/api/v1/stream/{id}", handlers.Stream.Get)
	r.POST("/api/v1/stream/{id}/pause", authMiddleware(handlers.Stream.Pause))
	r.POST("/api/v1/stream/{id}/resume", authMiddleware(handlers.Stream.Resume))
	r.POST("/api/v1/stream/{id}/end", authMiddleware(handlers.Stream.End))
	r.POST("/api/v1/stream/{id}/admin-end", authMiddleware(handlers.Stream.AdminEnd))
	r.POST("/api/v1/stream/{id}/join", authMiddleware(handlers.Stream.Join))
	r.POST("/api/v1/stream/{id}/leave", authMiddleware(handlers.Stream.Leave))
	r.POST("/api/v1/stream/{id}/like", authMiddleware(handlers.Stream.Like))
	r.PUT("/api/v1/stream/{id}/settings", authMiddleware(handlers.Stream.UpdateSettings))
	r.PUT("/api/v1/stream/{id}/controls", authMiddleware(handlers.Stream.UpdateControls))
	r.POST("/api/v1/stream/{id}/chat", authMiddleware(handlers.Stream.PostChat))
	r.GET("/api/v1/stream/{id}/chat", handlers.Stream.ChatHistory)

	// Polls
	r.POST("/api/v1/poll/stream/{id}/create", authMiddleware(handlers.Poll.Create))
	r.GET("/api/v1/poll/stream/{id}/active", handlers.Poll.Active)
	r.POST("/api/v1/poll/{id}/vote", authMiddleware(handlers.Poll.Vote))
	r.POST("/api/v1/poll/{id}/end", authMiddleware(handlers.Poll.End))

	// Gifts and wallets
	r.POST("/api/v1/gift/send/{streamId}", authMiddleware(handlers.Gift.Send))
	r.GET("/api/v1/gift/catalog", handlers.Gift.Catalog)
	r.GET("/api/v1/gift/stream/{id}", handlers.Gift.History)
	r.GET("/api/v1/wallet", authMiddleware(handlers.Wallet.Get))
	r.GET("/api/v1/wallet/transactions", authMiddleware(handlers.Wallet.Transactions))

	return r
}
