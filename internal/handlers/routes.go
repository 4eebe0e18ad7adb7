package handlers

import (
	"context"
	"net/http"
	"time"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Store: deps.StoreKind, Check: deps.HealthCheck}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.AuthLimiter, NowFunc: deps.NowFunc, TrustProxy: deps.TrustProxyHeaders}
	users := UserHandler{Users: deps.Users}
	friends := FriendHandler{Friends: deps.Friends}
	messages := MessageHandler{Messages: deps.Messages, Images: deps.Images, MaxUploadBytes: deps.MaxUploadBytes, NowFunc: deps.NowFunc}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("/api/v1/users", users.List)
	mux.HandleFunc("/api/v1/users/profile", users.Profile)
	mux.HandleFunc("/api/v1/friends", friends.List)
	mux.HandleFunc("/api/v1/friends/ids", friends.IDs)
	mux.HandleFunc("/api/v1/friends/status", friends.Status)
	mux.HandleFunc("/api/v1/friends/requests", friends.Send)
	mux.HandleFunc("/api/v1/friends/requests/incoming", friends.Incoming)
	mux.HandleFunc("/api/v1/friends/requests/outgoing", friends.Outgoing)
	mux.HandleFunc("/api/v1/friends/requests/accept", friends.Accept)
	mux.HandleFunc("/api/v1/friends/requests/reject", friends.Reject)
	mux.HandleFunc("/api/v1/friends/requests/cancel", friends.Cancel)
	mux.HandleFunc("/api/v1/messages", messages.Collection)
	mux.HandleFunc("/api/v1/messages/delete", messages.Delete)

	if deps.LiveChannel != nil {
		mux.Handle("/api/v1/ws", deps.LiveChannel)
	}
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}
	if deps.Files != nil {
		mux.Handle("/files/", http.StripPrefix("/files/", deps.Files))
	}
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users          UserStore
	Sessions       SessionManager
	Friends        FriendService
	Messages       MessageRouter
	Images         ImageUploader
	AuthLimiter    RateLimiter
	MaxUploadBytes int64
	NowFunc        func() time.Time

	// TrustProxyHeaders lets X-Forwarded-For and X-Real-IP pick the rate limit key.
	TrustProxyHeaders bool

	StoreKind   string
	HealthCheck func(ctx context.Context) error

	LiveChannel http.Handler
	Metrics     http.Handler
	Files       http.Handler
}
