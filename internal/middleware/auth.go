// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/microcourse/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// actorContextKey はリクエストコンテキストに実行者を格納するためのキー。
	actorContextKey = contextKey("actor")
	// slotContextKey はロギングミドルウェアが用意するユーザーID記録先のキー。
	slotContextKey = contextKey("user_slot")
)

// ActorResolver はアクセストークンから実行者を解決するインターフェース。
// auth.Serviceが実装する。
type ActorResolver interface {
	Resolve(ctx context.Context, token string) (model.Actor, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 実行者をリクエストコンテキストに注入するミドルウェアを返す。
// トークンがない、または無効な場合は401を返す。
func NewAuthMiddleware(resolver ActorResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			actor, ok := resolve(w, r, resolver, token)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
		})
	}
}

// NewOptionalAuthMiddleware はトークンがあれば実行者を注入し、なければ匿名のまま通すミドルウェアを返す。
// 無効なトークンが送られた場合は匿名扱いにせず401を返す。
func NewOptionalAuthMiddleware(resolver ActorResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := resolve(w, r, resolver, token)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
		})
	}
}

// RequireRole は実行者が指定ロールのいずれかを持つ場合のみ通すミドルウェアを返す。
// 認証ミドルウェアの後に配置する。
func RequireRole(roles ...model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			slog.Warn("role check failed",
				slog.String("user_id", actor.UserID),
				slog.String("role", string(actor.Role)),
				slog.String("path", r.URL.Path),
			)
			WriteErrorResponse(w, http.StatusForbidden, model.NewRoleRequiredError(roles...))
		})
	}
}

func resolve(w http.ResponseWriter, r *http.Request, resolver ActorResolver, token string) (model.Actor, bool) {
	actor, err := resolver.Resolve(r.Context(), token)
	if err == nil {
		return actor, true
	}
	if model.IsKind(err, model.KindUnauthorized) {
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return model.Actor{}, false
	}
	slog.Error("failed to resolve actor", slog.String("error", err.Error()))
	WriteInternalServerError(w)
	return model.Actor{}, false
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// ActorFromContext はリクエストコンテキストから実行者を取得する。
// 認証ミドルウェアを通過していない場合はfalseを返す。
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(model.Actor)
	if !ok || actor.UserID == "" {
		return model.Actor{}, false
	}
	return actor, true
}

// ContextWithActor はコンテキストに実行者を注入する。
// ロギングミドルウェアが記録先を用意している場合はユーザーIDも書き込む。
func ContextWithActor(ctx context.Context, actor model.Actor) context.Context {
	if slot, ok := ctx.Value(slotContextKey).(*userSlot); ok {
		slot.set(actor.UserID)
	}
	return context.WithValue(ctx, actorContextKey, actor)
}

// UserIDFromContext はリクエストコンテキストから実行者のユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, bool) {
	actor, ok := ActorFromContext(ctx)
	return actor.UserID, ok
}
