package middleware

import (
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/featherlive/backend/domain"
)

// Verifier resolves bearer tokens to user ids. The REST middleware and the
// websocket listener share it so both surfaces accept the same tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyToken parses and validates the token, returning the user id claim.
func (v *Verifier) VerifyToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", domain.ErrUnauthorized
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrUnauthorized
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", domain.WrapError(domain.ErrCodeUnauthorized, "invalid token", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", domain.ErrUnauthorized
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", domain.ErrUnauthorized
	}
	return userID, nil
}

// JWTAuth guards REST routes, stamping the verified identity into the
// X-User-ID header for handlers downstream.
func JWTAuth(verifier *Verifier, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			userID, err := verifier.VerifyToken(extractToken(ctx))
			if err != nil {
				logger.Warn("rejected request token", zap.Error(err))
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}
			// Overwrite whatever the client sent; only the verified value may
			// reach a handler.
			ctx.Request.Header.Set("X-User-ID", userID)
			next(ctx)
		}
	}
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}
