package security

import (
	"net/http"
	"strings"

	"NoteCollab/module/collab/model"
	"NoteCollab/tools/errs"
	sec "NoteCollab/tools/security"
)

// JWTAuthenticator websocket 握手认证：
// 令牌从 ?token= 查询参数或 Authorization: Bearer 头取（浏览器 WS 带不了自定义头）。
type JWTAuthenticator struct {
	opts sec.Options
}

func NewJWTAuthenticator(secret []byte) *JWTAuthenticator {
	return &JWTAuthenticator{opts: sec.DefaultOptions(secret)}
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (model.User, error) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		if authz := strings.TrimSpace(r.Header.Get("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
	}
	if token == "" {
		return model.User{}, errs.ErrUnauthorized.WrapMsg("missing token")
	}

	claims, err := sec.Verify(a.opts, token)
	if err != nil {
		return model.User{}, errs.ErrUnauthorized.WrapMsg("verify token failed", "err", err)
	}
	sub := claims.Subject()
	if sub == "" {
		return model.User{}, errs.ErrUnauthorized.WrapMsg("token without sub")
	}
	return model.User{ID: sub, DisplayName: claims.DisplayName()}, nil
}

// DevAuthenticator 本地联调放行：?user=&name= 直接当身份用。
// 只在 dev 配置下注入，线上永远 JWTAuthenticator。
type DevAuthenticator struct{}

func (DevAuthenticator) Authenticate(r *http.Request) (model.User, error) {
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		return model.User{}, errs.ErrUnauthorized.WrapMsg("missing user param")
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = userID
	}
	return model.User{ID: userID, DisplayName: name}, nil
}
