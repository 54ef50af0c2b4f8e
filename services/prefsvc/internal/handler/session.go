package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
	"github.com/xinkaiwang/swmr/services/prefsvc/api"
)

const (
	sessionName = "prefsvc"
	sessionKey  = "sid"
)

// SessionResolver picks the session id that decides which read replica serves a caller.
// An explicit header wins; otherwise the id lives in a signed cookie, minted on first use.
type SessionResolver struct {
	store sessions.Store
}

func NewSessionResolver(store sessions.Store) *SessionResolver {
	return &SessionResolver{store: store}
}

func NewCookieSessionResolver(keyPairs ...[]byte) *SessionResolver {
	store := sessions.NewCookieStore(keyPairs...)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return NewSessionResolver(store)
}

func (sr *SessionResolver) Resolve(w http.ResponseWriter, r *http.Request) string {
	sessionId := r.Header.Get(api.SessionHeader)
	if sessionId == "" {
		sessionId = sr.fromCookie(w, r)
	}
	w.Header().Set(api.SessionHeader, sessionId)
	return sessionId
}

func (sr *SessionResolver) fromCookie(w http.ResponseWriter, r *http.Request) string {
	// a cookie that fails verification yields a fresh session
	session, _ := sr.store.Get(r, sessionName)
	if sid, ok := session.Values[sessionKey].(string); ok && sid != "" {
		return sid
	}
	sid := uuid.NewString()
	session.Values[sessionKey] = sid
	if err := session.Save(r, w); err != nil {
		klogging.Warning(r.Context()).WithError(err).Log("SessionSaveFailed", "session will not be sticky")
	}
	return sid
}
