package auth

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash []byte, pw string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(pw)) == nil
}

// Basic guards a handler with HTTP basic auth against a single operator
// account whose password is stored as a bcrypt hash.
type Basic struct {
	User         string
	PasswordHash []byte
	Realm        string
}

func (b Basic) Check(user, pw string) bool {
	// always run bcrypt so a wrong user costs the same as a wrong password
	okPass := CheckPassword(b.PasswordHash, pw)
	return secureEq(user, b.User) && okPass
}

func (b Basic) Require(next http.Handler) http.Handler {
	realm := b.Realm
	if realm == "" {
		realm = "slotclaim"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pw, ok := r.BasicAuth()
		if !ok || !b.Check(user, pw) {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureEq(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
