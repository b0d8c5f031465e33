package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/gophforum/internal/dbx"
)

// response is what a bound handler produces. It is written only after the
// handler's session has gone back to the pool.
type response struct {
	status int
	body   any
}

type handlerFunc func(r *http.Request, s *dbx.Session) (response, error)

// bind runs h inside a pooled session. The session is released on every exit
// path, including panics and client cancellation, before anything is written.
func (s *Server) bind(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var resp response

		err := s.pool.Do(r.Context(), func(ctx context.Context, sess *dbx.Session) error {
			var err error
			resp, err = h(r.WithContext(ctx), sess)
			return err
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, resp.status, resp.body)
	}
}
