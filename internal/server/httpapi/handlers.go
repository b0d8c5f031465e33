package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/gophforum/internal/common"
	"github.com/dmitrijs2005/gophforum/internal/dbx"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createThreadRequest struct {
	Title string `json:"title"`
}

type createMessageRequest struct {
	Content string `json:"content"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

func (s *Server) register(r *http.Request, sess *dbx.Session) (response, error) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		return response{}, err
	}

	_, token, err := s.accounts.Register(r.Context(), sess, req.Username, req.Password)
	if err != nil {
		return response{}, err
	}

	return response{status: http.StatusCreated, body: tokenResponse{Token: token}}, nil
}

func (s *Server) login(r *http.Request, sess *dbx.Session) (response, error) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		return response{}, err
	}

	token, err := s.accounts.Login(r.Context(), sess, req.Username, req.Password)
	if err != nil {
		return response{}, err
	}

	return response{status: http.StatusOK, body: tokenResponse{Token: token}}, nil
}

func (s *Server) getAccount(r *http.Request, sess *dbx.Session) (response, error) {
	id, err := pathID(r)
	if err != nil {
		return response{}, err
	}

	account, err := s.accounts.Get(r.Context(), sess, id)
	if err != nil {
		return response{}, err
	}

	return response{status: http.StatusOK, body: account}, nil
}

func (s *Server) listThreads(r *http.Request, sess *dbx.Session) (response, error) {
	threads, err := s.forum.ListThreads(r.Context(), sess)
	if err != nil {
		return response{}, err
	}
	return response{status: http.StatusOK, body: threads}, nil
}

func (s *Server) getThread(r *http.Request, sess *dbx.Session) (response, error) {
	id, err := pathID(r)
	if err != nil {
		return response{}, err
	}

	thread, err := s.forum.GetThread(r.Context(), sess, id)
	if err != nil {
		return response{}, err
	}

	return response{status: http.StatusOK, body: thread}, nil
}

func (s *Server) createThread(r *http.Request, sess *dbx.Session) (response, error) {
	accountID, ok := accountIDFrom(r.Context())
	if !ok {
		return response{}, common.ErrorUnauthorized
	}

	var req createThreadRequest
	if err := decodeBody(r, &req); err != nil {
		return response{}, err
	}

	thread, err := s.forum.CreateThread(r.Context(), sess, accountID, req.Title)
	if err != nil {
		return response{}, err
	}

	return response{status: http.StatusCreated, body: idResponse{ID: thread.ID}}, nil
}

func (s *Server) postMessage(r *http.Request, sess *dbx.Session) (response, error) {
	accountID, ok := accountIDFrom(r.Context())
	if !ok {
		return response{}, common.ErrorUnauthorized
	}

	threadID, err := pathID(r)
	if err != nil {
		return response{}, err
	}

	var req createMessageRequest
	if err := decodeBody(r, &req); err != nil {
		return response{}, err
	}

	message, err := s.forum.PostMessage(r.Context(), sess, accountID, threadID, req.Content)
	if err != nil {
		return response{}, err
	}

	return response{status: http.StatusCreated, body: idResponse{ID: message.ID}}, nil
}

// healthz reports whether a pooled connection can reach the database.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.pool.Ping(r.Context()); err != nil {
		s.logger.Warn(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", common.ErrorValidation, err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad id", common.ErrorValidation)
	}
	return id, nil
}
