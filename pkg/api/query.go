package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oncoregistry/ingest/pkg/authz"
	"github.com/oncoregistry/ingest/pkg/httputil"
	"github.com/oncoregistry/ingest/pkg/storage"
)

// itemsKey wraps list responses, matching the envelope existing clients
// already parse.
const itemsKey = "_items"

// baseFilter parses the optional "where" query parameter as a JSON filter.
func baseFilter(r *http.Request) (storage.Filter, error) {
	raw := r.URL.Query().Get("where")
	if raw == "" {
		return storage.Filter{}, nil
	}
	var filter storage.Filter
	if err := json.Unmarshal([]byte(raw), &filter); err != nil {
		return nil, httputil.BadRequest("malformed where parameter")
	}
	return filter, nil
}

// scopedFilter builds the request's filter and narrows it to what the
// principal may see. docID is set for single-document routes so document
// level access checks apply.
func (s *Server) scopedFilter(r *http.Request, resource, docID string) (storage.Filter, error) {
	principal, err := PrincipalFrom(r.Context())
	if err != nil {
		return nil, err
	}
	filter, err := baseFilter(r)
	if err != nil {
		return nil, err
	}
	req := &authz.Request{
		Resource:  resource,
		Method:    r.Method,
		URL:       r.URL.String(),
		DocID:     docID,
		Principal: principal,
		Filter:    filter,
	}
	if err := s.compiler.CompileFilter(r.Context(), req); err != nil {
		return nil, err
	}
	return req.Filter, nil
}

// listResource runs a scoped find and writes the standard list envelope.
func (s *Server) listResource(w http.ResponseWriter, r *http.Request, resource, collection string, extra storage.Filter) {
	filter, err := s.scopedFilter(r, resource, "")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	for k, v := range extra {
		filter[k] = v
	}
	docs, err := s.store.Collection(collection).Find(r.Context(), filter, nil)
	if err != nil {
		s.log.WithError(err).Error("list query failed")
		httputil.WriteError(w, err)
		return
	}
	if docs == nil {
		docs = []storage.Doc{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{itemsKey: docs})
}

// getResource fetches one document through the scoped filter. A document
// outside the caller's scope is indistinguishable from a missing one.
func (s *Server) getResource(w http.ResponseWriter, r *http.Request, resource, collection, id string) {
	filter, err := s.scopedFilter(r, resource, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter["_id"] = id
	doc, err := s.store.Collection(collection).FindOne(r.Context(), filter)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteError(w, httputil.NotFound("document not found"))
		return
	}
	if err != nil {
		s.log.WithError(err).Error("document fetch failed")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// decodeBody decodes a JSON request body into out, rejecting unknown fields.
func decodeBody(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return httputil.BadRequest("malformed request body: " + err.Error())
	}
	return nil
}
