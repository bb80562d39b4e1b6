package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/tablemgr/internal/logging"
	"github.com/JonMunkholm/tablemgr/internal/people"
	"github.com/JonMunkholm/tablemgr/internal/tablemgr"
	"github.com/go-chi/chi/v5"
)

// maxBodySize caps JSON request bodies (10MB).
const maxBodySize = 10 << 20

// defaultPageSize applies when GET /people has no limit.
const defaultPageSize = 100

// handleHealth checks that a connection can be acquired and reports
// batch limiter usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	conn, err := s.conns(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	conn.Close(context.WithoutCancel(r.Context()))

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"batches": s.limiter.Status(),
	})
}

// handleListPeople returns people ordered by id, with their pets.
// Query params: after_id (keyset cursor), limit.
func (s *Server) handleListPeople(w http.ResponseWriter, r *http.Request) {
	opts := []tablemgr.CallOption{
		tablemgr.OrderBy("id"),
		tablemgr.Limit(parseIntParam(r, "limit", defaultPageSize)),
	}
	if v := r.URL.Query().Get("after_id"); v != "" {
		after, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.respondError(w, r, badRequest("after_id must be an integer"))
			return
		}
		opts = append(opts, tablemgr.Where("id > ?", after))
	}

	s.withManager(w, r, func(ctx context.Context, m *tablemgr.Manager) error {
		list, err := tablemgr.Query[people.Person](ctx, m, opts...)
		if err != nil {
			return err
		}
		if list == nil {
			list = []*people.Person{}
		}
		writeJSON(w, http.StatusOK, list)
		return nil
	})
}

// handleGetPerson returns one person with pets.
func (s *Server) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.withManager(w, r, func(ctx context.Context, m *tablemgr.Manager) error {
		found, err := tablemgr.Query[people.Person](ctx, m, tablemgr.Where("id = ?", id))
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return notFound(fmt.Sprintf("person %d not found", id))
		}
		writeJSON(w, http.StatusOK, found[0])
		return nil
	})
}

// handleCreatePeople inserts a JSON array of people. Existing ids conflict.
func (s *Server) handleCreatePeople(w http.ResponseWriter, r *http.Request) {
	batch, err := decodePeople(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.withManager(w, r, func(ctx context.Context, m *tablemgr.Manager) error {
		n, err := tablemgr.Insert(ctx, m, batch)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"inserted": n})
		return nil
	})
}

// handleUpsertPeople inserts or updates a JSON array of people.
func (s *Server) handleUpsertPeople(w http.ResponseWriter, r *http.Request) {
	batch, err := decodePeople(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.withManager(w, r, func(ctx context.Context, m *tablemgr.Manager) error {
		res, err := tablemgr.Upsert(ctx, m, batch)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]int64{"inserted": res.Inserted, "updated": res.Updated})
		return nil
	})
}

// handleUpdatePerson overwrites one existing person. Pets in the body are
// saved only once the person is known to exist.
func (s *Server) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var p people.Person
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.respondError(w, r, badRequest("invalid JSON body: "+err.Error()))
		return
	}
	p.ID = id

	s.withManager(w, r, func(ctx context.Context, m *tablemgr.Manager) error {
		n, err := tablemgr.Update(ctx, m, []*people.Person{&p}, tablemgr.SkipCascade())
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound(fmt.Sprintf("person %d not found", id))
		}
		if err := p.Save(ctx, m); err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, &p)
		return nil
	})
}

// handleDeletePerson removes a person and their pets.
func (s *Server) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.withManager(w, r, func(ctx context.Context, m *tablemgr.Manager) error {
		n, err := tablemgr.Delete(ctx, m, []*people.Person{{ID: id}})
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound(fmt.Sprintf("person %d not found", id))
		}
		logging.WithFields(ctx, "person_id", id).Info("person deleted")
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

// handlePeopleExist classifies a JSON array of ids in one round trip.
func (s *Server) handlePeopleExist(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		s.respondError(w, r, badRequest("expected a JSON array of ids"))
		return
	}

	probe := make([]*people.Person, len(ids))
	for i, id := range ids {
		probe[i] = &people.Person{ID: id}
	}

	s.withManager(w, r, func(ctx context.Context, m *tablemgr.Manager) error {
		found, err := tablemgr.Exists(ctx, m, probe)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, found)
		return nil
	})
}

// withManager runs fn with a request-scoped Manager and maps its error.
func (s *Server) withManager(w http.ResponseWriter, r *http.Request, fn func(context.Context, *tablemgr.Manager) error) {
	m, err := s.manager(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer m.Close(context.WithoutCancel(r.Context()))

	if err := fn(r.Context(), m); err != nil {
		s.respondError(w, r, err)
	}
}

// decodePeople reads a JSON array of people from the body.
func decodePeople(w http.ResponseWriter, r *http.Request) ([]*people.Person, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var batch []*people.Person
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		return nil, badRequest("expected a JSON array of people: " + err.Error())
	}
	for i, p := range batch {
		if p == nil {
			return nil, badRequest(fmt.Sprintf("person at index %d is null", i))
		}
	}
	return batch, nil
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, badRequest("id must be an integer")
	}
	return id, nil
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
