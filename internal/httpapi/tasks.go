package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/tracker/internal/tasks"
)

// entityRoutes binds one entity kind to the manager operations that serve
// its collection and item routes.
type entityRoutes struct {
	kind      tasks.Kind
	list      func() []tasks.Task
	get       func(id int) (tasks.Task, error)
	add       func(req taskRequest) (tasks.Task, error)
	update    func(id int, req taskRequest) (tasks.Task, error)
	remove    func(id int) error
	removeAll func() error

	// extra mounts kind-specific routes under the same prefix.
	extra func(r chi.Router)
}

func (s *Server) taskRoutes() entityRoutes {
	m := s.manager
	return entityRoutes{
		kind: tasks.KindTask,
		list: m.ListTasks,
		get:  m.GetTask,
		add: func(req taskRequest) (tasks.Task, error) {
			d, err := req.draft()
			if err != nil {
				return tasks.Task{}, err
			}
			return m.AddTask(tasks.NewTask(d))
		},
		update: func(id int, req taskRequest) (tasks.Task, error) {
			t, err := req.replacement(tasks.KindTask, id)
			if err != nil {
				return tasks.Task{}, err
			}
			return m.UpdateTask(t)
		},
		remove:    m.RemoveTask,
		removeAll: m.RemoveAllTasks,
	}
}

func (s *Server) epicRoutes() entityRoutes {
	m := s.manager
	return entityRoutes{
		kind: tasks.KindEpic,
		list: m.ListEpics,
		get:  m.GetEpic,
		add: func(req taskRequest) (tasks.Task, error) {
			t, err := req.epic(0, false)
			if err != nil {
				return tasks.Task{}, err
			}
			return m.AddEpic(t)
		},
		update: func(id int, req taskRequest) (tasks.Task, error) {
			t, err := req.epic(id, true)
			if err != nil {
				return tasks.Task{}, err
			}
			return m.UpdateEpic(t)
		},
		remove:    m.RemoveEpic,
		removeAll: m.RemoveAllEpics,
		extra: func(r chi.Router) {
			r.Get("/{id}/subtasks", s.handleEpicSubtasks)
		},
	}
}

func (s *Server) subtaskRoutes() entityRoutes {
	m := s.manager
	return entityRoutes{
		kind: tasks.KindSubtask,
		list: m.ListSubtasks,
		get:  m.GetSubtask,
		add: func(req taskRequest) (tasks.Task, error) {
			if req.EpicID == nil {
				return tasks.Task{}, fmt.Errorf("%w: epic_id is required", tasks.ErrValidation)
			}
			d, err := req.draft()
			if err != nil {
				return tasks.Task{}, err
			}
			return m.AddSubtask(tasks.NewSubtask(*req.EpicID, d))
		},
		update: func(id int, req taskRequest) (tasks.Task, error) {
			t, err := req.replacement(tasks.KindSubtask, id)
			if err != nil {
				return tasks.Task{}, err
			}
			return m.UpdateSubtask(t)
		},
		remove:    m.RemoveSubtask,
		removeAll: m.RemoveAllSubtasks,
	}
}

func (s *Server) mountEntity(r chi.Router, prefix string, e entityRoutes) {
	noun := strings.ToLower(string(e.kind))

	r.Route(prefix, func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			started := time.Now()
			out := toPayloads(e.list())
			s.observe("list_"+noun, started, nil, false)
			respondJSON(w, http.StatusOK, out)
		})

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			var req taskRequest
			if err := decodeJSON(r, &req); err != nil {
				if errors.Is(err, errEmptyBody) {
					respondError(w, http.StatusBadRequest, "invalid_request", "request body is required")
					return
				}
				respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
				return
			}
			t, err := e.add(req)
			s.observe("add_"+noun, started, err, true)
			if err != nil {
				respondManagerError(w, r, err)
				return
			}
			respondJSON(w, http.StatusCreated, toPayload(t))
		})

		r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			err := e.removeAll()
			s.observe("remove_all_"+noun, started, err, true)
			if err != nil {
				respondManagerError(w, r, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]any{"removed": noun + "s"})
		})

		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := pathID(w, r)
			if !ok {
				return
			}
			started := time.Now()
			t, err := e.get(id)
			s.observe("get_"+noun, started, err, false)
			if err != nil {
				respondManagerError(w, r, err)
				return
			}
			respondJSON(w, http.StatusOK, toPayload(t))
		})

		r.Post("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := pathID(w, r)
			if !ok {
				return
			}
			started := time.Now()
			var req taskRequest
			if err := decodeJSON(r, &req); err != nil {
				if errors.Is(err, errEmptyBody) {
					respondError(w, http.StatusBadRequest, "invalid_request", "request body is required")
					return
				}
				respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
				return
			}
			t, err := e.update(id, req)
			s.observe("update_"+noun, started, err, true)
			if err != nil {
				respondManagerError(w, r, err)
				return
			}
			respondJSON(w, http.StatusCreated, toPayload(t))
		})

		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := pathID(w, r)
			if !ok {
				return
			}
			started := time.Now()
			err := e.remove(id)
			s.observe("remove_"+noun, started, err, true)
			if err != nil {
				respondManagerError(w, r, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]any{"removed": id})
		})

		if e.extra != nil {
			e.extra(r)
		}
	})
}

func (s *Server) handleEpicSubtasks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	started := time.Now()
	out, err := s.manager.GetSubtasksByEpicID(id)
	s.observe("list_epic_subtasks", started, err, false)
	if err != nil {
		respondManagerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPayloads(out))
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	started := time.Now()
	out := toPayloads(s.manager.History())
	s.observe("history", started, nil, false)
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handlePrioritized(w http.ResponseWriter, _ *http.Request) {
	started := time.Now()
	out := toPayloads(s.manager.PrioritizedTasks())
	s.observe("prioritized", started, nil, false)
	respondJSON(w, http.StatusOK, out)
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer, got "+strconv.Quote(raw))
		return 0, false
	}
	return id, true
}
