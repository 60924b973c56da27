package web

import (
	"net/http"

	"github.com/evcraddock/advocate/internal/account"
	"github.com/evcraddock/advocate/internal/auth"
)

func (s *Server) handleListSchools(w http.ResponseWriter, r *http.Request) {
	schools, err := s.accounts.ListSchools(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if schools == nil {
		schools = []*account.School{}
	}
	apiJSON(w, schools, http.StatusOK)
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.accounts.ListStudents(r.Context(), auth.AccountFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if students == nil {
		students = []*account.Student{}
	}
	apiJSON(w, students, http.StatusOK)
}

func (s *Server) handleAddStudent(w http.ResponseWriter, r *http.Request) {
	var n account.NewStudent
	if err := decodeJSON(w, r, &n); err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	student, err := s.accounts.AddStudent(r.Context(), auth.AccountFrom(r.Context()).ID, n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiJSON(w, student, http.StatusCreated)
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.accounts.DeleteStudent(r.Context(), auth.AccountFrom(r.Context()).ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
