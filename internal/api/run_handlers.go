package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rflorenc/intersight-workbench/internal/logging"
	"github.com/rflorenc/intersight-workbench/internal/models"
	"github.com/rflorenc/intersight-workbench/internal/platform"
	"github.com/rflorenc/intersight-workbench/internal/workflow"
)

// RunRequest starts a run.
type RunRequest struct {
	Action string `json:"action"`
	File   string `json:"file"`
	Output string `json:"output"`
	Force  bool   `json:"force"`
	DryRun bool   `json:"dry_run"`
}

// StartRun starts an action in the background. Only one run may be active.
func (s *Server) StartRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	action, err := workflow.ParseAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.File == "" {
		req.File = s.File
	}

	run, err := s.Runs.Begin(string(action), req.File)
	if errors.Is(err, models.ErrRunInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	opts := workflow.Options{File: req.File, Output: req.Output, Force: req.Force, DryRun: req.DryRun}
	go s.execute(run, action, opts)

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

// execute runs action with the server logger teed into the run output.
func (s *Server) execute(run *models.Run, action workflow.Action, opts workflow.Options) {
	logger := logging.Tee(s.logger(), run).With(zap.String(logging.FieldRunID, run.ID))
	ctx := logging.WithLogger(context.Background(), logger)

	var remote workflow.Remote
	if !action.Offline() {
		var err error
		if remote, err = s.Connect(ctx); err != nil {
			logger.Error("connecting", zap.Error(err))
			run.Fail(err.Error(), nil)
			return
		}
	}

	res, err := workflow.NewRunner(remote, opts).Run(ctx, action)
	if err != nil {
		run.Fail(err.Error(), res.Report)
		return
	}
	run.Complete(res.Report)
}

// ListRuns returns all runs, most recent first.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Runs.List())
}

// GetRun returns one run with its log and report.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run := s.Runs.Get(id)
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// InventoryView is the JSON form of the remote inventory.
type InventoryView struct {
	Organizations  []string                       `json:"organizations"`
	ResourceGroups models.GroupMapping            `json:"resource_groups"`
	Servers        []models.Server                `json:"servers"`
	Pools          map[models.PoolType][]string   `json:"pools"`
	Policies       map[models.PolicyType][]string `json:"policies"`
	Templates      []string                       `json:"templates"`
	Profiles       []string                       `json:"profiles"`
}

func newInventoryView(inv *platform.Inventory) InventoryView {
	v := InventoryView{
		Organizations:  inv.OrganizationNames(),
		ResourceGroups: inv.Groups,
		Servers:        append([]models.Server(nil), inv.Servers...),
		Pools:          make(map[models.PoolType][]string),
		Policies:       make(map[models.PolicyType][]string),
		Templates:      inv.TemplateNames(),
		Profiles:       inv.Profiles.Names(),
	}
	sort.Slice(v.Servers, func(i, j int) bool { return v.Servers[i].Label() < v.Servers[j].Label() })
	for _, t := range []models.PoolType{models.PoolMAC, models.PoolUUID} {
		v.Pools[t] = inv.PoolNames(t)
	}
	for _, t := range models.PolicyTypes {
		v.Policies[t] = inv.PolicyNames(t)
	}
	return v
}

// GetInventory reads the remote inventory synchronously.
func (s *Server) GetInventory(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithLogger(r.Context(), s.logger())
	remote, err := s.Connect(ctx)
	if err != nil {
		writeError(w, remoteStatus(err), err.Error())
		return
	}
	inv, err := remote.Inventory(ctx)
	if err != nil {
		writeError(w, remoteStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newInventoryView(inv))
}

func remoteStatus(err error) int {
	if errors.Is(err, models.ErrRemoteUnavailable) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
