package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/balaji-balu/offsetup/internal/fault"
	"github.com/balaji-balu/offsetup/internal/journal"
	"github.com/balaji-balu/offsetup/internal/loader"
	"github.com/balaji-balu/offsetup/internal/plan"
	"github.com/balaji-balu/offsetup/internal/planner"
	"github.com/balaji-balu/offsetup/internal/platform"
	"github.com/balaji-balu/offsetup/internal/report"
)

const maxManifest = 1 << 20

// Runs reads journaled reports.
type Runs interface {
	Get(id string) (*report.Report, error)
	Latest() (*report.Report, error)
	List() ([]*report.Report, error)
}

type Handlers struct {
	Runs    Runs
	Detect  func(ctx context.Context) (platform.Runtime, error)
	Options planner.Options
	// Dir resolves relative download directories of posted manifests.
	Dir string
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) ListRuns(c *gin.Context) {
	runs, err := h.Runs.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	type summary struct {
		RunID     string        `json:"run_id"`
		Manifest  string        `json:"manifest"`
		Platform  string        `json:"platform"`
		Status    report.Status `json:"status"`
		StartedAt string        `json:"started_at"`
	}
	out := make([]summary, 0, len(runs))
	for _, r := range runs {
		out = append(out, summary{r.RunID, r.Manifest, r.Platform, r.Status, r.StartedAt.Format("2006-01-02T15:04:05Z07:00")})
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

// GetRun serves one report; the id "latest" names the most recent run.
func (h *Handlers) GetRun(c *gin.Context) {
	id := c.Param("id")
	var (
		r   *report.Report
		err error
	)
	if id == "latest" {
		r, err = h.Runs.Latest()
	} else {
		r, err = h.Runs.Get(id)
	}
	if errors.Is(err, journal.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r)
}

type stepView struct {
	ID           string `json:"id"`
	Phase        string `json:"phase"`
	Kind         string `json:"kind"`
	Owner        string `json:"owner,omitempty"`
	Summary      string `json:"summary"`
	FailSilently bool   `json:"fail_silently,omitempty"`
	SkipInstall  bool   `json:"skip_install,omitempty"`
}

// Plan plans the manifest in the request body for the runtime given by
// the os, version and arch query parameters, or the detected one.
func (h *Handlers) Plan(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxManifest))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rt := platform.Runtime{OS: c.Query("os"), Version: c.Query("version"), Arch: c.Query("arch")}
	if rt.OS == "" {
		if h.Detect == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "os query parameter is required"})
			return
		}
		if rt, err = h.Detect(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	rt.Arch = platform.NormalizeArch(rt.Arch)

	m, err := loader.Parse(data, h.Dir)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "kind": fault.KindOf(err)})
		return
	}
	p, err := planner.ForRuntime(m, rt, h.Options)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "kind": fault.KindOf(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"manifest": p.Manifest,
		"platform": p.Platform,
		"runtime":  rt,
		"steps":    views(p.Steps),
	})
}

func views(steps []plan.Step) []stepView {
	out := make([]stepView, len(steps))
	for i, s := range steps {
		out[i] = stepView{
			ID:           s.ID,
			Phase:        s.Phase.String(),
			Kind:         string(s.Kind()),
			Owner:        s.Owner,
			Summary:      s.Action.String(),
			FailSilently: s.FailSilently,
			SkipInstall:  s.SkipInstall,
		}
	}
	return out
}
