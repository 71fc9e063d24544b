// Package authz compiles a principal's permission set into the query filter
// that scopes every read and write. The compiler fails closed: when no grant
// yields a condition the filter is pinned to an always-false sentinel, never
// left unbounded.
package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/oncoregistry/ingest/pkg/httputil"
	"github.com/oncoregistry/ingest/pkg/model"
	"github.com/oncoregistry/ingest/pkg/observability"
	"github.com/oncoregistry/ingest/pkg/storage"
)

// Sentinel filter entry matching no documents. Pinning an impossible field
// keeps "no visible documents" and "no filter" structurally distinct.
const (
	SentinelKey   = "find"
	SentinelValue = "nothing"
)

// GrantSource loads the grant list for a principal.
type GrantSource interface {
	GrantsFor(ctx context.Context, email string) ([]model.Grant, error)
}

// Compiler builds access filters from permissions.
type Compiler struct {
	grants  GrantSource
	store   storage.Store
	metrics *observability.Metrics
	log     logrus.FieldLogger
}

// NewCompiler creates a filter compiler.
func NewCompiler(grants GrantSource, store storage.Store, metrics *observability.Metrics, log logrus.FieldLogger) *Compiler {
	return &Compiler{grants: grants, store: store, metrics: metrics, log: log}
}

// Request describes the query being scoped.
type Request struct {
	Resource  string
	Method    string
	URL       string
	DocID     string // set for single-document lookups
	Principal *model.Principal
	Filter    storage.Filter // mutated in place
}

// CompileFilter augments the request's filter so it only matches documents
// the principal may see. Resource policies apply in a fixed precedence
// order; the generic branch partitions the principal's grants and compiles
// them to a disjunction. A request without a principal is rejected outright,
// since an unscoped read would return everything.
func (c *Compiler) CompileFilter(ctx context.Context, req *Request) error {
	if req.Filter == nil {
		req.Filter = storage.Filter{}
	}
	if req.Principal == nil {
		observability.WithCategory(c.log, observability.CategoryAuth).
			WithField("resource", req.Resource).
			Error("filter requested without an authenticated principal")
		return httputil.Unauthorized("no authenticated principal")
	}

	c.audit(req)

	switch {
	case req.Resource == model.ResourceTest:
		c.countDecision(req.Resource, "bypass")
		return nil

	case req.Principal.Service:
		// The task runner sees everything.
		c.countDecision(req.Resource, "bypass")
		return nil

	case req.Resource == model.ResourceTrials:
		return c.compileTrials(ctx, req)

	case req.Resource == model.ResourceIngestion:
		req.Filter["started_by"] = req.Principal.Email
		c.countDecision(req.Resource, "scoped")
		return nil

	case req.Resource == model.ResourceAccountsInfo,
		req.Resource == model.ResourceAccountsUpdate && req.Method == http.MethodGet:
		req.Filter["username"] = req.Principal.Email
		c.countDecision(req.Resource, "scoped")
		return nil

	default:
		return c.compileGeneric(ctx, req)
	}
}

// compileTrials scopes the trials resource. Collaborator membership is the
// default gate; holders of any trial-wide or assay-wide read grant get broad
// trial read, scoped further downstream on the data they query.
func (c *Compiler) compileTrials(ctx context.Context, req *Request) error {
	grants, err := c.grants.GrantsFor(ctx, req.Principal.Email)
	if err != nil {
		return fmt.Errorf("load grants for %q: %w", req.Principal.Email, err)
	}
	for _, g := range grants {
		if g.Kind == model.GrantTrialRead || g.Kind == model.GrantAssayRead {
			c.countDecision(req.Resource, "bypass")
			return nil
		}
	}
	req.Filter["collaborators"] = req.Principal.Email
	c.countDecision(req.Resource, "scoped")
	return nil
}

// compileGeneric handles data, analysis and other grant-scoped resources.
func (c *Compiler) compileGeneric(ctx context.Context, req *Request) error {
	grants, err := c.grants.GrantsFor(ctx, req.Principal.Email)
	if err != nil {
		return fmt.Errorf("load grants for %q: %w", req.Principal.Email, err)
	}

	if req.DocID != "" {
		allowed, err := c.CheckDocumentAccess(ctx, req.Resource, req.DocID, grants)
		if err != nil {
			return err
		}
		if !allowed {
			req.Filter[SentinelKey] = SentinelValue
			c.countDecision(req.Resource, "nothing")
			return nil
		}
		c.countDecision(req.Resource, "scoped")
		return nil
	}

	conditions := compileGrantConditions(grants)
	if len(conditions) == 0 {
		req.Filter[SentinelKey] = SentinelValue
		c.countDecision(req.Resource, "nothing")
		return nil
	}
	req.Filter["$or"] = conditions
	c.countDecision(req.Resource, "scoped")
	return nil
}

// compileGrantConditions partitions grants into per-grant filter clauses.
// Trial-wide and assay-wide read grants each contribute an unconditional
// clause; pair grants contribute an exact trial+assay clause unless a
// broader grant for the same trial or the same assay already subsumes them.
func compileGrantConditions(grants []model.Grant) []storage.Filter {
	trialRead := make(map[string]bool)
	assayRead := make(map[string]bool)
	var conditions []storage.Filter

	for _, g := range grants {
		switch g.Kind {
		case model.GrantTrialRead:
			if !trialRead[g.Trial] {
				trialRead[g.Trial] = true
				conditions = append(conditions, storage.Filter{"trial": g.Trial})
			}
		case model.GrantAssayRead:
			if !assayRead[g.Assay] {
				assayRead[g.Assay] = true
				conditions = append(conditions, storage.Filter{"assay": g.Assay})
			}
		}
	}

	for _, g := range grants {
		if g.Kind != model.GrantRead && g.Kind != model.GrantWrite {
			continue
		}
		if trialRead[g.Trial] || assayRead[g.Assay] {
			continue
		}
		conditions = append(conditions, storage.Filter{"trial": g.Trial, "assay": g.Assay})
	}
	return conditions
}

// CheckDocumentAccess decides whether a principal's grants cover one
// specific document. A document that does not exist is allowed through so
// the handler can produce its 404; a document outside every grant is
// denied.
func (c *Compiler) CheckDocumentAccess(ctx context.Context, resource, id string, grants []model.Grant) (bool, error) {
	doc, err := c.store.Collection(resource).FindOne(ctx, storage.Filter{"_id": id})
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch %s/%s for access check: %w", resource, id, err)
	}

	trial, _ := doc["trial"].(string)
	assay, _ := doc["assay"].(string)

	for _, g := range grants {
		trialMatch := trial != "" && trial == g.Trial
		assayMatch := assay != "" && assay == g.Assay
		switch {
		case trialMatch && assayMatch:
			return true, nil
		case trialMatch && g.Kind == model.GrantTrialRead:
			return true, nil
		case assayMatch && g.Kind == model.GrantAssayRead:
			return true, nil
		}
	}
	return false, nil
}

// audit logs the filtering decision context. Best-effort; logging never
// blocks or fails the request.
func (c *Compiler) audit(req *Request) {
	observability.WithCategory(c.log, observability.CategoryRequest).
		WithFields(logrus.Fields{
			"resource": req.Resource,
			"email":    req.Principal.Email,
			"method":   req.Method,
			"url":      req.URL,
		}).Info("data request")
}

func (c *Compiler) countDecision(resource, outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.FilterDecisions.WithLabelValues(resource, outcome).Inc()
}
