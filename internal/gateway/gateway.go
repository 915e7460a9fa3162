// Package gateway drives one pass over each remote endpoint: fetch
// through the shared client, archive raw pages, and materialize every
// result into the domain store. It owns the main database connection;
// callers above it never open their own.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
	"github.com/jobcan-tools/jobcan-di/internal/jobcan"
	"github.com/jobcan-tools/jobcan-di/internal/rawsink"
	"github.com/jobcan-tools/jobcan-di/internal/status"
	"github.com/jobcan-tools/jobcan-di/internal/store"
	"github.com/jobcan-tools/jobcan-di/internal/tempstore"
	"github.com/jobcan-tools/jobcan-di/internal/timeparsing"
)

// Gateway couples the API client with the domain store and the raw
// response sink.
type Gateway struct {
	client *jobcan.Client
	store  *store.Store
	sink   rawsink.Sink

	now func() time.Time
}

// New creates a gateway. A nil sink discards raw responses.
func New(client *jobcan.Client, st *store.Store, sink rawsink.Sink) *Gateway {
	if sink == nil {
		sink = rawsink.Discard{}
	}
	return &Gateway{client: client, store: st, sink: sink, now: time.Now}
}

// Store exposes the domain store for retrieval-side callers.
func (g *Gateway) Store() *store.Store { return g.store }

// Close releases the store connection.
func (g *Gateway) Close() error {
	if g.store == nil {
		return nil
	}
	return g.store.Close()
}

// BasicResult summarizes one basic-endpoint pass.
type BasicResult struct {
	// Clean is false when pagination stopped before the last page.
	Clean bool
	// FailedKeys holds the natural keys of items whose store write
	// failed; they are retried on the next run.
	FailedKeys []string
}

// BasicCallbacks observe a basic-endpoint pass. SkipItem suppresses
// items an interrupted earlier run already committed; OnStored fires
// after each successful upsert, keyed by the item's natural key.
type BasicCallbacks struct {
	SkipItem  func(key string) bool
	OnStored  func(key string)
	OnWarning func(*dierr.Warning)
}

// FetchBasicData walks every page of a basic endpoint and upserts each
// result item. Item-level failures are recorded and do not stop the
// pass; only transport-level errors are fatal. FailedKeys holds store
// failures only; a decode failure is a fetch-side problem and travels
// through its warning instead.
func (g *Gateway) FetchBasicData(ctx context.Context, apiType jobcan.APIType, cb BasicCallbacks) (BasicResult, *dierr.Fatal) {
	result := BasicResult{}
	warn := func(w *dierr.Warning) {
		if cb.OnWarning != nil {
			cb.OnWarning(w)
		}
	}

	clean, err := g.client.Paginate(ctx, apiType, nil, func(pageNo int, body []byte, page *jobcan.Page) error {
		if err := g.sink.SavePage(ctx, apiType, pageNo, body); err != nil {
			warn(dierr.NewWarning(dierr.DBUpdateFailed).
				With("api_type", string(apiType)).
				With("error", err.Error()))
		}
		for _, elem := range page.Results {
			key := gjson.GetBytes(elem, apiType.NaturalKey()).String()
			if cb.SkipItem != nil && cb.SkipItem(key) {
				continue
			}
			rec, err := store.DecodeRecord(elem)
			if err != nil {
				warn(dierr.NewWarning(dierr.ApiResponseJsonDecodeError).
					With("api_type", string(apiType)).
					With("key", key).
					With("error", err.Error()))
				continue
			}
			if w := g.store.Update(ctx, apiType, rec); w != nil {
				result.FailedKeys = append(result.FailedKeys, key)
				warn(w)
				continue
			}
			if cb.OnStored != nil {
				cb.OnStored(key)
			}
		}
		return nil
	}, warn)
	if err != nil {
		return result, asFatal(err)
	}
	result.Clean = clean
	return result, nil
}

// OutlineOptions filter the request listing per form.
type OutlineOptions struct {
	// AppliedAfter holds per-form last-access stamps; the listing only
	// returns requests applied after that time.
	AppliedAfter map[int]string
	// AppliedAfterOverride forces one stamp for every form, beating the
	// per-form map. Used by the --applied-after flag.
	AppliedAfterOverride string
	// IncludeCanceled additionally lists canceled requests and runs the
	// extra canceled_after_completion query per form.
	IncludeCanceled bool
	// SkipForm, when set, suppresses the listing for forms the caller
	// already finished.
	SkipForm func(formID int) bool
}

// FetchFormOutlines lists request ids form by form. Each completed form
// yields one outline through onOutline; onTick fires per collected id.
// An outline with Success=false means its listing stopped early and the
// form must be re-listed next run.
func (g *Gateway) FetchFormOutlines(ctx context.Context, opts OutlineOptions, onOutline func(formID int, outline *tempstore.FormOutline), onTick func(formID int, requestID string), onWarning func(*dierr.Warning)) *dierr.Fatal {
	formIDs, err := g.store.FormIDs(ctx)
	if err != nil {
		return dierr.FatalFrom(dierr.Unexpected, err)
	}

	for _, formID := range formIDs {
		if opts.SkipForm != nil && opts.SkipForm(formID) {
			continue
		}
		outline := &tempstore.FormOutline{
			Success:    true,
			LastAccess: timeparsing.FormatStamp(g.now()),
		}
		appliedAfter := opts.AppliedAfter[formID]
		if opts.AppliedAfterOverride != "" {
			appliedAfter = opts.AppliedAfterOverride
		}

		queries := []map[string]string{outlineParams(formID, appliedAfter, opts.IncludeCanceled, false)}
		if opts.IncludeCanceled {
			queries = append(queries, outlineParams(formID, appliedAfter, true, true))
		}

		seen := status.NewStringSet()
		for _, params := range queries {
			clean, fatal := g.listOutlinePages(ctx, formID, params, func(requestID string) {
				if seen.Has(requestID) {
					return
				}
				seen.Add(requestID)
				outline.IDs = append(outline.IDs, requestID)
				if onTick != nil {
					onTick(formID, requestID)
				}
			}, onWarning)
			if fatal != nil {
				return fatal
			}
			if !clean {
				outline.Success = false
			}
		}

		if onOutline != nil {
			onOutline(formID, outline)
		}
	}
	return nil
}

// outlineParams builds the query string for one outline listing.
func outlineParams(formID int, appliedAfter string, includeCanceled, canceledAfterCompletion bool) map[string]string {
	params := map[string]string{"form_id": fmt.Sprintf("%d", formID)}
	if canceledAfterCompletion {
		params["status"] = "canceled_after_completion"
		if appliedAfter != "" {
			params["completed_after"] = appliedAfter
		}
		return params
	}
	if appliedAfter != "" {
		params["applied_after"] = appliedAfter
	}
	if includeCanceled {
		params["include_canceled"] = "true"
	}
	return params
}

func (g *Gateway) listOutlinePages(ctx context.Context, formID int, params map[string]string, onID func(requestID string), onWarning func(*dierr.Warning)) (bool, *dierr.Fatal) {
	// Outline pages archive under a per-form label so forms do not
	// overwrite each other's files.
	label := jobcan.APIType(fmt.Sprintf("%s_%d", jobcan.FormOutline, formID))

	clean, err := g.client.Paginate(ctx, jobcan.FormOutline, params, func(pageNo int, body []byte, page *jobcan.Page) error {
		if err := g.sink.SavePage(ctx, label, pageNo, body); err != nil && onWarning != nil {
			onWarning(dierr.NewWarning(dierr.DBUpdateFailed).
				With("api_type", string(label)).
				With("error", err.Error()))
		}
		for _, elem := range page.Results {
			id := gjson.GetBytes(elem, "id").String()
			if id != "" {
				onID(id)
			}
		}
		return nil
	}, onWarning)
	if err != nil {
		return false, asFatal(err)
	}
	return clean, nil
}

// detailItem carries one fetched request document from the producer to
// the storing consumer.
type detailItem struct {
	formID    int
	requestID string
	body      []byte
	warn      *dierr.Warning
	last      bool // final id of its form
}

// DetailCallbacks observe the detail pass. OnTick fires after each id
// is fully handled (stored, or failed with the given warning). OnDone
// fires when the last id of a form completed with the whole form clean.
type DetailCallbacks struct {
	OnTick func(formID int, requestID string, warn *dierr.Warning)
	OnDone func(formID int)
}

// UpdateFormDetails fetches and stores full documents for every target
// request. Targets are augmented with requests still in progress in the
// database, minus the ignore set. Fetch and store overlap: one producer
// walks the API under the rate limiter while the consumer commits.
func (g *Gateway) UpdateFormDetails(ctx context.Context, targets map[int][]string, ignore map[int]status.StringSet, cb DetailCallbacks) *dierr.Fatal {
	plan, err := g.detailPlan(ctx, targets, ignore)
	if err != nil {
		return dierr.FatalFrom(dierr.Unexpected, err)
	}

	items := make(chan detailItem)
	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		defer close(items)
		for _, form := range plan {
			for i, requestID := range form.ids {
				body, warn, err := g.client.FetchRequestDetail(gctx, requestID)
				if err != nil {
					return err
				}
				item := detailItem{
					formID:    form.formID,
					requestID: requestID,
					body:      body,
					warn:      warn,
					last:      i == len(form.ids)-1,
				}
				select {
				case items <- item:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
		return nil
	})

	grp.Go(func() error {
		formClean := map[int]bool{}
		for item := range items {
			warn := item.warn
			if warn == nil {
				warn = g.storeDetail(gctx, item)
			}
			if _, ok := formClean[item.formID]; !ok {
				formClean[item.formID] = true
			}
			if warn != nil {
				formClean[item.formID] = false
			}
			if cb.OnTick != nil {
				cb.OnTick(item.formID, item.requestID, warn)
			}
			if item.last && formClean[item.formID] && cb.OnDone != nil {
				cb.OnDone(item.formID)
			}
		}
		return nil
	})

	if err := grp.Wait(); err != nil {
		return asFatal(err)
	}
	return nil
}

// storeDetail archives and upserts one fetched document.
func (g *Gateway) storeDetail(ctx context.Context, item detailItem) *dierr.Warning {
	if err := g.sink.SaveDetail(ctx, item.formID, item.requestID, item.body); err != nil {
		return dierr.NewWarning(dierr.DBUpdateFailed).
			With("table", "responses").
			With("key", item.requestID).
			With("error", err.Error())
	}
	rec, err := store.DecodeRecord(item.body)
	if err != nil {
		return dierr.NewWarning(dierr.ApiResponseJsonDecodeError).
			With("api_type", string(jobcan.RequestDetail)).
			With("request_id", item.requestID).
			With("error", err.Error())
	}
	return g.store.UpsertRequest(ctx, rec)
}

// formPlan is one form's ordered work list.
type formPlan struct {
	formID int
	ids    []string
}

// detailPlan merges the explicit targets with in-progress requests
// from the database, applies the ignore set, and fixes a deterministic
// order.
func (g *Gateway) detailPlan(ctx context.Context, targets map[int][]string, ignore map[int]status.StringSet) ([]formPlan, error) {
	merged := map[int]status.StringSet{}
	add := func(formID int, ids []string) {
		set, ok := merged[formID]
		if !ok {
			set = status.NewStringSet()
			merged[formID] = set
		}
		for _, id := range ids {
			if skip, ok := ignore[formID]; ok && skip.Has(id) {
				continue
			}
			set.Add(id)
		}
	}
	for formID, ids := range targets {
		add(formID, ids)
	}

	inProgress, err := g.store.InProgressRequests(ctx)
	if err != nil {
		return nil, err
	}
	for formID, ids := range inProgress {
		add(formID, ids)
	}

	plan := make([]formPlan, 0, len(merged))
	for formID, set := range merged {
		if len(set) == 0 {
			continue
		}
		plan = append(plan, formPlan{formID: formID, ids: set.Sorted()})
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].formID < plan[j].formID })
	return plan, nil
}

// asFatal passes through typed fatals and wraps anything else.
func asFatal(err error) *dierr.Fatal {
	if fatal, ok := dierr.AsFatal(err); ok {
		return fatal
	}
	return dierr.FatalFrom(dierr.Unexpected, err)
}
