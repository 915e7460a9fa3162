package status

import (
	"github.com/jobcan-tools/jobcan-di/internal/jobcan"
)

// FailureRecord names the items one run could not finish. Two
// instances exist side by side: one for fetch-time failures and one
// for store-time failures. Keys are the natural keys of the endpoint;
// request-detail failures are grouped by form.
type FailureRecord struct {
	// BasicData maps an endpoint to the natural keys that failed.
	BasicData map[jobcan.APIType]StringSet `json:"basic_data"`

	// Dirty marks endpoints whose pagination did not complete cleanly;
	// the whole endpoint must be refetched, not just single items.
	Dirty map[jobcan.APIType]bool `json:"dirty,omitempty"`

	// RequestDetail maps form_id to the request ids that failed.
	RequestDetail map[int]StringSet `json:"request_detail"`
}

// NewFailureRecord creates an empty record.
func NewFailureRecord() FailureRecord {
	return FailureRecord{
		BasicData:     make(map[jobcan.APIType]StringSet),
		Dirty:         make(map[jobcan.APIType]bool),
		RequestDetail: make(map[int]StringSet),
	}
}

// IsEmpty reports whether the record holds no failures at all.
func (r *FailureRecord) IsEmpty() bool {
	for _, set := range r.BasicData {
		if len(set) > 0 {
			return false
		}
	}
	for _, dirty := range r.Dirty {
		if dirty {
			return false
		}
	}
	for _, set := range r.RequestDetail {
		if len(set) > 0 {
			return false
		}
	}
	return true
}

// Record adds failed natural keys for an endpoint.
func (r *FailureRecord) Record(t jobcan.APIType, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if r.BasicData == nil {
		r.BasicData = make(map[jobcan.APIType]StringSet)
	}
	set, ok := r.BasicData[t]
	if !ok {
		set = NewStringSet()
		r.BasicData[t] = set
	}
	set.Add(keys...)
}

// Resolve removes keys that succeeded on a later attempt.
func (r *FailureRecord) Resolve(t jobcan.APIType, keys ...string) {
	if set, ok := r.BasicData[t]; ok {
		set.Remove(keys...)
		if len(set) == 0 {
			delete(r.BasicData, t)
		}
	}
}

// MarkDirty flags an endpoint whose fetch did not complete cleanly.
func (r *FailureRecord) MarkDirty(t jobcan.APIType, dirty bool) {
	if r.Dirty == nil {
		r.Dirty = make(map[jobcan.APIType]bool)
	}
	if dirty {
		r.Dirty[t] = true
	} else {
		delete(r.Dirty, t)
	}
}

// IsDirty reports whether the endpoint needs a full refetch.
func (r *FailureRecord) IsDirty(t jobcan.APIType) bool {
	return r.Dirty[t]
}

// RecordDetail adds failed request ids under their form.
func (r *FailureRecord) RecordDetail(formID int, requestIDs ...string) {
	if len(requestIDs) == 0 {
		return
	}
	if r.RequestDetail == nil {
		r.RequestDetail = make(map[int]StringSet)
	}
	set, ok := r.RequestDetail[formID]
	if !ok {
		set = NewStringSet()
		r.RequestDetail[formID] = set
	}
	set.Add(requestIDs...)
}

// ResolveDetail removes request ids that succeeded on a later attempt.
func (r *FailureRecord) ResolveDetail(formID int, requestIDs ...string) {
	if set, ok := r.RequestDetail[formID]; ok {
		set.Remove(requestIDs...)
		if len(set) == 0 {
			delete(r.RequestDetail, formID)
		}
	}
}

// Failed reports whether the key is recorded for the endpoint.
func (r *FailureRecord) Failed(t jobcan.APIType, key string) bool {
	set, ok := r.BasicData[t]
	return ok && set.Has(key)
}

// MergeFailureRecords combines a previous run's record with the
// current run's, judged against the progress the current run reached.
//
// Endpoints whose sub-stage lies strictly before the reached progress
// were fully reprocessed, so the new record is authoritative. At or
// after the reached progress the previous failures were never
// retried, so both records are unioned. Request-detail failures
// follow the same rule per form.
func MergeFailureRecords(prev, next FailureRecord, reached Progress) FailureRecord {
	out := NewFailureRecord()

	types := make(map[jobcan.APIType]bool)
	for t := range prev.BasicData {
		types[t] = true
	}
	for t := range next.BasicData {
		types[t] = true
	}
	for t := range prev.Dirty {
		types[t] = true
	}
	for t := range next.Dirty {
		types[t] = true
	}

	for t := range types {
		stage, sub := StageOf(t)
		consumed := reached.Before(stage, sub)
		if consumed {
			if set, ok := next.BasicData[t]; ok && len(set) > 0 {
				out.BasicData[t] = set.Clone()
			}
			out.MarkDirty(t, next.IsDirty(t))
			continue
		}
		merged := NewStringSet()
		if set, ok := prev.BasicData[t]; ok {
			merged = merged.Union(set)
		}
		if set, ok := next.BasicData[t]; ok {
			merged = merged.Union(set)
		}
		if len(merged) > 0 {
			out.BasicData[t] = merged
		}
		out.MarkDirty(t, prev.IsDirty(t) || next.IsDirty(t))
	}

	detailStage, detailSub := StageOf(jobcan.RequestDetail)
	detailConsumed := reached.Before(detailStage, detailSub)
	forms := make(map[int]bool)
	for id := range prev.RequestDetail {
		forms[id] = true
	}
	for id := range next.RequestDetail {
		forms[id] = true
	}
	for id := range forms {
		if detailConsumed {
			if set, ok := next.RequestDetail[id]; ok && len(set) > 0 {
				out.RequestDetail[id] = set.Clone()
			}
			continue
		}
		merged := NewStringSet()
		if set, ok := prev.RequestDetail[id]; ok {
			merged = merged.Union(set)
		}
		if set, ok := next.RequestDetail[id]; ok {
			merged = merged.Union(set)
		}
		if len(merged) > 0 {
			out.RequestDetail[id] = merged
		}
	}
	return out
}
