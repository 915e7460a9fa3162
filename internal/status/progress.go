// Package status models the integrator's persistent progress: which
// stage the previous run reached, which items it finished, and which
// items failed at fetch or store time. The whole model round-trips
// through a single JSON file so a later run can resume exactly where
// the previous one stopped.
package status

import (
	"github.com/jobcan-tools/jobcan-di/internal/jobcan"
)

// Stage is the outline position of a run.
type Stage string

const (
	StageInitializing Stage = "INITIALIZING"
	StageBasicData    Stage = "BASIC_DATA"
	StageFormOutline  Stage = "FORM_OUTLINE"
	StageFormDetail   Stage = "FORM_DETAIL"
	StageTerminating  Stage = "TERMINATING"
)

// SubStage refines a Stage. Only the pairs listed in validPairs occur.
type SubStage string

const (
	SubNone SubStage = ""

	// BASIC_DATA
	SubGetUser       SubStage = "GET_USER"
	SubGetGroup      SubStage = "GET_GROUP"
	SubGetPosition   SubStage = "GET_POSITION"
	SubGetProject    SubStage = "GET_PROJECT"
	SubGetCompany    SubStage = "GET_COMPANY"
	SubGetFixJournal SubStage = "GET_FIX_JOURNAL"

	// FORM_OUTLINE
	SubGetForm        SubStage = "GET_FORM"
	SubGetFormOutline SubStage = "GET_FORM_OUTLINE"

	// FORM_DETAIL
	SubGetRequestDetail SubStage = "GET_REQUEST_DETAIL"

	// TERMINATING
	SubCompleted SubStage = "COMPLETED"
	SubFailed    SubStage = "FAILED"
)

// ordinals defines the strict total order over valid (stage, substage)
// pairs. FAILED shares the terminal slot: nothing is "future" once a
// run has failed or completed.
var ordinals = map[Stage]map[SubStage]int{
	StageInitializing: {SubNone: 0},
	StageBasicData: {
		SubNone:          1,
		SubGetUser:       1,
		SubGetGroup:      2,
		SubGetPosition:   3,
		SubGetProject:    4,
		SubGetCompany:    5,
		SubGetFixJournal: 6,
	},
	StageFormOutline: {
		SubNone:           7,
		SubGetForm:        7,
		SubGetFormOutline: 8,
	},
	StageFormDetail: {
		SubNone:             9,
		SubGetRequestDetail: 9,
	},
	StageTerminating: {
		SubNone:      10,
		SubCompleted: 10,
		SubFailed:    10,
	},
}

// ordinal returns the position of a pair on the total order, or -1 for
// an invalid pair.
func ordinal(stage Stage, sub SubStage) int {
	subs, ok := ordinals[stage]
	if !ok {
		return -1
	}
	ord, ok := subs[sub]
	if !ok {
		return -1
	}
	return ord
}

// ValidPair reports whether (stage, sub) is a pair the model can hold.
func ValidPair(stage Stage, sub SubStage) bool {
	return ordinal(stage, sub) >= 0
}

// StageOf maps an endpoint to the progress pair under which it is
// processed.
func StageOf(t jobcan.APIType) (Stage, SubStage) {
	switch t {
	case jobcan.UserV3:
		return StageBasicData, SubGetUser
	case jobcan.Group:
		return StageBasicData, SubGetGroup
	case jobcan.Position:
		return StageBasicData, SubGetPosition
	case jobcan.Project:
		return StageBasicData, SubGetProject
	case jobcan.Company:
		return StageBasicData, SubGetCompany
	case jobcan.FixJournal:
		return StageBasicData, SubGetFixJournal
	case jobcan.Form:
		return StageFormOutline, SubGetForm
	case jobcan.FormOutline:
		return StageFormOutline, SubGetFormOutline
	case jobcan.RequestDetail:
		return StageFormDetail, SubGetRequestDetail
	}
	return StageInitializing, SubNone
}

// Progress is the resumption point: the pair plus the identifiers
// already handled within the current sub-stage.
type Progress struct {
	Outline   Stage     `json:"status_outline"`
	Detail    SubStage  `json:"status_detail"`
	Specifics StringSet `json:"specifics"`
}

// NewProgress returns the starting progress of a fresh install.
func NewProgress() Progress {
	return Progress{Outline: StageInitializing, Detail: SubNone, Specifics: NewStringSet()}
}

// IsCompleted reports whether the run reached the terminal success pair.
func (p *Progress) IsCompleted() bool {
	return p.Outline == StageTerminating && p.Detail == SubCompleted
}

// IsFailed reports whether the run ended in the terminal failure pair.
func (p *Progress) IsFailed() bool {
	return p.Outline == StageTerminating && p.Detail == SubFailed
}

// Set replaces the pair. Moving to a different pair clears specifics:
// they only ever describe the current sub-stage.
func (p *Progress) Set(stage Stage, sub SubStage) {
	if p.Outline == stage && p.Detail == sub {
		return
	}
	p.Outline = stage
	p.Detail = sub
	p.Specifics = NewStringSet()
}

// AddSpecifics unions identifiers into the current sub-stage's set.
func (p *Progress) AddSpecifics(ids ...string) {
	if p.Specifics == nil {
		p.Specifics = NewStringSet()
	}
	p.Specifics.Add(ids...)
}

// HasSpecific reports whether id was already handled in the current
// sub-stage.
func (p *Progress) HasSpecific(id string) bool {
	return p.Specifics.Has(id)
}

// IsFutureProcess reports whether work at (stage, sub) still needs to
// run, judged against this progress. Work strictly before the current
// pair is done; work at the current pair is done only for identifiers
// in specifics. A failed or completed progress has no future work.
func (p *Progress) IsFutureProcess(stage Stage, sub SubStage, specific string) bool {
	if p.IsFailed() || p.IsCompleted() {
		return false
	}
	target := ordinal(stage, sub)
	current := ordinal(p.Outline, p.Detail)
	if target < 0 || current < 0 {
		return false
	}
	if target < current {
		return false
	}
	if target == current && specific != "" && p.HasSpecific(specific) {
		return false
	}
	return true
}

// IsFutureAPI is IsFutureProcess with the endpoint mapped to its pair.
func (p *Progress) IsFutureAPI(t jobcan.APIType, specific string) bool {
	stage, sub := StageOf(t)
	return p.IsFutureProcess(stage, sub, specific)
}

// Before reports whether (stage, sub) lies strictly before this
// progress on the total order.
func (p *Progress) Before(stage Stage, sub SubStage) bool {
	return ordinal(stage, sub) < ordinal(p.Outline, p.Detail)
}
