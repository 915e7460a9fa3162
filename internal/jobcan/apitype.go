// Package jobcan provides the client and data types for the Jobcan
// workflow REST API.
package jobcan

import "fmt"

// APIType identifies one remote endpoint.
type APIType string

const (
	UserV3        APIType = "user_v3"
	Group         APIType = "group"
	Position      APIType = "position"
	Project       APIType = "project"
	Company       APIType = "company"
	FixJournal    APIType = "fix_journal"
	Form          APIType = "form"
	FormOutline   APIType = "form_outline"
	RequestDetail APIType = "request_detail"
)

// BasicDataTypes lists the reference endpoints fetched during the
// BASIC_DATA stage, in processing order.
func BasicDataTypes() []APIType {
	return []APIType{UserV3, Group, Position, Project, Company, FixJournal, Form}
}

// Endpoint returns the path of the list endpoint, relative to the base
// URL. RequestDetail needs an id; use DetailPath.
func (t APIType) Endpoint() string {
	switch t {
	case UserV3:
		return "/v3/users/"
	case Group:
		return "/v1/groups/"
	case Position:
		return "/v1/positions/"
	case Project:
		return "/v1/projects/"
	case Company:
		return "/v1/company/"
	case FixJournal:
		return "/v1/fix_journals/unprinted/"
	case Form:
		return "/v1/forms/"
	case FormOutline:
		return "/v2/requests/"
	case RequestDetail:
		return "/v1/requests/"
	}
	return ""
}

// DetailPath returns the path of a single request document.
func DetailPath(requestID string) string {
	return fmt.Sprintf("/v1/requests/%s/", requestID)
}

// NaturalKey returns the JSON field that uniquely identifies one result
// element of this endpoint.
func (t APIType) NaturalKey() string {
	switch t {
	case UserV3:
		return "user_code"
	case Group:
		return "group_code"
	case Position:
		return "position_code"
	case Project:
		return "project_code"
	case Company:
		return "company_code"
	case FixJournal:
		return "id"
	case Form:
		return "id"
	case FormOutline:
		return "id"
	case RequestDetail:
		return "id"
	}
	return "id"
}

// IsDetail reports whether warnings from this endpoint use the
// form-detail warning kinds.
func (t APIType) IsDetail() bool {
	return t == RequestDetail
}
