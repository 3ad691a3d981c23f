package model

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"golden-ticket/internal/domain"
)

const (
	DefaultCampaign = "goldenticket_2025"
	DefaultWebsite  = "goldenticket.sweetsausallerwelt.de"

	// TimestampLayout is ISO-8601 in UTC with millisecond precision.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

var (
	codePattern  = regexp.MustCompile(`^[A-Z0-9]{8}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// NormalizeCode upper-cases and trims a raw ticket code.
func NormalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

// NormalizeEmail lower-cases and trims a raw e-mail address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// IsValidCode reports whether an already normalized code has the ticket shape.
func IsValidCode(code string) bool { return codePattern.MatchString(code) }

// IsValidEmail reports whether an already normalized address looks like local@domain.tld.
func IsValidEmail(email string) bool { return emailPattern.MatchString(email) }

// RedemptionRecord is the persisted proof that a ticket code was redeemed.
// Core fields drive validation; Metadata carries the rest of the submission
// for auditing and is never inspected by the validators.
//
// Older documents hold non-string extras (booleans, numbers, null).
// RawMetadata keeps their original encoding so they are written back
// unchanged; Metadata carries their JSON text for readers.
type RedemptionRecord struct {
	Code        string
	Email       string
	Timestamp   time.Time
	Campaign    string
	Website     string
	FirstName   string
	LastName    string
	Phone       string
	Metadata    map[string]string
	RawMetadata map[string]json.RawMessage
}

// Keys owned by RedemptionRecord itself. Metadata never shadows them.
var coreKeys = map[string]struct{}{
	"code": {}, "email": {}, "timestamp": {}, "campaign": {},
	"website": {}, "firstName": {}, "lastName": {}, "phone": {},
}

// NewRedemptionRecord builds the record stored for a successful redemption.
// campaign and website fall back to the defaults; firstName, lastName and
// phone are lifted out of extra; code, email and timestamp in extra are
// ignored so the identity of a record cannot be overridden.
func NewRedemptionRecord(code, email string, at time.Time, extra map[string]string) (*RedemptionRecord, error) {
	code = NormalizeCode(code)
	email = NormalizeEmail(email)
	if !IsValidCode(code) {
		return nil, domain.ErrInvalidFormat
	}
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}

	r := &RedemptionRecord{
		Code:      code,
		Email:     email,
		Timestamp: at.UTC().Truncate(time.Millisecond),
		Campaign:  firstNonEmpty(extra["campaign"], DefaultCampaign),
		Website:   firstNonEmpty(extra["website"], DefaultWebsite),
		FirstName: extra["firstName"],
		LastName:  extra["lastName"],
		Phone:     extra["phone"],
	}
	for k, v := range extra {
		if _, core := coreKeys[k]; core {
			continue
		}
		if r.Metadata == nil {
			r.Metadata = make(map[string]string)
		}
		r.Metadata[k] = v
	}
	return r, nil
}

// TimestampString renders Timestamp in TimestampLayout, or "" when unset.
func (r *RedemptionRecord) TimestampString() string {
	if r.Timestamp.IsZero() {
		return ""
	}
	return r.Timestamp.UTC().Format(TimestampLayout)
}

// MarshalJSON flattens the record: core keys and metadata share one object.
func (r RedemptionRecord) MarshalJSON() ([]byte, error) {
	doc := r.extras()
	doc["code"] = r.Code
	doc["email"] = r.Email
	doc["timestamp"] = r.TimestampString()
	doc["campaign"] = r.Campaign
	doc["website"] = r.Website
	doc["firstName"] = r.FirstName
	doc["lastName"] = r.LastName
	doc["phone"] = r.Phone
	return json.Marshal(doc)
}

// UnmarshalJSON accepts the flat document form. Non-string extra values
// are kept in RawMetadata and, unless null, as text in Metadata.
func (r *RedemptionRecord) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = RedemptionRecord{}
	for k, v := range raw {
		if _, core := coreKeys[k]; !core {
			r.setExtra(k, v)
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			if string(v) == "null" {
				continue
			}
			s = string(v)
		}
		switch k {
		case "code":
			r.Code = s
		case "email":
			r.Email = s
		case "timestamp":
			if s == "" {
				continue
			}
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				r.Timestamp = ts.UTC()
			}
		case "campaign":
			r.Campaign = s
		case "website":
			r.Website = s
		case "firstName":
			r.FirstName = s
		case "lastName":
			r.LastName = s
		case "phone":
			r.Phone = s
		}
	}
	return nil
}

// MarshalMetadata encodes the extras alone, for stores with a metadata
// column.
func (r *RedemptionRecord) MarshalMetadata() ([]byte, error) {
	return json.Marshal(r.extras())
}

// UnmarshalMetadata is the inverse of MarshalMetadata.
func (r *RedemptionRecord) UnmarshalMetadata(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		r.setExtra(k, v)
	}
	return nil
}

func (r *RedemptionRecord) setExtra(k string, v json.RawMessage) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if r.Metadata == nil {
			r.Metadata = make(map[string]string)
		}
		r.Metadata[k] = s
		return
	}
	if r.RawMetadata == nil {
		r.RawMetadata = make(map[string]json.RawMessage)
	}
	r.RawMetadata[k] = append(json.RawMessage(nil), v...)
	if string(v) == "null" {
		return
	}
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[k] = string(v)
}

// extras merges Metadata with RawMetadata. A raw value wins while its
// Metadata text is unchanged; a null is written while no text shadows it.
func (r *RedemptionRecord) extras() map[string]any {
	out := make(map[string]any, len(r.Metadata)+len(r.RawMetadata)+len(coreKeys))
	for k, v := range r.Metadata {
		if raw, ok := r.RawMetadata[k]; ok && string(raw) == v {
			out[k] = raw
			continue
		}
		out[k] = v
	}
	for k, raw := range r.RawMetadata {
		if _, ok := out[k]; !ok && string(raw) == "null" {
			out[k] = raw
		}
	}
	for k := range coreKeys {
		delete(out, k)
	}
	return out
}

// RedemptionSet is the whole store keyed by normalized code.
type RedemptionSet map[string]*RedemptionRecord

func NewRedemptionSet() RedemptionSet { return make(RedemptionSet) }

// Clone copies the set and its records so callers can mutate freely.
func (s RedemptionSet) Clone() RedemptionSet {
	out := make(RedemptionSet, len(s))
	for k, v := range s {
		if v == nil {
			out[k] = nil
			continue
		}
		cp := *v
		if v.Metadata != nil {
			cp.Metadata = make(map[string]string, len(v.Metadata))
			for mk, mv := range v.Metadata {
				cp.Metadata[mk] = mv
			}
		}
		if v.RawMetadata != nil {
			cp.RawMetadata = make(map[string]json.RawMessage, len(v.RawMetadata))
			for mk, mv := range v.RawMetadata {
				cp.RawMetadata[mk] = append(json.RawMessage(nil), mv...)
			}
		}
		out[k] = &cp
	}
	return out
}

// Codes returns the keys in ascending order.
func (s RedemptionSet) Codes() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Summarize computes statistics. totalCodes and uniqueEmails honour the
// campaign filter ("" = all); byCampaign and byWebsite always cover the
// whole set.
func (s RedemptionSet) Summarize(campaign string) StatsSummary {
	sum := StatsSummary{
		ByCampaign: map[string]int{},
		ByWebsite:  map[string]int{},
	}
	emails := make(map[string]struct{})
	for _, rec := range s {
		if rec == nil {
			continue
		}
		if rec.Campaign != "" {
			sum.ByCampaign[rec.Campaign]++
		}
		if rec.Website != "" {
			sum.ByWebsite[rec.Website]++
		}
		if campaign != "" && rec.Campaign != campaign {
			continue
		}
		sum.TotalCodes++
		if rec.Email != "" {
			emails[rec.Email] = struct{}{}
		}
	}
	sum.UniqueEmails = len(emails)
	return sum
}

// StatsSummary is the read-only report over a RedemptionSet.
type StatsSummary struct {
	TotalCodes   int            `json:"totalCodes"`
	UniqueEmails int            `json:"uniqueEmails"`
	ByCampaign   map[string]int `json:"byCampaign"`
	ByWebsite    map[string]int `json:"byWebsite"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
