package backend

import (
	"encoding/json"
	"fmt"
	"math"
)

// The backend controls the shape of every response. The decoders below read
// what they recognize and treat anything missing or mistyped as absent, so the
// orchestrators work on validated values without ever rejecting a payload.

// HealthStatus is the decoded /health payload.
type HealthStatus struct {
	Provider    string
	HasProvider bool
	Offline     bool
}

// Line renders the one-line status summary. An absent provider is shown as
// "undefined" and an explicit null as "null", matching what the browser
// client displayed.
func (h HealthStatus) Line() string {
	provider := Undefined
	if h.HasProvider {
		provider = h.Provider
	}
	offline := "no"
	if h.Offline {
		offline = "yes"
	}
	return fmt.Sprintf("Provider: %s • Offline: %s", provider, offline)
}

func DecodeHealth(r Result) HealthStatus {
	out := HealthStatus{}
	if v, ok := Field(r.Data, "provider"); ok {
		out.Provider = Stringify(v)
		out.HasProvider = true
	}
	out.Offline = Truthy(FieldOrNil(r.Data, "offline"))
	return out
}

// UploadReply is the decoded /upload payload.
type UploadReply struct {
	OK       bool
	Contract any
	// HasContract is false when the key is missing; a null contract is
	// present.
	HasContract bool
	Detail      string
}

func DecodeUpload(r Result) UploadReply {
	ok, _ := FieldOrNil(r.Data, "ok").(bool)
	contract, hasContract := Field(r.Data, "contract")
	return UploadReply{
		OK:          ok,
		Contract:    contract,
		HasContract: hasContract,
		Detail:      OptionalString(FieldOrNil(r.Data, "detail")),
	}
}

// ContractContent is what the transcript shows for the parsed contract.
func (u UploadReply) ContractContent() any {
	if !u.HasContract {
		return Undefined
	}
	return u.Contract
}

// VerifyReply is the decoded /verify/compare or /verify payload.
type VerifyReply struct {
	// Recognized is set when the payload carries a truthy status field.
	Recognized bool
	Intent     string
	Data       any
}

const (
	VerifyIntent        = "verify_tables"
	VerifyDatasetIntent = "verify_dataset"
)

func DecodeVerify(r Result) VerifyReply {
	return decodeVerify(r, VerifyIntent)
}

// DecodeVerifyDataset reads the /verify connectivity check.
func DecodeVerifyDataset(r Result) VerifyReply {
	return decodeVerify(r, VerifyDatasetIntent)
}

func decodeVerify(r Result, intent string) VerifyReply {
	return VerifyReply{
		Recognized: Truthy(FieldOrNil(r.Data, "status")),
		Intent:     intent,
		Data:       r.Data,
	}
}

// Tagged returns the payload merged over {"intent": <intent>}.
// Keys from the payload win.
func (v VerifyReply) Tagged() map[string]any {
	out := map[string]any{"intent": v.Intent}
	if m, ok := v.Data.(map[string]any); ok {
		for k, val := range m {
			out[k] = val
		}
	}
	return out
}

// ChatReply is the decoded /chat payload.
type ChatReply struct {
	// Failed is set when the payload is absent or explicitly ok:false.
	Failed bool
	// Message keeps the JSON type of a truthy message so objects are shown
	// as objects. It is nil otherwise.
	Message any
	Result  ChatResult
}

type ChatResult struct {
	SQL     string
	Message any
	// Violations is kept as sent; see HasViolations.
	Violations  any
	PolicyOK    any
	HasPolicyOK bool
}

// HasViolations reports whether violations would pass the browser client's
// `violations && violations.length` check.
func (c ChatResult) HasViolations() bool {
	return HasLength(c.Violations)
}

func DecodeChat(r Result) ChatReply {
	out := ChatReply{}
	if r.Data == nil {
		out.Failed = true
		return out
	}
	if ok, isBool := FieldOrNil(r.Data, "ok").(bool); isBool && !ok {
		out.Failed = true
	}
	out.Message = truthyOrNil(FieldOrNil(r.Data, "message"))

	if res, ok := FieldOrNil(r.Data, "result").(map[string]any); ok {
		out.Result = decodeChatResult(res)
	}
	return out
}

func decodeChatResult(res map[string]any) ChatResult {
	out := ChatResult{
		SQL:        OptionalString(res["sql"]),
		Message:    truthyOrNil(res["message"]),
		Violations: res["violations"],
	}
	if p, ok := res["policy_ok"]; ok && p != nil {
		out.PolicyOK = p
		out.HasPolicyOK = true
	}
	return out
}

// DraftReply is the decoded /ask/draft payload. The draft fields sit at the
// top level, in the same shape as a /chat result.
type DraftReply struct {
	// Failed is set when the request was rejected or the body is not an
	// object.
	Failed bool
	Detail string
	Status string
	Result ChatResult
}

func DecodeDraft(r Result) DraftReply {
	m, isObject := r.Data.(map[string]any)
	if !r.OK || !isObject {
		return DraftReply{
			Failed: true,
			Detail: OptionalString(FieldOrNil(r.Data, "detail")),
		}
	}
	return DraftReply{
		Status: OptionalString(m["status"]),
		Result: decodeChatResult(m),
	}
}

// PolicyEntry is the structured {policy_ok, violations} object shown for
// policy findings. policy_ok is left out when the backend did not send it.
func (c ChatResult) PolicyEntry() map[string]any {
	out := map[string]any{"violations": c.Violations}
	if c.HasPolicyOK {
		out["policy_ok"] = c.PolicyOK
	}
	return out
}

// ActivateReply is the decoded /contract/activate payload.
type ActivateReply struct {
	OK      bool
	Version string
	Detail  string
}

func DecodeActivate(r Result) ActivateReply {
	ok, _ := FieldOrNil(r.Data, "ok").(bool)
	version := "unknown"
	if v := FieldOrNil(r.Data, "active_version"); v != nil {
		version = Stringify(v)
	}
	return ActivateReply{
		OK:      ok,
		Version: version,
		Detail:  OptionalString(FieldOrNil(r.Data, "detail")),
	}
}

// ActiveContractReply is the decoded /contract/active payload.
type ActiveContractReply struct {
	OK      bool
	Active  any
	Version any
}

func DecodeActiveContract(r Result) ActiveContractReply {
	ok, _ := FieldOrNil(r.Data, "ok").(bool)
	return ActiveContractReply{
		OK:      ok && FieldOrNil(r.Data, "active") != nil,
		Active:  FieldOrNil(r.Data, "active"),
		Version: FieldOrNil(r.Data, "version"),
	}
}

// ExecuteReply is the decoded /ask/execute payload.
type ExecuteReply struct {
	Status     string
	Message    string
	Violations []any
	Estimate   any
	Result     any
	Detail     string
}

func DecodeExecute(r Result) ExecuteReply {
	out := ExecuteReply{
		Status:   OptionalString(FieldOrNil(r.Data, "status")),
		Message:  OptionalString(FieldOrNil(r.Data, "message")),
		Estimate: FieldOrNil(r.Data, "estimate"),
		Result:   FieldOrNil(r.Data, "result"),
		Detail:   OptionalString(FieldOrNil(r.Data, "detail")),
	}
	if vs, ok := FieldOrNil(r.Data, "violations").([]any); ok {
		out.Violations = vs
	}
	return out
}

// DocumentReply is the decoded payload of the settings and catalog endpoints.
type DocumentReply struct {
	OK       bool
	Document any
	Detail   string
}

func DecodeDocument(r Result, key string) DocumentReply {
	ok, _ := FieldOrNil(r.Data, "ok").(bool)
	return DocumentReply{
		OK:       ok,
		Document: FieldOrNil(r.Data, key),
		Detail:   OptionalString(FieldOrNil(r.Data, "detail")),
	}
}

// Undefined is shown where the browser client rendered a missing value.
const Undefined = "undefined"

// HasLength reports whether v.length would be truthy in JavaScript.
func HasLength(v any) bool {
	switch t := v.(type) {
	case []any:
		return len(t) > 0
	case string:
		return t != ""
	case map[string]any:
		return Truthy(t["length"])
	default:
		return false
	}
}

func truthyOrNil(v any) any {
	if !Truthy(v) {
		return nil
	}
	return v
}

// Field looks up key when data is a JSON object.
func Field(data any, key string) (any, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

func FieldOrNil(data any, key string) any {
	v, _ := Field(data, key)
	return v
}

// Truthy reports whether v would be truthy in JavaScript.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case string:
		return t != ""
	default:
		return true
	}
}

// OptionalString returns the display form of v when it is truthy, "" otherwise.
func OptionalString(v any) string {
	if !Truthy(v) {
		return ""
	}
	return Stringify(v)
}

// Stringify coerces a decoded JSON value to display text.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
