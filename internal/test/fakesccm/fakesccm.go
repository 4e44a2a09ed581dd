// Package fakesccm is an in-memory Admin Service used by tests. It serves the
// WMI and v1.0 routes cmas calls over TLS, evaluates the subset of OData
// $filter that cmas emits, hides lazy properties from queries the way the
// real service does, and counts every request it receives.
package fakesccm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
)

// Seed identifiers.
const (
	SiteCode = "PS1"

	AllSystems  = "SMS00001"
	AllUsers    = "SMS00002"
	AllGroups   = "SMS00003"
	AllUsersAll = "SMS00004"

	DeviceWKS001 = 16777220
	DeviceWKS002 = 16777221
	DeviceSRV001 = 16777222

	ScriptUptime     = "2a5e0e59-3b2c-4d7e-9a51-6b8d7e0c1a11"
	ScriptUnapproved = "7f4c7b61-95a4-4f0d-8f46-0c2a6a0d9b22"
)

type table struct {
	key     string
	numeric bool
	lazy    []string
	rows    []map[string]any
}

type failure struct {
	status int
	body   string
}

// Server is a fake site server.
type Server struct {
	srv *httptest.Server

	mu            sync.Mutex
	tables        map[string]*table
	nextID        int
	nextOperation int64
	calls         []string
	failures      []failure

	requests atomic.Int64
}

// New starts a seeded fake site server. Call Close when done.
func New() *Server {
	s := &Server{
		nextID:        0x10,
		nextOperation: 16777300,
		tables: map[string]*table{
			"SMS_Collection":               {key: "CollectionID", lazy: []string{"CollectionRules", "RefreshSchedule"}},
			"SMS_R_System":                 {key: "ResourceId", numeric: true},
			"SMS_MachineSettings":          {key: "ResourceID", numeric: true, lazy: []string{"MachineVariables"}},
			"SMS_CollectionSettings":       {key: "CollectionID", lazy: []string{"CollectionVariables"}},
			"SMS_Scripts":                  {key: "ScriptGuid", lazy: []string{"Script"}},
			"SMS_ScriptsExecutionStatus":   {},
			"SMS_FullCollectionMembership": {},
		},
	}
	s.seed()
	s.srv = httptest.NewTLSServer(s.router())
	return s
}

func (s *Server) seed() {
	s.AddCollection(AllSystems, "All Systems", 2, "")
	s.AddCollection(AllUsers, "All Users", 1, "")
	s.AddCollection(AllGroups, "All User Groups", 1, "")
	s.AddCollection(AllUsersAll, "All Users and User Groups", 1, "")
	s.AddDevice(DeviceWKS001, "WKS001")
	s.AddDevice(DeviceWKS002, "WKS002")
	s.AddDevice(DeviceSRV001, "SRV001")
	s.SetMembers(AllSystems, DeviceWKS001, DeviceWKS002, DeviceSRV001)
	s.AddScript(ScriptUptime, "Get-Uptime", true)
	s.AddScript(ScriptUnapproved, "Remove-Everything", false)
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.Close()
}

// Host returns host:port of the server, suitable as a site server name.
func (s *Server) Host() string {
	return strings.TrimPrefix(s.srv.URL, "https://")
}

// Requests returns how many requests the server has received.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// Calls returns "METHOD path" for every request received, in order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// FailNext makes the next n requests fail with status.
func (s *Server) FailNext(n int, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failures = append(s.failures, failure{
			status: status,
			body:   fmt.Sprintf(`{"error":{"code":"%d","message":"injected failure"}}`, status),
		})
	}
}

// AddCollection inserts a collection limited to limitTo (AllSystems or
// AllUsers when empty, depending on type).
func (s *Server) AddCollection(id, name string, collectionType int, limitTo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limitTo == "" && id != AllSystems && id != AllUsers {
		limitTo = AllSystems
		if collectionType == 1 {
			limitTo = AllUsers
		}
	}
	s.tables["SMS_Collection"].rows = append(s.tables["SMS_Collection"].rows, map[string]any{
		"CollectionID":          id,
		"Name":                  name,
		"CollectionType":        collectionType,
		"LimitToCollectionID":   limitTo,
		"LimitToCollectionName": s.nameOf(limitTo),
		"RefreshType":           2,
		"Comment":               "",
		"MemberCount":           0,
		"IsBuiltIn":             strings.HasPrefix(id, "SMS"),
		"CollectionRules":       []any{},
		"RefreshSchedule":       []any{},
	})
}

// AddDevice inserts a device.
func (s *Server) AddDevice(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables["SMS_R_System"].rows = append(s.tables["SMS_R_System"].rows, map[string]any{
		"ResourceId":                    id,
		"Name":                          name,
		"NetbiosName":                   name,
		"SMSUniqueIdentifier":           fmt.Sprintf("GUID:%08X-0000-0000-0000-000000000000", id),
		"ResourceDomainORWorkgroup":     "LAB",
		"Client":                        1,
		"Active":                        1,
		"OperatingSystemNameandVersion": "Microsoft Windows NT Workstation 10.0",
	})
}

// AddScript inserts a script, approved or waiting for approval.
func (s *Server) AddScript(guid, name string, approved bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := 0
	if approved {
		state = 3
	}
	s.tables["SMS_Scripts"].rows = append(s.tables["SMS_Scripts"].rows, map[string]any{
		"ScriptGuid":    guid,
		"ScriptName":    name,
		"ScriptVersion": "1",
		"Author":        `LAB\admin`,
		"ApprovalState": state,
		"ScriptType":    0,
		"Comment":       "",
		"Script":        "V3JpdGUtT3V0cHV0ICdvayc=",
	})
}

// SetMembers records resources as direct members of a collection.
func (s *Server) SetMembers(collectionID string, resourceIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range resourceIDs {
		s.addMember(collectionID, id)
	}
}

// AddExecutionStatus inserts a script execution status row.
func (s *Server) AddExecutionStatus(operationID, resourceID int64, state int, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables["SMS_ScriptsExecutionStatus"].rows = append(s.tables["SMS_ScriptsExecutionStatus"].rows, map[string]any{
		"ClientOperationId":    operationID,
		"ResourceId":           resourceID,
		"DeviceName":           s.deviceName(resourceID),
		"ScriptGuid":           ScriptUptime,
		"ScriptName":           "Get-Uptime",
		"ScriptExecutionState": state,
		"ScriptExitCode":       0,
		"ScriptOutput":         output,
		"LastUpdateTime":       "2026-10-16T10:00:00Z",
	})
}

// Row returns a copy of the row with the given key, or nil.
func (s *Server) Row(class, key string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[class]
	if !ok {
		return nil
	}
	if i := t.find(key); i >= 0 {
		return deepCopy(t.rows[i])
	}
	return nil
}

// RowCount returns the number of rows in a class.
func (s *Server) RowCount(class string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[class].rows)
}

func (s *Server) addMember(collectionID string, resourceID int64) {
	s.tables["SMS_FullCollectionMembership"].rows = append(s.tables["SMS_FullCollectionMembership"].rows, map[string]any{
		"CollectionID": collectionID,
		"ResourceID":   resourceID,
		"Name":         s.deviceName(resourceID),
		"IsDirect":     true,
		"IsClient":     true,
	})
	if i := s.tables["SMS_Collection"].find(collectionID); i >= 0 {
		row := s.tables["SMS_Collection"].rows[i]
		row["MemberCount"] = toInt(row["MemberCount"]) + 1
	}
}

func (s *Server) nameOf(collectionID string) string {
	if i := s.tables["SMS_Collection"].find(collectionID); i >= 0 {
		return str(s.tables["SMS_Collection"].rows[i]["Name"])
	}
	return ""
}

func (s *Server) deviceName(resourceID int64) string {
	if i := s.tables["SMS_R_System"].find(strconv.FormatInt(resourceID, 10)); i >= 0 {
		return str(s.tables["SMS_R_System"].rows[i]["Name"])
	}
	return ""
}

func (t *table) find(key string) int {
	for i, row := range t.rows {
		if strings.EqualFold(str(row[t.key]), key) {
			return i
		}
	}
	return -1
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.count)
	r.Route("/AdminService", func(r chi.Router) {
		r.Get("/wmi/{resource}", s.handleGet)
		r.Post("/wmi/{resource}", s.handleCreate)
		r.Patch("/wmi/{resource}", s.handlePatch)
		r.Delete("/wmi/{resource}", s.handleDelete)
		r.Post("/wmi/{resource}/{action}", s.handleAction)
		r.Post("/v1.0/{resource}/{action}", s.handleRunScript)
	})
	return r
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.mu.Lock()
		s.calls = append(s.calls, r.Method+" "+strings.TrimPrefix(r.URL.Path, "/AdminService/"))
		var f *failure
		if len(s.failures) > 0 {
			f = &s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()
		if f != nil {
			writeRaw(w, f.status, f.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resource splits "Class", "Class(key)", "Class('key')" or "Class.Method".
func resource(r *http.Request) (class, key string, keyed bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "resource"))
	if err != nil {
		raw = chi.URLParam(r, "resource")
	}
	open := strings.Index(raw, "(")
	if open < 0 || !strings.HasSuffix(raw, ")") {
		return raw, "", false
	}
	key = raw[open+1 : len(raw)-1]
	if strings.HasPrefix(key, "'") && strings.HasSuffix(key, "'") && len(key) >= 2 {
		key = strings.ReplaceAll(key[1:len(key)-1], "''", "'")
	}
	return raw[:open], key, true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	class, key, keyed := resource(r)
	if class == "SMS_Identification.GetSiteCode" {
		writeJSON(w, http.StatusOK, map[string]any{
			"@odata.context": "https://" + r.Host + "/AdminService/wmi/$metadata#Edm.String",
			"SiteCode":       SiteCode,
			"ReturnValue":    0,
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[class]
	if !ok {
		writeError(w, http.StatusNotFound, "Invalid class "+class)
		return
	}

	if keyed {
		i := t.find(key)
		if i < 0 {
			writeError(w, http.StatusNotFound, "The requested resource was not found.")
			return
		}
		writeValue(w, r, class, []map[string]any{s.present(class, t.rows[i], true)})
		return
	}

	pred, err := parseFilter(r.URL.Query().Get("$filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out := []map[string]any{}
	for _, row := range t.rows {
		if pred(row) {
			out = append(out, s.present(class, row, false))
		}
	}
	writeValue(w, r, class, out)
}

// present copies a row for output: lazy properties are dropped from queries
// and masked variable values are blanked.
func (s *Server) present(class string, row map[string]any, keyed bool) map[string]any {
	out := deepCopy(row)
	if !keyed {
		for _, p := range s.tables[class].lazy {
			delete(out, p)
		}
	}
	for _, p := range []string{"MachineVariables", "CollectionVariables"} {
		vars, ok := out[p].([]any)
		if !ok {
			continue
		}
		for _, v := range vars {
			if m, ok := v.(map[string]any); ok && truthy(m["IsMasked"]) {
				m["Value"] = ""
			}
		}
	}
	out["__CLASS"] = class
	out["__GENUS"] = 2
	out["__PATH"] = `\\SITESERVER\root\sms\site_` + SiteCode + ":" + class
	return out
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	class, _, keyed := resource(r)
	body, err := decodeBody(r)
	if err != nil || keyed {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[class]
	if !ok || t.key == "" {
		writeError(w, http.StatusBadRequest, "Cannot create instances of "+class)
		return
	}

	switch class {
	case "SMS_Collection":
		name := str(body["Name"])
		limit := str(body["LimitToCollectionID"])
		if name == "" || limit == "" {
			writeError(w, http.StatusBadRequest, "Name and LimitToCollectionID are required")
			return
		}
		for _, row := range t.rows {
			if strings.EqualFold(str(row["Name"]), name) {
				writeError(w, http.StatusConflict, "A collection named "+name+" already exists")
				return
			}
		}
		if t.find(limit) < 0 {
			writeError(w, http.StatusBadRequest, "Limiting collection "+limit+" does not exist")
			return
		}
		body["CollectionID"] = fmt.Sprintf("%s%05X", SiteCode, s.nextID)
		s.nextID++
		body["LimitToCollectionName"] = s.nameOf(limit)
		body["MemberCount"] = 0
		body["IsBuiltIn"] = false
		if _, ok := body["CollectionRules"]; !ok {
			body["CollectionRules"] = []any{}
		}
		if _, ok := body["RefreshSchedule"]; !ok {
			body["RefreshSchedule"] = []any{}
		}
	default:
		if t.find(str(body[t.key])) >= 0 {
			writeError(w, http.StatusConflict, "Instance already exists")
			return
		}
	}
	delete(body, "@odata.type")
	t.rows = append(t.rows, body)
	writeValue(w, r, class, []map[string]any{s.present(class, body, true)})
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	class, key, keyed := resource(r)
	body, err := decodeBody(r)
	if err != nil || !keyed {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[class]
	if !ok {
		writeError(w, http.StatusNotFound, "Invalid class "+class)
		return
	}
	i := t.find(key)
	if i < 0 {
		writeError(w, http.StatusNotFound, "The requested resource was not found.")
		return
	}
	if name, ok := body["Name"]; ok && class == "SMS_Collection" {
		for j, row := range t.rows {
			if j != i && strings.EqualFold(str(row["Name"]), str(name)) {
				writeError(w, http.StatusConflict, "A collection named "+str(name)+" already exists")
				return
			}
		}
	}
	if limit, ok := body["LimitToCollectionID"]; ok {
		body["LimitToCollectionName"] = s.nameOf(str(limit))
	}
	for k, v := range body {
		if k == t.key || strings.HasPrefix(k, "@odata") {
			continue
		}
		if k == "MachineVariables" || k == "CollectionVariables" {
			v = keepMaskedValues(t.rows[i][k], v)
		}
		t.rows[i][k] = v
	}
	writeValue(w, r, class, []map[string]any{s.present(class, t.rows[i], true)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	class, key, keyed := resource(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[class]
	if !ok || !keyed {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	i := t.find(key)
	if i < 0 {
		writeError(w, http.StatusNotFound, "The requested resource was not found.")
		return
	}
	t.rows = append(t.rows[:i], t.rows[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	class, key, keyed := resource(r)
	action := chi.URLParam(r, "action")
	body, err := decodeBody(r)
	if err != nil || class != "SMS_Collection" || !keyed {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables["SMS_Collection"]
	i := t.find(key)
	if i < 0 {
		writeError(w, http.StatusNotFound, "The requested resource was not found.")
		return
	}
	row := t.rows[i]
	rules, _ := row["CollectionRules"].([]any)

	switch action {
	case "AdminService.RequestRefresh":
	case "AdminService.AddMembershipRule":
		rule, ok := body["collectionRule"].(map[string]any)
		if !ok {
			writeError(w, http.StatusBadRequest, "collectionRule is required")
			return
		}
		row["CollectionRules"] = append(rules, rule)
		if strings.HasSuffix(str(rule["@odata.type"]), "SMS_CollectionRuleDirect") {
			s.addMember(key, int64(toInt(rule["ResourceID"])))
		}
	case "AdminService.DeleteMembershipRule":
		rule, ok := body["collectionRule"].(map[string]any)
		if !ok {
			writeError(w, http.StatusBadRequest, "collectionRule is required")
			return
		}
		for j, existing := range rules {
			if sameRule(existing.(map[string]any), rule) {
				row["CollectionRules"] = append(rules[:j], rules[j+1:]...)
				writeJSON(w, http.StatusOK, map[string]any{"ReturnValue": 0})
				return
			}
		}
		writeError(w, http.StatusNotFound, "Rule not found")
		return
	default:
		writeError(w, http.StatusNotFound, "Unknown action "+action)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ReturnValue": 0})
}

func sameRule(a, b map[string]any) bool {
	if str(a["@odata.type"]) != str(b["@odata.type"]) {
		return false
	}
	for _, k := range []string{"ResourceID", "IncludeCollectionID", "ExcludeCollectionID"} {
		if str(a[k]) != "" || str(b[k]) != "" {
			return str(a[k]) == str(b[k])
		}
	}
	return strings.EqualFold(str(a["RuleName"]), str(b["RuleName"]))
}

func (s *Server) handleRunScript(w http.ResponseWriter, r *http.Request) {
	class, key, keyed := resource(r)
	body, err := decodeBody(r)
	if err != nil || !keyed || chi.URLParam(r, "action") != "AdminService.RunScript" {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	scripts := s.tables["SMS_Scripts"]
	si := scripts.find(str(body["ScriptGuid"]))
	if si < 0 {
		writeError(w, http.StatusNotFound, "Script not found")
		return
	}
	script := scripts.rows[si]
	if toInt(script["ApprovalState"]) != 3 {
		writeError(w, http.StatusBadRequest, "Script is not approved")
		return
	}

	var targets []int64
	switch class {
	case "Device":
		if s.tables["SMS_R_System"].find(key) < 0 {
			writeError(w, http.StatusNotFound, "Device not found")
			return
		}
		id, _ := strconv.ParseInt(key, 10, 64)
		targets = append(targets, id)
	case "Collections":
		if s.tables["SMS_Collection"].find(key) < 0 {
			writeError(w, http.StatusNotFound, "Collection not found")
			return
		}
		for _, m := range s.tables["SMS_FullCollectionMembership"].rows {
			if strings.EqualFold(str(m["CollectionID"]), key) {
				targets = append(targets, int64(toInt(m["ResourceID"])))
			}
		}
	default:
		writeError(w, http.StatusNotFound, "Unknown entity "+class)
		return
	}

	op := s.nextOperation
	s.nextOperation++
	for _, id := range targets {
		s.tables["SMS_ScriptsExecutionStatus"].rows = append(s.tables["SMS_ScriptsExecutionStatus"].rows, map[string]any{
			"ClientOperationId":    op,
			"ResourceId":           id,
			"DeviceName":           s.deviceName(id),
			"ScriptGuid":           str(script["ScriptGuid"]),
			"ScriptName":           str(script["ScriptName"]),
			"ScriptExecutionState": 0,
			"ScriptExitCode":       0,
			"ScriptOutput":         "ok",
			"LastUpdateTime":       "2026-10-16T10:00:00Z",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"@odata.context": "https://" + r.Host + "/AdminService/v1.0/$metadata#Edm.Int64",
		"value":          op,
	})
}

func decodeBody(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	body := map[string]any{}
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

func writeValue(w http.ResponseWriter, r *http.Request, class string, rows []map[string]any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"@odata.context": "https://" + r.Host + "/AdminService/wmi/$metadata#" + class,
		"value":          rows,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, _ := json.Marshal(v)
	writeRaw(w, status, string(b))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": strconv.Itoa(status), "message": msg},
	})
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; odata.metadata=minimal")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func deepCopy(m map[string]any) map[string]any {
	b, _ := json.Marshal(m)
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	out := map[string]any{}
	_ = dec.Decode(&out)
	return out
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func toInt(v any) int {
	n, _ := strconv.Atoi(str(v))
	return n
}

// keepMaskedValues carries the stored value of a masked variable into an
// incoming list entry that is still masked and omits Value. The server never
// returns masked values, so clients cannot send them back.
func keepMaskedValues(stored, incoming any) any {
	prev, _ := stored.([]any)
	next, ok := incoming.([]any)
	if !ok {
		return incoming
	}
	values := map[string]any{}
	for _, item := range prev {
		if m, ok := item.(map[string]any); ok && truthy(m["IsMasked"]) {
			values[strings.ToLower(str(m["Name"]))] = m["Value"]
		}
	}
	for _, item := range next {
		m, ok := item.(map[string]any)
		if !ok || !truthy(m["IsMasked"]) {
			continue
		}
		if _, has := m["Value"]; has {
			continue
		}
		if v, found := values[strings.ToLower(str(m["Name"]))]; found {
			m["Value"] = v
		}
	}
	return next
}

func truthy(v any) bool {
	b, _ := strconv.ParseBool(str(v))
	return b
}
