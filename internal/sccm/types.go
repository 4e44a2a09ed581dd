package sccm

import (
	"strconv"
	"strings"

	"github.com/cmas-go/cmas/internal/resolver"
)

// CollectionType says whether a collection holds users or devices.
type CollectionType int

const (
	CollectionTypeUser   CollectionType = 1
	CollectionTypeDevice CollectionType = 2
)

func (t CollectionType) String() string {
	switch t {
	case CollectionTypeUser:
		return "User"
	case CollectionTypeDevice:
		return "Device"
	}
	return strconv.Itoa(int(t))
}

func (t CollectionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseCollectionType accepts User or Device, ignoring case.
func ParseCollectionType(s string) (CollectionType, error) {
	switch strings.ToLower(s) {
	case "user":
		return CollectionTypeUser, nil
	case "device", "":
		return CollectionTypeDevice, nil
	}
	return 0, ErrInvalidInput.Suffix("collection type must be User or Device: " + s)
}

// RefreshType controls when collection membership is evaluated.
type RefreshType int

const (
	RefreshManual     RefreshType = 1
	RefreshPeriodic   RefreshType = 2
	RefreshContinuous RefreshType = 4
	RefreshBoth       RefreshType = 6
)

var refreshTypeNames = map[RefreshType]string{
	RefreshManual:     "Manual",
	RefreshPeriodic:   "Periodic",
	RefreshContinuous: "Continuous",
	RefreshBoth:       "Both",
}

func (t RefreshType) String() string {
	if n, ok := refreshTypeNames[t]; ok {
		return n
	}
	return strconv.Itoa(int(t))
}

func (t RefreshType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseRefreshType accepts Manual, Periodic, Continuous or Both.
func ParseRefreshType(s string) (RefreshType, error) {
	for t, n := range refreshTypeNames {
		if strings.EqualFold(n, s) {
			return t, nil
		}
	}
	return 0, ErrInvalidInput.Suffix("refresh type must be Manual, Periodic, Continuous or Both: " + s)
}

func (t RefreshType) periodic() bool {
	return t == RefreshPeriodic || t == RefreshBoth
}

// Schedule is an SMS_ST_RecurInterval refresh schedule.
type Schedule struct {
	DaysSpan   int    `json:"DaysSpan" mapstructure:"DaysSpan"`
	HourSpan   int    `json:"HourSpan" mapstructure:"HourSpan"`
	MinuteSpan int    `json:"MinuteSpan" mapstructure:"MinuteSpan"`
	StartTime  string `json:"StartTime" mapstructure:"StartTime"`
}

// Collection is a user or device collection.
type Collection struct {
	CollectionID          string         `json:"CollectionID" mapstructure:"CollectionID"`
	Name                  string         `json:"Name" mapstructure:"Name"`
	CollectionType        CollectionType `json:"CollectionType" mapstructure:"CollectionType"`
	LimitToCollectionID   string         `json:"LimitToCollectionID" mapstructure:"LimitToCollectionID"`
	LimitToCollectionName string         `json:"LimitToCollectionName" mapstructure:"LimitToCollectionName"`
	RefreshType           RefreshType    `json:"RefreshType" mapstructure:"RefreshType"`
	Comment               string         `json:"Comment" mapstructure:"Comment"`
	MemberCount           int            `json:"MemberCount" mapstructure:"MemberCount"`
	IsBuiltIn             bool           `json:"IsBuiltIn" mapstructure:"IsBuiltIn"`
	RefreshSchedule       []Schedule     `json:"RefreshSchedule,omitempty" mapstructure:"RefreshSchedule"`
}

func (c *Collection) ResourceKind() resolver.Kind { return resolver.KindCollection }
func (c *Collection) ResourceIdentifier() string  { return c.CollectionID }

// CollectionMember is one resource in a collection's evaluated membership.
type CollectionMember struct {
	CollectionID string `json:"CollectionID" mapstructure:"CollectionID"`
	ResourceID   int64  `json:"ResourceID" mapstructure:"ResourceID"`
	Name         string `json:"Name" mapstructure:"Name"`
	IsDirect     bool   `json:"IsDirect" mapstructure:"IsDirect"`
	IsClient     bool   `json:"IsClient" mapstructure:"IsClient"`
}

// Device is an SMS_R_System resource.
type Device struct {
	ResourceID                    int64  `json:"ResourceID" mapstructure:"ResourceId"`
	Name                          string `json:"Name" mapstructure:"Name"`
	SMSUniqueIdentifier           string `json:"SMSUniqueIdentifier" mapstructure:"SMSUniqueIdentifier"`
	ResourceDomainORWorkgroup     string `json:"ResourceDomainORWorkgroup" mapstructure:"ResourceDomainORWorkgroup"`
	Client                        bool   `json:"Client" mapstructure:"Client"`
	Active                        bool   `json:"Active" mapstructure:"Active"`
	OperatingSystemNameandVersion string `json:"OperatingSystemNameandVersion" mapstructure:"OperatingSystemNameandVersion"`
}

func (d *Device) ResourceKind() resolver.Kind { return resolver.KindDevice }
func (d *Device) ResourceIdentifier() string  { return strconv.FormatInt(d.ResourceID, 10) }

// Variable is a task sequence variable. Values of masked variables are
// never returned by the server and read back as "".
type Variable struct {
	Name     string `json:"Name" mapstructure:"Name" validate:"required,max=256,varname"`
	Value    string `json:"Value" mapstructure:"Value"`
	IsMasked bool   `json:"IsMasked" mapstructure:"IsMasked"`
}

// DeviceVariable is a variable scoped to one device.
type DeviceVariable struct {
	Variable     `mapstructure:",squash"`
	ResourceID   int64  `json:"ResourceID"`
	ResourceName string `json:"ResourceName"`
}

// CollectionVariable is a variable scoped to a collection.
type CollectionVariable struct {
	Variable       `mapstructure:",squash"`
	CollectionID   string `json:"CollectionID"`
	CollectionName string `json:"CollectionName"`
}

// VariableUpdate lists the properties Set*Variable changes. Nil fields are
// left as they are.
type VariableUpdate struct {
	Value    *string
	IsMasked *bool
}

func (u VariableUpdate) empty() bool {
	return u.Value == nil && u.IsMasked == nil
}

// ApprovalState of a script.
type ApprovalState int

const (
	ApprovalWaiting  ApprovalState = 0
	ApprovalDeclined ApprovalState = 1
	ApprovalApproved ApprovalState = 3
)

func (s ApprovalState) String() string {
	switch s {
	case ApprovalWaiting:
		return "Waiting"
	case ApprovalDeclined:
		return "Declined"
	case ApprovalApproved:
		return "Approved"
	}
	return strconv.Itoa(int(s))
}

func (s ApprovalState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Script is a run script definition.
type Script struct {
	ScriptGuid    string        `json:"ScriptGuid" mapstructure:"ScriptGuid"`
	ScriptName    string        `json:"ScriptName" mapstructure:"ScriptName"`
	ScriptVersion string        `json:"ScriptVersion" mapstructure:"ScriptVersion"`
	Author        string        `json:"Author" mapstructure:"Author"`
	ApprovalState ApprovalState `json:"ApprovalState" mapstructure:"ApprovalState"`
	ScriptType    int           `json:"ScriptType" mapstructure:"ScriptType"`
	Comment       string        `json:"Comment,omitempty" mapstructure:"Comment"`
	Parameters    string        `json:"Parameters,omitempty" mapstructure:"ParamsDefinition"`
}

func (s *Script) ResourceKind() resolver.Kind { return resolver.KindScript }
func (s *Script) ResourceIdentifier() string  { return s.ScriptGuid }

// Approved reports whether the script may be run.
func (s *Script) Approved() bool { return s.ApprovalState == ApprovalApproved }

// ScriptExecution describes one dispatched RunScript call.
type ScriptExecution struct {
	OperationID     int64             `json:"OperationID"`
	ScriptGuid      string            `json:"ScriptGuid"`
	ScriptName      string            `json:"ScriptName"`
	CollectionID    string            `json:"CollectionID,omitempty"`
	ResourceIDs     []int64           `json:"ResourceIDs,omitempty"`
	InputParameters map[string]string `json:"InputParameters,omitempty"`
	Status          string            `json:"Status"`
}

// Script execution states.
const (
	StatusCompleted = "completed"
	StatusRunning   = "running"
	StatusError     = "error"
)

// ScriptExecutionStatus is the result of a script on one device.
type ScriptExecutionStatus struct {
	OperationID          int64  `json:"OperationID" mapstructure:"ClientOperationId"`
	ResourceID           int64  `json:"ResourceID" mapstructure:"ResourceId"`
	DeviceName           string `json:"DeviceName" mapstructure:"DeviceName"`
	ScriptGuid           string `json:"ScriptGuid" mapstructure:"ScriptGuid"`
	ScriptName           string `json:"ScriptName" mapstructure:"ScriptName"`
	ScriptExecutionState int    `json:"ScriptExecutionState" mapstructure:"ScriptExecutionState"`
	ScriptExitCode       int    `json:"ScriptExitCode" mapstructure:"ScriptExitCode"`
	ScriptOutput         string `json:"ScriptOutput" mapstructure:"ScriptOutput"`
	LastUpdateTime       string `json:"LastUpdateTime" mapstructure:"LastUpdateTime"`
}

// Status maps the execution state: 0 completed, 1 failed, anything else
// still running.
func (s ScriptExecutionStatus) Status() string {
	switch s.ScriptExecutionState {
	case 0:
		return StatusCompleted
	case 1:
		return StatusError
	}
	return StatusRunning
}

// ScriptStatusResult is either ScriptStatusFound or ScriptStatusNotFound.
type ScriptStatusResult interface {
	OperationID() int64
	Status() string
	NotFound() bool
}

// ScriptStatusFound holds the per-device results of an operation.
type ScriptStatusFound struct {
	Operation int64                   `json:"OperationID"`
	Entries   []ScriptExecutionStatus `json:"Entries"`
}

func (f *ScriptStatusFound) OperationID() int64 { return f.Operation }
func (f *ScriptStatusFound) NotFound() bool     { return false }

// Status is running while any device is running, error when any failed and
// completed otherwise.
func (f *ScriptStatusFound) Status() string {
	status := StatusCompleted
	for _, e := range f.Entries {
		switch e.Status() {
		case StatusRunning:
			return StatusRunning
		case StatusError:
			status = StatusError
		}
	}
	return status
}

// ScriptStatusNotFound is returned when the server has no rows for an
// operation.
type ScriptStatusNotFound struct {
	Operation int64 `json:"OperationID"`
}

func (n *ScriptStatusNotFound) OperationID() int64 { return n.Operation }
func (n *ScriptStatusNotFound) NotFound() bool     { return true }
func (n *ScriptStatusNotFound) Status() string     { return StatusError }

// Message explains the result.
func (n *ScriptStatusNotFound) Message() string {
	return "script execution not found: " + strconv.FormatInt(n.Operation, 10)
}

// MarshalJSON includes the status and message.
func (n *ScriptStatusNotFound) MarshalJSON() ([]byte, error) {
	return marshalStatus(n.Operation, StatusError, n.Message(), nil)
}

// MarshalJSON includes the aggregate status.
func (f *ScriptStatusFound) MarshalJSON() ([]byte, error) {
	return marshalStatus(f.Operation, f.Status(), "", f.Entries)
}
