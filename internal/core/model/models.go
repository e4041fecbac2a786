// Package model defines the core batch domain entities of ripple:
// JobInstance, JobExecution, StepExecution, ExecutionContext and JobParameters,
// together with their status lifecycles.
package model

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/logger"
)

// JobStatus represents the lifecycle state of a job or step execution.
type JobStatus string

const (
	BatchStatusStarting  JobStatus = "STARTING"
	BatchStatusStarted   JobStatus = "STARTED"
	BatchStatusStopping  JobStatus = "STOPPING"
	BatchStatusStopped   JobStatus = "STOPPED"
	BatchStatusCompleted JobStatus = "COMPLETED"
	BatchStatusFailed    JobStatus = "FAILED"
	BatchStatusAbandoned JobStatus = "ABANDONED"
	BatchStatusUnknown   JobStatus = "UNKNOWN"
)

// String returns the string representation of the JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsFinished checks if the JobStatus represents a finished state.
func (s JobStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned:
		return true
	default:
		return false
	}
}

// ExitStatus represents the detailed status upon job/step completion.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusStopped   ExitStatus = "STOPPED"
	ExitStatusAbandoned ExitStatus = "ABANDONED"
	// ExitStatusNoOp indicates the job had nothing left to process,
	// e.g. every filter value was already present in the output artifact.
	ExitStatusNoOp ExitStatus = "NO_OP"
)

// String returns the ExitStatus as a string.
func (s ExitStatus) String() string {
	return string(s)
}

// ExecutionContext is a key-value store for sharing state across job and step executions.
type ExecutionContext map[string]interface{}

// Value implements the `driver.Valuer` interface, converting the ExecutionContext to a JSON string.
func (ec ExecutionContext) Value() (driver.Value, error) {
	if ec == nil {
		return "{}", nil
	}
	data, err := json.Marshal(ec)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to an ExecutionContext.
func (ec *ExecutionContext) Scan(value interface{}) error {
	if value == nil {
		*ec = make(ExecutionContext)
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for ExecutionContext: %T", value)
	}

	if len(b) == 0 {
		*ec = make(ExecutionContext)
		return nil
	}

	if err := json.Unmarshal(b, ec); err != nil {
		return fmt.Errorf("failed to unmarshal ExecutionContext JSON: %w", err)
	}
	return nil
}

// NewExecutionContext creates a new empty ExecutionContext.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put sets a value in the ExecutionContext with the specified key and value.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get retrieves the value for the specified key. Returns nil and false if the value does not exist.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	val, ok := ec[key]
	return val, ok
}

// GetString retrieves the value for the specified key as a string.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	val, ok := ec[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetInt retrieves the value for the specified key as an int.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	val, ok := ec[key]
	if !ok {
		return 0, false
	}
	// Numbers unmarshaled from JSON arrive as float64.
	if i, ok := val.(int); ok {
		return i, true
	}
	if f, ok := val.(float64); ok {
		return int(f), true
	}
	return 0, false
}

// Copy creates a shallow copy of the ExecutionContext.
func (ec ExecutionContext) Copy() ExecutionContext {
	newEC := make(ExecutionContext, len(ec))
	for k, v := range ec {
		newEC[k] = v
	}
	return newEC
}

// Remove removes the specified key from the ExecutionContext.
func (ec ExecutionContext) Remove(key string) {
	delete(ec, key)
}

// JobParameters is a structure holding parameters for job execution.
type JobParameters struct {
	Params map[string]interface{}
}

// NewJobParameters creates a new instance of JobParameters.
func NewJobParameters() JobParameters {
	return JobParameters{
		Params: make(map[string]interface{}),
	}
}

// Value implements the `driver.Valuer` interface, converting JobParameters to a JSON string.
func (jp JobParameters) Value() (driver.Value, error) {
	if jp.Params == nil {
		return "{}", nil
	}
	data, err := json.Marshal(jp.Params)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to JobParameters.
func (jp *JobParameters) Scan(value interface{}) error {
	if value == nil {
		jp.Params = make(map[string]interface{})
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for JobParameters: %T", value)
	}

	if len(b) == 0 {
		jp.Params = make(map[string]interface{})
		return nil
	}

	if err := json.Unmarshal(b, &jp.Params); err != nil {
		return fmt.Errorf("failed to unmarshal JobParameters JSON: %w", err)
	}
	return nil
}

// Put sets a value in JobParameters with the specified key and value.
func (jp JobParameters) Put(key string, value interface{}) {
	jp.Params[key] = value
}

// Get retrieves the value for the specified key. Returns nil if the value does not exist.
func (jp JobParameters) Get(key string) interface{} {
	val, ok := jp.Params[key]
	if !ok {
		return nil
	}
	return val
}

// GetString retrieves the value for the specified key as a string.
func (jp JobParameters) GetString(key string) (string, bool) {
	val, ok := jp.Params[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetInt retrieves the value for the specified key as an int.
func (jp JobParameters) GetInt(key string) (int, bool) {
	val, ok := jp.Params[key]
	if !ok {
		return 0, false
	}
	if i, ok := val.(int); ok {
		return i, true
	}
	if f, ok := val.(float64); ok {
		return int(f), true
	}
	return 0, false
}

// Equal compares if two JobParameters are equal.
func (jp JobParameters) Equal(other JobParameters) bool {
	return reflect.DeepEqual(jp.Params, other.Params)
}

// Hash calculates the hash value of JobParameters. Parameters are converted to
// a canonical JSON string before hashing so the result is order independent.
func (jp JobParameters) Hash() (string, error) {
	normalizedJSON, err := jp.toCanonicalJSON()
	if err != nil {
		return "", exception.NewBatchError("job_parameters", "Failed to marshal JobParameters to canonical JSON for hash calculation", err, false, false)
	}

	hasher := sha256.New()
	hasher.Write([]byte(normalizedJSON))
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// toCanonicalJSON converts JobParameters to a canonical JSON string with sorted keys.
func (jp JobParameters) toCanonicalJSON() (string, error) {
	var marshalCanonical func(interface{}) ([]byte, error)
	marshalCanonical = func(val interface{}) ([]byte, error) {
		if m, ok := val.(map[string]interface{}); ok {
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			var sb strings.Builder
			sb.WriteString("{")
			for i, k := range keys {
				v := m[k]
				keyBytes, err := json.Marshal(k)
				if err != nil {
					return nil, err
				}
				valBytes, err := marshalCanonical(v)
				if err != nil {
					return nil, err
				}
				sb.Write(keyBytes)
				sb.WriteString(":")
				sb.Write(valBytes)
				if i < len(keys)-1 {
					sb.WriteString(",")
				}
			}
			sb.WriteString("}")
			return []byte(sb.String()), nil
		}
		return json.Marshal(val)
	}

	jsonBytes, err := marshalCanonical(jp.Params)
	if err != nil {
		return "", err
	}
	return string(jsonBytes), nil
}

// String returns the string representation of JobParameters.
func (jp JobParameters) String() string {
	data, err := json.Marshal(jp.Params)
	if err != nil {
		return fmt.Sprintf("{[ERROR: Failed to marshal parameters: %v]}", err)
	}
	return string(data)
}

// FailureList holds a list of error messages.
type FailureList []string

// Value implements the `driver.Valuer` interface, converting FailureList to a JSON string.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to FailureList.
func (fl *FailureList) Scan(value interface{}) error {
	if value == nil {
		*fl = make(FailureList, 0)
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for FailureList: %T", value)
	}

	if len(b) == 0 {
		*fl = make(FailureList, 0)
		return nil
	}

	if err := json.Unmarshal(b, fl); err != nil {
		return fmt.Errorf("failed to unmarshal FailureList JSON: %w", err)
	}
	return nil
}

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// JobInstance is a structure representing the logical execution unit of a job.
type JobInstance struct {
	ID             string
	JobName        string
	Parameters     JobParameters
	CreateTime     time.Time
	Version        int
	ParametersHash string
}

// NewJobInstance creates a new instance of JobInstance.
func NewJobInstance(jobName string, params JobParameters) *JobInstance {
	now := time.Now()
	hash, err := params.Hash()
	if err != nil {
		logger.Errorf("Failed to calculate JobParameters hash: %v", err)
		hash = ""
	}
	return &JobInstance{
		ID:             NewID(),
		JobName:        jobName,
		Parameters:     params,
		CreateTime:     now,
		Version:        0,
		ParametersHash: hash,
	}
}

// JobExecution is a structure representing a single execution instance of a job.
type JobExecution struct {
	ID               string
	JobInstanceID    string
	JobName          string
	Parameters       JobParameters
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	Failures         FailureList
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
	StepExecutions   []*StepExecution
	ExecutionContext ExecutionContext
	RestartCount     int
}

// NewJobExecution creates a new instance of JobExecution.
func NewJobExecution(jobInstanceID string, jobName string, params JobParameters) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:               NewID(),
		JobInstanceID:    jobInstanceID,
		JobName:          jobName,
		Parameters:       params,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		CreateTime:       now,
		LastUpdated:      now,
		Failures:         make(FailureList, 0),
		StepExecutions:   make([]*StepExecution, 0),
		ExecutionContext: NewExecutionContext(),
		RestartCount:     0,
	}
}

// isValidJobTransition checks if the state transition for JobExecution is valid.
func isValidJobTransition(current, next JobStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned || next == BatchStatusCompleted
	case BatchStatusStarted:
		return next == BatchStatusStopping || next == BatchStatusCompleted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	case BatchStatusStopping:
		return next == BatchStatusStopped || next == BatchStatusFailed || next == BatchStatusAbandoned
	case BatchStatusStopped, BatchStatusFailed:
		return next == BatchStatusAbandoned
	case BatchStatusCompleted, BatchStatusAbandoned:
		return false
	default:
		return false
	}
}

// TransitionTo safely transitions the state of JobExecution.
// Fields other than Status must be set separately by the caller.
func (je *JobExecution) TransitionTo(newStatus JobStatus) error {
	if !isValidJobTransition(je.Status, newStatus) {
		return fmt.Errorf("JobExecution (ID: %s): Invalid state transition: %s -> %s", je.ID, je.Status, newStatus)
	}
	je.Status = newStatus
	return nil
}

// MarkAsStarted updates the JobExecution status to STARTED.
func (je *JobExecution) MarkAsStarted() {
	if err := je.TransitionTo(BatchStatusStarted); err != nil {
		logger.Warnf("Could not update JobExecution (ID: %s) status to STARTED: %v", je.ID, err)
		je.Status = BatchStatusStarted
	}
	je.LastUpdated = time.Now()
}

// MarkAsCompleted updates the JobExecution status to COMPLETED.
func (je *JobExecution) MarkAsCompleted() {
	if err := je.TransitionTo(BatchStatusCompleted); err != nil {
		logger.Warnf("Could not update JobExecution (ID: %s) status to COMPLETED: %v", je.ID, err)
		je.Status = BatchStatusCompleted
	}
	je.ExitStatus = ExitStatusCompleted
	now := time.Now()
	je.EndTime = &now
	je.LastUpdated = now
}

// MarkAsNoOp updates the JobExecution status to COMPLETED with the NO_OP exit status.
func (je *JobExecution) MarkAsNoOp() {
	if err := je.TransitionTo(BatchStatusCompleted); err != nil {
		logger.Warnf("Could not update JobExecution (ID: %s) status to COMPLETED: %v", je.ID, err)
		je.Status = BatchStatusCompleted
	}
	je.ExitStatus = ExitStatusNoOp
	now := time.Now()
	je.EndTime = &now
	je.LastUpdated = now
}

// MarkAsFailed updates the JobExecution status to FAILED and adds error information.
func (je *JobExecution) MarkAsFailed(err error) {
	if terr := je.TransitionTo(BatchStatusFailed); terr != nil {
		logger.Warnf("Could not update JobExecution (ID: %s) status to FAILED: %v", je.ID, terr)
		je.Status = BatchStatusFailed
	}
	je.ExitStatus = ExitStatusFailed
	now := time.Now()
	je.EndTime = &now
	je.LastUpdated = now
	if err != nil {
		je.AddFailureException(err)
	}
}

// MarkAsStopped updates the JobExecution status to STOPPED.
func (je *JobExecution) MarkAsStopped() {
	if err := je.TransitionTo(BatchStatusStopped); err != nil {
		logger.Warnf("Could not update JobExecution (ID: %s) status to STOPPED: %v", je.ID, err)
		je.Status = BatchStatusStopped
	}
	je.ExitStatus = ExitStatusStopped
	now := time.Now()
	je.EndTime = &now
	je.LastUpdated = now
}

// AddFailureException adds error information to JobExecution. It avoids adding duplicate errors.
func (je *JobExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	errMsg := exception.ExtractErrorMessage(err)

	for _, existingErr := range je.Failures {
		if existingErr == errMsg {
			logger.Debugf("Skipped adding duplicate error '%s' to JobExecution (ID: %s).", errMsg, je.ID)
			return
		}
	}

	je.Failures = append(je.Failures, errMsg)
	je.LastUpdated = time.Now()
}

// AddStepExecution adds a StepExecution to JobExecution.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	je.StepExecutions = append(je.StepExecutions, se)
}

// StepExecution is a structure representing a single execution instance of a step.
type StepExecution struct {
	ID               string
	StepName         string
	JobExecution     *JobExecution
	JobExecutionID   string
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	Failures         FailureList
	ReadCount        int
	WriteCount       int
	CommitCount      int
	FilterCount      int
	SkipReadCount    int
	SkipProcessCount int
	SkipWriteCount   int
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
	Version          int
}

// NewStepExecution creates a new instance of StepExecution.
func NewStepExecution(id string, jobExecution *JobExecution, stepName string) *StepExecution {
	now := time.Now()
	return &StepExecution{
		ID:               id,
		StepName:         stepName,
		JobExecutionID:   jobExecution.ID,
		JobExecution:     jobExecution,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		Failures:         make(FailureList, 0),
		ExecutionContext: NewExecutionContext(),
		LastUpdated:      now,
		Version:          0,
	}
}

// isValidStepTransition checks if the state transition for StepExecution is valid.
func isValidStepTransition(current, next JobStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	case BatchStatusStarted:
		return next == BatchStatusCompleted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned:
		return false
	default:
		return false
	}
}

// TransitionTo safely transitions the state of StepExecution.
func (se *StepExecution) TransitionTo(newStatus JobStatus) error {
	if !isValidStepTransition(se.Status, newStatus) {
		return fmt.Errorf("StepExecution (ID: %s): Invalid state transition: %s -> %s", se.ID, se.Status, newStatus)
	}
	se.Status = newStatus
	return nil
}

// MarkAsStarted updates the StepExecution status to STARTED.
func (se *StepExecution) MarkAsStarted() {
	if err := se.TransitionTo(BatchStatusStarted); err != nil {
		logger.Warnf("Could not update StepExecution (ID: %s) status to STARTED: %v", se.ID, err)
		se.Status = BatchStatusStarted
	}
	se.LastUpdated = time.Now()
}

// MarkAsCompleted updates the StepExecution status to COMPLETED.
func (se *StepExecution) MarkAsCompleted() {
	if err := se.TransitionTo(BatchStatusCompleted); err != nil {
		logger.Warnf("Could not update StepExecution (ID: %s) status to COMPLETED: %v", se.ID, err)
		se.Status = BatchStatusCompleted
	}
	se.ExitStatus = ExitStatusCompleted
	now := time.Now()
	se.EndTime = &now
	se.LastUpdated = now
}

// MarkAsFailed updates the StepExecution status to FAILED and adds error information.
func (se *StepExecution) MarkAsFailed(err error) {
	if terr := se.TransitionTo(BatchStatusFailed); terr != nil {
		logger.Warnf("Could not update StepExecution (ID: %s) status to FAILED: %v", se.ID, terr)
		se.Status = BatchStatusFailed
	}
	se.ExitStatus = ExitStatusFailed
	now := time.Now()
	se.EndTime = &now
	se.LastUpdated = now
	if err != nil {
		se.AddFailureException(err)
	}
}

// MarkAsStopped updates the StepExecution status to STOPPED.
func (se *StepExecution) MarkAsStopped() {
	if err := se.TransitionTo(BatchStatusStopped); err != nil {
		logger.Warnf("Could not update StepExecution (ID: %s) status to STOPPED: %v", se.ID, err)
		se.Status = BatchStatusStopped
	}
	se.ExitStatus = ExitStatusStopped
	now := time.Now()
	se.EndTime = &now
	se.LastUpdated = now
}

// AddFailureException adds error information to StepExecution. It avoids adding duplicate errors.
func (se *StepExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	errMsg := exception.ExtractErrorMessage(err)

	for _, existingErr := range se.Failures {
		if existingErr == errMsg {
			logger.Debugf("Skipped adding duplicate error '%s' to StepExecution (ID: %s).", errMsg, se.ID)
			return
		}
	}

	se.Failures = append(se.Failures, errMsg)
	se.LastUpdated = time.Now()
}

// CheckpointData is a structure for persisting StepExecution checkpoint data.
// Rows accumulate per execution as restart history; resume across process
// runs is driven by the output artifact, not by these rows.
type CheckpointData struct {
	StepExecutionID  string
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
}
