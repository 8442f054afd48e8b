package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tnqbao/gau-ml-service/infra"
	"github.com/tnqbao/gau-ml-service/repository"
)

var (
	// ErrModelNotFound is returned when the record does not exist (or no longer does).
	ErrModelNotFound = repository.ErrModelNotFound
	// ErrForbidden is returned when the record exists but belongs to someone else.
	ErrForbidden = errors.New("model belongs to another user")
	// ErrNotSubmitted is returned when a record has no remote job to poll yet.
	ErrNotSubmitted = errors.New("model has no remote job")
	// ErrInvalidTransition is returned when the record's status does not allow the operation.
	ErrInvalidTransition = repository.ErrInvalidTransition
)

// RemoteRejectedError means the provider answered a submission with a JSON
// document that carries no remote job id.
type RemoteRejectedError struct {
	Kind     infra.EndpointKind
	Response json.RawMessage
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("compute %s submission was not accepted: %s", e.Kind, string(e.Response))
}

// InconsistencyError means the provider reported the artifact as missing but
// the local record could not be purged. The record is left untouched.
type InconsistencyError struct {
	ModelID  uint
	Response json.RawMessage
	Err      error
}

func (e *InconsistencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model %d is gone remotely but could not be deleted locally: %v", e.ModelID, e.Err)
	}
	return fmt.Sprintf("model %d is gone remotely but could not be deleted locally", e.ModelID)
}

func (e *InconsistencyError) Unwrap() error {
	return e.Err
}
