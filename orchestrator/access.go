package orchestrator

import "github.com/tnqbao/gau-ml-service/entity"

// Principal is the authenticated caller. OwnerKey is a stable human-readable
// identifier (the email) used in correlation ids and notifications.
type Principal struct {
	ID       uint
	OwnerKey string
}

// CheckAccess decides whether p may act on model. A missing record and a
// record owned by someone else are reported differently.
func CheckAccess(p Principal, model *entity.ModelRecord) error {
	if model == nil {
		return ErrModelNotFound
	}
	if model.OwnerID != p.ID {
		return ErrForbidden
	}
	return nil
}
