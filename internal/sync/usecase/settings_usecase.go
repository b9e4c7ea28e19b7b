package usecase

import (
	"encoding/json"
	"fmt"

	integrationdomain "touchbase-backend/internal/integration/domain"
)

// SettingsInput updates one provider's sync configuration. Nil fields keep
// their current value.
type SettingsInput struct {
	Enabled         *bool    `json:"enabled"`
	LookbackDays    *int     `json:"lookback_days"`
	SelectedSources []string `json:"selected_sources"`
}

// UpdateSettings applies the input to the provider's sync state. Widening the
// lookback window drops the cursor so the next run refetches the whole new
// window.
func (o *Orchestrator) UpdateSettings(userID string, providerType integrationdomain.ProviderType, input *SettingsInput) (*integrationdomain.SyncState, error) {
	state, err := o.syncStateRepo.GetByUserAndProvider(userID, providerType)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}
	if state == nil {
		return nil, fmt.Errorf("no sync state for %s", providerType)
	}

	if input.Enabled != nil {
		state.Enabled = *input.Enabled
	}
	if input.LookbackDays != nil && *input.LookbackDays > 0 {
		if *input.LookbackDays > state.LookbackDays {
			state.Cursor = ""
		}
		state.LookbackDays = *input.LookbackDays
	}
	if input.SelectedSources != nil {
		encoded, err := json.Marshal(input.SelectedSources)
		if err != nil {
			return nil, fmt.Errorf("failed to encode selected sources: %w", err)
		}
		state.SelectedSources = string(encoded)
	}

	if err := o.syncStateRepo.Update(state); err != nil {
		return nil, fmt.Errorf("failed to update sync state: %w", err)
	}
	return state, nil
}

// SyncStates lists the user's per-provider sync configuration.
func (o *Orchestrator) SyncStates(userID string) ([]integrationdomain.SyncState, error) {
	return o.syncStateRepo.ListByUser(userID)
}
