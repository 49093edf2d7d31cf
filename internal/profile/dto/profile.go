package dto

import "relaydesk-backend/pkg/types"

// UpdateProfileRequest is a verified edit from the dashboard.
type UpdateProfileRequest struct {
	Name     *string        `json:"name"`
	Email    *string        `json:"email"`
	Phone    *string        `json:"phone"`
	ChatID   *string        `json:"chat_id"`
	Metadata types.Metadata `json:"metadata"`
}

// MergeProfilesRequest folds source into target
type MergeProfilesRequest struct {
	SourceID string `json:"source_id" binding:"required"`
	TargetID string `json:"target_id" binding:"required"`
}
