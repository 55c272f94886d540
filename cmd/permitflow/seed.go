package main

import (
	"time"

	"github.com/google/uuid"

	"permitflow/internal/profile"
)

func strPtr(s string) *string {
	return &s
}

// seedWorkflows provides a small demo catalog for the in-memory store.
func seedWorkflows() []profile.Workflow {
	now := time.Now()
	creatorID := uuid.MustParse("57f2a1de-8f54-4f8a-a6a7-34c2be2a7a01")

	return []profile.Workflow{
		{
			ID:          uuid.MustParse("b2f0c9a4-2a6f-4bd2-97f8-3e4aa1f8b101"),
			CreatorID:   creatorID,
			Title:       "Residential Deck Permit",
			Description: strPtr("Step-by-step permit package for attached and detached decks."),
			PermitType:  strPtr("building"),
			Agency:      strPtr("City Building Department"),
			Price:       49.99,
			Status:      strPtr("published"),
			Verified:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:          uuid.MustParse("0d3e2f4b-6a1c-4f7e-8b29-55f0c1d9a202"),
			CreatorID:   creatorID,
			Title:       "Kitchen Remodel Permit",
			Description: strPtr("Covers electrical, plumbing and structural changes for kitchen remodels."),
			PermitType:  strPtr("remodel"),
			Agency:      strPtr("City Building Department"),
			Price:       79.99,
			Status:      strPtr("published"),
			Verified:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:          uuid.MustParse("7a8b9c0d-1e2f-4a3b-8c4d-66e1f2a3b303"),
			CreatorID:   creatorID,
			Title:       "Fence Installation Permit",
			Description: strPtr("Permit checklist and forms for residential fencing."),
			PermitType:  strPtr("zoning"),
			Agency:      strPtr("County Zoning Office"),
			Price:       19.99,
			Status:      strPtr("published"),
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}
