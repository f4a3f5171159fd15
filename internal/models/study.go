package models

import (
	"time"

	"github.com/google/uuid"
)

// Study is one accountability group tied to a shared repository. The window
// offsets are seconds from local midnight in the deployment's fixed timezone;
// EndOffsetSeconds may exceed 86400 for windows that span midnight.
type Study struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	RepoURL            string    `json:"repo_url"`
	StartOffsetSeconds int       `json:"start_offset_seconds"`
	EndOffsetSeconds   int       `json:"end_offset_seconds"`
	LedgerRef          string    `json:"ledger_ref"`
	CreatedAt          time.Time `json:"created_at"`
}

type Participant struct {
	ID            uuid.UUID `json:"id"`
	StudyID       uuid.UUID `json:"study_id"`
	Email         string    `json:"email"`
	WalletAddress string    `json:"wallet_address"`
	CreatedAt     time.Time `json:"created_at"`
}

// Membership is the participant-directory lookup result used when attributing
// an inbound commit to a study.
type Membership struct {
	StudyID            uuid.UUID
	ParticipantID      uuid.UUID
	WalletAddress      string
	LedgerRef          string
	StartOffsetSeconds int
	EndOffsetSeconds   int
}

type CreateStudyRequest struct {
	Name               string `json:"name"`
	RepoURL            string `json:"repo_url"`
	StartOffsetSeconds int    `json:"start_offset_seconds"`
	EndOffsetSeconds   int    `json:"end_offset_seconds"`
	LedgerRef          string `json:"ledger_ref"`
}

type AddParticipantRequest struct {
	Email         string `json:"email"`
	WalletAddress string `json:"wallet_address"`
}
