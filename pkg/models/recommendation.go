package models

import (
	"time"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
)

// Recommendation is the result for one directed edge: products RecommenderID bought that
// FriendID has not. RecommenderHasHistory separates "recommender bought nothing" from
// "friend already owns everything".
type Recommendation struct {
	RecommenderID         int64    `json:"recommender_id"`
	FriendID              int64    `json:"friend_id"`
	Products              []string `json:"products"`
	RecommenderHasHistory bool     `json:"recommender_has_history"`
}

// RebuildStatus is the view store marker that exposes the clear-then-repopulate window.
type RebuildStatus string

const (
	RebuildStatusEmpty      RebuildStatus = ""
	RebuildStatusRebuilding RebuildStatus = "rebuilding"
	RebuildStatusReady      RebuildStatus = "ready"
	RebuildStatusIncomplete RebuildStatus = "incomplete"
)

type RebuildOutcome string

const (
	RebuildSucceeded RebuildOutcome = "succeeded"
	RebuildPartial   RebuildOutcome = "partial"
	RebuildAborted   RebuildOutcome = "aborted"
)

// RebuildResult summarizes one consolidation run.
type RebuildResult struct {
	Outcome         RebuildOutcome            `json:"outcome"`
	Customers       int                       `json:"customers"`
	Purchases       int                       `json:"purchases"`
	FriendLists     int                       `json:"friend_lists"`
	Recommendations int                       `json:"recommendations"`
	Skipped         []clovererrors.RowFailure `json:"skipped,omitempty"`
	Error           string                    `json:"error,omitempty"`
	StartedAt       time.Time                 `json:"started_at"`
	FinishedAt      time.Time                 `json:"finished_at"`
}

// SkippedCount is the number of rows that were not written.
func (r *RebuildResult) SkippedCount() int {
	return len(r.Skipped)
}

// Err returns a PartialSyncError when rows were skipped, nil otherwise.
func (r *RebuildResult) Err() error {
	if len(r.Skipped) == 0 {
		return nil
	}
	return &clovererrors.PartialSyncError{Failures: r.Skipped}
}

// ConsolidatedView is everything the view store holds, as read by presentation collaborators.
type ConsolidatedView struct {
	Status          RebuildStatus              `json:"status"`
	Customers       []Customer                 `json:"customers"`
	Purchases       []ConsolidatedPurchase     `json:"purchases"`
	Friends         map[int64][]FriendRef      `json:"friends"`
	Recommendations map[int64][]Recommendation `json:"recommendations"`
}
