package domain

import "errors"

var (
	// ErrQuestionOutOfRange is returned for catalog lookups outside [0, total).
	ErrQuestionOutOfRange = errors.New("question index out of range")
	// ErrDuplicateSubmission is returned when a (name, endpoint) pair already has a row.
	ErrDuplicateSubmission = errors.New("submission already exists")
	// ErrSubmissionNotFound is returned when no row matches a (name, endpoint) pair.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrStoreBusy is returned when the store lock could not be acquired within the retry budget.
	ErrStoreBusy = errors.New("leaderboard store busy")
)
