package services

import "errors"

// Виды ошибок. Каждая конкретная ошибка ниже оборачивает один из них,
// поэтому вызывающий код может ветвиться через errors.Is по виду.
var (
	ErrNotFound          = errors.New("requested resource not found")
	ErrConflict          = errors.New("conflict with existing state")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidOperation  = errors.New("operation not allowed in current state")
	ErrLocked            = errors.New("resource is locked")
	ErrDependency        = errors.New("resource has dependent records")
	ErrValidationFailed  = errors.New("validation failed")
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

// Не найдено
var (
	ErrCompetitionNotFound        = newError(ErrNotFound, "competition not found")
	ErrCityNotFound               = newError(ErrNotFound, "city not found")
	ErrCompetitionCityNotFound    = newError(ErrNotFound, "city is not part of this competition")
	ErrRoundNotFound              = newError(ErrNotFound, "round not found")
	ErrParticipationNotFound      = newError(ErrNotFound, "participation not found")
	ErrRoundParticipationNotFound = newError(ErrNotFound, "round participation not found")
	ErrResultNotFound             = newError(ErrNotFound, "result not found")
	ErrUserNotFound               = newError(ErrNotFound, "user not found")
	ErrNotInRound                 = newError(ErrNotFound, "participant is not in this round")
)

// Конфликты
var (
	ErrDuplicateFinale         = newError(ErrConflict, "competition city already has a finale round")
	ErrAlreadyInRound          = newError(ErrConflict, "participant is already in this round")
	ErrAlreadyRegistered       = newError(ErrConflict, "user is already registered for this competition city")
	ErrRoundNumberConflict     = newError(ErrConflict, "round number already exists for this competition city")
	ErrCityNameConflict        = newError(ErrConflict, "city name already exists")
	ErrCompetitionCityConflict = newError(ErrConflict, "city is already part of this competition")
)

// Статусы и бизнес-правила
var (
	ErrInvalidStatusTransition   = newError(ErrInvalidTransition, "invalid competition status transition")
	ErrRegistrationToggleBlocked = newError(ErrInvalidOperation, "registration can only be toggled while the competition is DRAFT or ACTIVE")
	ErrRegistrationClosed        = newError(ErrInvalidOperation, "registration is closed")
	ErrCityInactive              = newError(ErrInvalidOperation, "city is inactive")
	ErrNoNextRound               = newError(ErrInvalidOperation, "next round does not exist")
	ErrNotFinale                 = newError(ErrInvalidOperation, "round is not a finale")
	ErrNotArchived               = newError(ErrInvalidOperation, "round is not archived")
	ErrAlreadyArchived           = newError(ErrInvalidOperation, "round is already archived")
	ErrRoundArchived             = newError(ErrInvalidOperation, "round is archived")
	ErrNotRoundOne               = newError(ErrInvalidOperation, "round is not the first round")
	ErrIncompleteRounds          = newError(ErrInvalidOperation, "competition city has rounds that are not completed")
	ErrFinaleNotCompleted        = newError(ErrInvalidOperation, "competition city finale is not completed")
	ErrAlreadyFinished           = newError(ErrInvalidOperation, "competition city is already finished")
	ErrParticipationElsewhere    = newError(ErrInvalidOperation, "participation belongs to another competition")
)

var ErrResultLocked = newError(ErrLocked, "result is locked")

// Удаление заблокировано дочерними записями
var (
	ErrHasParticipants     = newError(ErrDependency, "competition has participants")
	ErrHasSubsequentRounds = newError(ErrDependency, "round has subsequent rounds; delete newest first")
	ErrBranchHasDependents = newError(ErrDependency, "competition city has participants or rounds")
)

// Валидация
var (
	ErrNameRequired          = newError(ErrValidationFailed, "name is required")
	ErrInvalidStatus         = newError(ErrValidationFailed, "invalid status value")
	ErrInvalidCount          = newError(ErrValidationFailed, "count must be positive")
	ErrInvalidRoundNumber    = newError(ErrValidationFailed, "round number must be at least 1")
	ErrInvalidPosition       = newError(ErrValidationFailed, "winner position must be at least 1")
	ErrDuplicateWinner       = newError(ErrValidationFailed, "participant listed more than once")
	ErrTooManyRecords        = newError(ErrValidationFailed, "too many score records in one upload")
	ErrInvalidResultStatus   = newError(ErrValidationFailed, "invalid result status")
	ErrInvalidResultPosition = newError(ErrValidationFailed, "result position must be at least 1")
)
