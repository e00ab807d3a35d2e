package domain

import (
	"errors"
	"fmt"
)

// The two fatal error classes tell an operator what to do about a failed
// run: configuration errors mean a path, column, or setting is wrong;
// data-insufficiency errors mean the inputs parsed but carry too little
// usable data, so investigate coverage and recency instead. Commands map
// them to distinct exit codes.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrDataInsufficiency = errors.New("insufficient data")
)

// Configuration failures.
var (
	ErrNoInputFiles   = fmt.Errorf("%w: no hourly input files", ErrConfiguration)
	ErrMissingColumns = fmt.Errorf("%w: missing required columns", ErrConfiguration)
	ErrMissingTable   = fmt.Errorf("%w: missing processed table", ErrConfiguration)
	ErrBoundaryName   = fmt.Errorf("%w: boundaries missing name properties", ErrConfiguration)
)

// Data-insufficiency failures.
var (
	ErrNoRecordsIngested = fmt.Errorf("%w: no records ingested", ErrDataInsufficiency)
	ErrNoValidRecords    = fmt.Errorf("%w: no valid hourly records", ErrDataInsufficiency)
	ErrNoEligibleCities  = fmt.Errorf("%w: no cities meet coverage criteria", ErrDataInsufficiency)
	ErrEmptyDailyTable   = fmt.Errorf("%w: daily table is empty", ErrDataInsufficiency)
)
