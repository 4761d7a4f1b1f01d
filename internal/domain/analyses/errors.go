package analyses

import (
	"errors"
	"fmt"

	"github.com/bryanwahyu/research-market/internal/domain/errs"
)

var (
	// ErrAnalysisNotFound is returned by stores when no record matches.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrReportNotReady means the record exists but the report body is still empty.
	ErrReportNotReady = errors.New("report not ready")

	// ErrInvalidTransition rejects a status change outside CanTransition.
	ErrInvalidTransition = fmt.Errorf("%w: analysis status transition", errs.ErrInvalidState)
)
