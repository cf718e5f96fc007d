package keypoints

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInsufficientMatches is matched by errors.Is when a frame pair produced too few good matches
// after the ratio test. Callers should skip the pair or supply a different frame.
var ErrInsufficientMatches = errors.New("insufficient matches")

// InsufficientMatchesError reports how many good matches a frame pair produced.
type InsufficientMatchesError struct {
	Found int
	Min   int
}

func (e *InsufficientMatchesError) Error() string {
	return fmt.Sprintf("not enough matches were found - %d/%d", e.Found, e.Min)
}

// Is makes the error match ErrInsufficientMatches.
func (e *InsufficientMatchesError) Is(target error) bool {
	return target == ErrInsufficientMatches
}
