package notice

import "github.com/pkg/errors"

var (
	ErrNotFound     = errors.New("upcoming review notice not found")
	ErrInvalidStage = errors.New("invalid notice stage")
	ErrWrongStage   = errors.New("notice is not in this stage")
	ErrNotGenerated = errors.New("notice has not been generated")
	ErrApproved     = errors.New("notice has already been approved")
)
