package gqlapi

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/media"
	"github.com/trezcool/prsonline/core/notice"
	"github.com/trezcool/prsonline/core/user"
)

var (
	errUnauthorized = errors.New("not authenticated")
	errForbidden    = errors.New("permission denied")
	errInternal     = errors.New("internal server error")
)

// publicErrors are shown to the client as is.
var publicErrors = []error{
	errUnauthorized,
	errForbidden,
	user.ErrInvalidUser,
	user.ErrNotFound,
	notice.ErrNotFound,
	notice.ErrInvalidStage,
	notice.ErrWrongStage,
	notice.ErrNotGenerated,
	notice.ErrApproved,
	media.ErrNoFile,
}

// fieldsError carries field errors in the "extensions" of a GraphQL error.
type fieldsError struct {
	msg    string
	fields []core.FieldError
}

func (e fieldsError) Error() string {
	return e.msg
}

func (e fieldsError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": "BAD_USER_INPUT", "fields": e.fields}
}

// fieldErrors returns the field errors of a validation failure.
func (r *Resolver) fieldErrors(err error) ([]core.FieldError, bool) {
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		return core.TranslateValidationErrors(vErrs, r.translator), true
	}
	if vErr, ok := core.AsValidationError(err); ok {
		if len(vErr.Fields) > 0 {
			return vErr.Fields, true
		}
		return []core.FieldError{{Error: vErr.Error()}}, true
	}
	return nil, false
}

// fail prepares err for the client: validation failures and domain errors are kept, anything else
// is reported and replaced by a generic error outside of debug mode.
func (r *Resolver) fail(ctx context.Context, err error) error {
	if flds, ok := r.fieldErrors(err); ok {
		msg := flds[0].Error
		if flds[0].Field != "" {
			msg = flds[0].Field + ": " + msg
		}
		return fieldsError{msg: msg, fields: flds}
	}
	cause := errors.Cause(err)
	for _, pErr := range publicErrors {
		if cause == pErr {
			return cause
		}
	}

	args := []interface{}{err}
	if id, ok := sessionFrom(ctx).UserID(); ok {
		args = append(args, user.User{ID: id})
	}
	r.logger.Error(fmt.Sprintf("graphql: %v", err), args...)
	if r.debug {
		return err
	}
	return errInternal
}
