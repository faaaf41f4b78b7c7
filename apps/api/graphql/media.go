package gqlapi

import (
	"context"

	"github.com/trezcool/prsonline/core"
)

type uploadArgs struct {
	File  Upload
	Email string
}

// Upload saves a profile picture and returns its public URL.
// Users may only change their own picture; admins may change anyone's.
func (r *Resolver) Upload(ctx context.Context, args uploadArgs) (string, error) {
	id, err := requireUser(ctx)
	if err != nil {
		return "", err
	}
	if !sessionFrom(ctx).IsAdmin() {
		caller, err := r.users.GetByID(ctx, id)
		if err != nil {
			return "", r.fail(ctx, err)
		}
		if caller.Email != core.CleanString(args.Email, true /* lower */) {
			return "", errForbidden
		}
	}

	url, err := r.media.Upload(ctx, args.File.Upload, args.Email)
	if err != nil {
		return "", r.fail(ctx, err)
	}
	return url, nil
}
