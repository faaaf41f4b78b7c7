package gqlapi

import (
	"context"
	_ "embed"

	ut "github.com/go-playground/universal-translator"
	"github.com/graph-gophers/graphql-go"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/media"
	"github.com/trezcool/prsonline/core/notice"
	"github.com/trezcool/prsonline/core/user"
)

//go:embed schema.graphql
var schemaSDL string

const maxParallelism = 10

// Resolver is the root resolver of both the queries and the mutations.
type Resolver struct {
	users      *user.Service
	notices    *notice.Service
	media      *media.Service
	translator ut.Translator
	logger     core.Logger
	debug      bool
}

func NewResolver(
	conf *core.Config,
	users *user.Service,
	notices *notice.Service,
	mediaSvc *media.Service,
	translator ut.Translator,
	logger core.Logger,
) *Resolver {
	return &Resolver{
		users:      users,
		notices:    notices,
		media:      mediaSvc,
		translator: translator,
		logger:     logger,
		debug:      conf.Debug,
	}
}

// NewSchema parses the GraphQL schema and binds it to r.
func NewSchema(r *Resolver) (*graphql.Schema, error) {
	return graphql.ParseSchema(schemaSDL, r, graphql.MaxParallelism(maxParallelism))
}

func requireUser(ctx context.Context) (int, error) {
	id, ok := sessionFrom(ctx).UserID()
	if !ok {
		return 0, errUnauthorized
	}
	return id, nil
}

func requireAdmin(ctx context.Context) error {
	if _, err := requireUser(ctx); err != nil {
		return err
	}
	if !sessionFrom(ctx).IsAdmin() {
		return errForbidden
	}
	return nil
}
