package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"freight/internal/catalog"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultClaimsPageSize = 100
	claimsFetchParallel   = 4
)

type ClaimsSource interface {
	Claims(ctx context.Context, page, limit int) (catalog.ClaimsPage, error)
}

type ClaimsList struct {
	Claims []json.RawMessage `json:"claims"`
	Count  int               `json:"count"`
}

// ListClaims collects every page of the claims catalogue.
type ListClaims struct {
	source   ClaimsSource
	pageSize int
}

func NewListClaims(source ClaimsSource, pageSize int) *ListClaims {
	if pageSize <= 0 {
		pageSize = DefaultClaimsPageSize
	}
	return &ListClaims{source: source, pageSize: pageSize}
}

func (uc *ListClaims) Execute(ctx context.Context) (ClaimsList, error) {
	first, err := uc.source.Claims(ctx, 1, uc.pageSize)
	if err != nil {
		return ClaimsList{}, fmt.Errorf("list claims: %w", err)
	}

	pages := (first.Count + uc.pageSize - 1) / uc.pageSize
	rest := make([][]json.RawMessage, max(pages-1, 0))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(claimsFetchParallel)
	for i := range rest {
		i := i // per-iteration copy; go directive is 1.21
		page := i + 2
		g.Go(func() error {
			p, err := uc.source.Claims(gctx, page, uc.pageSize)
			if err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}
			rest[i] = p.Claims
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ClaimsList{}, fmt.Errorf("list claims: %w", err)
	}

	claims := append([]json.RawMessage{}, first.Claims...)
	for _, page := range rest {
		claims = append(claims, page...)
	}
	return ClaimsList{Claims: claims, Count: len(claims)}, nil
}
