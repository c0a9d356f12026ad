package maillist

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"emailthing/internal/model"
	"emailthing/pkg/config"
	"emailthing/pkg/logger"
	"emailthing/pkg/metrics"
)

var (
	ErrInvalidFacet      = errors.New("invalid facet")
	ErrMissingMailbox    = errors.New("mailbox id is required")
	ErrInvalidCursor     = errors.New("invalid cursor")
	ErrUnsupportedCursor = errors.New("offset cursors are no longer supported")
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Request asks for one page of a mailbox facet. The caller is responsible
// for having authorized access to MailboxID.
type Request struct {
	MailboxID string
	Facet     Facet
	// CategoryID is a category id for the email facets and a temp alias id
	// for FacetTemp. Ignored for drafts.
	CategoryID string
	Search     string
	Cursor     *Cursor
	PageSize   int
}

type Response struct {
	Rows []model.Row
	// CategoryCounts is nil when no breakdown was computed (category
	// filter, search, or drafts), which is distinct from an empty map.
	CategoryCounts map[string]int
	TotalCount     int
	// NextCursor is nil once the facet is exhausted.
	NextCursor *Cursor
}

type Service struct {
	store           Store
	logger          *zap.Logger
	defaultPageSize int
	maxPageSize     int
}

func NewService(store Store, cfg config.ListConfig, logger *zap.Logger) *Service {
	s := &Service{
		store:           store,
		logger:          logger,
		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
	}
	if s.defaultPageSize <= 0 {
		s.defaultPageSize = DefaultPageSize
	}
	if s.maxPageSize <= 0 {
		s.maxPageSize = MaxPageSize
	}
	if s.defaultPageSize > s.maxPageSize {
		s.defaultPageSize = s.maxPageSize
	}
	return s
}

// List reads one page of a facet together with its total size and, when
// applicable, the per-category breakdown. The three reads are independent
// and run concurrently; the first storage error is returned as is.
func (s *Service) List(ctx context.Context, req Request) (*Response, error) {
	if req.MailboxID == "" {
		return nil, ErrMissingMailbox
	}
	if !req.Facet.Valid() {
		return nil, ErrInvalidFacet
	}

	start := time.Now()
	resp, err := s.list(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
		logger.WithTrace(ctx, s.logger).Error("mailbox list query failed",
			zap.String("mailbox_id", req.MailboxID),
			zap.String("facet", string(req.Facet)),
			zap.Error(err),
		)
	} else {
		metrics.RecordRowsReturned(string(req.Facet), len(resp.Rows))
	}
	metrics.RecordListQuery(string(req.Facet), status, time.Since(start))
	return resp, err
}

func (s *Service) list(ctx context.Context, req Request) (*Response, error) {
	pl := planFor(req)
	pageSize := s.pageSize(req.PageSize)

	var (
		records []model.Record
		counts  map[string]int
		total   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.store.FindMany(gctx, Query{
			Predicate: pl.predicate,
			Sort:      pl.sort,
			Start:     req.Cursor,
			Limit:     pageSize + 1,
		})
		return err
	})
	if pl.breakdown {
		g.Go(func() error {
			var err error
			counts, err = s.store.GroupByCount(gctx, pl.predicate, pl.group)
			return err
		})
	}
	g.Go(func() error {
		var err error
		total, err = s.store.Count(gctx, pl.predicate)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp := &Response{TotalCount: total}
	if pl.breakdown {
		if counts == nil {
			counts = map[string]int{}
		}
		resp.CategoryCounts = counts
	}

	if len(records) > pageSize {
		extra := records[pageSize]
		resp.NextCursor = &Cursor{ID: extra.ID(), SortKey: sortValue(extra, pl.sort)}
		records = records[:pageSize]
	}

	resp.Rows = make([]model.Row, 0, len(records))
	for _, r := range records {
		row, err := Normalize(r)
		if err != nil {
			return nil, err
		}
		resp.Rows = append(resp.Rows, row)
	}

	logger.WithTrace(ctx, s.logger).Debug("mailbox list page",
		zap.String("mailbox_id", req.MailboxID),
		zap.String("facet", string(req.Facet)),
		zap.Int("rows", len(resp.Rows)),
		zap.Int("total", total),
		zap.Bool("has_more", resp.NextCursor != nil),
	)
	return resp, nil
}

func (s *Service) pageSize(requested int) int {
	switch {
	case requested <= 0:
		return s.defaultPageSize
	case requested > s.maxPageSize:
		return s.maxPageSize
	default:
		return requested
	}
}
