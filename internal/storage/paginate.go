package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"wealthwise/internal/core"
)

// TransactionPage is the result of one pagination aggregation: the paging
// math, per-type amount totals, and one ordered page of transaction views,
// ready for JSON serialization.
type TransactionPage struct {
	Page           int                `json:"page"`
	PageSize       int                `json:"page_size"`
	TotalPages     int                `json:"total_pages"`
	TotalDocuments int                `json:"total_documents"`
	Summary        map[string]float64 `json:"summary"`
	Transactions   []map[string]any   `json:"transactions"`
}

func emptyPage(page, pageSize int) *TransactionPage {
	return &TransactionPage{
		Page:         page,
		PageSize:     pageSize,
		Summary:      map[string]float64{},
		Transactions: []map[string]any{},
	}
}

// facetResult maps the three aggregation facets.
type facetResult struct {
	Summary []struct {
		Type        string  `bson:"_id"`
		TotalAmount float64 `bson:"total_amount"`
	} `bson:"summary"`
	Transactions []bson.M `bson:"transactions"`
	TotalCount   []struct {
		TotalDocuments int `bson:"total_documents"`
	} `bson:"total_count"`
}

// Paginate returns one page of the user's transactions together with
// per-type amount sums and the total count, all from a single aggregation
// pass. A user with no owned transactions gets the empty page, not an
// error.
func (s *Store) Paginate(ctx context.Context, user *core.User, page, pageSize int) (*TransactionPage, error) {
	return s.aggregatePage(ctx, user, "", page, pageSize)
}

// PaginateByPeriod is Paginate restricted to transactions whose created_at
// begins with the year (and zero-padded month, when given). A month
// without a year is rejected; neither supplied leaves the period
// unconstrained.
func (s *Store) PaginateByPeriod(ctx context.Context, user *core.User, year, month, page, pageSize int) (*TransactionPage, error) {
	prefix, err := periodPrefix(year, month)
	if err != nil {
		return nil, err
	}
	return s.aggregatePage(ctx, user, prefix, page, pageSize)
}

func (s *Store) aggregatePage(ctx context.Context, user *core.User, periodPrefix string, page, pageSize int) (*TransactionPage, error) {
	if len(user.Transactions) == 0 {
		return emptyPage(page, pageSize), nil
	}

	skip := (page - 1) * pageSize
	pipeline := []bson.M{
		{"$match": bson.M{"_id": bson.M{"$in": user.Transactions}}},
	}
	if periodPrefix != "" {
		pipeline = append(pipeline, bson.M{
			"$match": bson.M{"created_at": bson.M{"$regex": "^" + periodPrefix}},
		})
	}
	pipeline = append(pipeline,
		// created_at is a fixed-format string, so lexicographic order is
		// chronological order.
		bson.M{"$sort": bson.M{"created_at": 1, "_id": 1}},
		bson.M{"$facet": bson.M{
			"summary": []bson.M{
				{"$group": bson.M{
					"_id":          "$type",
					"total_amount": bson.M{"$sum": "$amount"},
				}},
			},
			"transactions": []bson.M{
				{"$skip": skip},
				{"$limit": pageSize},
				{"$project": bson.M{
					"_id":         1,
					"created_at":  1,
					"updated_at":  1,
					"amount":      1,
					"type":        1,
					"category":    1,
					"description": 1,
				}},
			},
			"total_count": []bson.M{
				{"$count": "total_documents"},
			},
		}},
	)

	cursor, err := s.collection(core.KindTransaction).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var results []facetResult
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode aggregation: %w", err)
	}
	if len(results) == 0 || len(results[0].TotalCount) == 0 {
		// Nothing matched the id filter; fail soft.
		return emptyPage(page, pageSize), nil
	}
	return buildPage(results[0], page, pageSize)
}

func buildPage(res facetResult, page, pageSize int) (*TransactionPage, error) {
	out := emptyPage(page, pageSize)
	out.TotalDocuments = res.TotalCount[0].TotalDocuments
	out.TotalPages = pageCount(out.TotalDocuments, pageSize)

	for _, g := range res.Summary {
		out.Summary[g.Type] = g.TotalAmount
	}
	for _, doc := range res.Transactions {
		txn, err := core.TransactionFromDocument(normalize(doc))
		if err != nil {
			return nil, fmt.Errorf("rehydrate transaction page: %w", err)
		}
		out.Transactions = append(out.Transactions, txn.View())
	}
	return out, nil
}

// pageCount is ceil(total / pageSize).
func pageCount(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// periodPrefix builds the created_at prefix for a year/month filter:
// "2023" for a year alone, "2023-08" for a year and month. No year and no
// month means no filter; a month alone is rejected.
func periodPrefix(year, month int) (string, error) {
	switch {
	case year != 0 && month != 0:
		return fmt.Sprintf("%d-%02d", year, month), nil
	case year != 0:
		return fmt.Sprintf("%d", year), nil
	case month != 0:
		return "", ErrMonthWithoutYear
	default:
		return "", nil
	}
}
