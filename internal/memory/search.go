package memory

import (
	"context"
	"strings"
	"unicode/utf8"
)

// ─── Search (FTS5 trigram) ───────────────────────────────────────────────────

// MinKeywordLength is the shortest keyword the trigram tokenizer can match.
const MinKeywordLength = 3

// SearchHit is one projected row matching a keyword.
type SearchHit struct {
	Type      SourceType `json:"type"`
	ID        int64      `json:"id"`
	SubjectID int64      `json:"subject_id"`
	Title     string     `json:"title"`
	Score     float64    `json:"score"`
	CreatedAt string     `json:"created_at"`
}

// SearchOptions holds filters for keyword search.
type SearchOptions struct {
	Type  SourceType  `json:"type,omitempty"`
	Order SearchOrder `json:"order,omitempty"`
	Limit int         `json:"limit,omitempty"`
}

// Item is the full source row behind a search hit. Exactly one of Topic,
// Decision or Task is set.
type Item struct {
	Type     SourceType `json:"type"`
	Topic    *Topic     `json:"topic,omitempty"`
	Decision *Decision  `json:"decision,omitempty"`
	Task     *Task      `json:"task,omitempty"`
}

// Search finds topics, decisions and tasks of one subject whose title or body
// contains keyword as a literal substring. Results are newest first unless
// opts.Order is OrderRelevance.
func (s *Store) Search(ctx context.Context, subjectID int64, keyword string, opts SearchOptions) ([]SearchHit, error) {
	if err := requireID("subject_id", subjectID); err != nil {
		return nil, err
	}
	keyword = strings.TrimSpace(keyword)
	if utf8.RuneCountInString(keyword) < MinKeywordLength {
		return nil, invalidParam("keyword must be at least %d characters", MinKeywordLength)
	}
	typ, err := ParseSourceType(string(opts.Type))
	if err != nil {
		return nil, err
	}
	order, err := ParseSearchOrder(string(opts.Order))
	if err != nil {
		return nil, err
	}
	limit := ClampLimit(opts.Limit, s.cfg.MaxSearchResults)

	query := `
		SELECT si.source_type, si.source_id, si.subject_id, si.title, si.created_at,
		       -bm25(search_index_fts, 5.0, 1.0) AS score
		FROM search_index_fts
		JOIN search_index si ON si.id = search_index_fts.rowid
		WHERE search_index_fts MATCH ? AND si.subject_id = ?`
	args := []any{literalPhrase(keyword), subjectID}
	if typ != "" {
		query += ` AND si.source_type = ?`
		args = append(args, typ)
	}
	if order == OrderRelevance {
		query += ` ORDER BY score DESC, si.id DESC`
	} else {
		query += ` ORDER BY si.created_at DESC, si.id DESC`
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("search", err)
	}
	defer func() { _ = rows.Close() }()

	hits := []SearchHit{}
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.Type, &h.ID, &h.SubjectID, &h.Title, &h.CreatedAt, &h.Score); err != nil {
			return nil, dbError("search", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("search", err)
	}
	return hits, nil
}

// GetByID fetches the source row of a search hit.
func (s *Store) GetByID(ctx context.Context, typ string, id int64) (*Item, error) {
	st, err := ParseSourceType(typ)
	if err != nil {
		return nil, err
	}
	switch st {
	case SourceTopic:
		t, err := s.GetTopic(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Item{Type: st, Topic: t}, nil
	case SourceDecision:
		d, err := s.GetDecision(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Item{Type: st, Decision: d}, nil
	case SourceTask:
		t, err := s.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Item{Type: st, Task: t}, nil
	default:
		return nil, invalidParam("type is required (valid: %s)", strings.Join(SourceTypeValues(), ", "))
	}
}

// GetDecision returns one decision by id.
func (s *Store) GetDecision(ctx context.Context, id int64) (*Decision, error) {
	if err := requireID("decision_id", id); err != nil {
		return nil, err
	}
	var d Decision
	err := s.db.QueryRowContext(ctx,
		`SELECT id, topic_id, decision, reason, created_at FROM decisions WHERE id = ?`, id,
	).Scan(&d.ID, &d.TopicID, &d.Decision, &d.Reason, &d.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, notFound("decision", id)
		}
		return nil, dbError("get decision", err)
	}
	return &d, nil
}

// literalPhrase quotes keyword as a single FTS5 string so operators, column
// filters and wildcards inside it are matched literally.
// `say "hi" OR x` → `"say ""hi"" OR x"`
func literalPhrase(keyword string) string {
	return `"` + strings.ReplaceAll(keyword, `"`, `""`) + `"`
}
