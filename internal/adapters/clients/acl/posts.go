package acl

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jsamuelsen/quote-manager/internal/domain"
)

// post is one record of the remote feed. It never leaves this package.
type post struct {
	ID    *int   `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

func decodePosts(body io.Reader) ([]post, error) {
	var posts []post
	if err := json.NewDecoder(body).Decode(&posts); err != nil {
		return nil, fmt.Errorf("decoding posts: %w", err)
	}

	return posts, nil
}

// toQuotes keeps the first limit posts in feed order and stamps each with
// the same fetch time. Records are not validated here; the reconciler
// rejects malformed ones.
func toQuotes(posts []post, limit int, stamp domain.Timestamp) []domain.Quote {
	if len(posts) > limit {
		posts = posts[:limit]
	}

	quotes := make([]domain.Quote, 0, len(posts))
	for i := range posts {
		quotes = append(quotes, toQuote(&posts[i], stamp))
	}

	return quotes
}

// toQuote maps a post onto a quote. A missing or non-positive id is left
// unset so the record fails identity checks downstream. An empty body
// falls back to the default category.
func toQuote(p *post, stamp domain.Timestamp) domain.Quote {
	q := domain.Quote{Text: p.Title, Category: p.Body}.WithUpdatedAt(stamp)

	if p.ID != nil && *p.ID > 0 {
		q = q.WithID(*p.ID)
	}

	if strings.TrimSpace(q.Category) == "" {
		q.Category = domain.DefaultCategory
	}

	return q
}
