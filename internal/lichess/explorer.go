package lichess

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// ExplorerClient queries the Lichess opening explorer (masters database).
type ExplorerClient struct {
	rest
	baseURL string
}

// NewExplorerClient points at an explorer endpoint, e.g.
// https://explorer.lichess.ovh/masters.
func NewExplorerClient(baseURL string, opts ...Option) *ExplorerClient {
	return &ExplorerClient{
		rest:    newRest(opts...),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// ExplorerQuery narrows an explorer lookup. Play is the UCI move sequence
// from the starting position.
type ExplorerQuery struct {
	Play     []string
	Since    int
	Until    int
	TopGames int
}

// ExplorerResult aggregates masters statistics for one line.
type ExplorerResult struct {
	White    int            `json:"white"`
	Draws    int            `json:"draws"`
	Black    int            `json:"black"`
	Opening  *Opening       `json:"opening"`
	Moves    []ExplorerMove `json:"moves"`
	TopGames []TopGame      `json:"topGames"`
}

// Opening names a line with its ECO classification.
type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

// ExplorerMove is one popular continuation with its statistics.
type ExplorerMove struct {
	UCI           string `json:"uci"`
	SAN           string `json:"san"`
	AverageRating int    `json:"averageRating"`
	White         int    `json:"white"`
	Draws         int    `json:"draws"`
	Black         int    `json:"black"`
}

// TopGame is a sample historical game for the line.
type TopGame struct {
	ID     string         `json:"id"`
	Winner string         `json:"winner"`
	Year   int            `json:"year"`
	White  ExplorerPlayer `json:"white"`
	Black  ExplorerPlayer `json:"black"`
}

type ExplorerPlayer struct {
	Name   string `json:"name"`
	Rating int    `json:"rating"`
}

// TotalGames sums the aggregate results.
func (r *ExplorerResult) TotalGames() int {
	if r == nil {
		return 0
	}
	return r.White + r.Draws + r.Black
}

// Lookup fetches masters statistics for a move sequence. ErrNotFound means
// the line has no recorded games.
func (c *ExplorerClient) Lookup(ctx context.Context, query ExplorerQuery) (*ExplorerResult, error) {
	q := url.Values{}
	if len(query.Play) > 0 {
		q.Set("play", strings.Join(query.Play, ","))
	}
	if query.Since > 0 {
		q.Set("since", strconv.Itoa(query.Since))
	}
	if query.Until > 0 {
		q.Set("until", strconv.Itoa(query.Until))
	}
	if query.TopGames >= 0 {
		q.Set("topGames", strconv.Itoa(query.TopGames))
	}

	var out ExplorerResult
	if err := c.getJSON(ctx, c.baseURL+"?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
