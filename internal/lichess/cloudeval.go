package lichess

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// EvalClient queries the Lichess cloud evaluation database.
type EvalClient struct {
	rest
	baseURL string
}

// NewEvalClient points at the cloud-eval endpoint, e.g.
// https://lichess.org/api/cloud-eval.
func NewEvalClient(baseURL string, opts ...Option) *EvalClient {
	return &EvalClient{
		rest:    newRest(opts...),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// CloudEval is one cached evaluation: search depth and the stored principal
// variations, best first.
type CloudEval struct {
	FEN    string `json:"fen"`
	KNodes int    `json:"knodes"`
	Depth  int    `json:"depth"`
	PVs    []PV   `json:"pvs"`
}

// PV is a principal variation. Exactly one of CP and Mate is set.
type PV struct {
	Moves string `json:"moves"`
	CP    *int   `json:"cp,omitempty"`
	Mate  *int   `json:"mate,omitempty"`
}

// BestMove returns the first move of the top variation in UCI form.
func (e *CloudEval) BestMove() (string, bool) {
	if e == nil || len(e.PVs) == 0 {
		return "", false
	}
	fields := strings.Fields(e.PVs[0].Moves)
	if len(fields) == 0 {
		return "", false
	}
	return strings.ToLower(fields[0]), true
}

// Evaluate fetches the stored evaluation for a position. ErrNotFound means
// the position is outside the remote database.
func (c *EvalClient) Evaluate(ctx context.Context, fen string, multiPV int) (*CloudEval, error) {
	if multiPV <= 0 {
		multiPV = 1
	}
	q := url.Values{}
	q.Set("fen", fen)
	q.Set("multiPv", strconv.Itoa(multiPV))

	var out CloudEval
	if err := c.getJSON(ctx, c.baseURL+"?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
