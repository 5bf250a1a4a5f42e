package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DedS3t/monopoly-arena/platform/engine"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

type remoteRequest struct {
	State   *engine.GameState `json:"state"`
	Profile Profile           `json:"profile"`
}

// Remote asks an HTTP service for decisions. When the service fails or
// answers with an unknown action, Fallback decides instead if set.
type Remote struct {
	URL      string
	Timeout  time.Duration
	Fallback DecisionSource
	client   *fasthttp.Client
	log      *logrus.Entry
}

func NewRemote(url string, timeout time.Duration, fallback DecisionSource) *Remote {
	return &Remote{
		URL:      url,
		Timeout:  timeout,
		Fallback: fallback,
		client:   &fasthttp.Client{Name: "monopoly-arena"},
		log:      logrus.WithField("component", "agent.remote"),
	}
}

func (r *Remote) Decide(ctx context.Context, state *engine.GameState, p Profile) (Decision, error) {
	d, err := r.call(ctx, state, p)
	if err == nil {
		return d, nil
	}
	if r.Fallback == nil {
		return Decision{}, err
	}
	r.log.WithFields(logrus.Fields{"game_id": state.Game.Id, "seat_id": p.SeatId}).WithError(err).Warn("remote decision failed, using fallback")
	return r.Fallback.Decide(ctx, state, p)
}

func (r *Remote) call(ctx context.Context, state *engine.GameState, p Profile) (Decision, error) {
	body, err := json.Marshal(remoteRequest{State: state, Profile: p})
	if err != nil {
		return Decision{}, err
	}

	timeout := r.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout || timeout <= 0 {
			timeout = left
		}
	}
	if timeout <= 0 {
		return Decision{}, fmt.Errorf("decision request: %w", context.DeadlineExceeded)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.URL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := r.client.DoTimeout(req, resp, timeout); err != nil {
		return Decision{}, fmt.Errorf("decision request: %w", err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return Decision{}, fmt.Errorf("decision request: status %d", code)
	}
	var d Decision
	if err := json.Unmarshal(resp.Body(), &d); err != nil {
		return Decision{}, fmt.Errorf("decision response: %w", err)
	}
	if !d.Type.Valid() {
		return Decision{}, fmt.Errorf("decision response: unknown action %q", d.Type)
	}
	return d, nil
}
