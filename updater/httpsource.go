package updater

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/opiskelu/palaute/core"
)

const feedPath = "/palaute/updater/courses"

// HTTPSource pages through the study registry feed API.
type HTTPSource struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ Source = (*HTTPSource)(nil)

func NewHTTPSource(conf *core.Config) *HTTPSource {
	return &HTTPSource{
		baseURL: conf.Updater.FeedURL,
		token:   conf.Updater.FeedToken,
		client:  &http.Client{Timeout: time.Minute},
	}
}

func (s *HTTPSource) FetchPage(ctx context.Context, offset, limit int) ([]FeedRealisation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+feedPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building feed request")
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("token", s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching feed page")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("feed responded with status %d", resp.StatusCode)
	}

	var batch []FeedRealisation
	if err = json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, errors.Wrap(err, "decoding feed page")
	}
	return batch, nil
}
