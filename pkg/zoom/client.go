package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prolific-digital/wp-events/internal/config"
	"github.com/prolific-digital/wp-events/pkg/provider"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/errgroup"
)

const (
	pageSize       = 300
	detailFetchers = 4
	requestTimeout = 30 * time.Second
)

// Client talks to the Zoom REST API with a server-to-server OAuth app.
type Client struct {
	http     *http.Client
	baseURL  string
	userId   string
	webinars bool
	maxPages int
}

func NewClient(cfg config.Zoom, registrantPages int) *Client {
	credentials := clientcredentials.Config{
		ClientID:     cfg.ClientId,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
		EndpointParams: url.Values{
			"grant_type": {"account_credentials"},
			"account_id": {cfg.AccountId},
		},
	}
	base := &http.Client{Timeout: requestTimeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	userId := cfg.UserId
	if userId == "" {
		userId = "me"
	}
	return &Client{
		http:     credentials.Client(ctx),
		baseURL:  cfg.BaseURL,
		userId:   userId,
		webinars: cfg.Webinars,
		maxPages: registrantPages,
	}
}

func (c *Client) Name() string {
	return "zoom"
}

// ListMeetings lists the scheduled meetings of the configured user, and its
// webinars when enabled, expanding recurring ones into their instances.
func (c *Client) ListMeetings(ctx context.Context) ([]provider.Meeting, error) {
	summaries, err := c.listSummaries(ctx, kindMeeting)
	if err != nil {
		return nil, err
	}
	if c.webinars {
		webinars, err := c.listSummaries(ctx, kindWebinar)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, webinars...)
	}

	details := make([]meetingDetail, len(summaries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailFetchers)
	for i, s := range summaries {
		g.Go(func() error {
			d, err := c.getDetail(gctx, s)
			if err != nil {
				return err
			}
			details[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Errorf("failed to fetch zoom meeting details: %v", err)
		return nil, err
	}

	var meetings []provider.Meeting
	for _, d := range details {
		expanded, err := d.toMeetings()
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, expanded...)
	}
	log.Debugf("zoom reported %d meeting instances from %d meetings", len(meetings), len(summaries))
	return meetings, nil
}

func (c *Client) listSummaries(ctx context.Context, kind meetingKind) ([]meetingSummary, error) {
	var result []meetingSummary
	token := ""
	for {
		query := url.Values{"page_size": {strconv.Itoa(pageSize)}}
		if kind == kindMeeting {
			query.Set("type", "scheduled")
		}
		if token != "" {
			query.Set("next_page_token", token)
		}
		var page listResponse
		path := fmt.Sprintf("/users/%s/%s", url.PathEscape(c.userId), kind.collection())
		if err := c.get(ctx, path, query, &page); err != nil {
			return nil, err
		}
		items := page.Meetings
		if kind == kindWebinar {
			items = page.Webinars
		}
		for _, item := range items {
			item.kind = kind
			result = append(result, item)
		}
		if page.NextPageToken == "" {
			return result, nil
		}
		token = page.NextPageToken
	}
}

func (c *Client) getDetail(ctx context.Context, s meetingSummary) (meetingDetail, error) {
	var d meetingDetail
	path := fmt.Sprintf("/%s/%d", s.kind.collection(), s.Id)
	if err := c.get(ctx, path, url.Values{}, &d); err != nil {
		return meetingDetail{}, err
	}
	d.kind = s.kind
	return d, nil
}

// Registrants pages through the registrants of one meeting instance.
func (c *Client) Registrants(m provider.Meeting) *provider.RegistrantIterator {
	path := registrantsPath(m)
	return provider.NewRegistrantIterator(func(ctx context.Context, token string) ([]string, string, error) {
		query := url.Values{"page_size": {strconv.Itoa(pageSize)}}
		if m.OccurrenceExternalID != "" {
			query.Set("occurrence_id", m.OccurrenceExternalID)
		}
		if token != "" {
			query.Set("next_page_token", token)
		}
		var page registrantsResponse
		if err := c.get(ctx, path, query, &page); err != nil {
			return nil, "", err
		}
		emails := make([]string, 0, len(page.Registrants))
		for _, r := range page.Registrants {
			emails = append(emails, r.Email)
		}
		return emails, page.NextPageToken, nil
	}).WithMaxPages(c.maxPages)
}

// Register adds a registrant to a meeting instance.
func (c *Client) Register(ctx context.Context, m provider.Meeting, r provider.Registrant) error {
	query := url.Values{}
	if m.OccurrenceExternalID != "" {
		query.Set("occurrence_id", m.OccurrenceExternalID)
	}
	body, err := json.Marshal(registrantRequest{Email: r.Email, FirstName: r.FirstName, LastName: r.LastName})
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrParse, err)
	}
	var resp registrationResponse
	if err := c.do(ctx, http.MethodPost, registrantsPath(m), query, bytes.NewReader(body), &resp); err != nil {
		return err
	}
	log.Debugf("registered %s for zoom meeting %s as %s", r.Email, m.Key(), resp.RegistrantId)
	return nil
}

func registrantsPath(m provider.Meeting) string {
	id := m.ParentExternalID
	if id == "" {
		id = m.ExternalID
	}
	collection := kindMeeting.collection()
	if m.Kind == string(kindWebinar) {
		collection = kindWebinar.collection()
	}
	return fmt.Sprintf("/%s/%s/registrants", collection, url.PathEscape(id))
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrTransport, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", provider.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%w: %s %s: status %d: %s", provider.ErrTransport, method, path, resp.StatusCode, apiErr.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", provider.ErrParse, method, path, err)
	}
	return nil
}
