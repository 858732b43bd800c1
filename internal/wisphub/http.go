package wisphub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("wisphub http %d: %s", e.StatusCode, e.Message)
}

type HTTPClient struct {
	BaseURL    string
	APIKey     string
	PageSize   int
	MaxPages   int
	MaxRetries int
	StaffTTL   time.Duration
	Client     *http.Client

	limiter *rate.Limiter
	now     func() time.Time

	mu        sync.Mutex
	staff     []Staff
	staffAt   time.Time
	staffLive bool
}

var _ Client = (*HTTPClient)(nil)

// ErrPageLimit is returned when a listing still has pages after MaxPages.
var ErrPageLimit = errors.New("wisphub: page limit reached")

func (c *HTTPClient) maxPages() int {
	if c.MaxPages <= 0 {
		return 50
	}
	return c.MaxPages
}

// NewHTTPClient builds a client limited to ratePerSecond requests.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, ratePerSecond float64) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	return &HTTPClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		APIKey:     apiKey,
		PageSize:   100,
		MaxPages:   50,
		MaxRetries: 2,
		StaffTTL:   10 * time.Minute,
		Client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		now:        time.Now,
	}
}

// InvalidateStaff drops the cached staff directory; the next Staff call refetches it.
func (c *HTTPClient) InvalidateStaff() {
	c.mu.Lock()
	c.staffLive = false
	c.staff = nil
	c.mu.Unlock()
}

func (c *HTTPClient) Staff(ctx context.Context) ([]Staff, error) {
	c.mu.Lock()
	if c.staffLive && c.now().Sub(c.staffAt) < c.StaffTTL {
		out := append([]Staff(nil), c.staff...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	var staff []Staff
	for page := 1; ; page++ {
		if page > c.maxPages() {
			return nil, fmt.Errorf("staff directory: %w", ErrPageLimit)
		}
		body, err := c.do(ctx, http.MethodGet, "/api/staff/", url.Values{"page": {strconv.Itoa(page)}}, nil)
		if err != nil {
			return nil, err
		}
		results, next, err := decodeList[map[string]any](body)
		if err != nil {
			return nil, fmt.Errorf("decode staff: %w", err)
		}
		for _, raw := range results {
			staff = append(staff, staffFromRaw(raw))
		}
		if !next || len(results) == 0 {
			break
		}
	}

	c.mu.Lock()
	c.staff = staff
	c.staffAt = c.now()
	c.staffLive = true
	c.mu.Unlock()
	return append([]Staff(nil), staff...), nil
}

func (c *HTTPClient) TicketsPage(ctx context.Context, page int, filter TicketFilter) (TicketPage, error) {
	q := url.Values{
		"page":      {strconv.Itoa(page)},
		"page_size": {strconv.Itoa(c.PageSize)},
	}
	if !filter.StartDate.IsZero() {
		q.Set("fecha_creacion_0", filter.StartDate.Format("2006-01-02"))
	}
	if !filter.EndDate.IsZero() {
		q.Set("fecha_creacion_1", filter.EndDate.Format("2006-01-02"))
	}
	body, err := c.do(ctx, http.MethodGet, "/api/tickets/", q, nil)
	if err != nil {
		return TicketPage{}, err
	}
	var resp struct {
		Count   int              `json:"count"`
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return TicketPage{}, fmt.Errorf("decode tickets page: %w", err)
	}
	out := TicketPage{Count: resp.Count, Results: make([]Ticket, 0, len(resp.Results))}
	for _, raw := range resp.Results {
		out.Results = append(out.Results, TicketFromRaw(raw))
	}
	return out, nil
}

func (c *HTTPClient) TicketRaw(ctx context.Context, ticketID string) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/tickets/"+url.PathEscape(ticketID)+"/", nil, nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode ticket %s: %w", ticketID, err)
	}
	return raw, nil
}

func (c *HTTPClient) TicketDetail(ctx context.Context, ticketID string) (Ticket, error) {
	raw, err := c.TicketRaw(ctx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	t := TicketFromRaw(raw)
	if t.ID == "" {
		t.ID = ticketID
	}
	return t, nil
}

// UpdateTicket replaces the full upstream record. Missing fields are taken as zero values
// upstream, so payload must be complete.
func (c *HTTPClient) UpdateTicket(ctx context.Context, ticketID string, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal ticket %s: %w", ticketID, err)
	}
	_, err = c.do(ctx, http.MethodPut, "/api/tickets/"+url.PathEscape(ticketID)+"/", nil, b)
	return err
}

func (c *HTTPClient) ClientNeighborhoods(ctx context.Context) ([]ClientNeighborhood, error) {
	var out []ClientNeighborhood
	for page := 1; ; page++ {
		if page > c.maxPages() {
			return nil, fmt.Errorf("clients: %w", ErrPageLimit)
		}
		body, err := c.do(ctx, http.MethodGet, "/api/clientes/", url.Values{
			"page":      {strconv.Itoa(page)},
			"page_size": {strconv.Itoa(c.PageSize)},
		}, nil)
		if err != nil {
			return nil, err
		}
		results, next, err := decodeList[map[string]any](body)
		if err != nil {
			return nil, fmt.Errorf("decode clients: %w", err)
		}
		for _, raw := range results {
			if n, ok := neighborhoodFromRaw(raw); ok {
				out = append(out, n)
			}
		}
		if !next || len(results) == 0 {
			break
		}
	}
	return out, nil
}

func staffFromRaw(raw map[string]any) Staff {
	return Staff{
		ID:       firstInt(raw, "id", "id_staff"),
		Name:     firstString(raw, "nombre", "name"),
		Username: firstString(raw, "usuario", "username"),
		Email:    getString(raw, "email"),
		Level:    getString(raw, "nivel"),
	}
}

func neighborhoodFromRaw(raw map[string]any) (ClientNeighborhood, bool) {
	name := getString(raw, "barrio")
	if name == "" {
		return ClientNeighborhood{}, false
	}
	n := ClientNeighborhood{Name: name}
	if coords := getString(raw, "coordenadas"); coords != "" {
		latS, lonS, ok := strings.Cut(coords, ",")
		if ok {
			lat, okLat := toFloat(latS)
			lon, okLon := toFloat(lonS)
			if okLat && okLon {
				n.Latitude, n.Longitude = lat, lon
				return n, true
			}
		}
	}
	lat, okLat := toFloat(raw["latitud"])
	lon, okLon := toFloat(raw["longitud"])
	if !okLat || !okLon {
		return ClientNeighborhood{}, false
	}
	n.Latitude, n.Longitude = lat, lon
	return n, true
}

// decodeList accepts either a bare JSON array or a paginated {"results", "next"} envelope.
func decodeList[T any](body []byte) ([]T, bool, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		err := json.Unmarshal(trimmed, &items)
		return items, false, err
	}
	var env struct {
		Next    *string `json:"next"`
		Results []T     `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, false, err
	}
	return env.Results, env.Next != nil && *env.Next != "", nil
}

// do sends one request, retrying transient failures. Every attempt, retries included,
// waits on the rate limiter.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		out, err := c.doOnce(ctx, method, path, query, body)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable(err) || method == http.MethodPut {
			return nil, err
		}
		backoff := time.Duration(1<<uint(attempt)) * 200 * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Api-Key "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(data)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}
	return data, nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return true
}
