package search

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/core/errx"
	logx "github.com/shoppick/server/pkg/logger"
)

// usedKeywords and rentalKeywords mark listings that are filtered out when
// the query excludes second-hand or rental offers.
var (
	usedKeywords   = []string{"중고", "리퍼", "반품", "재고", "전시"}
	rentalKeywords = []string{"렌탈", "렌트", "대여", "월납"}
)

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// NaverConfig configures the Naver shopping client.
type NaverConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
}

// Naver implements Client against the Naver shopping search API.
type Naver struct {
	cfg  NaverConfig
	http *http.Client
}

// NewNaver validates credentials and returns a client. The underlying
// http.Client can be swapped for tests via WithHTTPClient.
func NewNaver(cfg NaverConfig) (*Naver, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("naver client id and secret are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openapi.naver.com/v1/search/shop.json"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Naver{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// WithHTTPClient replaces the transport. Intended for tests.
func (n *Naver) WithHTTPClient(c *http.Client) *Naver {
	n.http = c
	return n
}

func (n *Naver) Name() string {
	return "naver"
}

type naverItem struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Image     string `json:"image"`
	Lprice    string `json:"lprice"`
	Hprice    string `json:"hprice"`
	MallName  string `json:"mallName"`
	ProductID string `json:"productId"`
	Brand     string `json:"brand"`
	Maker     string `json:"maker"`
	Category1 string `json:"category1"`
	Category2 string `json:"category2"`
	Category3 string `json:"category3"`
	Category4 string `json:"category4"`
}

type naverResponse struct {
	Total int         `json:"total"`
	Items []naverItem `json:"items"`
}

func (n *Naver) Search(ctx context.Context, q Query) ([]model.ProductCandidate, error) {
	var lastErr error
	delay := 500 * time.Millisecond

	for attempt := 0; attempt <= n.cfg.MaxRetries; attempt++ {
		items, err := n.searchOnce(ctx, q)
		if err == nil {
			return items, nil
		}
		lastErr = err

		if !errx.Transient(err) {
			return nil, err
		}
		if attempt == n.cfg.MaxRetries {
			break
		}

		logx.Debug().
			Str("query", q.Term).
			Int("attempt", attempt+1).
			Err(err).
			Msg("Retrying product search")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, 8*time.Second)
		}
	}

	return nil, errx.New(errx.KindSearchUnavailable, lastErr,
		fmt.Sprintf("search backend exhausted %d retries", n.cfg.MaxRetries))
}

func (n *Naver) searchOnce(ctx context.Context, q Query) ([]model.ProductCandidate, error) {
	display := q.Display
	if display <= 0 {
		display = 20
	}
	sort := q.Sort
	if sort == "" {
		sort = SortRelevance
	}

	params := url.Values{}
	params.Set("query", q.Term)
	// request extra rows so post-filtering can still fill the display count
	params.Set("display", strconv.Itoa(min(display*2, 100)))
	params.Set("start", "1")
	params.Set("sort", sort)
	if q.MinPrice > 0 || q.MaxPrice > 0 {
		params.Set("filter", "exclude_cbshop") // drop overseas direct-purchase listings
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errx.Perm(errx.KindSearchUnavailable, err, "building search request failed")
	}
	req.Header.Set("X-Naver-Client-Id", n.cfg.ClientID)
	req.Header.Set("X-Naver-Client-Secret", n.cfg.ClientSecret)

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, errx.New(errx.KindSearchUnavailable, err, "search request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errx.Perm(errx.KindSearchUnavailable, nil, "search api authentication failed")
	case resp.StatusCode == http.StatusBadRequest:
		return nil, errx.Perm(errx.KindSearchUnavailable, nil, "malformed search request")
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errx.New(errx.KindSearchUnavailable, nil, "search api rate limited")
	default:
		return nil, errx.New(errx.KindSearchUnavailable, nil,
			fmt.Sprintf("search api error: status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errx.New(errx.KindSearchUnavailable, err, "reading search response failed")
	}

	var data naverResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errx.Perm(errx.KindSearchUnavailable, err, "decoding search response failed")
	}

	now := time.Now().UTC()
	out := make([]model.ProductCandidate, 0, display)
	for _, item := range data.Items {
		if shouldExclude(item.Title, q.ExcludeUsed, q.ExcludeRental) {
			continue
		}
		price, _ := strconv.ParseInt(item.Lprice, 10, 64)
		if q.MinPrice > 0 && price < q.MinPrice {
			continue
		}
		if q.MaxPrice > 0 && price > q.MaxPrice {
			continue
		}
		out = append(out, parseItem(item, price, now))
		if len(out) >= display {
			break
		}
	}

	logx.Debug().
		Str("query", q.Term).
		Str("sort", sort).
		Int("total", data.Total).
		Int("returned", len(out)).
		Msg("Product search completed")

	return out, nil
}

func parseItem(item naverItem, price int64, fetchedAt time.Time) model.ProductCandidate {
	highPrice, _ := strconv.ParseInt(item.Hprice, 10, 64)

	var categories []string
	for _, c := range []string{item.Category1, item.Category2, item.Category3, item.Category4} {
		if c != "" {
			categories = append(categories, c)
		}
	}

	return model.ProductCandidate{
		ID:         item.ProductID,
		Title:      cleanHTML(item.Title),
		Link:       item.Link,
		Image:      item.Image,
		Price:      price,
		HighPrice:  highPrice,
		MallName:   item.MallName,
		Brand:      item.Brand,
		Maker:      item.Maker,
		Categories: categories,
		Raw: map[string]any{
			"productId": item.ProductID,
			"lprice":    item.Lprice,
			"mallName":  item.MallName,
		},
		FetchedAt: fetchedAt,
	}
}

func shouldExclude(title string, excludeUsed, excludeRental bool) bool {
	if excludeUsed {
		for _, kw := range usedKeywords {
			if strings.Contains(title, kw) {
				return true
			}
		}
	}
	if excludeRental {
		for _, kw := range rentalKeywords {
			if strings.Contains(title, kw) {
				return true
			}
		}
	}
	return false
}

// cleanHTML strips provider markup tags and decodes entities in titles.
func cleanHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(htmlTagRe.ReplaceAllString(s, "")))
}
