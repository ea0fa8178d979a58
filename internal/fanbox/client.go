package fanbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the fanbox API endpoint.
const DefaultBaseURL = "https://api.fanbox.cc"

const origin = "https://www.fanbox.cc"

// Client is a fanbox API client
type Client struct {
	baseURL    string
	session    string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a new fanbox API client. session is the full
// "FANBOXSESSID=..." cookie; baseURL defaults to DefaultBaseURL.
func NewClient(baseURL, session, userAgent string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		session:   session,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fanbox API error (status %d) for %s: %s", e.StatusCode, e.URL, e.Body)
}

// envelope wraps every API payload
type envelope struct {
	Body json.RawMessage `json:"body"`
}

// get performs a GET request and decodes the body field into result
func (c *Client) get(ctx context.Context, rawURL string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Origin", origin)
	req.Header.Set("Cookie", c.session)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, URL: rawURL, Body: string(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if err := json.Unmarshal(env.Body, result); err != nil {
		return fmt.Errorf("unmarshal body: %w", err)
	}

	return nil
}

func (c *Client) endpoint(method string, query url.Values) string {
	u := c.baseURL + "/" + method
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// ListFollowing fetches the creators the session user follows
func (c *Client) ListFollowing(ctx context.Context) ([]FollowingCreator, error) {
	var creators []FollowingCreator
	if err := c.get(ctx, c.endpoint("creator.listFollowing", nil), &creators); err != nil {
		return nil, fmt.Errorf("list following: %w", err)
	}
	return creators, nil
}

// ListSupporting fetches the plans the session user pays for
func (c *Client) ListSupporting(ctx context.Context) ([]SupportingPlan, error) {
	var plans []SupportingPlan
	if err := c.get(ctx, c.endpoint("plan.listSupporting", nil), &plans); err != nil {
		return nil, fmt.Errorf("list supporting: %w", err)
	}
	return plans, nil
}

// ListCreatorPosts fetches every post of a creator, newest first. The API
// hands out the page URLs up front; pages are fetched in that order.
func (c *Client) ListCreatorPosts(ctx context.Context, creatorID string) ([]PostListItem, error) {
	var pages []string
	query := url.Values{"creatorId": {creatorID}}
	if err := c.get(ctx, c.endpoint("post.paginateCreator", query), &pages); err != nil {
		return nil, fmt.Errorf("paginate creator %s: %w", creatorID, err)
	}

	var posts []PostListItem
	for i, page := range pages {
		var items []PostListItem
		if err := c.get(ctx, page, &items); err != nil {
			return nil, fmt.Errorf("list creator %s page %d: %w", creatorID, i+1, err)
		}
		posts = append(posts, items...)
	}

	return posts, nil
}

// GetPost fetches a single post with its body
func (c *Client) GetPost(ctx context.Context, postID string) (*Post, error) {
	var post Post
	query := url.Values{"postId": {postID}}
	if err := c.get(ctx, c.endpoint("post.info", query), &post); err != nil {
		return nil, fmt.Errorf("get post %s: %w", postID, err)
	}
	return &post, nil
}

// ListPostComments fetches every comment of a post, following nextUrl until
// the last page.
func (c *Client) ListPostComments(ctx context.Context, postID string) ([]Comment, error) {
	query := url.Values{"postId": {postID}, "limit": {"10"}}
	next := c.endpoint("post.listComments", query)

	var comments []Comment
	for page := 1; next != ""; page++ {
		var resp PostComments
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("list comments of %s page %d: %w", postID, page, err)
		}
		if resp.CommentList == nil {
			break
		}
		comments = append(comments, resp.CommentList.Items...)
		next = resp.CommentList.NextURL
	}

	return comments, nil
}
