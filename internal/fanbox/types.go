package fanbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingTimestamp is returned when a post omits a required datetime.
	ErrMissingTimestamp = errors.New("missing timestamp")
)

// User is the pixiv account behind a creator page
type User struct {
	UserID  string `json:"userId"`
	Name    string `json:"name"`
	IconURL string `json:"iconUrl"`
}

// FollowingCreator is an entry of creator.listFollowing
type FollowingCreator struct {
	CreatorID          string `json:"creatorId"`
	User               User   `json:"user"`
	Description        string `json:"description"`
	HasAdultContent    bool   `json:"hasAdultContent"`
	CoverImageURL      string `json:"coverImageUrl"`
	IsFollowed         bool   `json:"isFollowed"`
	IsSupported        bool   `json:"isSupported"`
	IsStopped          bool   `json:"isStopped"`
	IsAcceptingRequest bool   `json:"isAcceptingRequest"`
	HasBoothShop       bool   `json:"hasBoothShop"`
	Category           string `json:"category"`
}

// SupportingPlan is an entry of plan.listSupporting
type SupportingPlan struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Fee             int    `json:"fee"`
	Description     string `json:"description"`
	CoverImageURL   string `json:"coverImageUrl"`
	User            User   `json:"user"`
	CreatorID       string `json:"creatorId"`
	HasAdultContent bool   `json:"hasAdultContent"`
	PaymentMethod   string `json:"paymentMethod"`
}

// PostType is the editor a post was written with
type PostType string

const (
	PostTypeImage   PostType = "image"
	PostTypeText    PostType = "text"
	PostTypeFile    PostType = "file"
	PostTypeArticle PostType = "article"
	PostTypeVideo   PostType = "video"
	PostTypeEntry   PostType = "entry"
)

// PostListItem is the lightweight post format from post.listCreator
type PostListItem struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	FeeRequired       int       `json:"feeRequired"`
	PublishedDatetime time.Time `json:"publishedDatetime"`
	UpdatedDatetime   time.Time `json:"updatedDatetime"`
	Tags              []string  `json:"tags"`
	IsLiked           bool      `json:"isLiked"`
	LikeCount         int       `json:"likeCount"`
	CommentCount      int       `json:"commentCount"`
	IsRestricted      bool      `json:"isRestricted"`
	User              User      `json:"user"`
	CreatorID         string    `json:"creatorId"`
	HasAdultContent   bool      `json:"hasAdultContent"`
	Excerpt           string    `json:"excerpt"`
	IsPinned          bool      `json:"isPinned"`
}

func (p *PostListItem) UnmarshalJSON(data []byte) error {
	type plain PostListItem
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := requireTimes(raw.ID, raw.PublishedDatetime, raw.UpdatedDatetime); err != nil {
		return err
	}
	*p = PostListItem(raw)
	return nil
}

// Post is the full post returned by post.info
type Post struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	FeeRequired       int        `json:"feeRequired"`
	PublishedDatetime time.Time  `json:"publishedDatetime"`
	UpdatedDatetime   time.Time  `json:"updatedDatetime"`
	Tags              []string   `json:"tags"`
	IsLiked           bool       `json:"isLiked"`
	LikeCount         int        `json:"likeCount"`
	CommentCount      int        `json:"commentCount"`
	IsRestricted      bool       `json:"isRestricted"`
	User              User       `json:"user"`
	CreatorID         string     `json:"creatorId"`
	HasAdultContent   bool       `json:"hasAdultContent"`
	Type              PostType   `json:"type"`
	CoverImageURL     string     `json:"coverImageUrl"`
	Body              PostBody   `json:"body"` // empty when fully restricted
	Excerpt           string     `json:"excerpt"`
	NextPost          *PostShort `json:"nextPost"`
	PrevPost          *PostShort `json:"prevPost"`
	ImageForShare     string     `json:"imageForShare"`
	IsPinned          bool       `json:"isPinned"`
}

func (p *Post) UnmarshalJSON(data []byte) error {
	type plain Post
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := requireTimes(raw.ID, raw.PublishedDatetime, raw.UpdatedDatetime); err != nil {
		return err
	}
	*p = Post(raw)
	return nil
}

// PostShort points at an adjacent post
type PostShort struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	PublishedDatetime time.Time `json:"publishedDatetime"`
}

func (p *PostShort) UnmarshalJSON(data []byte) error {
	type plain PostShort
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := requireTimes(raw.ID, raw.PublishedDatetime); err != nil {
		return err
	}
	*p = PostShort(raw)
	return nil
}

// PostSummary is what a fanbox.post embed carries about the linked post.
// It is a copy, never a handle to the linked post.
type PostSummary struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	FeeRequired       int       `json:"feeRequired"`
	PublishedDatetime time.Time `json:"publishedDatetime"`
	CreatorID         string    `json:"creatorId"`
	User              User      `json:"user"`
	Excerpt           string    `json:"excerpt"`
	IsRestricted      bool      `json:"isRestricted"`
	HasAdultContent   bool      `json:"hasAdultContent"`
}

// CreatorProfile is what a fanbox.creator embed carries about the linked creator
type CreatorProfile struct {
	CreatorID       string `json:"creatorId"`
	User            User   `json:"user"`
	Description     string `json:"description"`
	HasAdultContent bool   `json:"hasAdultContent"`
	CoverImageURL   string `json:"coverImageUrl"`
}

func requireTimes(id string, times ...time.Time) error {
	for _, t := range times {
		if t.IsZero() {
			return fmt.Errorf("post %q: %w", id, ErrMissingTimestamp)
		}
	}
	return nil
}

// CreatorURL returns the canonical fanbox page of a creator.
func CreatorURL(creatorID string) string {
	return fmt.Sprintf("https://%s.fanbox.cc/", creatorID)
}

// PostURL returns the canonical fanbox page of a post.
func PostURL(creatorID, postID string) string {
	return fmt.Sprintf("https://%s.fanbox.cc/posts/%s", creatorID, postID)
}

// PixivUserURL returns the pixiv profile page of a user.
func PixivUserURL(userID string) string {
	return fmt.Sprintf("https://www.pixiv.net/users/%s", userID)
}

// Comment is a comment on a post. Replies are only nested one level deep
// by the platform; RootCommentID points at the top-level comment.
type Comment struct {
	ID              string    `json:"id"`
	Body            string    `json:"body"`
	CreatedDatetime time.Time `json:"createdDatetime"`
	IsLiked         bool      `json:"isLiked"`
	IsOwn           bool      `json:"isOwn"`
	LikeCount       int       `json:"likeCount"`
	ParentCommentID string    `json:"parentCommentId"`
	RootCommentID   string    `json:"rootCommentId"`
	User            User      `json:"user"`
	Replies         []Comment `json:"replies"`
}

// PostCommentList is one page of comments
type PostCommentList struct {
	Items   []Comment `json:"items"`
	NextURL string    `json:"nextUrl"`
}

// PostComments is the response of post.listComments. CommentList is nil when
// the creator has comments turned off.
type PostComments struct {
	ViewMode    string           `json:"viewMode"`
	CommentList *PostCommentList `json:"commentList"`
}
