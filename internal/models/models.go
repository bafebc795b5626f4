package models

import "time"

// UsageKind names a metered free-tier action.
type UsageKind string

const (
	UsageAnalysis UsageKind = "analysis"
	UsagePost     UsageKind = "post"
	UsageIdeas    UsageKind = "ideas"
)

// Free-tier allowances per reset window.
const (
	FreeAnalysisLimit = 5
	FreePostLimit     = 2
	FreeIdeasLimit    = 3
)

// UsageResetPeriod is the length of a free-tier window.
const UsageResetPeriod = 3 * 24 * time.Hour

// Limit returns the free-tier allowance for the kind.
func (k UsageKind) Limit() int {
	switch k {
	case UsageAnalysis:
		return FreeAnalysisLimit
	case UsagePost:
		return FreePostLimit
	case UsageIdeas:
		return FreeIdeasLimit
	default:
		return 0
	}
}

type User struct {
	ID         int64
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type UsageRecord struct {
	UserID               int64     `json:"user_id"`
	AnalysisCount        int       `json:"analysis_count"`
	PostGenerationCount  int       `json:"post_generation_count"`
	IdeasGenerationCount int       `json:"ideas_generation_count"`
	ResetAt              time.Time `json:"reset_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Count returns the counter tracked for kind.
func (u UsageRecord) Count(kind UsageKind) int {
	switch kind {
	case UsageAnalysis:
		return u.AnalysisCount
	case UsagePost:
		return u.PostGenerationCount
	case UsageIdeas:
		return u.IdeasGenerationCount
	default:
		return 0
	}
}

type Subscription struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsActive  bool      `json:"is_active"`
	PaymentID string    `json:"payment_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ActiveAt reports whether the subscription grants access at t.
func (s Subscription) ActiveAt(t time.Time) bool {
	return s.IsActive && s.EndDate.After(t)
}

type ChannelAnalysis struct {
	ID                 int64     `json:"id"`
	UserID             int64     `json:"user_id"`
	ChannelName        string    `json:"channel_name"`
	Themes             []string  `json:"themes"`
	Styles             []string  `json:"styles"`
	AnalyzedPostsCount int       `json:"analyzed_posts_count"`
	SamplePosts        []string  `json:"sample_posts"`
	BestPostingTime    string    `json:"best_posting_time"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Idea struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	ChannelName string    `json:"channel_name"`
	TopicIdea   string    `json:"topic_idea"`
	FormatStyle string    `json:"format_style"`
	RelativeDay int       `json:"relative_day"`
	IsDetailed  bool      `json:"is_detailed"`
	CreatedAt   time.Time `json:"created_at"`
}

type SavedPost struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	ChannelName string    `json:"channel_name"`
	IdeaID      string    `json:"idea_id,omitempty"`
	TopicIdea   string    `json:"topic_idea"`
	FormatStyle string    `json:"format_style"`
	FinalText   string    `json:"final_text"`
	ImageURLs   []string  `json:"image_urls"`
	CreatedAt   time.Time `json:"created_at"`
}

type Payment struct {
	ID             int64
	UserID         int64
	Provider       string
	ProviderCharge string
	Currency       string
	Amount         int
	Status         string
	RawPayload     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Image is a stock photo candidate for a post.
type Image struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	PreviewURL  string `json:"preview_url"`
	Alt         string `json:"alt"`
	Author      string `json:"author"`
	AuthorURL   string `json:"author_url"`
	Source      string `json:"source"`
	MirroredURL string `json:"mirrored_url,omitempty"`
}
