package domain

import "time"

// PipelineRunConfig is the read-only input of a single pipeline run.
type PipelineRunConfig struct {
	Sources            map[SourceType]bool
	MinQuality         float64
	MaxContentAge      time.Duration
	AnalysisType       string
	DistributeSocial   bool
	DistributeChatOps  bool
	CollectConcurrency int
}

// Enabled reports whether the given source type takes part in the run.
func (c PipelineRunConfig) Enabled(t SourceType) bool {
	return c.Sources[t]
}

// Clone returns a copy that does not share the Sources map.
func (c PipelineRunConfig) Clone() PipelineRunConfig {
	out := c
	out.Sources = make(map[SourceType]bool, len(c.Sources))
	for k, v := range c.Sources {
		out.Sources[k] = v
	}
	return out
}

// SynthesisInput is the normalized content handed to the analysis model.
type SynthesisInput struct {
	AnalysisType string
	WindowStart  time.Time
	WindowEnd    time.Time
	Groups       map[SourceType][]ContentItem
}

// ItemCount returns the number of items across all groups.
func (in SynthesisInput) ItemCount() int {
	n := 0
	for _, items := range in.Groups {
		n += len(items)
	}
	return n
}

// Usage captures token and cost accounting of one synthesis call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	CostUSD          float64
}

// AnalysisResult is the structured output of the synthesis adapter.
type AnalysisResult struct {
	Title   string
	Summary string
	Content string
	Model   string
	Usage   Usage
}

// Digest is the persisted output of one successful pipeline run.
type Digest struct {
	ID             string
	Title          string
	Summary        string
	Content        string
	AIModel        string
	AnalysisType   string
	WindowStart    time.Time
	WindowEnd      time.Time
	ItemCount      int
	SourceCounts   map[SourceType]int
	PostedToSocial bool
	SocialURL      string
	SentToChatOps  bool
	TokensUsed     int64
	CostUSD        float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// View projects the digest into the shape distributors receive.
func (d Digest) View() DigestView {
	return DigestView{
		ID:          d.ID,
		Title:       d.Title,
		Summary:     d.Summary,
		Content:     d.Content,
		WindowStart: d.WindowStart,
		WindowEnd:   d.WindowEnd,
		ItemCount:   d.ItemCount,
	}
}

// DigestView is a read-only digest projection.
type DigestView struct {
	ID          string
	Title       string
	Summary     string
	Content     string
	WindowStart time.Time
	WindowEnd   time.Time
	ItemCount   int
}

// DigestUpdate carries the only mutable digest fields. Nil means unchanged.
type DigestUpdate struct {
	PostedToSocial *bool
	SocialURL      *string
	SentToChatOps  *bool
}

// Empty reports whether the update changes nothing.
func (u DigestUpdate) Empty() bool {
	return u.PostedToSocial == nil && u.SocialURL == nil && u.SentToChatOps == nil
}

// Channel identifies a distribution target.
type Channel string

const (
	ChannelSocial  Channel = "social"
	ChannelChatOps Channel = "chatops"
)

// DistributionResult is what a distributor reports back.
type DistributionResult struct {
	Channel Channel
	Success bool
	URL     string
	Err     error
}

// NoticeKind classifies operational notices.
type NoticeKind string

const (
	NoticeCompleted NoticeKind = "completed"
	NoticeNoContent NoticeKind = "no_content"
	NoticeFailed    NoticeKind = "failed"
)

// Notice is a short operational message about a pipeline run.
type Notice struct {
	Kind     NoticeKind
	Pipeline string
	DigestID string
	Items    int
	Message  string
	Err      error
}

// Setting is a key/value runtime configuration entry.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
