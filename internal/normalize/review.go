package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"frontdesk/internal/domain"
)

// Review normalizes review-site webhooks: {"reviews":[...]} or a single review object.
type Review struct{}

func (Review) Channel() domain.Channel { return domain.ChannelReview }

func (Review) Units(raw []byte) ([]Unit, error) {
	var p struct {
		Reviews []json.RawMessage `json:"reviews"`
	}
	if err := decodeObject(domain.ChannelReview, raw, &p); err != nil {
		return nil, err
	}
	if p.Reviews != nil {
		return splitArray(domain.ChannelReview, 0, p.Reviews, nil), nil
	}
	if hasKey(raw, "review_id", "reviewer") {
		return []Unit{{Channel: domain.ChannelReview, Index: 0, Raw: raw}}, nil
	}
	return nil, domain.Malformed(domain.ChannelReview, -1, "neither a reviews list nor a review object")
}

// Normalize keeps star-only reviews: they carry empty text and classify as general_inquiry.
func (Review) Normalize(u Unit, receivedAt time.Time) (domain.InboundMessage, error) {
	var r struct {
		ReviewID string `json:"review_id"`
		Reviewer struct {
			ProfileID   string `json:"profile_id"`
			DisplayName string `json:"display_name"`
		} `json:"reviewer"`
		StarRating json.RawMessage `json:"star_rating"`
		Comment    string          `json:"comment"`
		CreateTime string          `json:"create_time"`
	}
	if err := decodeUnit(u, &r); err != nil {
		return domain.InboundMessage{}, err
	}
	sender := r.Reviewer.ProfileID
	if sender == "" {
		sender = r.Reviewer.DisplayName
	}
	if sender == "" {
		return domain.InboundMessage{}, domain.Malformed(u.Channel, u.Index, "missing reviewer")
	}

	msg := domain.InboundMessage{
		Channel:      domain.ChannelReview,
		Sender:       sender,
		SenderName:   r.Reviewer.DisplayName,
		ExternalID:   r.ReviewID,
		Kind:         domain.KindText,
		Content:      domain.TextContent(r.Comment),
		ReceivedAt:   receivedAt,
		RawTimestamp: r.CreateTime,
	}
	if stars := starRating(r.StarRating); stars != "" {
		msg.Metadata = map[string]string{"star_rating": stars}
	}
	return msg, nil
}

var starWords = map[string]string{"ONE": "1", "TWO": "2", "THREE": "3", "FOUR": "4", "FIVE": "5"}

// starRating accepts 1..5 as a number or the Google Business words ONE..FIVE.
func starRating(v json.RawMessage) string {
	s := strings.TrimSpace(scalarString(v))
	if w, ok := starWords[strings.ToUpper(s)]; ok {
		return w
	}
	switch s {
	case "1", "2", "3", "4", "5":
		return s
	}
	return ""
}
